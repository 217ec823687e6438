// Package filter turns an immutable set of optional field constraints into a
// parameterized SQL predicate.
//
// Every column that can appear in a predicate comes from a fixed descriptor
// table; request values are only ever bound as "?" arguments.
package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

var (
	ErrInvalidFilterCombination = errors.New("amount and amount_op must be provided together")
	ErrUnknownOperator          = errors.New("unknown amount operator")
	ErrFieldNotApplicable       = errors.New("filter field not applicable to record kind")
)

// Op is an amount comparison operator name as accepted on the wire.
type Op string

const (
	OpLT  Op = "lt"
	OpLTE Op = "lte"
	OpEQ  Op = "eq"
	OpGTE Op = "gte"
	OpGT  Op = "gt"
)

var comparators = map[Op]string{
	OpLT:  "<",
	OpLTE: "<=",
	OpEQ:  "=",
	OpGTE: ">=",
	OpGT:  ">",
}

// Comparator returns the SQL comparator for op.
func (op Op) Comparator() (string, error) {
	c, ok := comparators[op]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownOperator, string(op))
	}
	return c, nil
}

// ParseOp accepts both operator names ("gte") and their symbols (">=").
func ParseOp(s string) (Op, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if _, ok := comparators[Op(s)]; ok {
		return Op(s), nil
	}
	for op, sym := range comparators {
		if sym == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperator, s)
}

// Kind selects the record table a predicate is built for.
type Kind int

const (
	KindTransaction Kind = iota
	KindNetWorth
)

func (k Kind) String() string {
	switch k {
	case KindTransaction:
		return "transaction"
	case KindNetWorth:
		return "net_worth"
	}
	return "unknown"
}

// Spec is a bundle of optional constraints. Zero values mean "absent".
// Strings match exactly, dates are inclusive bounds, and Amount is compared
// with AmountOp.
type Spec struct {
	StartDate   core.Date
	EndDate     core.Date
	Merchant    string
	Group       string
	Category    string
	Subcategory string
	Account     string
	Amount      *decimal.Decimal
	AmountOp    Op
}

// IsEmpty reports whether s carries no constraints at all.
func (s Spec) IsEmpty() bool {
	return s == Spec{}
}

// Validate checks the amount pair and its operator.
func (s Spec) Validate() error {
	if (s.Amount == nil) != (s.AmountOp == "") {
		return ErrInvalidFilterCombination
	}
	if s.AmountOp != "" {
		if _, err := s.AmountOp.Comparator(); err != nil {
			return err
		}
	}
	return nil
}

// Predicate is a WHERE clause body plus its positional arguments.
type Predicate struct {
	Clause string
	Args   []any
}

// IsEmpty reports whether the predicate imposes no restriction.
func (p Predicate) IsEmpty() bool { return p.Clause == "" }

// Where renders " WHERE <clause>" or nothing for an empty predicate.
func (p Predicate) Where() string {
	if p.IsEmpty() {
		return ""
	}
	return " WHERE " + p.Clause
}

// And appends a raw condition with its arguments. Used by the storage layer
// for fixed conditions it owns; callers must not pass request text as cond.
func (p Predicate) And(cond string, args ...any) Predicate {
	out := Predicate{Args: append(append([]any(nil), p.Args...), args...)}
	if p.Clause == "" {
		out.Clause = cond
	} else {
		out.Clause = p.Clause + " AND " + cond
	}
	return out
}

// Build validates s and folds every present constraint for kind into a
// single conjunctive predicate.
func Build(s Spec, kind Kind) (Predicate, error) {
	if err := s.Validate(); err != nil {
		return Predicate{}, err
	}
	table, ok := descriptors[kind]
	if !ok {
		return Predicate{}, fmt.Errorf("unknown record kind %d", kind)
	}

	var (
		clauses []string
		args    []any
	)
	for _, f := range fields {
		cmp, arg, present := f.bind(s)
		if !present {
			continue
		}
		column, applies := table[f.name]
		if !applies {
			return Predicate{}, fmt.Errorf("%w: %s on %s", ErrFieldNotApplicable, f.name, kind)
		}
		placeholder := f.placeholder
		if placeholder == "" {
			placeholder = "?"
		}
		clauses = append(clauses, column+" "+cmp+" "+placeholder)
		args = append(args, arg)
	}
	return Predicate{Clause: strings.Join(clauses, " AND "), Args: args}, nil
}
