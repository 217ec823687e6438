package filter

// Field names as accepted in query strings.
const (
	FieldStartDate   = "start_date"
	FieldEndDate     = "end_date"
	FieldMerchant    = "merchant"
	FieldGroup       = "group"
	FieldCategory    = "category"
	FieldSubcategory = "subcategory"
	FieldAccount     = "account"
	FieldAmount      = "amount"
)

// field extracts one optional constraint from a Spec. bind reports the
// comparator and the value to bind, or present=false when absent.
// placeholder wraps the bound parameter and defaults to "?".
type field struct {
	name        string
	placeholder string
	bind        func(Spec) (cmp string, arg any, present bool)
}

func stringField(name string, get func(Spec) string) field {
	return field{name: name, bind: func(s Spec) (string, any, bool) {
		v := get(s)
		return "=", v, v != ""
	}}
}

// fields is evaluated in order, so predicates have a stable clause order.
var fields = []field{
	{name: FieldStartDate, bind: func(s Spec) (string, any, bool) {
		return ">=", s.StartDate.String(), !s.StartDate.IsZero()
	}},
	{name: FieldEndDate, bind: func(s Spec) (string, any, bool) {
		return "<=", s.EndDate.String(), !s.EndDate.IsZero()
	}},
	stringField(FieldMerchant, func(s Spec) string { return s.Merchant }),
	stringField(FieldGroup, func(s Spec) string { return s.Group }),
	stringField(FieldCategory, func(s Spec) string { return s.Category }),
	stringField(FieldSubcategory, func(s Spec) string { return s.Subcategory }),
	stringField(FieldAccount, func(s Spec) string { return s.Account }),
	// The amount travels as its decimal text and is converted by SQLite on
	// both sides of the comparison.
	{name: FieldAmount, placeholder: "CAST(? AS REAL)", bind: func(s Spec) (string, any, bool) {
		if s.Amount == nil {
			return "", nil, false
		}
		cmp, err := s.AmountOp.Comparator()
		return cmp, s.Amount.String(), err == nil
	}},
}

// descriptors maps each record kind to the columns its fields constrain.
// A field missing from a kind's table is not applicable to that kind.
var descriptors = map[Kind]map[string]string{
	KindTransaction: {
		FieldStartDate:   "date",
		FieldEndDate:     "date",
		FieldMerchant:    "merchant",
		FieldGroup:       "txn_group",
		FieldCategory:    "category",
		FieldSubcategory: "subcategory",
		FieldAccount:     "account",
		FieldAmount:      "CAST(amount AS REAL)",
	},
	KindNetWorth: {
		FieldStartDate:   "date",
		FieldEndDate:     "date",
		FieldCategory:    "category",
		FieldSubcategory: "subcategory",
		FieldAccount:     "account",
	},
}
