package core

import (
	"errors"
	"strings"
)

const (
	Income   Group = "Income"
	Expenses Group = "Expenses"
	Savings  Group = "Savings"
)

const (
	Asset     NetWorthCategory = "Asset"
	Liability NetWorthCategory = "Liability"
)

type (
	// Group is the top level classification of a transaction.
	Group string

	// NetWorthCategory separates what is owned from what is owed.
	NetWorthCategory string

	Transaction struct {
		Date        Date   `json:"Date"`
		Merchant    string `json:"Merchant"`
		Amount      Money  `json:"Amount"`
		Group       Group  `json:"Group"`
		Category    string `json:"Category"`
		Subcategory string `json:"Subcategory"`
		Account     string `json:"Account"`
	}

	NetWorthEntry struct {
		Date        Date             `json:"Date"`
		Account     string           `json:"Account"`
		Category    NetWorthCategory `json:"Category"`
		Subcategory string           `json:"Subcategory"`
		Balance     Money            `json:"Balance"`
	}

	// NetWorthAggregate is one (date, category) total over all accounts.
	NetWorthAggregate struct {
		Date     Date             `json:"Date"`
		Category NetWorthCategory `json:"Category"`
		Balance  Money            `json:"Balance"`
	}
)

var (
	ErrInvalidGroup    = errors.New("invalid group")
	ErrInvalidCategory = errors.New("invalid net worth category")
	ErrEmptyCategory   = errors.New("empty category")
	ErrEmptyAccount    = errors.New("empty account")
	ErrZeroDate        = errors.New("date cannot be zero")
)

// Groups lists every valid transaction group in display order.
func Groups() []Group {
	return []Group{Income, Expenses, Savings}
}

// ParseGroup matches s against the known groups ignoring case and padding.
func ParseGroup(s string) (Group, error) {
	s = strings.TrimSpace(s)
	for _, g := range Groups() {
		if strings.EqualFold(s, string(g)) {
			return g, nil
		}
	}
	return "", ErrInvalidGroup
}

// ParseNetWorthCategory matches s against Asset and Liability ignoring case.
func ParseNetWorthCategory(s string) (NetWorthCategory, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.EqualFold(s, string(Asset)):
		return Asset, nil
	case strings.EqualFold(s, string(Liability)):
		return Liability, nil
	}
	return "", ErrInvalidCategory
}

func (g Group) IsValid() bool {
	switch g {
	case Income, Expenses, Savings:
		return true
	}
	return false
}

func (c NetWorthCategory) IsValid() bool {
	return c == Asset || c == Liability
}

func (t Transaction) Validate() error {
	if t.Date.IsZero() {
		return ErrZeroDate
	}
	if !t.Group.IsValid() {
		return ErrInvalidGroup
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (e NetWorthEntry) Validate() error {
	if e.Date.IsZero() {
		return ErrZeroDate
	}
	if !e.Category.IsValid() {
		return ErrInvalidCategory
	}
	if strings.TrimSpace(e.Account) == "" {
		return ErrEmptyAccount
	}
	return nil
}
