package core

import "strings"

// CategoryType distinguishes how a category's balance behaves across
// month boundaries.
type CategoryType string

const (
	// NonAccumulating categories are monthly envelopes: the balance
	// resets at the start of every month.
	NonAccumulating CategoryType = "NON_ACCUMULATING"
	// Accumulating categories carry their balance forward
	// indefinitely, like an emergency fund.
	Accumulating CategoryType = "ACCUMULATING"
	// Savings behaves like Accumulating; it exists as a separate kind
	// purely for presentation.
	Savings CategoryType = "SAVINGS"
	// Fixed categories are system-managed: they cannot change type and
	// never appear in history views.
	Fixed CategoryType = "FIXED"
)

// ParseCategoryType validates a stored or submitted type string.
func ParseCategoryType(s string) (CategoryType, error) {
	switch CategoryType(strings.ToUpper(strings.TrimSpace(s))) {
	case NonAccumulating:
		return NonAccumulating, nil
	case Accumulating:
		return Accumulating, nil
	case Savings:
		return Savings, nil
	case Fixed:
		return Fixed, nil
	default:
		return "", NewValidationError("type", "unknown category type "+s)
	}
}

// IsAccumulating reports whether balances carry forward across months.
// The balance calculator keys all of its windowing off this predicate
// and never off the individual kinds.
func (t CategoryType) IsAccumulating() bool {
	return t == Accumulating || t == Savings
}

// Category is a budget envelope or fund. CreatedMonth and
// DeletedMonth bound its lifecycle; DeletedMonth nil means the
// category is still live.
type Category struct {
	ID           int64
	Name         string
	Type         CategoryType
	CreatedMonth Month
	DeletedMonth *Month
}

// LiveIn reports whether the category logically exists in the given
// month: created on or before it, and not yet deleted as of it.
func (c Category) LiveIn(m Month) bool {
	if m.Before(c.CreatedMonth) {
		return false
	}
	return c.DeletedMonth == nil || m.Before(*c.DeletedMonth)
}

// Validate checks the category's own invariants.
func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return NewValidationError("name", "cannot be empty")
	}
	if _, err := ParseCategoryType(string(c.Type)); err != nil {
		return err
	}
	if c.DeletedMonth != nil && c.DeletedMonth.Before(c.CreatedMonth) {
		return NewValidationError("deletedMonth", "precedes createdMonth")
	}
	return nil
}
