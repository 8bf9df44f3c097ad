package core

import (
	"strings"
	"time"
)

// Transaction is a financial event split across one or more
// categories. Amount is the signed total; the sum of the split amounts
// must always equal it, enforced at write time.
type Transaction struct {
	ID          int64
	Amount      Money
	Vendor      string
	Description string
	Date        time.Time
	// CreatedAt breaks ordering ties between same-day transactions.
	CreatedAt time.Time
}

// Vendor names reserved for system-generated transactions.
const (
	TransferVendor   = "Transfer"
	AdjustmentVendor = "Balance Adjustment"
)

// Split assigns part of a transaction's amount to one category.
type Split struct {
	ID            int64
	TransactionID int64
	CategoryID    int64
	Amount        Money
}

// SplitInput is the caller-supplied portion of a split, before any ids
// are assigned.
type SplitInput struct {
	CategoryID int64
	Amount     Money
}

// Transfer links a zero-sum transaction's two splits so the movement
// renders as "source -> destination" with a positive display amount.
type Transfer struct {
	ID                    int64
	TransactionID         int64
	SourceCategoryID      int64
	DestinationCategoryID int64
	Amount                Money
}

// TransactionInput is a create/edit request for a transaction.
type TransactionInput struct {
	Amount      Money
	Vendor      string
	Description string
	Date        time.Time
	Splits      []SplitInput
}

// Validate enforces the split-sum invariant and basic field rules
// before anything touches storage.
func (in TransactionInput) Validate() error {
	if strings.TrimSpace(in.Vendor) == "" {
		return NewValidationError("vendor", "cannot be empty")
	}
	if in.Date.IsZero() {
		return NewValidationError("date", "cannot be zero")
	}
	if len(in.Splits) == 0 {
		return NewValidationError("splits", "at least one category split is required")
	}
	seen := make(map[int64]bool, len(in.Splits))
	var sum int64
	for _, s := range in.Splits {
		if seen[s.CategoryID] {
			return NewValidationError("splits", "duplicate category in splits")
		}
		seen[s.CategoryID] = true
		sum += s.Amount.Cents
	}
	if sum != in.Amount.Cents {
		return NewValidationError("amount", "must equal the sum of category split amounts")
	}
	return nil
}

// CategoryIDs returns the distinct categories the input touches.
func (in TransactionInput) CategoryIDs() []int64 {
	ids := make([]int64, 0, len(in.Splits))
	for _, s := range in.Splits {
		ids = append(ids, s.CategoryID)
	}
	return ids
}

// TransferInput is a create request for a transfer between two
// categories.
type TransferInput struct {
	Amount                Money
	SourceCategoryID      int64
	DestinationCategoryID int64
	Date                  time.Time
}

// Validate enforces the transfer preconditions.
func (in TransferInput) Validate() error {
	if in.Amount.Cents <= 0 {
		return NewValidationError("amount", "must be positive")
	}
	if in.SourceCategoryID == in.DestinationCategoryID {
		return NewValidationError("destinationCategoryId", "source and destination must differ")
	}
	if in.Date.IsZero() {
		return NewValidationError("date", "cannot be zero")
	}
	return nil
}

// TransactionView is a transaction with its splits and, when the
// transaction is a transfer, the transfer record.
type TransactionView struct {
	Transaction
	Splits   []Split
	Transfer *Transfer
}

// CategoryRef labels a split with its category's identity, for
// listing rows that only need the name.
type CategoryRef struct {
	ID   int64
	Name string
}

// MonthTransaction is one row of a month's transaction listing: the
// transaction plus the categories its splits touch.
type MonthTransaction struct {
	Transaction
	Categories []CategoryRef
}

// CategoryTransaction is one category's slice of a transaction, as
// shown in category detail and history views: the split amount paired
// with the parent transaction's metadata.
type CategoryTransaction struct {
	SplitID     int64
	Amount      Money
	Date        time.Time
	Vendor      string
	Description string
	// IsTransfer marks splits that belong to a transfer transaction.
	IsTransfer bool
}
