package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	Expense  TransactionType = "expense"
	Income   TransactionType = "income"
	Transfer TransactionType = "transfer"
)

const (
	Cash       AccountType = "cash"
	Bank       AccountType = "bank"
	Wallet     AccountType = "wallet"
	Credit     AccountType = "credit"
	Investment AccountType = "investment"
	Other      AccountType = "other"
)

// DateLayout is the wire format for civil dates.
const DateLayout = "2006-01-02"

type (
	TransactionType string
	AccountType     string

	// Date is a civil date stored as midnight UTC.
	Date struct {
		time.Time
	}

	Account struct {
		ID             string      `json:"id"`
		Name           string      `json:"name"`
		Type           AccountType `json:"type"`
		Balance        int64       `json:"balance"`
		InitialBalance int64       `json:"initialBalance"`
	}

	Transaction struct {
		ID              string          `json:"id"`
		Type            TransactionType `json:"type"`
		Amount          int64           `json:"amount"`
		AccountID       string          `json:"accountId"`
		TargetAccountID string          `json:"targetAccountId,omitempty"`
		Date            Date            `json:"date"`
		Category        string          `json:"category"`
		Description     string          `json:"description,omitempty"`
		Tags            []string        `json:"tags,omitempty"`
	}

	// BalanceLogEntry records one applied delta. Entries are never mutated.
	BalanceLogEntry struct {
		ID                   string    `json:"id"`
		AccountID            string    `json:"accountId"`
		Delta                int64     `json:"delta"`
		RelatedTransactionID string    `json:"relatedTransactionId,omitempty"`
		ResultingBalance     int64     `json:"resultingBalance"`
		Reason               string    `json:"reason"`
		Timestamp            time.Time `json:"timestamp"`
	}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the clock part of t, keeping its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// AddDays returns the date n calendar days away.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool  { return d.Time.After(o.Time) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts YYYY-MM-DD and RFC 3339 timestamps; the latter
// are truncated to their calendar day.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	if parsed, err := ParseDate(s); err == nil {
		*d = parsed
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("invalid date %q", s)
	}
	*d = DateOf(t)
	return nil
}

func (t TransactionType) IsValid() bool {
	switch t {
	case Expense, Income, Transfer:
		return true
	}
	return false
}

func (t AccountType) IsValid() bool {
	switch t {
	case Cash, Bank, Wallet, Credit, Investment, Other:
		return true
	}
	return false
}

// Validate checks the structural invariants of a transaction payload.
// Reference checks against the account store happen in the ledger.
func (tx Transaction) Validate() error {
	if strings.TrimSpace(tx.ID) == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	if !tx.Type.IsValid() {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown transaction type %q", tx.Type)}
	}
	if tx.Amount <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if strings.TrimSpace(tx.AccountID) == "" {
		return &ValidationError{Field: "accountId", Reason: "is required"}
	}
	if tx.Type == Transfer {
		if strings.TrimSpace(tx.TargetAccountID) == "" {
			return &ValidationError{Field: "targetAccountId", Reason: "is required for transfers"}
		}
		if tx.TargetAccountID == tx.AccountID {
			return &SameAccountTransferError{AccountID: tx.AccountID}
		}
	}
	return nil
}

// SameEffect reports whether two versions of a transaction move the same
// money between the same accounts.
func (tx Transaction) SameEffect(other Transaction) bool {
	if tx.Type != other.Type || tx.Amount != other.Amount || tx.AccountID != other.AccountID {
		return false
	}
	return tx.Type != Transfer || tx.TargetAccountID == other.TargetAccountID
}

// Accounts returns the account IDs the transaction touches.
func (tx Transaction) Accounts() []string {
	if tx.Type == Transfer {
		return []string{tx.AccountID, tx.TargetAccountID}
	}
	return []string{tx.AccountID}
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	if a.Type != "" && !a.Type.IsValid() {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown account type %q", a.Type)}
	}
	return nil
}
