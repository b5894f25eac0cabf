package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		ID:        "t1",
		Type:      Expense,
		Amount:    100,
		AccountID: "a",
		Date:      NewDate(2025, 1, 1),
		Category:  "Food",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	transfer := good
	transfer.Type = Transfer
	transfer.TargetAccountID = "b"
	if err := transfer.Validate(); err != nil {
		t.Fatalf("expected transfer ok, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Transaction)
		want   error
	}{
		{"missing id", func(tx *Transaction) { tx.ID = " " }, ErrValidation},
		{"unknown type", func(tx *Transaction) { tx.Type = "refund" }, ErrValidation},
		{"zero amount", func(tx *Transaction) { tx.Amount = 0 }, ErrValidation},
		{"negative amount", func(tx *Transaction) { tx.Amount = -5 }, ErrValidation},
		{"missing account", func(tx *Transaction) { tx.AccountID = "" }, ErrValidation},
		{"transfer without target", func(tx *Transaction) { tx.Type = Transfer }, ErrValidation},
		{"transfer to itself", func(tx *Transaction) { tx.Type = Transfer; tx.TargetAccountID = "a" }, ErrReference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := good
			tt.mutate(&tx)
			err := tx.Validate()
			if !errors.Is(err, tt.want) {
				t.Fatalf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSameAccountTransferErrorType(t *testing.T) {
	tx := Transaction{ID: "t", Type: Transfer, Amount: 1, AccountID: "a", TargetAccountID: "a"}
	var sameErr *SameAccountTransferError
	if !errors.As(tx.Validate(), &sameErr) || sameErr.AccountID != "a" {
		t.Fatalf("expected SameAccountTransferError for a")
	}
}

func TestSameEffect(t *testing.T) {
	base := Transaction{ID: "t", Type: Transfer, Amount: 10, AccountID: "a", TargetAccountID: "b", Category: "x"}

	meta := base
	meta.Category = "y"
	meta.Description = "renamed"
	meta.Date = NewDate(2024, 5, 5)
	if !base.SameEffect(meta) {
		t.Fatalf("metadata edit should keep the same effect")
	}

	retarget := base
	retarget.TargetAccountID = "c"
	if base.SameEffect(retarget) {
		t.Fatalf("changing the transfer target changes the effect")
	}

	expense := Transaction{ID: "t", Type: Expense, Amount: 10, AccountID: "a", TargetAccountID: "stale"}
	other := expense
	other.TargetAccountID = ""
	if !expense.SameEffect(other) {
		t.Fatalf("target is irrelevant for non-transfers")
	}
}

func TestDateJSON(t *testing.T) {
	var tx Transaction
	if err := json.Unmarshal([]byte(`{"date":"2024-02-29"}`), &tx); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !tx.Date.Equal(NewDate(2024, 2, 29).Time) {
		t.Fatalf("unexpected date %v", tx.Date)
	}

	if err := json.Unmarshal([]byte(`{"date":"2024-03-01T18:30:00Z"}`), &tx); err != nil {
		t.Fatalf("unmarshal timestamp: %v", err)
	}
	if tx.Date.String() != "2024-03-01" {
		t.Fatalf("timestamp should truncate to its day, got %s", tx.Date)
	}

	b, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string]any
	_ = json.Unmarshal(b, &back)
	if back["date"] != "2024-03-01" {
		t.Fatalf("unexpected wire date %v", back["date"])
	}

	if err := json.Unmarshal([]byte(`{"date":"yesterday"}`), &tx); err == nil {
		t.Fatalf("expected error for invalid date")
	}
}

func TestAccountValidate(t *testing.T) {
	if err := (Account{ID: "a", Type: Bank}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Account{ID: "a"}).Validate(); err != nil {
		t.Fatalf("type is optional, got %v", err)
	}
	if err := (Account{ID: "", Type: Bank}).Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := (Account{ID: "a", Type: "crypto"}).Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for type, got %v", err)
	}
}
