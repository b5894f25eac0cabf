package ledger

import "tally/internal/core"

// Balance log reasons.
const (
	ReasonExpense     = "expense"
	ReasonIncome      = "income"
	ReasonTransferOut = "transfer_out"
	ReasonTransferIn  = "transfer_in"
	ReasonRepair      = "repair"

	reversalSuffix = "_reversal"
)

// Effect is a signed change to one account's balance.
type Effect struct {
	AccountID string
	Delta     int64
	Reason    string
}

// Effects returns the balance changes a transaction causes when applied.
func Effects(tx core.Transaction) []Effect {
	switch tx.Type {
	case core.Expense:
		return []Effect{{AccountID: tx.AccountID, Delta: -tx.Amount, Reason: ReasonExpense}}
	case core.Income:
		return []Effect{{AccountID: tx.AccountID, Delta: tx.Amount, Reason: ReasonIncome}}
	case core.Transfer:
		return []Effect{
			{AccountID: tx.AccountID, Delta: -tx.Amount, Reason: ReasonTransferOut},
			{AccountID: tx.TargetAccountID, Delta: tx.Amount, Reason: ReasonTransferIn},
		}
	}
	return nil
}

// Reversal returns the effects that undo a previously applied transaction.
func Reversal(tx core.Transaction) []Effect {
	effects := Effects(tx)
	for i := range effects {
		effects[i].Delta = -effects[i].Delta
		effects[i].Reason += reversalSuffix
	}
	return effects
}

// Contributions sums the effects of txs per account. Sums wrap like int64
// balances do, so initialBalance plus the sum is exact whenever the true
// balance fits, which project guarantees for every committed balance.
func Contributions(txs []core.Transaction) map[string]int64 {
	sums := make(map[string]int64)
	for _, tx := range txs {
		for _, e := range Effects(tx) {
			sums[e.AccountID] += e.Delta
		}
	}
	return sums
}
