package credit

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bidfinderz-backend/pkg/db/models"
)

// FoldBalance reduces a pair's ledger entries, in creation order, to the
// current outstanding balance. Debits and adjustments add; credits and
// reversals subtract. The fold is the sole source of truth: stored
// balance_after values are a convenience snapshot, never an input.
func FoldBalance(entries []models.LedgerEntry) decimal.Decimal {
	balance := decimal.Zero
	for _, entry := range entries {
		if entry.Kind.AddsToBalance() {
			balance = balance.Add(entry.Amount)
		} else {
			balance = balance.Sub(entry.Amount)
		}
	}
	return balance
}
