package credit

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bidfinderz-backend/pkg/db/models"
	"github.com/angelmondragon/bidfinderz-backend/pkg/enums"
)

func entry(kind enums.LedgerEntryKind, amount string) models.LedgerEntry {
	return models.LedgerEntry{Kind: kind, Amount: decimal.RequireFromString(amount)}
}

func TestFoldBalance(t *testing.T) {
	tests := []struct {
		name    string
		entries []models.LedgerEntry
		want    string
	}{
		{
			name: "empty ledger",
			want: "0",
		},
		{
			name: "debits accumulate",
			entries: []models.LedgerEntry{
				entry(enums.LedgerEntryKindDebit, "100.00"),
				entry(enums.LedgerEntryKindDebit, "250.50"),
			},
			want: "350.50",
		},
		{
			name: "credit reduces the balance",
			entries: []models.LedgerEntry{
				entry(enums.LedgerEntryKindDebit, "500.00"),
				entry(enums.LedgerEntryKindCredit, "200.00"),
			},
			want: "300.00",
		},
		{
			name: "reversal cancels its debit",
			entries: []models.LedgerEntry{
				entry(enums.LedgerEntryKindDebit, "400.00"),
				entry(enums.LedgerEntryKindReversal, "400.00"),
			},
			want: "0.00",
		},
		{
			name: "adjustment adds",
			entries: []models.LedgerEntry{
				entry(enums.LedgerEntryKindDebit, "100.00"),
				entry(enums.LedgerEntryKindAdjustment, "15.25"),
			},
			want: "115.25",
		},
		{
			name: "mixed sequence",
			entries: []models.LedgerEntry{
				entry(enums.LedgerEntryKindDebit, "300.00"),
				entry(enums.LedgerEntryKindDebit, "150.00"),
				entry(enums.LedgerEntryKindReversal, "150.00"),
				entry(enums.LedgerEntryKindCredit, "100.00"),
				entry(enums.LedgerEntryKindAdjustment, "25.00"),
			},
			want: "225.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FoldBalance(tt.entries)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Fatalf("FoldBalance = %s, want %s", got, tt.want)
			}
		})
	}
}
