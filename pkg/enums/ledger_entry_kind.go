package enums

import "fmt"

// LedgerEntryKind maps to the ledger_entry_kind_enum enum in Postgres.
// Debits and adjustments add to the folded balance; credits and reversals
// subtract from it.
type LedgerEntryKind string

const (
	LedgerEntryKindDebit      LedgerEntryKind = "debit"
	LedgerEntryKindCredit     LedgerEntryKind = "credit"
	LedgerEntryKindAdjustment LedgerEntryKind = "adjustment"
	LedgerEntryKindReversal   LedgerEntryKind = "reversal"
)

var validLedgerEntryKinds = []LedgerEntryKind{
	LedgerEntryKindDebit,
	LedgerEntryKindCredit,
	LedgerEntryKindAdjustment,
	LedgerEntryKindReversal,
}

// IsValid reports whether the value matches the canonical ledger entry enum.
func (k LedgerEntryKind) IsValid() bool {
	for _, candidate := range validLedgerEntryKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// AddsToBalance reports whether the entry kind increases the folded balance.
func (k LedgerEntryKind) AddsToBalance() bool {
	return k == LedgerEntryKindDebit || k == LedgerEntryKindAdjustment
}

// ParseLedgerEntryKind converts raw input into LedgerEntryKind.
func ParseLedgerEntryKind(value string) (LedgerEntryKind, error) {
	for _, candidate := range validLedgerEntryKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry kind %q", value)
}
