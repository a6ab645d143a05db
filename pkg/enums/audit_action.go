package enums

import "fmt"

// AuditAction identifies the mutating decision an audit record describes.
type AuditAction string

const (
	AuditActionBroadcast         AuditAction = "broadcast"
	AuditActionOfferIngested     AuditAction = "offer_ingested"
	AuditActionWinnerSelected    AuditAction = "winner_selected"
	AuditActionLoserRejected     AuditAction = "loser_rejected"
	AuditActionAutoSelectTimeout AuditAction = "auto_select_timeout"
)

var validAuditActions = []AuditAction{
	AuditActionBroadcast,
	AuditActionOfferIngested,
	AuditActionWinnerSelected,
	AuditActionLoserRejected,
	AuditActionAutoSelectTimeout,
}

// IsValid reports whether the value is a known AuditAction.
func (a AuditAction) IsValid() bool {
	for _, candidate := range validAuditActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAuditAction converts raw input into an AuditAction.
func ParseAuditAction(value string) (AuditAction, error) {
	for _, candidate := range validAuditActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audit action %q", value)
}
