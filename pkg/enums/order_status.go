package enums

import "fmt"

// OrderStatus tracks the bidding lifecycle of an order.
type OrderStatus string

const (
	OrderStatusDraft                  OrderStatus = "draft"
	OrderStatusOpenForBids            OrderStatus = "open_for_bids"
	OrderStatusWinnerSelected         OrderStatus = "winner_selected"
	OrderStatusBiddingExpiredNoOffers OrderStatus = "bidding_expired_no_offers"
	OrderStatusCanceled               OrderStatus = "canceled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusDraft,
	OrderStatusOpenForBids,
	OrderStatusWinnerSelected,
	OrderStatusBiddingExpiredNoOffers,
	OrderStatusCanceled,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further bidding transitions are allowed.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusWinnerSelected, OrderStatusBiddingExpiredNoOffers, OrderStatusCanceled:
		return true
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
