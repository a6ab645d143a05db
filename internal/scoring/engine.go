package scoring

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Component weights. They sum to 1.0; each component score is normalized to
// [0,100] before weighting, so totals land in [0,100] as well.
const (
	WeightPrice       = 0.35
	WeightDelivery    = 0.25
	WeightReliability = 0.20
	WeightRating      = 0.10
	WeightStock       = 0.10

	neutralComponentScore = 50.0
)

// SellerFacts carries the reputation inputs for one seller. A nil value
// scores the reliability and rating components at a neutral default.
type SellerFacts struct {
	ReliabilityScore float64
	CompletedOrders  int
	TotalOrders      int
	AvgRating        float64
}

// Input is one offer as the engine sees it.
type Input struct {
	PriceQuote     decimal.Decimal
	DeliveryEta    string
	StockConfirmed bool
	SubmittedAt    time.Time
}

// Component is one weighted term of the composite.
type Component struct {
	Score         float64 `json:"score"`
	Weight        float64 `json:"weight"`
	WeightedScore float64 `json:"weightedScore"`
}

// Breakdown itemizes every term of the composite score.
type Breakdown struct {
	Price          Component `json:"price"`
	DeliveryTime   Component `json:"deliveryTime"`
	Reliability    Component `json:"reliability"`
	Rating         Component `json:"rating"`
	StockConfirmed Component `json:"stockConfirmed"`
}

// Result is the composite score for one offer.
type Result struct {
	Total     float64   `json:"totalScore"`
	Breakdown Breakdown `json:"breakdown"`
}

// Score maps an offer and its seller's reputation facts to a weighted
// composite in [0,100]. referenceAmount is the order's expected price basis.
func Score(input Input, referenceAmount decimal.Decimal, facts *SellerFacts) Result {
	price := PriceScore(input.PriceQuote, referenceAmount)
	delivery := DeliveryScore(ParseEtaHours(input.DeliveryEta))
	reliability := ReliabilityScore(facts)
	rating := RatingScore(facts)
	stock := StockScore(input.StockConfirmed)

	breakdown := Breakdown{
		Price:          component(price, WeightPrice),
		DeliveryTime:   component(delivery, WeightDelivery),
		Reliability:    component(reliability, WeightReliability),
		Rating:         component(rating, WeightRating),
		StockConfirmed: component(stock, WeightStock),
	}

	total := breakdown.Price.WeightedScore +
		breakdown.DeliveryTime.WeightedScore +
		breakdown.Reliability.WeightedScore +
		breakdown.Rating.WeightedScore +
		breakdown.StockConfirmed.WeightedScore

	return Result{Total: total, Breakdown: breakdown}
}

func component(score, weight float64) Component {
	return Component{Score: score, Weight: weight, WeightedScore: score * weight}
}

// PriceScore is monotonically non-increasing in quote/reference ratio.
// At or below 90% of the reference it scores 100; the bands decay linearly
// and reach 0 at 120%, where the score stays.
func PriceScore(quote, reference decimal.Decimal) float64 {
	if !reference.IsPositive() {
		return neutralComponentScore
	}
	ratio, _ := quote.Div(reference).Float64()
	switch {
	case ratio <= 0.9:
		return 100
	case ratio <= 1.0:
		return 75 + (0.9-ratio)*250
	case ratio <= 1.1:
		return 50 + (1.0-ratio)*250
	case ratio <= 1.2:
		return 25 + (1.1-ratio)*250
	default:
		// The band above ends at 0 when ratio hits 1.2; anything past
		// that stays at the floor so the score never ticks back up.
		return 0
	}
}

// DeliveryScore is monotonically non-increasing in parsed hours.
func DeliveryScore(hours float64) float64 {
	switch {
	case hours <= 2:
		return 100
	case hours <= 6:
		return 100 - (hours-2)*2.5
	case hours <= 12:
		return 90 - (hours-6)*3.33
	case hours <= 24:
		return 70 - (hours-12)*1.67
	case hours <= 48:
		return 50 - (hours-24)*0.83
	default:
		return clampFloor(30 - (hours-48)*0.5)
	}
}

// ReliabilityScore blends the seller's reliability metric with their order
// completion rate. Absent facts default to a neutral 50.
func ReliabilityScore(facts *SellerFacts) float64 {
	if facts == nil {
		return neutralComponentScore
	}
	completion := 0.0
	if facts.TotalOrders > 0 {
		completion = float64(facts.CompletedOrders) / float64(facts.TotalOrders)
	}
	return 0.7*facts.ReliabilityScore + 0.3*completion*100
}

// RatingScore normalizes a 0-5 average rating onto [0,100].
func RatingScore(facts *SellerFacts) float64 {
	if facts == nil {
		return neutralComponentScore
	}
	return facts.AvgRating / 5 * 100
}

// StockScore is all-or-nothing on confirmed stock.
func StockScore(confirmed bool) float64 {
	if confirmed {
		return 100
	}
	return 0
}

func clampFloor(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// Ranked pairs an arbitrary key with its score for sorting.
type Ranked struct {
	Key         int
	Result      Result
	SubmittedAt time.Time
}

// Rank sorts descending by total score; ties break on the earliest
// submission time.
func Rank(entries []Ranked) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Result.Total != entries[j].Result.Total {
			return entries[i].Result.Total > entries[j].Result.Total
		}
		return entries[i].SubmittedAt.Before(entries[j].SubmittedAt)
	})
}
