package bidding

import (
	"math"

	"github.com/angelmondragon/bidfinderz-backend/pkg/types"
)

const earthRadiusMeters = 6371000.0

// haversineMeters returns the great-circle distance between two points.
func haversineMeters(a, b types.GeographyPoint) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(latA)*math.Cos(latB)*sinLng*sinLng
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// withinDeliveryRadius reports whether the seller's delivery radius covers
// the order location. A seller without a location or radius never matches.
func withinDeliveryRadius(sellerLocation *types.GeographyPoint, radiusMeters int, orderLocation *types.GeographyPoint) bool {
	if sellerLocation == nil || orderLocation == nil || radiusMeters <= 0 {
		return false
	}
	return haversineMeters(*sellerLocation, *orderLocation) <= float64(radiusMeters)
}
