package geo

import (
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
)

// Zone classes, by distance from the locality center.
const (
	ZoneUrbanCore = "urban_core"
	ZoneSuburban  = "suburban"
	ZoneExurban   = "exurban"
	ZoneRural     = "rural"
)

// Distance thresholds for classification (kilometers).
const (
	urbanCoreThresholdKM = 1.5
	suburbanThresholdKM  = 5.0
	exurbanThresholdKM   = 12.0
)

// Classify returns the zone of a point at distanceKM from the locality center.
//   - urban_core: <= 1.5 km
//   - suburban: <= 5 km
//   - exurban: <= 12 km
//   - rural: beyond
func Classify(distanceKM float64) string {
	switch {
	case distanceKM <= urbanCoreThresholdKM:
		return ZoneUrbanCore
	case distanceKM <= suburbanThresholdKM:
		return ZoneSuburban
	case distanceKM <= exurbanThresholdKM:
		return ZoneExurban
	default:
		return ZoneRural
	}
}

// plausibility maps neighborhood hint -> zone -> +1 (expected), 0 (possible), -1 (unlikely).
var plausibility = map[model.Neighborhood]map[string]int{
	model.NeighborhoodUrban: {
		ZoneUrbanCore: 1, ZoneSuburban: 0, ZoneExurban: -1, ZoneRural: -1,
	},
	model.NeighborhoodResidential: {
		ZoneUrbanCore: 0, ZoneSuburban: 1, ZoneExurban: 0, ZoneRural: -1,
	},
	model.NeighborhoodCountryside: {
		ZoneUrbanCore: -1, ZoneSuburban: 0, ZoneExurban: 1, ZoneRural: 1,
	},
	model.NeighborhoodIsolated: {
		ZoneUrbanCore: -1, ZoneSuburban: -1, ZoneExurban: 0, ZoneRural: 1,
	},
}

// Plausibility rates how well zone matches the neighborhood hint. Unknown
// hints or zones rate 0.
func Plausibility(n model.Neighborhood, zone string) int {
	byZone, ok := plausibility[n]
	if !ok {
		return 0
	}
	return byZone[zone]
}
