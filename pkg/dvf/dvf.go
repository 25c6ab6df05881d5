// Package dvf summarizes DVF (demandes de valeurs foncières) property
// transactions around a point, from the cquest HTTP API or a PostGIS table.
package dvf

import (
	"math"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
)

// Mutation is one recorded sale.
type Mutation struct {
	Price     float64 `json:"valeur_fonciere"`
	Surface   float64 `json:"surface_reelle_bati"`
	Land      float64 `json:"surface_terrain"`
	LocalType string  `json:"type_local"`
	Nature    string  `json:"nature_mutation"`
}

// Summarize aggregates mutations found within radiusMeters. It returns nil
// when there are none. Zero prices and surfaces are left out of the averages.
func Summarize(mutations []Mutation, radiusMeters float64) *model.SalesContext {
	if len(mutations) == 0 {
		return nil
	}
	var priceSum, surfaceSum float64
	var priceN, surfaceN int
	for _, m := range mutations {
		if m.Price > 0 {
			priceSum += m.Price
			priceN++
		}
		if m.Surface > 0 {
			surfaceSum += m.Surface
			surfaceN++
		}
	}

	sc := &model.SalesContext{
		Count:         len(mutations),
		DensityPerKm2: Density(len(mutations), radiusMeters),
		RadiusMeters:  radiusMeters,
	}
	if priceN > 0 {
		avg := priceSum / float64(priceN)
		sc.AvgPrice = &avg
	}
	if surfaceN > 0 {
		avg := surfaceSum / float64(surfaceN)
		sc.AvgSurface = &avg
	}
	return sc
}

// Density is count per square kilometer of a disc of radiusMeters.
func Density(count int, radiusMeters float64) float64 {
	if radiusMeters <= 0 {
		return 0
	}
	km := radiusMeters / 1000
	return float64(count) / (math.Pi * km * km)
}
