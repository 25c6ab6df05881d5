// Package cadastre enumerates cadastral parcels and resolves the parcel at a
// coordinate, from the IGN apicarto API, an Etalab shapefile, or a synthetic grid.
package cadastre

import (
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
)

// Parcel is a cadastral land unit.
type Parcel struct {
	ID         string        `json:"id"`
	Commune    string        `json:"commune,omitempty"`
	Section    string        `json:"section,omitempty"`
	Number     string        `json:"number,omitempty"`
	Centroid   model.Point   `json:"centroid"`
	Ring       []model.Point `json:"ring,omitempty"`
	AreaM2     float64       `json:"area_m2,omitempty"`
	ImageryRef string        `json:"imagery_ref,omitempty"`
}

// Cadastral returns the identity part of the parcel.
func (p Parcel) Cadastral() *model.Cadastral {
	return &model.Cadastral{
		ID:      p.ID,
		Commune: p.Commune,
		Section: p.Section,
		Number:  p.Number,
		AreaM2:  p.AreaM2,
	}
}
