package cadastre

import (
	"context"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/geo"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/pkg/imagery"
)

// GridCatalog enumerates synthetic square parcels on a GridPlan. It makes no
// network calls.
type GridCatalog struct {
	CellSizeMeters float64
	MaxCells       int
	Imagery        imagery.Template
}

// ParcelsInBBox returns one parcel per grid cell, nearest to the center first.
func (g *GridCatalog) ParcelsInBBox(_ context.Context, bbox model.BBox) ([]Parcel, error) {
	cells := geo.GridPlan(bbox, g.CellSizeMeters, g.MaxCells)
	parcels := make([]Parcel, 0, len(cells))
	for _, c := range cells {
		parcels = append(parcels, Parcel{
			ID:         "grid:" + c.ID,
			Centroid:   c.Center,
			Ring:       c.Ring,
			AreaM2:     geo.AreaSquareMeters(c.Ring),
			ImageryRef: g.Imagery.Ref(c.Center),
		})
	}
	return parcels, nil
}
