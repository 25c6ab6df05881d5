package cadastre

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/geo"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/pkg/imagery"
)

func TestGridCatalog(t *testing.T) {
	center := model.Point{Lat: 44.8378, Lng: -0.5792}
	g := &GridCatalog{CellSizeMeters: 25, MaxCells: 9, Imagery: imagery.Template{URL: "img/{lat}"}}

	parcels, err := g.ParcelsInBBox(context.Background(), geo.BBoxAround(center, 200))
	require.NoError(t, err)
	require.Len(t, parcels, 9)

	assert.Equal(t, "grid:cell_0_0", parcels[0].ID)
	assert.InDelta(t, center.Lat, parcels[0].Centroid.Lat, 1e-9)
	// fixed-factor area over-reports away from the equator
	assert.Greater(t, parcels[0].AreaM2, 625.0)
	assert.True(t, strings.HasPrefix(parcels[0].ImageryRef, "img/44.8378"))
	for _, p := range parcels {
		assert.True(t, strings.HasPrefix(p.ID, "grid:cell_"))
		assert.Len(t, p.Ring, 5)
	}
}

func TestGridCatalog_Deterministic(t *testing.T) {
	g := &GridCatalog{CellSizeMeters: 30, MaxCells: 20}
	bbox := geo.BBoxAround(model.Point{Lat: 48.85, Lng: 2.35}, 150)

	a, err := g.ParcelsInBBox(context.Background(), bbox)
	require.NoError(t, err)
	b, err := g.ParcelsInBBox(context.Background(), bbox)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGridCatalog_Degenerate(t *testing.T) {
	g := &GridCatalog{CellSizeMeters: 0, MaxCells: 10}
	parcels, err := g.ParcelsInBBox(context.Background(), model.BBox{})
	require.NoError(t, err)
	assert.Empty(t, parcels)
}
