package cadastre

import (
	"context"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/geo"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/pkg/imagery"
)

// ShapefileCatalog serves parcels from an Etalab cadastre shapefile
// (parcelles.shp) loaded into memory.
type ShapefileCatalog struct {
	parcels []Parcel
	bounds  []model.BBox
}

// LoadShapefile reads every polygon record of shpPath. Records without a
// polygon geometry are skipped.
func LoadShapefile(shpPath string, tpl imagery.Template) (*ShapefileCatalog, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "cadastre: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}
	attr := func(name string) string {
		idx, ok := fieldIdx[name]
		if !ok {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
	}

	cat := &ShapefileCatalog{}
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil {
			skipped++
			continue
		}
		ring := exteriorRing(poly)
		if len(ring) < 3 {
			skipped++
			continue
		}

		centroid := geo.Centroid(ring)
		p := Parcel{
			ID:         attr("id"),
			Commune:    attr("commune"),
			Section:    attr("section"),
			Number:     attr("numero"),
			Centroid:   centroid,
			Ring:       ring,
			AreaM2:     geo.AreaSquareMeters(ring),
			ImageryRef: tpl.Ref(centroid),
		}
		if p.ID == "" {
			p.ID = p.Commune + p.Section + p.Number
		}
		cat.parcels = append(cat.parcels, p)
		cat.bounds = append(cat.bounds, model.BBox{
			MinLat: poly.Box.MinY, MinLng: poly.Box.MinX,
			MaxLat: poly.Box.MaxY, MaxLng: poly.Box.MaxX,
		})
	}

	zap.L().Info("cadastre: shapefile loaded",
		zap.String("path", shpPath),
		zap.Int("parcels", len(cat.parcels)),
		zap.Int("skipped", skipped),
	)
	return cat, nil
}

// exteriorRing returns the first part of a shapefile polygon as lat/lng points.
func exteriorRing(p *shp.Polygon) []model.Point {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}
	end := int32(len(p.Points))
	if p.NumParts > 1 {
		end = p.Parts[1]
	}
	ring := make([]model.Point, 0, end-p.Parts[0])
	for j := p.Parts[0]; j < end; j++ {
		ring = append(ring, model.Point{Lat: p.Points[j].Y, Lng: p.Points[j].X})
	}
	return ring
}

// Len is the number of loaded parcels.
func (c *ShapefileCatalog) Len() int {
	return len(c.parcels)
}

// ParcelsInBBox returns the parcels whose centroid falls inside bbox.
func (c *ShapefileCatalog) ParcelsInBBox(_ context.Context, bbox model.BBox) ([]Parcel, error) {
	var out []Parcel
	for _, p := range c.parcels {
		if bbox.Contains(p.Centroid) {
			out = append(out, p)
		}
	}
	return out, nil
}

// ParcelAt returns the parcel whose polygon contains lat/lng, or nil.
func (c *ShapefileCatalog) ParcelAt(_ context.Context, lat, lng float64) (*Parcel, error) {
	pt := model.Point{Lat: lat, Lng: lng}
	for i := range c.parcels {
		if !c.bounds[i].Contains(pt) {
			continue
		}
		if geo.PointInRing(pt, c.parcels[i].Ring) {
			p := c.parcels[i]
			return &p, nil
		}
	}
	return nil, nil
}
