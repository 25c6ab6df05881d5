package candidate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/geo"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/pkg/cadastre"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/pkg/geocode"
)

var bordeaux = model.Point{Lat: 44.8378, Lng: -0.5792}

type stubGeocoder struct {
	mu       sync.Mutex
	byQuery  map[string][]geocode.Result
	err      error
	queries  []string
	limits   []int
	reverses int
}

func (s *stubGeocoder) Geocode(_ context.Context, query string, _ geocode.Bias, limit int) ([]geocode.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	s.limits = append(s.limits, limit)
	if s.err != nil {
		return nil, s.err
	}
	return s.byQuery[query], nil
}

func (s *stubGeocoder) ReverseGeocode(_ context.Context, lat, lng float64) (*geocode.ReverseResult, error) {
	s.mu.Lock()
	s.reverses++
	s.mu.Unlock()
	return &geocode.ReverseResult{Address: fmt.Sprintf("%.4f,%.4f", lat, lng), City: "Bordeaux", Matched: true}, nil
}

func result(p model.Point, addr string) geocode.Result {
	return geocode.Result{Latitude: p.Lat, Longitude: p.Lng, Address: addr, City: "Bordeaux", PostalCode: "33000", Score: 0.9}
}

func TestAddressStrategy_LocalityAndExtras(t *testing.T) {
	near := geo.Offset(bordeaux, 10, 0) // deduped against the center
	far := geo.Offset(bordeaux, 800, 0)
	street := geo.Offset(bordeaux, 0, 300)

	gc := &stubGeocoder{byQuery: map[string][]geocode.Result{
		"33000 Bordeaux":  {result(bordeaux, "Bordeaux"), result(near, "near"), result(far, "far")},
		"12 rue du Port":  {result(street, "12 Rue du Port")},
		"3 allée des Pins": nil,
	}}
	s := &AddressStrategy{Geocoder: gc, Settings: DefaultSettings()}

	cands, err := s.Generate(context.Background(), Params{Descriptor: model.Descriptor{
		City: "Bordeaux", PostalCode: "33000",
		Addresses: []string{"12 rue du Port", "3 allée des Pins"},
	}})
	require.NoError(t, err)
	require.Len(t, cands, 3)

	assert.Equal(t, "Bordeaux", cands[0].Address)
	assert.Equal(t, model.SourceAddress, cands[0].Source)
	assert.Equal(t, geo.ZoneUrbanCore, cands[0].Zone)
	assert.Zero(t, cands[0].DistanceMeters)
	assert.Equal(t, "far", cands[1].Address)
	assert.Equal(t, "12 Rue du Port", cands[2].Address)
	assert.InDelta(t, 300, cands[2].DistanceMeters, 5)
	assert.Equal(t, 5, gc.limits[0])
}

func TestAddressStrategy_ExpandedUsesCityOnly(t *testing.T) {
	gc := &stubGeocoder{byQuery: map[string][]geocode.Result{
		"Bordeaux": {result(bordeaux, "Bordeaux")},
	}}
	s := &AddressStrategy{Geocoder: gc, Settings: DefaultSettings()}

	cands, err := s.Generate(context.Background(), Params{
		Descriptor: model.Descriptor{City: "Bordeaux", PostalCode: "33000"},
		Expanded:   true,
	})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, []string{"Bordeaux"}, gc.queries)
	assert.Equal(t, []int{10}, gc.limits)
}

func TestAddressStrategy_NoLocation(t *testing.T) {
	s := &AddressStrategy{Geocoder: &stubGeocoder{}, Settings: DefaultSettings()}
	cands, err := s.Generate(context.Background(), Params{})
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestAddressStrategy_GeocoderDown(t *testing.T) {
	s := &AddressStrategy{Geocoder: &stubGeocoder{err: errors.New("down")}, Settings: DefaultSettings()}
	_, err := s.Generate(context.Background(), Params{Descriptor: model.Descriptor{City: "Bordeaux"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geocode locality")
}

func TestFilterByNeighborhood(t *testing.T) {
	cands := []model.Candidate{
		{ID: "a", Zone: geo.ZoneUrbanCore},
		{ID: "b", Zone: geo.ZoneRural},
		{ID: "c", Zone: geo.ZoneExurban},
	}

	kept := FilterByNeighborhood(cands, model.NeighborhoodCountryside)
	require.Len(t, kept, 2)
	assert.Equal(t, "b", kept[0].ID)

	// never empties the set
	onlyUrban := []model.Candidate{{ID: "a", Zone: geo.ZoneUrbanCore}}
	assert.Len(t, FilterByNeighborhood(onlyUrban, model.NeighborhoodIsolated), 1)

	assert.Len(t, FilterByNeighborhood(cands, ""), 3)
}

func TestDedupe(t *testing.T) {
	cands := []model.Candidate{
		{ID: "a", Centroid: bordeaux},
		{ID: "b", Centroid: geo.Offset(bordeaux, 20, 0)},
		{ID: "c", Centroid: geo.Offset(bordeaux, 30, 0)},
		{ID: "a", Centroid: geo.Offset(bordeaux, 500, 0)},
	}
	out := Dedupe(cands, 25)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "c", out[1].ID)
}

type stubCatalog struct {
	parcels []cadastre.Parcel
	err     error
	bbox    model.BBox
}

func (s *stubCatalog) ParcelsInBBox(_ context.Context, bbox model.BBox) ([]cadastre.Parcel, error) {
	s.bbox = bbox
	return s.parcels, s.err
}

func TestParcelScan_CapsSortsAndReverseGeocodes(t *testing.T) {
	grid := &cadastre.GridCatalog{CellSizeMeters: 50, MaxCells: 80}
	parcels, err := grid.ParcelsInBBox(context.Background(), geo.BBoxAround(bordeaux, 2000))
	require.NoError(t, err)
	require.Len(t, parcels, 80)

	gc := &stubGeocoder{byQuery: map[string][]geocode.Result{"33000 Bordeaux": {result(bordeaux, "Bordeaux")}}}
	cat := &stubCatalog{parcels: parcels}
	s := &ParcelScanStrategy{Geocoder: gc, Catalog: cat, Settings: DefaultSettings()}

	cands, err := s.Generate(context.Background(), Params{Descriptor: model.Descriptor{City: "Bordeaux", PostalCode: "33000"}})
	require.NoError(t, err)
	require.Len(t, cands, 50)

	assert.Equal(t, "grid:cell_0_0", cands[0].ID)
	for i := 1; i < len(cands); i++ {
		assert.LessOrEqual(t, cands[i-1].DistanceMeters, cands[i].DistanceMeters)
	}
	assert.Equal(t, 20, gc.reverses)
	assert.NotEmpty(t, cands[19].Address)
	assert.Empty(t, cands[20].Address)
	assert.Len(t, cands[0].Polygon, 5)
	assert.Equal(t, model.SourceParcelScan, cands[0].Source)
	assert.InDelta(t, 2000*geo.DegreesPerMeter, cat.bbox.MaxLat-bordeaux.Lat, 1e-9)
}

func TestParcelScan_ExpandedSkipsEvaluated(t *testing.T) {
	parcels := []cadastre.Parcel{
		{ID: "p1", Centroid: bordeaux, Section: "AB", Number: "12"},
		{ID: "p2", Centroid: geo.Offset(bordeaux, 100, 0)},
	}
	gc := &stubGeocoder{byQuery: map[string][]geocode.Result{"Bordeaux": {result(bordeaux, "Bordeaux")}}}
	cat := &stubCatalog{parcels: parcels}
	s := &ParcelScanStrategy{Geocoder: gc, Catalog: cat, Settings: DefaultSettings()}

	cands, err := s.Generate(context.Background(), Params{
		Descriptor: model.Descriptor{City: "Bordeaux"},
		Expanded:   true,
		Exclude:    map[string]bool{"p1": true},
	})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "p2", cands[0].ID)
	assert.Nil(t, cands[0].Cadastral)
	assert.InDelta(t, 4000*geo.DegreesPerMeter, cat.bbox.MaxLat-bordeaux.Lat, 1e-9)
}

func TestParcelScan_NoCenter(t *testing.T) {
	s := &ParcelScanStrategy{Geocoder: &stubGeocoder{}, Catalog: &stubCatalog{}, Settings: DefaultSettings()}
	cands, err := s.Generate(context.Background(), Params{Descriptor: model.Descriptor{City: "Nowhere"}})
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestParcelScan_CatalogError(t *testing.T) {
	gc := &stubGeocoder{byQuery: map[string][]geocode.Result{"Bordeaux": {result(bordeaux, "Bordeaux")}}}
	s := &ParcelScanStrategy{Geocoder: gc, Catalog: &stubCatalog{err: errors.New("apicarto down")}, Settings: DefaultSettings()}
	_, err := s.Generate(context.Background(), Params{Descriptor: model.Descriptor{City: "Bordeaux"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enumerate parcels")
}
