package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/pkg/cadastre"
)

type stubResolver struct {
	parcel *cadastre.Parcel
	err    error
	calls  int
}

func (s *stubResolver) ParcelAt(_ context.Context, _, _ float64) (*cadastre.Parcel, error) {
	s.calls++
	return s.parcel, s.err
}

type stubSales struct {
	sc     *model.SalesContext
	err    error
	radius float64
}

func (s *stubSales) SalesDensity(_ context.Context, _, _, radius float64) (*model.SalesContext, error) {
	s.radius = radius
	return s.sc, s.err
}

func TestEnrich_FillsBoth(t *testing.T) {
	ring := []model.Point{{Lat: 1, Lng: 1}, {Lat: 1, Lng: 2}, {Lat: 2, Lng: 2}, {Lat: 1, Lng: 1}}
	res := &stubResolver{parcel: &cadastre.Parcel{ID: "33063000AB0012", Section: "AB", Number: "0012", Ring: ring}}
	sales := &stubSales{sc: &model.SalesContext{Count: 12}}
	e := &Enricher{Resolver: res, Sales: sales}

	c := &model.Candidate{ID: "addr:1", Centroid: model.Point{Lat: 1.5, Lng: 1.5}}
	e.Enrich(context.Background(), c)

	require.NotNil(t, c.Cadastral)
	assert.Equal(t, "AB", c.Cadastral.Section)
	assert.Equal(t, ring, c.Polygon)
	require.NotNil(t, c.Sales)
	assert.Equal(t, 12, c.Sales.Count)
	assert.InDelta(t, DefaultSalesRadiusMeters, sales.radius, 1e-9)
	assert.Empty(t, c.Notes)
}

func TestEnrich_KnownCadastralSkipsResolver(t *testing.T) {
	res := &stubResolver{}
	e := &Enricher{Resolver: res, Sales: &stubSales{sc: &model.SalesContext{Count: 1}}, RadiusMeters: 300}

	c := &model.Candidate{ID: "p1", Cadastral: &model.Cadastral{ID: "p1"}}
	e.Enrich(context.Background(), c)
	assert.Zero(t, res.calls)
	assert.Empty(t, c.Notes)
}

func TestEnrich_NoDataBecomesNotes(t *testing.T) {
	e := &Enricher{Resolver: &stubResolver{}, Sales: &stubSales{}}
	c := &model.Candidate{ID: "x"}
	e.Enrich(context.Background(), c)

	assert.Nil(t, c.Cadastral)
	assert.Nil(t, c.Sales)
	assert.Equal(t, []string{NoteNoCadastre, NoteNoSales}, c.Notes)
}

func TestEnrich_FailuresAreTolerated(t *testing.T) {
	e := &Enricher{
		Resolver: &stubResolver{err: errors.New("timeout")},
		Sales:    &stubSales{err: errors.New("503")},
	}
	c := &model.Candidate{ID: "x"}
	e.Enrich(context.Background(), c)
	assert.Equal(t, []string{NoteNoCadastre, NoteNoSales}, c.Notes)
}

func TestEnrich_NilSources(t *testing.T) {
	c := &model.Candidate{ID: "x"}
	(&Enricher{}).Enrich(context.Background(), c)
	assert.Equal(t, []string{NoteNoCadastre, NoteNoSales}, c.Notes)
}

func TestEnrich_DeadlineExceeded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := &stubResolver{parcel: &cadastre.Parcel{ID: "p"}}
	e := &Enricher{Resolver: res, Sales: &stubSales{sc: &model.SalesContext{}}}
	c := &model.Candidate{ID: "x"}
	e.Enrich(ctx, c)

	assert.Zero(t, res.calls)
	assert.Equal(t, []string{NoteNoCadastre, NoteNoSales}, c.Notes)
}
