// Package enrich attaches cadastral identity and local sales context to
// candidates before they are scored.
package enrich

import (
	"context"

	"go.uber.org/zap"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/resilience"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/pkg/cadastre"
)

// Notes recorded on a candidate when a source has nothing for it.
const (
	NoteNoCadastre = "no cadastral data available"
	NoteNoSales    = "no sales data available"
)

// DefaultSalesRadiusMeters is the radius of the sales-density lookup.
const DefaultSalesRadiusMeters = 500.0

// Resolver finds the cadastral parcel at a coordinate.
type Resolver interface {
	ParcelAt(ctx context.Context, lat, lng float64) (*cadastre.Parcel, error)
}

// SalesSource summarizes transactions around a coordinate. A nil summary
// with no error means no recorded sales.
type SalesSource interface {
	SalesDensity(ctx context.Context, lat, lng, radiusMeters float64) (*model.SalesContext, error)
}

// Enricher fills Cadastral and Sales on candidates. Either source may be nil.
type Enricher struct {
	Resolver     Resolver
	Sales        SalesSource
	Guard        *resilience.Guard
	RadiusMeters float64
}

// Enrich fills c in place. Lookup failures and empty answers become notes;
// they never fail the candidate.
func (e *Enricher) Enrich(ctx context.Context, c *model.Candidate) {
	log := zap.L().With(zap.String("candidate", c.ID))

	if c.Cadastral == nil {
		if e.Resolver != nil {
			parcel, err := resilience.Call(ctx, e.Guard, resilience.ServiceCadastre, func(ctx context.Context) (*cadastre.Parcel, error) {
				return e.Resolver.ParcelAt(ctx, c.Centroid.Lat, c.Centroid.Lng)
			})
			if err != nil {
				log.Debug("enrich: cadastral lookup failed", zap.Error(err))
			}
			if parcel != nil {
				c.Cadastral = parcel.Cadastral()
				if len(c.Polygon) == 0 {
					c.Polygon = parcel.Ring
				}
			}
		}
		if c.Cadastral == nil {
			c.Notes = append(c.Notes, NoteNoCadastre)
		}
	}

	if c.Sales == nil {
		radius := e.RadiusMeters
		if radius <= 0 {
			radius = DefaultSalesRadiusMeters
		}
		if e.Sales != nil {
			sales, err := resilience.Call(ctx, e.Guard, resilience.ServiceSales, func(ctx context.Context) (*model.SalesContext, error) {
				return e.Sales.SalesDensity(ctx, c.Centroid.Lat, c.Centroid.Lng, radius)
			})
			if err != nil {
				log.Debug("enrich: sales lookup failed", zap.Error(err))
			}
			c.Sales = sales
		}
		if c.Sales == nil {
			c.Notes = append(c.Notes, NoteNoSales)
		}
	}
}
