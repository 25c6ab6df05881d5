package cadastre

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"golang.org/x/time/rate"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/geo"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/resilience"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/pkg/imagery"
)

const defaultBaseURL = "https://apicarto.ign.fr/api/cadastre"

// maxFeatures is the apicarto page size ceiling.
const maxFeatures = 1000

// Client queries the apicarto cadastre module (/parcelle).
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	imagery    imagery.Template
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL overrides the apicarto endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithImagery attaches imagery references to returned parcels.
func WithImagery(t imagery.Template) Option {
	return func(c *Client) { c.imagery = t }
}

// NewClient creates an apicarto client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(10, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// parcelProperties are the apicarto /parcelle feature properties.
type parcelProperties struct {
	ID         string  `json:"id"`
	Commune    string  `json:"commune"`
	CodeInsee  string  `json:"code_insee"`
	Section    string  `json:"section"`
	Numero     string  `json:"numero"`
	Contenance float64 `json:"contenance"`
}

// ParcelsInBBox returns the parcels intersecting bbox, up to one page.
func (c *Client) ParcelsInBBox(ctx context.Context, bbox model.BBox) ([]Parcel, error) {
	return c.query(ctx, geo.BBoxPolygon(bbox), maxFeatures)
}

// ParcelAt returns the parcel containing lat/lng, or nil when none does.
func (c *Client) ParcelAt(ctx context.Context, lat, lng float64) (*Parcel, error) {
	pt := model.Point{Lat: lat, Lng: lng}
	// a 2 m box avoids point-on-boundary misses
	parcels, err := c.query(ctx, geo.BBoxPolygon(geo.BBoxAround(pt, 1)), 10)
	if err != nil {
		return nil, err
	}
	for i := range parcels {
		if geo.PointInRing(pt, parcels[i].Ring) {
			return &parcels[i], nil
		}
	}
	if len(parcels) > 0 {
		return &parcels[0], nil
	}
	return nil, nil
}

func (c *Client) query(ctx context.Context, area *geom.Polygon, limit int) ([]Parcel, error) {
	geomJSON, err := geojson.Marshal(area)
	if err != nil {
		return nil, eris.Wrap(err, "cadastre: encode geometry")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "cadastre: rate limit")
	}

	params := url.Values{
		"geom":   {string(geomJSON)},
		"_limit": {strconv.Itoa(limit)},
	}
	reqURL := fmt.Sprintf("%s/parcelle?%s", strings.TrimRight(c.baseURL, "/"), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "cadastre: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "cadastre: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.HTTPStatusError("cadastre: apicarto", resp.StatusCode)
	}

	var fc geojson.FeatureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, eris.Wrap(err, "cadastre: parse response")
	}
	return c.toParcels(&fc), nil
}

func (c *Client) toParcels(fc *geojson.FeatureCollection) []Parcel {
	parcels := make([]Parcel, 0, len(fc.Features))
	for _, f := range fc.Features {
		ring := geo.OuterRing(f.Geometry)
		if len(ring) < 3 {
			continue
		}
		props := decodeProperties(f.Properties)
		id := props.ID
		if id == "" {
			id = f.ID
		}
		commune := props.CodeInsee
		if commune == "" {
			commune = props.Commune
		}
		area := props.Contenance
		if area <= 0 {
			area = geo.AreaSquareMeters(ring)
		}
		centroid := geo.Centroid(ring)
		parcels = append(parcels, Parcel{
			ID:         id,
			Commune:    commune,
			Section:    props.Section,
			Number:     props.Numero,
			Centroid:   centroid,
			Ring:       ring,
			AreaM2:     area,
			ImageryRef: c.imagery.Ref(centroid),
		})
	}
	return parcels
}

// decodeProperties re-decodes the loosely typed property map into the
// known apicarto fields.
func decodeProperties(props map[string]interface{}) parcelProperties {
	var out parcelProperties
	raw, err := json.Marshal(props)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}
