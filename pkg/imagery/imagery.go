// Package imagery builds aerial imagery references for a coordinate.
package imagery

import (
	"strconv"
	"strings"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/geo"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
)

// Template renders a URL template such as an IGN WMS GetMap request.
// Supported placeholders: {lat} {lng} {minlat} {minlng} {maxlat} {maxlng}.
type Template struct {
	URL        string
	SpanMeters float64
}

// Ref returns the imagery URL centered on p, or "" when no template is set.
func (t Template) Ref(p model.Point) string {
	if t.URL == "" {
		return ""
	}
	span := t.SpanMeters
	if span <= 0 {
		span = 120
	}
	box := geo.BBoxAround(p, span/2)
	r := strings.NewReplacer(
		"{lat}", format(p.Lat),
		"{lng}", format(p.Lng),
		"{minlat}", format(box.MinLat),
		"{minlng}", format(box.MinLng),
		"{maxlat}", format(box.MaxLat),
		"{maxlng}", format(box.MaxLng),
	)
	return r.Replace(t.URL)
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
