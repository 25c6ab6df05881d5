package geo

import (
	"fmt"
	"math"
	"sort"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
)

// Cell is one square of a GridPlan. Row and Col are offsets from the cell
// that sits on the bbox center.
type Cell struct {
	ID     string        `json:"id"`
	Row    int           `json:"row"`
	Col    int           `json:"col"`
	Center model.Point   `json:"center"`
	Ring   []model.Point `json:"ring"`
}

// GridPlan lays square cells of cellSizeMeters over bbox, anchored at its
// center, and returns at most maxCells of them nearest-to-center first.
// Ties are broken by row then column. Only cells whose center lies inside
// bbox are produced. The result depends on the arguments alone.
func GridPlan(bbox model.BBox, cellSizeMeters float64, maxCells int) []Cell {
	if cellSizeMeters <= 0 || maxCells <= 0 || bbox.MaxLat < bbox.MinLat || bbox.MaxLng < bbox.MinLng {
		return nil
	}

	center := bbox.Center()
	latStep := cellSizeMeters * DegreesPerMeter
	lngStep := cellSizeMeters * lngDegreesPerMeter(center.Lat)

	rows := int(math.Floor((bbox.MaxLat-center.Lat)/latStep + 1e-9))
	cols := int(math.Floor((bbox.MaxLng-center.Lng)/lngStep + 1e-9))

	type slot struct{ row, col int }
	slots := make([]slot, 0, (2*rows+1)*(2*cols+1))
	for r := -rows; r <= rows; r++ {
		for c := -cols; c <= cols; c++ {
			slots = append(slots, slot{r, c})
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		di := slots[i].row*slots[i].row + slots[i].col*slots[i].col
		dj := slots[j].row*slots[j].row + slots[j].col*slots[j].col
		if di != dj {
			return di < dj
		}
		if slots[i].row != slots[j].row {
			return slots[i].row < slots[j].row
		}
		return slots[i].col < slots[j].col
	})

	if len(slots) > maxCells {
		slots = slots[:maxCells]
	}

	cells := make([]Cell, 0, len(slots))
	for _, s := range slots {
		p := model.Point{
			Lat: center.Lat + float64(s.row)*latStep,
			Lng: center.Lng + float64(s.col)*lngStep,
		}
		cells = append(cells, Cell{
			ID:     fmt.Sprintf("cell_%d_%d", s.row, s.col),
			Row:    s.row,
			Col:    s.col,
			Center: p,
			Ring:   SquareAround(p, cellSizeMeters),
		})
	}
	return cells
}
