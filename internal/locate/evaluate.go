package locate

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/resilience"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/score"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/vision"
)

// scoringHints fills the price and surface ranges the user left unset with
// the ones read from the listing text.
func scoringHints(h model.UserHints, desc model.Descriptor) model.UserHints {
	if (h.PriceRange == nil || h.PriceRange.Empty()) && desc.PriceRange != nil {
		r := *desc.PriceRange
		h.PriceRange = &r
	}
	if (h.SurfaceRange == nil || h.SurfaceRange.Empty()) && desc.SurfaceRange != nil {
		r := *desc.SurfaceRange
		h.SurfaceRange = &r
	}
	return h
}

// evaluate enriches, compares and scores cands in batches of BatchSize.
// Each candidate is owned by one goroutine and writes only its own slot.
func (o *Orchestrator) evaluate(ctx context.Context, cands []model.Candidate, in model.Input, hints model.UserHints, landmark *model.Point) []model.MatchedParcel {
	matches := make([]model.MatchedParcel, len(cands))

	for start := 0; start < len(cands); start += o.settings.BatchSize {
		end := min(start+o.settings.BatchSize, len(cands))
		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				c := cands[i]
				if o.deps.Enricher != nil {
					o.deps.Enricher.Enrich(gctx, &c)
				}
				ev := o.compare(gctx, c, in)
				ev.Landmark = landmark
				matches[i] = model.MatchedParcel{
					Candidate: c,
					Score:     o.deps.Scorer.Score(c, hints, ev),
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	return matches
}

var instructions = []vision.Instruction{
	vision.InstructSimilarity,
	vision.InstructPool,
	vision.InstructRoof,
	vision.InstructTerrain,
}

// compare runs the visual comparisons for c. Without photos or imagery
// every visual sub-score stays neutral.
func (o *Orchestrator) compare(ctx context.Context, c model.Candidate, in model.Input) score.Evidence {
	var ev score.Evidence
	if o.deps.Comparer == nil || !in.HasPhotos() || c.ImageryRef == "" {
		return ev
	}

	for _, instr := range instructions {
		cmp, err := resilience.Call(ctx, o.deps.Guard, resilience.ServiceVision, func(ctx context.Context) (*vision.Comparison, error) {
			return o.deps.Comparer.CompareImages(ctx, in.ImageRefs, c.ImageryRef, instr)
		})
		if err != nil || cmp == nil {
			zap.L().Debug("locate: visual comparison failed",
				zap.String("candidate", c.ID),
				zap.String("instruction", string(instr)),
				zap.Error(err),
			)
			ev.Failures = append(ev.Failures, fmt.Sprintf("visual comparison unavailable: %s", instr))
			continue
		}
		switch instr {
		case vision.InstructSimilarity:
			ev.Similarity = cmp
		case vision.InstructPool:
			ev.Pool = cmp
		case vision.InstructRoof:
			ev.Roof = cmp
		case vision.InstructTerrain:
			ev.Terrain = cmp
		}
	}
	return ev
}

// sortMatches orders by total descending, ties by candidate ID.
func sortMatches(matches []model.MatchedParcel) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score.Total != matches[j].Score.Total {
			return matches[i].Score.Total > matches[j].Score.Total
		}
		return matches[i].Candidate.ID < matches[j].Candidate.ID
	})
}

func best(matches []model.MatchedParcel) float64 {
	if len(matches) == 0 {
		return 0
	}
	return matches[0].Score.Total
}
