// Package locate runs a localization request end to end: extraction,
// candidate generation, enrichment, scoring, the single expand retry, and
// persistence of the ranked result.
package locate

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/candidate"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/enrich"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/extract"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/resilience"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/score"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/vision"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/pkg/geocode"
)

// Store is the persistence the orchestrator needs.
type Store interface {
	CreateRequest(ctx context.Context, in model.Input) (*model.LocalizationRequest, error)
	UpdateRequestStatus(ctx context.Context, id string, status model.RequestStatus, reason string) error
	SaveCandidates(ctx context.Context, id string, parcels []model.MatchedParcel) error
	SaveOutcome(ctx context.Context, id string, out *model.Outcome) error
}

// Scorer turns a candidate and its evidence into a breakdown.
type Scorer interface {
	Score(c model.Candidate, hints model.UserHints, ev score.Evidence) model.ScoreBreakdown
}

// Deps are the capabilities injected into an Orchestrator. Comparer and
// Geocoder may be nil; visual and landmark evidence then score neutral.
type Deps struct {
	Extractor  *extract.Extractor
	Generators map[model.Mode]candidate.Generator
	Enricher   *enrich.Enricher
	Comparer   vision.Comparer
	Geocoder   geocode.Client
	Scorer     Scorer
	Store      Store
	Guard      *resilience.Guard
}

// Settings are the pipeline thresholds and limits.
type Settings struct {
	BatchSize              int
	PersistTop             int
	SuccessThreshold       float64
	LowConfidenceThreshold float64
	RetryThreshold         float64
	Deadline               time.Duration
}

// DefaultSettings returns the production settings.
func DefaultSettings() Settings {
	return Settings{
		BatchSize:              5,
		PersistTop:             15,
		SuccessThreshold:       60,
		LowConfidenceThreshold: 40,
		RetryThreshold:         30,
		Deadline:               2 * time.Minute,
	}
}

// Orchestrator owns request status transitions.
type Orchestrator struct {
	deps     Deps
	settings Settings
}

// New creates an Orchestrator.
func New(deps Deps, settings Settings) *Orchestrator {
	if settings.BatchSize <= 0 {
		settings.BatchSize = 1
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.New()
	}
	return &Orchestrator{deps: deps, settings: settings}
}

// Submit records a new request and runs it.
func (o *Orchestrator) Submit(ctx context.Context, in model.Input) (*model.Outcome, error) {
	if !in.Mode.Valid() {
		return nil, eris.Errorf("locate: unknown mode %q", in.Mode)
	}
	req, err := o.deps.Store.CreateRequest(ctx, in)
	if err != nil {
		return nil, eris.Wrap(err, "locate: create request")
	}
	return o.Run(ctx, req)
}

// Run executes req, which must be PENDING. The returned outcome is set
// even when an error is returned.
func (o *Orchestrator) Run(ctx context.Context, req *model.LocalizationRequest) (*model.Outcome, error) {
	log := zap.L().With(zap.String("request_id", req.ID))
	start := time.Now()

	if !req.Status.CanTransition(model.RequestStatusRunning) {
		return nil, eris.Errorf("locate: request %s is %s, not runnable", req.ID, req.Status)
	}
	// persistence outlives the request deadline
	persistCtx := context.WithoutCancel(ctx)
	if err := o.setStatus(persistCtx, req, model.RequestStatusRunning, ""); err != nil {
		return o.pipelineFailure(persistCtx, req, err)
	}

	runCtx := ctx
	if o.settings.Deadline > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.settings.Deadline)
		defer cancel()
	}

	in := req.Input
	mode := in.ResolveMode()
	log = log.With(zap.String("mode", string(mode)))

	ex := o.deps.Extractor.Extract(runCtx, in)
	if ex.Failure != nil {
		log.Warn("locate: extraction degraded", zap.Error(ex.Failure))
	}
	desc := ex.Descriptor
	landmark := o.resolveLandmark(runCtx, in.Hints, desc)

	gen, ok := o.deps.Generators[mode]
	if !ok {
		return o.pipelineFailure(persistCtx, req, eris.Errorf("locate: no generator for mode %q", mode))
	}

	params := candidate.Params{Descriptor: desc, Hints: in.Hints}
	cands, err := gen.Generate(runCtx, params)
	if err != nil {
		log.Warn("locate: candidate generation failed", zap.Error(err))
	}
	if len(cands) == 0 {
		out := &model.Outcome{
			RequestID:      req.ID,
			Status:         model.OutcomeFailed,
			Reason:         model.ReasonNoCandidates,
			Mode:           mode,
			ConfidenceTier: model.TierLow,
			Candidates:     []model.MatchedParcel{},
			Explanation:    noCandidatesExplanation(desc, err),
		}
		return o.finish(persistCtx, req, out, log, start)
	}

	hints := scoringHints(in.Hints, desc)
	matches := o.evaluate(runCtx, cands, in, hints, landmark)
	sortMatches(matches)

	threshold := o.settings.SuccessThreshold
	expanded := false

	if best(matches) < o.settings.SuccessThreshold {
		log.Info("locate: below success threshold, expanding search",
			zap.Float64("best", best(matches)),
		)
		params.Expanded = true
		params.Exclude = idSet(matches)
		more, err := gen.Generate(runCtx, params)
		if err != nil {
			log.Warn("locate: expanded generation failed", zap.Error(err))
		}
		if len(more) > 0 {
			extra := o.evaluate(runCtx, more, in, hints, landmark)
			merged := append(append([]model.MatchedParcel{}, matches...), extra...)
			sortMatches(merged)
			if best(merged) > best(matches) {
				matches = merged
				expanded = true
				threshold = o.settings.RetryThreshold
			}
		}
	}

	out := o.buildOutcome(req.ID, mode, matches, threshold, expanded)
	return o.finish(persistCtx, req, out, log, start)
}

func (o *Orchestrator) resolveLandmark(ctx context.Context, hints model.UserHints, desc model.Descriptor) *model.Point {
	lm := hints.Landmark
	if lm == nil || lm.Name == "" || o.deps.Geocoder == nil {
		return nil
	}
	results, err := resilience.Call(ctx, o.deps.Guard, resilience.ServiceGeocode, func(ctx context.Context) ([]geocode.Result, error) {
		return o.deps.Geocoder.Geocode(ctx, lm.Name, geocode.Bias{City: desc.City, PostalCode: desc.PostalCode}, 1)
	})
	if err != nil || len(results) == 0 {
		zap.L().Debug("locate: landmark not resolved", zap.String("landmark", lm.Name), zap.Error(err))
		return nil
	}
	return &model.Point{Lat: results[0].Latitude, Lng: results[0].Longitude}
}

func (o *Orchestrator) setStatus(ctx context.Context, req *model.LocalizationRequest, status model.RequestStatus, reason string) error {
	if err := o.deps.Store.UpdateRequestStatus(ctx, req.ID, status, reason); err != nil {
		return eris.Wrapf(err, "locate: set status %s", status)
	}
	req.Status = status
	req.Reason = reason
	req.UpdatedAt = time.Now().UTC()
	return nil
}

// finish persists the outcome and moves the request to its terminal state.
func (o *Orchestrator) finish(ctx context.Context, req *model.LocalizationRequest, out *model.Outcome, log *zap.Logger, start time.Time) (*model.Outcome, error) {
	if err := o.deps.Store.SaveCandidates(ctx, req.ID, out.Candidates); err != nil {
		return o.pipelineFailure(ctx, req, eris.Wrap(err, "locate: save candidates"))
	}
	if err := o.deps.Store.SaveOutcome(ctx, req.ID, out); err != nil {
		return o.pipelineFailure(ctx, req, eris.Wrap(err, "locate: save outcome"))
	}

	status := model.RequestStatusDone
	reason := ""
	if out.Status == model.OutcomeFailed {
		status = model.RequestStatusFailed
		reason = out.Reason
	}
	if err := o.setStatus(ctx, req, status, reason); err != nil {
		return o.pipelineFailure(ctx, req, err)
	}

	log.Info("locate: request finished",
		zap.String("status", string(out.Status)),
		zap.Float64("confidence", out.Confidence),
		zap.Int("candidates", len(out.Candidates)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// pipelineFailure marks the request FAILED after an infrastructure error.
func (o *Orchestrator) pipelineFailure(ctx context.Context, req *model.LocalizationRequest, cause error) (*model.Outcome, error) {
	zap.L().Error("locate: pipeline failure", zap.String("request_id", req.ID), zap.Error(cause))
	if req.Status.CanTransition(model.RequestStatusFailed) {
		if err := o.setStatus(ctx, req, model.RequestStatusFailed, model.ReasonPipelineFailure); err != nil {
			zap.L().Error("locate: mark failed", zap.String("request_id", req.ID), zap.Error(err))
		}
	}
	out := &model.Outcome{
		RequestID:      req.ID,
		Status:         model.OutcomeFailed,
		Reason:         model.ReasonPipelineFailure,
		Mode:           req.Input.ResolveMode(),
		ConfidenceTier: model.TierLow,
		Candidates:     []model.MatchedParcel{},
		Explanation:    "the request could not be completed",
	}
	return out, cause
}

func idSet(matches []model.MatchedParcel) map[string]bool {
	ids := make(map[string]bool, len(matches))
	for _, m := range matches {
		ids[m.Candidate.ID] = true
	}
	return ids
}
