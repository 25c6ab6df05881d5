package locate

import (
	"fmt"
	"strings"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
)

// Tier maps a confidence to its tier.
func Tier(confidence float64) model.ConfidenceTier {
	switch {
	case confidence >= 60:
		return model.TierHigh
	case confidence >= 40:
		return model.TierMedium
	default:
		return model.TierLow
	}
}

// buildOutcome classifies sorted matches. threshold is the effective
// success threshold; expanded reports whether the retry list was adopted.
func (o *Orchestrator) buildOutcome(requestID string, mode model.Mode, matches []model.MatchedParcel, threshold float64, expanded bool) *model.Outcome {
	top := matches
	if o.settings.PersistTop > 0 && len(top) > o.settings.PersistTop {
		top = top[:o.settings.PersistTop]
	}
	ranked := make([]model.MatchedParcel, len(top))
	copy(ranked, top)
	for i := range ranked {
		ranked[i].Rank = i + 1
		ranked[i].Best = false
	}

	bestScore := best(ranked)
	out := &model.Outcome{
		RequestID:      requestID,
		Mode:           mode,
		Confidence:     bestScore,
		ConfidenceTier: Tier(bestScore),
		Candidates:     ranked,
	}

	switch {
	case len(ranked) > 0 && bestScore >= threshold:
		out.Status = model.OutcomeSuccess
		ranked[0].Best = true
	case !expanded && bestScore >= o.settings.LowConfidenceThreshold:
		out.Status = model.OutcomeLowConfidence
	default:
		out.Status = model.OutcomeFailed
		out.Reason = model.ReasonBelowThreshold
	}
	if len(ranked) > 0 {
		out.BestCandidate = &ranked[0]
	}

	if out.Status != model.OutcomeSuccess || expanded {
		fs := &model.FallbackSuggestions{ExpandRadius: expanded}
		if len(ranked) > 0 && ranked[0].Candidate.Sales != nil {
			d := ranked[0].Candidate.Sales.DensityPerKm2
			fs.DVFDensity = &d
		}
		out.FallbackSuggestions = fs
	}
	out.Explanation = explain(out, threshold, expanded)
	return out
}

func explain(out *model.Outcome, threshold float64, expanded bool) string {
	var b strings.Builder
	if len(out.Candidates) == 0 {
		return "no candidate could be evaluated"
	}
	top := out.Candidates[0]
	label := top.Candidate.Address
	if label == "" && top.Candidate.Cadastral != nil {
		label = "parcel " + top.Candidate.Cadastral.ID
	}
	if label == "" {
		label = top.Candidate.ID
	}

	switch out.Status {
	case model.OutcomeSuccess:
		fmt.Fprintf(&b, "best match %s scored %.2f (threshold %.0f)", label, top.Score.Total, threshold)
	case model.OutcomeLowConfidence:
		fmt.Fprintf(&b, "best candidate %s scored %.2f, below the %.0f success threshold", label, top.Score.Total, threshold)
	default:
		fmt.Fprintf(&b, "no candidate reached the %.0f threshold; best was %s at %.2f", threshold, label, top.Score.Total)
	}
	fmt.Fprintf(&b, " among %d evaluated candidates", len(out.Candidates))
	if expanded {
		b.WriteString(", after widening the search area")
	}
	if len(top.Score.Reasons) > 0 {
		n := min(3, len(top.Score.Reasons))
		b.WriteString(": ")
		b.WriteString(strings.Join(top.Score.Reasons[:n], "; "))
	}
	return b.String()
}

func noCandidatesExplanation(desc model.Descriptor, err error) string {
	where := desc.LocationQuery()
	if where == "" {
		where = "the supplied location"
	}
	msg := fmt.Sprintf("no candidate parcels or addresses found around %s", where)
	if err != nil {
		msg += ": " + err.Error()
	}
	return msg
}
