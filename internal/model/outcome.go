package model

import (
	"strings"
)

// Descriptor is the canonical query derived from text and hints.
type Descriptor struct {
	City         string   `json:"city,omitempty"`
	PostalCode   string   `json:"postal_code,omitempty"`
	PropertyType string   `json:"property_type,omitempty"`
	SurfaceRange *Range   `json:"surface_range,omitempty"`
	PriceRange   *Range   `json:"price_range,omitempty"`
	Addresses    []string `json:"addresses,omitempty"`
}

// Complete reports whether every descriptor field a text pass could fill is set.
func (d Descriptor) Complete() bool {
	return d.City != "" && d.PostalCode != "" && d.PropertyType != "" &&
		d.SurfaceRange != nil && d.PriceRange != nil
}

// LocationQuery builds the geocoding query: postal code then city.
func (d Descriptor) LocationQuery() string {
	return strings.TrimSpace(strings.Join(nonEmpty(d.PostalCode, d.City), " "))
}

func nonEmpty(parts ...string) []string {
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, strings.TrimSpace(p))
		}
	}
	return out
}

// ScoreBreakdown holds the per-criterion sub-scores of a candidate.
type ScoreBreakdown struct {
	Image   float64  `json:"image"`
	Pool    float64  `json:"pool"`
	Roof    float64  `json:"roof"`
	Terrain float64  `json:"terrain"`
	Hints   float64  `json:"hints"`
	Density float64  `json:"density"`
	Total   float64  `json:"total"`
	Reasons []string `json:"reasons"`
}

// MatchedParcel is a scored candidate.
type MatchedParcel struct {
	Candidate Candidate      `json:"candidate"`
	Score     ScoreBreakdown `json:"score"`
	Rank      int            `json:"rank"`
	Best      bool           `json:"best"`
}

// OutcomeStatus is the caller-facing verdict.
type OutcomeStatus string

const (
	OutcomeSuccess       OutcomeStatus = "success"
	OutcomeLowConfidence OutcomeStatus = "low-confidence"
	OutcomeFailed        OutcomeStatus = "failed"
)

// ConfidenceTier buckets the best total score.
type ConfidenceTier string

const (
	TierHigh   ConfidenceTier = "high"
	TierMedium ConfidenceTier = "medium"
	TierLow    ConfidenceTier = "low"
)

// Reason codes recorded on failed requests.
const (
	ReasonNoCandidates    = "NoCandidatesFound"
	ReasonPipelineFailure = "PipelineFailure"
	ReasonBelowThreshold  = "BelowThreshold"
)

// FallbackSuggestions tells the caller how the search was widened.
type FallbackSuggestions struct {
	ExpandRadius bool     `json:"expandRadius,omitempty"`
	DVFDensity   *float64 `json:"dvfDensity,omitempty"`
}

// Outcome is the result of one pipeline run.
type Outcome struct {
	RequestID           string               `json:"requestId"`
	Status              OutcomeStatus        `json:"status"`
	Reason              string               `json:"reason,omitempty"`
	Mode                Mode                 `json:"mode"`
	Confidence          float64              `json:"confidence"`
	ConfidenceTier      ConfidenceTier       `json:"confidenceTier"`
	BestCandidate       *MatchedParcel       `json:"bestCandidate"`
	Candidates          []MatchedParcel      `json:"candidates"`
	Explanation         string               `json:"explanation"`
	FallbackSuggestions *FallbackSuggestions `json:"fallbackSuggestions,omitempty"`
}
