// Package extract turns free text, a listing URL, and user hints into the
// canonical Descriptor that drives candidate generation.
package extract

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/resilience"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/pkg/anthropic"
)

// Result is the outcome of an extraction. Descriptor is always usable;
// Failure records a language-model error that was tolerated.
type Result struct {
	Descriptor model.Descriptor
	LLMUsed    bool
	Failure    error
}

// Extractor combines local rules, an optional language model, and hints.
type Extractor struct {
	ai        anthropic.Client
	guard     *resilience.Guard
	model     string
	maxTokens int64
	pricing   anthropic.Pricing
}

// Option configures the Extractor.
type Option func(*Extractor)

// WithLanguageModel enables LLM gap-filling.
func WithLanguageModel(ai anthropic.Client, modelID string) Option {
	return func(e *Extractor) {
		e.ai = ai
		e.model = modelID
	}
}

// WithGuard routes LLM calls through retry and a circuit breaker.
func WithGuard(g *resilience.Guard) Option {
	return func(e *Extractor) { e.guard = g }
}

// WithPricing sets the per-million-token prices used in cost logs.
func WithPricing(p anthropic.Pricing) Option {
	return func(e *Extractor) { e.pricing = p }
}

// New creates an Extractor. Without WithLanguageModel only rules and hints apply.
func New(opts ...Option) *Extractor {
	e := &Extractor{maxTokens: 512}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract builds the descriptor for in. Hints override the language model,
// which overrides local rules. The model is only consulted when there is
// text and a field is still missing.
func (e *Extractor) Extract(ctx context.Context, in model.Input) Result {
	log := zap.L().With(zap.String("component", "extract"))

	rules := ParseRules(in.Text, in.ListingURL)
	res := Result{Descriptor: overlay(rules, hintDescriptor(in.Hints))}

	if e.ai == nil || strings.TrimSpace(in.Text) == "" || res.Descriptor.Complete() {
		return res
	}

	llm, err := resilience.Call(ctx, e.guard, resilience.ServiceLanguage, func(ctx context.Context) (model.Descriptor, error) {
		return e.askModel(ctx, in.Text)
	})
	if err != nil {
		log.Warn("extract: language model failed, using rules and hints", zap.Error(err))
		res.Failure = err
		return res
	}

	res.LLMUsed = true
	res.Descriptor = overlay(overlay(rules, llm), hintDescriptor(in.Hints))
	return res
}

func hintDescriptor(h model.UserHints) model.Descriptor {
	d := model.Descriptor{
		City:         h.City,
		PostalCode:   h.PostalCode,
		PriceRange:   h.PriceRange,
		SurfaceRange: h.SurfaceRange,
	}
	if h.PropertyType != "" {
		d.PropertyType = CanonicalPropertyType(h.PropertyType)
	}
	return d
}

// overlay returns base with every set field of top applied over it.
// Addresses are merged, keeping top's first.
func overlay(base, top model.Descriptor) model.Descriptor {
	out := base
	if top.City != "" {
		out.City = top.City
	}
	if top.PostalCode != "" {
		out.PostalCode = top.PostalCode
	}
	if top.PropertyType != "" {
		out.PropertyType = top.PropertyType
	}
	if top.SurfaceRange != nil && !top.SurfaceRange.Empty() {
		out.SurfaceRange = top.SurfaceRange
	}
	if top.PriceRange != nil && !top.PriceRange.Empty() {
		out.PriceRange = top.PriceRange
	}
	out.Addresses = mergeAddresses(top.Addresses, base.Addresses)
	return out
}

func mergeAddresses(lists ...[]string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, list := range lists {
		for _, a := range list {
			key := Fold(a)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, strings.TrimSpace(a))
		}
	}
	return out
}

const extractSystemPrompt = `You read French real-estate listings and extract location facts.
Answer with a single JSON object and nothing else. Use null for anything not stated.`

const extractUserPrompt = `Extract from the listing below:
{"city": string|null, "postal_code": string|null, "property_type": string|null,
 "surface_m2": number|null, "price_eur": number|null, "addresses": [string]}
"addresses" lists street addresses or lieux-dits mentioned, possibly empty.

Listing:
`

var llmSchema = jsonschema.MustCompileString("extract.json", `{
	"type": "object",
	"properties": {
		"city": {"type": ["string", "null"]},
		"postal_code": {"type": ["string", "null"], "pattern": "^[0-9]{5}$"},
		"property_type": {"type": ["string", "null"]},
		"surface_m2": {"type": ["number", "null"], "minimum": 0},
		"price_eur": {"type": ["number", "null"], "minimum": 0},
		"addresses": {"type": "array", "items": {"type": "string"}}
	}
}`)

type llmFields struct {
	City         *string  `json:"city"`
	PostalCode   *string  `json:"postal_code"`
	PropertyType *string  `json:"property_type"`
	SurfaceM2    *float64 `json:"surface_m2"`
	PriceEUR     *float64 `json:"price_eur"`
	Addresses    []string `json:"addresses"`
}

func (e *Extractor) askModel(ctx context.Context, text string) (model.Descriptor, error) {
	resp, err := e.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System:    extractSystemPrompt,
		Messages:  []anthropic.Message{{Role: "user", Content: extractUserPrompt + text}},
	})
	if err != nil {
		return model.Descriptor{}, eris.Wrap(err, "extract: language model")
	}
	resp.Usage.LogCost(zap.L(), e.model, "extract", e.pricing)

	cleaned := anthropic.CleanJSON(resp.Text())
	var raw any
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return model.Descriptor{}, eris.Wrap(err, "extract: parse response")
	}
	if err := llmSchema.Validate(raw); err != nil {
		return model.Descriptor{}, eris.Wrap(err, "extract: response does not match schema")
	}
	var f llmFields
	if err := json.Unmarshal([]byte(cleaned), &f); err != nil {
		return model.Descriptor{}, eris.Wrap(err, "extract: decode response")
	}

	var d model.Descriptor
	if f.City != nil {
		d.City = strings.TrimSpace(*f.City)
	}
	if f.PostalCode != nil {
		d.PostalCode = *f.PostalCode
	}
	if f.PropertyType != nil && *f.PropertyType != "" {
		d.PropertyType = CanonicalPropertyType(*f.PropertyType)
	}
	if f.SurfaceM2 != nil && *f.SurfaceM2 > 0 {
		d.SurfaceRange = &model.Range{Min: *f.SurfaceM2, Max: *f.SurfaceM2}
	}
	if f.PriceEUR != nil && *f.PriceEUR > 0 {
		d.PriceRange = &model.Range{Min: *f.PriceEUR, Max: *f.PriceEUR}
	}
	d.Addresses = f.Addresses
	return d, nil
}
