// Package vision compares listing photos with aerial imagery through the
// Anthropic Messages API and returns typed, schema-validated observations.
package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/pkg/anthropic"
)

// Instruction selects what a comparison looks at.
type Instruction string

const (
	InstructSimilarity Instruction = "similarity"
	InstructPool       Instruction = "pool"
	InstructRoof       Instruction = "roof"
	InstructTerrain    Instruction = "terrain"
)

// PoolSighting is what an image shows about a pool.
type PoolSighting string

const (
	PoolAbsent      PoolSighting = "none"
	PoolRectangular PoolSighting = "rectangular"
	PoolRound       PoolSighting = "round"
	PoolOther       PoolSighting = "other"
	PoolUnclear     PoolSighting = "unknown"
)

// Present reports whether a pool is visible.
func (p PoolSighting) Present() bool {
	return p == PoolRectangular || p == PoolRound || p == PoolOther
}

// Attributes are the features read from one side of a comparison. Empty
// strings mean the feature could not be read.
type Attributes struct {
	Pool         PoolSighting `json:"pool,omitempty"`
	RoofColor    string       `json:"roof_color,omitempty"`
	RoofShape    string       `json:"roof_shape,omitempty"`
	TerrainShape string       `json:"terrain_shape,omitempty"`
	Terrace      *bool        `json:"terrace,omitempty"`
}

// Comparison is the result of one CompareImages call. Similarity is only
// set for InstructSimilarity; Photo and Imagery for the attribute
// instructions.
type Comparison struct {
	Instruction Instruction          `json:"instruction"`
	Similarity  float64              `json:"similarity"`
	Photo       Attributes           `json:"photo"`
	Imagery     Attributes           `json:"imagery"`
	Usage       anthropic.TokenUsage `json:"-"`
}

// Comparer is the visual comparison capability.
type Comparer interface {
	CompareImages(ctx context.Context, photos []string, imageryRef string, instruction Instruction) (*Comparison, error)
}

// Client implements Comparer with a multimodal model.
type Client struct {
	ai        anthropic.Client
	model     string
	maxTokens int64
	pricing   anthropic.Pricing
}

// Option configures the Client.
type Option func(*Client)

// WithModel sets the model ID.
func WithModel(m string) Option {
	return func(c *Client) { c.model = m }
}

// WithMaxTokens caps the response length.
func WithMaxTokens(n int64) Option {
	return func(c *Client) { c.maxTokens = n }
}

// WithPricing sets the per-million-token prices used in cost logs.
func WithPricing(p anthropic.Pricing) Option {
	return func(c *Client) { c.pricing = p }
}

// New creates a vision Client.
func New(ai anthropic.Client, opts ...Option) *Client {
	c := &Client{
		ai:        ai,
		model:     "claude-sonnet-4-5",
		maxTokens: 512,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

const systemPrompt = `You compare real-estate listing photos with an aerial image of a candidate parcel.
Answer with a single JSON object and nothing else.`

// CompareImages asks the model about photos versus the aerial imageryRef.
func (c *Client) CompareImages(ctx context.Context, photos []string, imageryRef string, instruction Instruction) (*Comparison, error) {
	schema, ok := schemas[instruction]
	if !ok {
		return nil, eris.Errorf("vision: unknown instruction %q", instruction)
	}
	if len(photos) == 0 || imageryRef == "" {
		return nil, eris.New("vision: photos and imagery are both required")
	}

	images := make([]string, 0, len(photos)+1)
	images = append(images, photos...)
	images = append(images, imageryRef)

	resp, err := c.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    systemPrompt,
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: buildPrompt(instruction, len(photos)),
			Images:  images,
		}},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "vision: compare %s", instruction)
	}

	resp.Usage.LogCost(zap.L(), c.model, "vision:"+string(instruction), c.pricing)

	cmp, err := parseComparison(resp.Text(), schema)
	if err != nil {
		return nil, eris.Wrapf(err, "vision: compare %s", instruction)
	}
	cmp.Instruction = instruction
	cmp.Usage = resp.Usage
	return cmp, nil
}

func buildPrompt(instruction Instruction, photoCount int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The first %d image(s) are listing photos. The last image is an aerial view of the candidate parcel.\n", photoCount)
	switch instruction {
	case InstructSimilarity:
		sb.WriteString(`Rate how likely the photos show the property in the aerial view.
Return {"similarity": <number between 0 and 1>}.`)
	case InstructPool:
		sb.WriteString(`Report the swimming pool seen on each side.
Return {"photo": {"pool": P}, "imagery": {"pool": P}} where P is one of "none", "rectangular", "round", "other", "unknown".`)
	case InstructRoof:
		sb.WriteString(`Describe the main roof on each side.
Return {"photo": {"roof_color": C, "roof_shape": S}, "imagery": {"roof_color": C, "roof_shape": S}}
with C one of "red", "brown", "grey", "black", "white", "other", "unknown"
and S one of "gable", "hip", "flat", "mansard", "other", "unknown".`)
	case InstructTerrain:
		sb.WriteString(`Describe the plot on each side.
Return {"photo": {"terrain_shape": T, "terrace": B}, "imagery": {"terrain_shape": T, "terrace": B}}
with T one of "rectangular", "square", "irregular", "triangular", "unknown" and B a boolean (omit when unsure).`)
	}
	return sb.String()
}

func parseComparison(text string, schema *jsonschema.Schema) (*Comparison, error) {
	cleaned := anthropic.CleanJSON(text)

	var raw any
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, eris.Wrap(err, "parse response")
	}
	if err := schema.Validate(raw); err != nil {
		return nil, eris.Wrap(err, "response does not match schema")
	}

	var cmp Comparison
	if err := json.Unmarshal([]byte(cleaned), &cmp); err != nil {
		return nil, eris.Wrap(err, "decode response")
	}
	normalize(&cmp.Photo)
	normalize(&cmp.Imagery)
	return &cmp, nil
}

// normalize maps "unknown" and "other" readings to empty so callers treat
// them as unread. Two vague answers are not an agreement.
func normalize(a *Attributes) {
	a.RoofColor = vague(a.RoofColor)
	a.RoofShape = vague(a.RoofShape)
	a.TerrainShape = vague(a.TerrainShape)
}

func vague(v string) string {
	if v == "unknown" || v == "other" {
		return ""
	}
	return v
}
