package score

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Weights are the aggregation weights of the six sub-scores. They sum to 1.
type Weights struct {
	Image   float64 `yaml:"image"`
	Pool    float64 `yaml:"pool"`
	Roof    float64 `yaml:"roof"`
	Terrain float64 `yaml:"terrain"`
	Hints   float64 `yaml:"hints"`
	Density float64 `yaml:"density"`
}

// DefaultWeights returns the production weights.
func DefaultWeights() Weights {
	return Weights{
		Image:   0.25,
		Pool:    0.15,
		Roof:    0.15,
		Terrain: 0.15,
		Hints:   0.20,
		Density: 0.10,
	}
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Image + w.Pool + w.Roof + w.Terrain + w.Hints + w.Density
}

// Validate checks that weights are non-negative and sum to 1.
func (w Weights) Validate() error {
	var errs []string
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"image", w.Image}, {"pool", w.Pool}, {"roof", w.Roof},
		{"terrain", w.Terrain}, {"hints", w.Hints}, {"density", w.Density},
	} {
		if f.value < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", f.name))
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > 1e-6 {
		errs = append(errs, fmt.Sprintf("weights sum to %.4f, want 1", sum))
	}
	if len(errs) > 0 {
		return eris.Errorf("score: invalid weights: %s", strings.Join(errs, "; "))
	}
	return nil
}

// LoadWeights reads weights from a YAML file with a top-level "weights" key.
func LoadWeights(path string) (Weights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Weights{}, eris.Wrapf(err, "score: read weights %s", path)
	}
	var wrapper struct {
		Weights Weights `yaml:"weights"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Weights{}, eris.Wrap(err, "score: parse weights")
	}
	if err := wrapper.Weights.Validate(); err != nil {
		return Weights{}, err
	}
	return wrapper.Weights, nil
}
