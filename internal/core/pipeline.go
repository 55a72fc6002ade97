// internal/core/pipeline.go
// Tiered filter policy and the pipelines it plans
package core

import (
	"fmt"
	"strings"

	"photobooth/internal/algorithms"
	errs "photobooth/internal/errors"
)

// DefaultMaxPasses bounds the repetitions of an at-least-one tier
const DefaultMaxPasses = 8

// Step is one planned filter application
type Step struct {
	Filter algorithms.FilterID
	Tier   string
	// Discard steps run but their result does not replace the running image
	Discard bool
	// Forced marks the fallback appended after an exhausted tier
	Forced bool
}

// Pipeline is the ordered list of steps chosen for one variant
type Pipeline struct {
	Steps        []Step
	MediumPasses int
	Forced       bool
}

// Filters returns the planned filter IDs in order
func (p Pipeline) Filters() []algorithms.FilterID {
	ids := make([]algorithms.FilterID, len(p.Steps))
	for i, step := range p.Steps {
		ids[i] = step.Filter
	}
	return ids
}

func (p Pipeline) String() string {
	names := make([]string, len(p.Steps))
	for i, step := range p.Steps {
		names[i] = step.Filter.String()
		if step.Discard {
			names[i] += "(discarded)"
		}
		if step.Forced {
			names[i] += "(forced)"
		}
	}
	return strings.Join(names, " -> ")
}

// Gate fires with Probability. Several choices are picked uniformly with
// one extra draw.
type Gate struct {
	Name          string
	Probability   float64
	Choices       []algorithms.FilterID
	DiscardResult bool
}

// Tier is an ordered group of gates
type Tier struct {
	Name       string
	Gates      []Gate
	AtLeastOne bool
}

// Policy is the ordered list of tiers every variant is planned from
type Policy struct {
	Tiers     []Tier
	MaxPasses int
	Fallback  algorithms.FilterID
}

func gate(name string, p float64, choices ...algorithms.FilterID) Gate {
	return Gate{Name: name, Probability: p, Choices: choices}
}

// DefaultPolicy returns the photo booth's filter policy. With
// discardSchimmer the schimmer gate still runs but its result is dropped.
func DefaultPolicy(discardSchimmer bool) Policy {
	schimmer := gate("schimmer", 0.15, algorithms.FilterGreenSchimmer, algorithms.FilterPinkSchimmer)
	schimmer.DiscardResult = discardSchimmer

	return Policy{
		Tiers: []Tier{
			// face filters must be first
			{Name: "face", Gates: []Gate{
				gate("caption", 0.5, algorithms.FilterCaption),
				gate("swirl", 0.25, algorithms.FilterSwirl),
			}},
			{Name: "soft", Gates: []Gate{
				gate("gamma", 0.2, algorithms.FilterGamma),
				gate("saturation", 0.2, algorithms.FilterSaturation),
				gate("affine", 0.2, algorithms.FilterAffine),
				gate("blur", 0.2, algorithms.FilterBlur),
			}},
			{Name: "medium", AtLeastOne: true, Gates: []Gate{
				gate("sharpen", 0.15, algorithms.FilterSharpen),
				gate("glitch_shapes", 0.15, algorithms.FilterGlitchShapes),
				gate("rotation", 0.15, algorithms.FilterRotation),
				schimmer,
				gate("radial", 0.1, algorithms.FilterRadial),
				gate("color_mask", 0.1, algorithms.FilterColorMask),
				gate("folding", 0, algorithms.FilterFolding),
				gate("wave", 0.05, algorithms.FilterWave),
			}},
			{Name: "heavy", Gates: []Gate{
				gate("color_shift", 0.05, algorithms.FilterColorShift),
				gate("broken_rainbow", 0.05, algorithms.FilterBrokenRainbow),
				gate("cursed", 0.05, algorithms.FilterCursed),
				gate("threshold", 0.02, algorithms.FilterThreshold),
			}},
		},
		MaxPasses: DefaultMaxPasses,
		Fallback:  algorithms.FilterSharpen,
	}
}

// Validate checks the policy for unusable gates
func (p Policy) Validate() error {
	if p.MaxPasses < 1 {
		return fmt.Errorf("%w: max passes must be at least 1, got %d", errs.ErrInvalidConfig, p.MaxPasses)
	}
	for _, tier := range p.Tiers {
		for _, g := range tier.Gates {
			if len(g.Choices) == 0 {
				return fmt.Errorf("%w: gate %s/%s has no filters", errs.ErrInvalidConfig, tier.Name, g.Name)
			}
			if g.Probability < 0 || g.Probability > 1 {
				return fmt.Errorf("%w: gate %s/%s probability %v out of range", errs.ErrInvalidConfig, tier.Name, g.Name, g.Probability)
			}
		}
	}
	return nil
}

// Plan draws every gate in order and returns the resulting pipeline. An
// at-least-one tier whose passes are exhausted gets the fallback step.
func (p Policy) Plan(rng algorithms.Rand) (Pipeline, error) {
	if err := p.Validate(); err != nil {
		return Pipeline{}, err
	}

	var pipeline Pipeline
	for _, tier := range p.Tiers {
		if !tier.AtLeastOne {
			pipeline.Steps = append(pipeline.Steps, tier.draw(rng)...)
			continue
		}

		fired := false
		for pass := 1; pass <= p.MaxPasses && !fired; pass++ {
			steps := tier.draw(rng)
			pipeline.MediumPasses = pass
			if len(steps) > 0 {
				pipeline.Steps = append(pipeline.Steps, steps...)
				fired = true
			}
		}
		if !fired {
			pipeline.Steps = append(pipeline.Steps, Step{Filter: p.Fallback, Tier: tier.Name, Forced: true})
			pipeline.Forced = true
		}
	}

	return pipeline, nil
}

// draw evaluates one pass over the tier's gates
func (t Tier) draw(rng algorithms.Rand) []Step {
	var steps []Step
	for _, g := range t.Gates {
		// disabled gates consume no randomness
		if g.Probability <= 0 {
			continue
		}
		if rng.Float64() >= g.Probability {
			continue
		}

		choice := g.Choices[0]
		if len(g.Choices) > 1 {
			idx := int(rng.Float64() * float64(len(g.Choices)))
			if idx >= len(g.Choices) {
				idx = len(g.Choices) - 1
			}
			choice = g.Choices[idx]
		}
		steps = append(steps, Step{Filter: choice, Tier: t.Name, Discard: g.DiscardResult})
	}
	return steps
}
