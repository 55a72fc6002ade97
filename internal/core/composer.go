package core

import (
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"photobooth/internal/algorithms"
	errs "photobooth/internal/errors"
)

// Applier runs a single filter by ID. *algorithms.Library implements it.
type Applier interface {
	Apply(id algorithms.FilterID, input gocv.Mat, rng algorithms.Rand) (gocv.Mat, error)
}

// Composer plans a pipeline from its policy and executes it
type Composer struct {
	library Applier
	policy  Policy
	logger  logrus.FieldLogger
}

func NewComposer(library Applier, policy Policy, logger logrus.FieldLogger) *Composer {
	return &Composer{
		library: library,
		policy:  policy,
		logger:  logger,
	}
}

// Compose produces one variant of src. The source is never modified; the
// caller owns the returned Mat.
func (c *Composer) Compose(src *SourceImage, rng algorithms.Rand) (gocv.Mat, Pipeline, error) {
	pipeline, err := c.policy.Plan(rng)
	if err != nil {
		return gocv.NewMat(), Pipeline{}, errs.WrapTransform(err, "Composer", "Compose", "plan")
	}
	if pipeline.Forced {
		c.logger.WithError(errs.WrapLiveness(errs.New("no medium filter fired"), "Composer", "Compose", "plan")).
			WithField("passes", pipeline.MediumPasses).
			Warn("Medium tier exhausted, applying fallback")
	}

	image, err := c.Execute(src, pipeline, rng)
	if err != nil {
		return gocv.NewMat(), pipeline, err
	}
	return image, pipeline, nil
}

// Execute applies the steps of pipeline to a copy of src
func (c *Composer) Execute(src *SourceImage, pipeline Pipeline, rng algorithms.Rand) (gocv.Mat, error) {
	start := time.Now()

	raw := src.Mat()
	defer raw.Close()
	current, err := algorithms.EnsureBGR8(raw)
	if err != nil {
		return gocv.NewMat(), errs.WrapTransform(err, "Composer", "Execute", "normalize source")
	}

	for i, step := range pipeline.Steps {
		next, err := c.library.Apply(step.Filter, current, rng)
		if err != nil {
			current.Close()
			c.logger.WithError(err).WithFields(logrus.Fields{
				"step":   i,
				"filter": step.Filter.String(),
			}).Error("Filter step failed")
			return gocv.NewMat(), err
		}

		if step.Discard {
			next.Close()
			continue
		}

		current.Close()
		current = next
	}

	c.logger.WithFields(logrus.Fields{
		"pipeline": pipeline.String(),
		"steps":    len(pipeline.Steps),
		"duration": time.Since(start),
	}).Debug("Pipeline executed")

	return current, nil
}
