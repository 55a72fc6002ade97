// Parallel production of filtered variants from one capture
package variants

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"

	"photobooth/internal/algorithms"
	"photobooth/internal/core"
	errs "photobooth/internal/errors"
	"photobooth/internal/metrics"
)

const (
	DefaultCount   = 4
	DefaultTimeout = 2 * time.Minute
)

var errBatchClosed = errors.New("batch already closed")

// Composer turns a source into one variant
type Composer interface {
	Compose(src *core.SourceImage, rng algorithms.Rand) (gocv.Mat, core.Pipeline, error)
}

// Saver writes an image to disk
type Saver interface {
	SaveImage(mat gocv.Mat, path string) error
}

// SeedSource returns the randomness for one slot
type SeedSource func(slot int) algorithms.Rand

// RandomSeeds gives every slot an independently seeded generator
func RandomSeeds(int) algorithms.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// FixedSeeds derives every slot's generator from seed, for reproducible runs
func FixedSeeds(seed uint64) SeedSource {
	return func(slot int) algorithms.Rand {
		return rand.New(rand.NewPCG(seed, uint64(slot)))
	}
}

// Batch describes a completed set of variants
type Batch struct {
	Dir       string
	Paths     []string
	Pipelines []core.Pipeline
	Duration  time.Duration
}

// SlotPath returns the file of a 1-based slot
func SlotPath(dir string, slot int) string {
	return filepath.Join(dir, strconv.Itoa(slot)+".jpg")
}

// Producer runs one composer task per slot in parallel
type Producer struct {
	composer  Composer
	saver     Saver
	evaluator *metrics.Evaluator
	recorder  *metrics.Recorder
	logger    logrus.FieldLogger

	count   int
	workers int
	timeout time.Duration
	seeds   SeedSource
}

// Option configures a Producer
type Option func(*Producer)

func WithCount(n int) Option {
	return func(p *Producer) { p.count = n }
}

func WithWorkers(n int) Option {
	return func(p *Producer) { p.workers = n }
}

func WithTimeout(d time.Duration) Option {
	return func(p *Producer) { p.timeout = d }
}

func WithSeedSource(s SeedSource) Option {
	return func(p *Producer) { p.seeds = s }
}

func WithRecorder(r *metrics.Recorder) Option {
	return func(p *Producer) { p.recorder = r }
}

func WithEvaluator(e *metrics.Evaluator) Option {
	return func(p *Producer) { p.evaluator = e }
}

func NewProducer(composer Composer, saver Saver, logger logrus.FieldLogger, opts ...Option) *Producer {
	p := &Producer{
		composer: composer,
		saver:    saver,
		logger:   logger,
		count:    DefaultCount,
		workers:  DefaultCount,
		timeout:  DefaultTimeout,
		seeds:    RandomSeeds,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.workers < 1 {
		p.workers = 1
	}
	return p
}

// Count returns the number of variants per batch
func (p *Producer) Count() int {
	return p.count
}

// Produce writes Count variants of src to dir as 1.jpg..N.jpg and returns
// only after every task has finished. Any failure or the timeout removes
// all slot files written by this batch.
func (p *Producer) Produce(ctx context.Context, src *core.SourceImage, dir string) (*Batch, error) {
	start := time.Now()

	if err := p.prepare(dir); err != nil {
		return nil, errs.WrapTransform(err, "Producer", "Produce", "prepare output directory")
	}
	st, err := newStage(dir)
	if err != nil {
		return nil, errs.WrapTransform(err, "Producer", "Produce", "create staging directory")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	var mu sync.Mutex
	batch := &Batch{
		Dir:       dir,
		Paths:     make([]string, p.count),
		Pipelines: make([]core.Pipeline, p.count),
	}

	// launch order defines slot numbering
	for slot := 1; slot <= p.count; slot++ {
		g.Go(func() error {
			pipeline, err := p.produceSlot(gctx, src, st, slot)
			if err != nil {
				return fmt.Errorf("slot %d: %w", slot, err)
			}
			mu.Lock()
			batch.Paths[slot-1] = SlotPath(dir, slot)
			batch.Pipelines[slot-1] = pipeline
			mu.Unlock()
			return nil
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err = <-done:
		if err == nil {
			err = ctx.Err()
		}
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err == nil {
		err = p.verify(batch)
	}
	if err != nil {
		p.cleanup(st)
		p.logger.WithError(err).WithField("dir", dir).Error("Variant batch failed")
		return nil, errs.WrapTransform(err, "Producer", "Produce", "produce variants")
	}

	if err := st.close(); err != nil {
		p.logger.WithError(err).WithField("dir", st.dir).Warn("Failed to remove staging directory")
	}

	batch.Duration = time.Since(start)
	p.logger.WithFields(logrus.Fields{
		"dir":      dir,
		"count":    p.count,
		"duration": batch.Duration,
	}).Info("Variant batch completed")

	return batch, nil
}

func (p *Producer) produceSlot(ctx context.Context, src *core.SourceImage, st *stage, slot int) (core.Pipeline, error) {
	if err := ctx.Err(); err != nil {
		return core.Pipeline{}, err
	}

	start := time.Now()
	mat, pipeline, err := p.composer.Compose(src, p.seeds(slot))
	if err != nil {
		p.recorder.RecordVariant(false, time.Since(start), nil, 0, false)
		return pipeline, err
	}
	defer mat.Close()

	// the batch may have failed while this slot was composing
	if err := ctx.Err(); err != nil {
		return pipeline, err
	}

	if err := p.saver.SaveImage(mat, SlotPath(st.dir, slot)); err != nil {
		p.recorder.RecordVariant(false, time.Since(start), nil, 0, false)
		return pipeline, err
	}
	// a task outliving the batch must not leave files behind
	if err := st.publish(slot); err != nil {
		p.recorder.RecordVariant(false, time.Since(start), nil, 0, false)
		return pipeline, err
	}

	duration := time.Since(start)
	names := make([]string, len(pipeline.Steps))
	for i, step := range pipeline.Steps {
		names[i] = step.Filter.String()
	}
	p.recorder.RecordVariant(true, duration, names, pipeline.MediumPasses, pipeline.Forced)

	fields := logrus.Fields{
		"slot":     slot,
		"pipeline": pipeline.String(),
		"duration": duration,
	}
	if p.evaluator != nil {
		original := src.Mat()
		quality := p.evaluator.Evaluate(original, mat)
		original.Close()
		p.recorder.RecordQuality(quality)
		for name, value := range quality {
			fields[name] = value
		}
	}
	p.logger.WithFields(fields).Info("Variant written")

	return pipeline, nil
}

// prepare creates dir and removes slot files and staging directories of
// earlier batches
func (p *Producer) prepare(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	stale, err := filepath.Glob(filepath.Join(dir, stagePattern))
	if err != nil {
		return err
	}
	for _, d := range stale {
		if err := os.RemoveAll(d); err != nil {
			return err
		}
	}
	return removeSlots(dir)
}

func (p *Producer) cleanup(st *stage) {
	if err := st.close(); err != nil {
		p.logger.WithError(err).WithField("dir", st.dir).Warn("Failed to remove staging directory")
	}
	if err := removeSlots(st.out); err != nil {
		p.logger.WithError(err).WithField("dir", st.out).Warn("Failed to remove partial variants")
	}
}

const stagePattern = ".batch-*"

// stage is the private directory of one batch. Slot files are written
// there and renamed into the output directory while the batch is open.
type stage struct {
	dir string
	out string

	mu     sync.Mutex
	closed bool
}

func newStage(out string) (*stage, error) {
	dir, err := os.MkdirTemp(out, stagePattern)
	if err != nil {
		return nil, err
	}
	return &stage{dir: dir, out: out}, nil
}

// publish moves a staged slot into the output directory unless the batch
// was closed, in which case the staged file is dropped
func (s *stage) publish(slot int) error {
	staged := SlotPath(s.dir, slot)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		os.Remove(staged)
		os.Remove(s.dir)
		return errBatchClosed
	}
	return os.Rename(staged, SlotPath(s.out, slot))
}

// close stops further publishing and removes the staging directory
func (s *stage) close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return os.RemoveAll(s.dir)
}

func removeSlots(dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*.jpg"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (p *Producer) verify(batch *Batch) error {
	for slot := 1; slot <= p.count; slot++ {
		path := SlotPath(batch.Dir, slot)
		info, err := os.Stat(path)
		if err != nil || info.Size() == 0 {
			return fmt.Errorf("%w: slot %d missing", errs.ErrIncompleteBatch, slot)
		}
	}
	return nil
}
