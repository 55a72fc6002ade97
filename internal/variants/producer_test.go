package variants

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"photobooth/internal/algorithms"
	"photobooth/internal/core"
	errs "photobooth/internal/errors"
	imageio "photobooth/internal/io"
	"photobooth/internal/metrics"
)

// fakeComposer returns a uniform image per call, optionally failing or
// blocking for selected draws
type fakeComposer struct {
	delay   time.Duration
	failOn  float64
	active  atomic.Int32
	maxSeen atomic.Int32
	mu      sync.Mutex
	draws   []float64
}

func (f *fakeComposer) Compose(src *core.SourceImage, rng algorithms.Rand) (gocv.Mat, core.Pipeline, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	draw := rng.Float64()
	f.mu.Lock()
	f.draws = append(f.draws, draw)
	f.mu.Unlock()

	time.Sleep(f.delay)
	if f.failOn != 0 && draw == f.failOn {
		return gocv.NewMat(), core.Pipeline{}, errs.WrapTransform(fmt.Errorf("filter exploded"), "fake", "Compose", "apply")
	}

	meta := src.Metadata()
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(draw*255, 0, 0, 0), meta.Height, meta.Width, gocv.MatTypeCV8UC3)
	pipeline := core.Pipeline{
		Steps:        []core.Step{{Filter: algorithms.FilterSharpen, Tier: "medium"}},
		MediumPasses: 1,
	}
	return mat, pipeline, nil
}

// constantRand yields the same draw forever
type constantRand float64

func (c constantRand) Float64() float64 { return float64(c) }
func (c constantRand) IntN(n int) int   { return 0 }

func slotSeeds(slot int) algorithms.Rand {
	return constantRand(float64(slot) / 10)
}

func newSource(t *testing.T) *core.SourceImage {
	t.Helper()
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(90, 90, 90, 0), 24, 32, gocv.MatTypeCV8UC3)
	defer mat.Close()
	src, err := core.NewSourceImage(mat, "capture.jpg")
	require.NoError(t, err)
	t.Cleanup(src.Close)
	return src
}

func newProducer(t *testing.T, composer Composer, opts ...Option) *Producer {
	t.Helper()
	logger, _ := test.NewNullLogger()
	opts = append([]Option{WithSeedSource(slotSeeds)}, opts...)
	return NewProducer(composer, imageio.NewImageLoader(logger), logger, opts...)
}

func TestProduce_WritesAllSlots(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "variants")
	composer := &fakeComposer{delay: 20 * time.Millisecond}
	recorder, err := metrics.NewRecorder(prometheus.NewRegistry())
	require.NoError(t, err)

	producer := newProducer(t, composer, WithRecorder(recorder), WithEvaluator(metrics.NewEvaluator()))
	batch, err := producer.Produce(context.Background(), newSource(t), dir)
	require.NoError(t, err)

	require.Len(t, batch.Paths, DefaultCount)
	for slot := 1; slot <= DefaultCount; slot++ {
		assert.Equal(t, filepath.Join(dir, fmt.Sprintf("%d.jpg", slot)), batch.Paths[slot-1])
		assert.FileExists(t, batch.Paths[slot-1])
		assert.Len(t, batch.Pipelines[slot-1].Steps, 1)
	}
	assert.Equal(t, int32(DefaultCount), composer.maxSeen.Load())
	assert.Greater(t, batch.Duration, time.Duration(0))

	staging, _ := filepath.Glob(filepath.Join(dir, stagePattern))
	assert.Empty(t, staging)
}

func TestProduce_SlotsFollowLaunchOrder(t *testing.T) {
	dir := t.TempDir()
	producer := newProducer(t, &fakeComposer{})

	batch, err := producer.Produce(context.Background(), newSource(t), dir)
	require.NoError(t, err)

	// slot n was seeded with n/10, which the fake encodes in the blue channel
	logger, _ := test.NewNullLogger()
	loader := imageio.NewImageLoader(logger)
	for slot := 1; slot <= DefaultCount; slot++ {
		mat, err := loader.LoadImage(batch.Paths[slot-1])
		require.NoError(t, err)
		blue := float64(mat.GetVecbAt(5, 5)[0])
		mat.Close()
		assert.InDelta(t, float64(slot)/10*255, blue, 4)
	}
}

func TestProduce_WorkerLimit(t *testing.T) {
	composer := &fakeComposer{delay: 30 * time.Millisecond}
	producer := newProducer(t, composer, WithWorkers(2))

	_, err := producer.Produce(context.Background(), newSource(t), t.TempDir())
	require.NoError(t, err)
	assert.LessOrEqual(t, composer.maxSeen.Load(), int32(2))
}

func TestProduce_FailureRemovesPartialSlots(t *testing.T) {
	dir := t.TempDir()
	// slot 3 fails; the other slots may already be on disk
	composer := &fakeComposer{failOn: 0.3, delay: 10 * time.Millisecond}
	producer := newProducer(t, composer)

	batch, err := producer.Produce(context.Background(), newSource(t), dir)
	require.Error(t, err)
	assert.Nil(t, batch)
	assert.True(t, errs.IsTransform(err))
	assert.Contains(t, err.Error(), "slot 3")

	matches, _ := filepath.Glob(filepath.Join(dir, "*.jpg"))
	assert.Empty(t, matches)
}

func TestProduce_TimeoutFailsBatch(t *testing.T) {
	dir := t.TempDir()
	producer := newProducer(t, &fakeComposer{delay: 300 * time.Millisecond}, WithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := producer.Produce(context.Background(), newSource(t), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 250*time.Millisecond)

	// late tasks see the expired context and do not write
	time.Sleep(400 * time.Millisecond)
	matches, _ := filepath.Glob(filepath.Join(dir, "*.jpg"))
	assert.Empty(t, matches)
}

// gatedSaver holds every save until the gate opens
type gatedSaver struct {
	Saver
	gate  chan struct{}
	saves atomic.Int32
}

func (g *gatedSaver) SaveImage(mat gocv.Mat, path string) error {
	<-g.gate
	defer g.saves.Add(1)
	return g.Saver.SaveImage(mat, path)
}

func TestProduce_SaveAfterTimeoutLeavesNoFiles(t *testing.T) {
	dir := t.TempDir()
	logger, _ := test.NewNullLogger()
	saver := &gatedSaver{Saver: imageio.NewImageLoader(logger), gate: make(chan struct{})}
	producer := NewProducer(&fakeComposer{}, saver, logger, WithSeedSource(slotSeeds), WithTimeout(50*time.Millisecond))

	_, err := producer.Produce(context.Background(), newSource(t), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// every task is past its last context check and saves after cleanup
	close(saver.gate)
	require.Eventually(t, func() bool { return saver.saves.Load() == DefaultCount }, time.Second, 5*time.Millisecond)

	assert.Never(t, func() bool {
		matches, _ := filepath.Glob(filepath.Join(dir, "*.jpg"))
		return len(matches) > 0
	}, 200*time.Millisecond, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		staging, _ := filepath.Glob(filepath.Join(dir, stagePattern))
		return len(staging) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestProduce_RemovesPreviousBatch(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "7.jpg")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))
	leftover := filepath.Join(dir, ".batch-123")
	require.NoError(t, os.MkdirAll(leftover, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(leftover, "2.jpg"), []byte("old"), 0o644))

	_, err := newProducer(t, &fakeComposer{}).Produce(context.Background(), newSource(t), dir)
	require.NoError(t, err)
	assert.NoFileExists(t, stale)
	assert.NoDirExists(t, leftover)
}

func TestFixedSeedsAreReproducible(t *testing.T) {
	a := FixedSeeds(42)(3)
	b := FixedSeeds(42)(3)
	c := FixedSeeds(42)(4)

	va, vb, vc := a.Float64(), b.Float64(), c.Float64()
	assert.Equal(t, va, vb)
	assert.NotEqual(t, va, vc)
}
