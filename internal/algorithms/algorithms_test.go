package algorithms

import (
	"image"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	errs "photobooth/internal/errors"
)

// scriptedRand replays fixed values and then repeats the fallback
type scriptedRand struct {
	floats   []float64
	ints     []int
	fallback float64
}

func (s *scriptedRand) Float64() float64 {
	if len(s.floats) == 0 {
		return s.fallback
	}
	v := s.floats[0]
	s.floats = s.floats[1:]
	return v
}

func (s *scriptedRand) IntN(n int) int {
	if len(s.ints) == 0 {
		return int(s.fallback * float64(n))
	}
	v := s.ints[0]
	s.ints = s.ints[1:]
	return v % n
}

func newTestLibrary(t *testing.T) *Library {
	t.Helper()
	logger, _ := test.NewNullLogger()
	locator := NewFaceLocator("", logger)
	t.Cleanup(func() { locator.Close() })
	return NewLibrary(locator, nil, logger)
}

// gradientImage returns a BGR image with distinct values per channel
func gradientImage(t *testing.T, rows, cols int) gocv.Mat {
	t.Helper()
	img := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC3)
	data, err := img.DataPtrUint8()
	require.NoError(t, err)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			i := 3 * (y*cols + x)
			data[i] = uint8(x * 255 / cols)
			data[i+1] = uint8(y * 255 / rows)
			data[i+2] = uint8((x + y) % 256)
		}
	}
	return img
}

func TestLibrary_EveryFilterReturnsBGR8(t *testing.T) {
	lib := newTestLibrary(t)
	input := gradientImage(t, 120, 160)
	defer input.Close()

	for _, id := range lib.IDs() {
		for seed := uint64(1); seed <= 3; seed++ {
			t.Run(id.String(), func(t *testing.T) {
				rng := rand.New(rand.NewPCG(seed, seed*7))
				output, err := lib.Apply(id, input, rng)
				require.NoError(t, err)
				defer output.Close()

				assert.Equal(t, 3, output.Channels())
				assert.Equal(t, gocv.MatTypeCV8UC3, output.Type())
				assert.Equal(t, input.Cols(), output.Cols())

				expectedRows := input.Rows()
				if id == FilterWave || id == FilterFolding {
					expectedRows -= outputTrim
				}
				assert.Equal(t, expectedRows, output.Rows())
			})
		}
	}
}

func TestLibrary_InputUntouched(t *testing.T) {
	lib := newTestLibrary(t)
	input := gradientImage(t, 100, 100)
	defer input.Close()
	before := input.Clone()
	defer before.Close()

	for _, id := range lib.IDs() {
		output, err := lib.Apply(id, input, rand.New(rand.NewPCG(42, 42)))
		require.NoError(t, err, id.String())
		output.Close()
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(input, before, &diff)
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(diff, &gray, gocv.ColorBGRToGray)
	assert.Equal(t, 0, gocv.CountNonZero(gray))
}

func TestLibrary_Failures(t *testing.T) {
	lib := newTestLibrary(t)
	rng := rand.New(rand.NewPCG(1, 2))

	empty := gocv.NewMat()
	defer empty.Close()
	_, err := lib.Apply(FilterGamma, empty, rng)
	require.Error(t, err)
	assert.True(t, errs.IsTransform(err))
	assert.ErrorIs(t, err, errs.ErrEmptyImage)

	input := gradientImage(t, 10, 10)
	defer input.Close()
	_, err = lib.Apply(FilterID(99), input, rng)
	assert.ErrorIs(t, err, errs.ErrUnknownFilter)

	// too few rows for the grid warps
	small := gradientImage(t, 60, 60)
	defer small.Close()
	_, err = lib.Apply(FilterWave, small, rng)
	assert.ErrorIs(t, err, errs.ErrImageTooSmall)
	assert.True(t, errs.IsTransform(err))
}

type panickingFilter struct{}

func (panickingFilter) Apply(gocv.Mat, Rand) (gocv.Mat, error) { panic("boom") }
func (panickingFilter) GetName() string                        { return "Panic" }
func (panickingFilter) GetDescription() string                 { return "" }

func TestLibrary_RecoversFilterPanic(t *testing.T) {
	lib := newTestLibrary(t)
	lib.Register(FilterGamma, panickingFilter{})

	input := gradientImage(t, 10, 10)
	defer input.Close()

	output, err := lib.Apply(FilterGamma, input, rand.New(rand.NewPCG(1, 1)))
	defer output.Close()
	require.Error(t, err)
	assert.True(t, errs.IsTransform(err))
	assert.Contains(t, err.Error(), "boom")
}

func TestEnsureBGR8(t *testing.T) {
	gray := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(77, 0, 0, 0), 4, 4, gocv.MatTypeCV8UC1)
	defer gray.Close()
	out, err := EnsureBGR8(gray)
	require.NoError(t, err)
	defer out.Close()
	assert.Equal(t, gocv.MatTypeCV8UC3, out.Type())
	px := out.GetVecbAt(1, 1)
	assert.Equal(t, []uint8{77, 77, 77}, []uint8{px[0], px[1], px[2]})

	float := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0.5, 2.0, -1.0, 0), 4, 4, gocv.MatTypeCV32FC3)
	defer float.Close()
	out2, err := EnsureBGR8(float)
	require.NoError(t, err)
	defer out2.Close()
	px = out2.GetVecbAt(0, 0)
	assert.InDelta(t, 128, int(px[0]), 1)
	assert.Equal(t, uint8(255), px[1])
	assert.Equal(t, uint8(0), px[2])

	_, err = EnsureBGR8(gocv.NewMat())
	assert.ErrorIs(t, err, errs.ErrEmptyImage)
}

func TestSharpen_TinyRadiusIsIdentity(t *testing.T) {
	input := gradientImage(t, 20, 20)
	defer input.Close()

	// radius = 19 * 0.01^2, far below the identity cutoff
	rng := &scriptedRand{floats: []float64{0.01, 0.9}}
	output, err := NewSharpen().Apply(input, rng)
	require.NoError(t, err)
	defer output.Close()

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(input, output, &diff)
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(diff, &gray, gocv.ColorBGRToGray)
	assert.Equal(t, 0, gocv.CountNonZero(gray))
}

func TestThreshold_Binarizes(t *testing.T) {
	input := gradientImage(t, 50, 50)
	defer input.Close()

	output, err := NewThreshold().Apply(input, rand.New(rand.NewPCG(3, 3)))
	require.NoError(t, err)
	defer output.Close()

	data, err := output.DataPtrUint8()
	require.NoError(t, err)
	for i := 0; i < len(data); i += 3 {
		assert.Contains(t, []uint8{0, 255}, data[i])
		assert.Equal(t, data[i], data[i+1])
		assert.Equal(t, data[i], data[i+2])
	}
}

func TestCalculateOtsuThreshold(t *testing.T) {
	values := make([]float64, 0, 200)
	for i := 0; i < 100; i++ {
		values = append(values, 0.1, 0.9)
	}

	threshold := (&Threshold{}).calculateOtsuThreshold(values, 10)
	assert.Greater(t, threshold, 0.1)
	assert.Less(t, threshold, 0.9)

	assert.Equal(t, 0.5, (&Threshold{}).calculateOtsuThreshold([]float64{0.5, 0.5}, 4))
}

func TestColorMask_ZeroesUnkeptChannels(t *testing.T) {
	input := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 20, 30, 0), 4, 4, gocv.MatTypeCV8UC3)
	defer input.Close()

	// keep red twice: only the R plane (BGR index 2) survives
	output, err := NewColorMask().Apply(input, &scriptedRand{ints: []int{0, 0}})
	require.NoError(t, err)
	defer output.Close()

	px := output.GetVecbAt(2, 2)
	assert.Equal(t, uint8(0), px[0])
	assert.Equal(t, uint8(0), px[1])
	assert.Equal(t, uint8(30), px[2])
}

func TestControlGrid_IdentityInsideAndOutside(t *testing.T) {
	cols := []float64{0, 50, 100}
	rows := []float64{0, 40, 80}
	var nodes []node
	for c, x := range cols {
		for r, y := range rows {
			nodes = append(nodes, node{col: c, row: r, dx: x, dy: y})
		}
	}
	grid := newControlGrid(cols, rows, nodes)

	x, y := grid.inverse(25, 70)
	assert.InDelta(t, 25, x, 1e-9)
	assert.InDelta(t, 70, y, 1e-9)

	x, y = grid.inverse(101, 10)
	assert.Equal(t, -1.0, x)
	assert.Equal(t, -1.0, y)
}

func TestControlGrid_KeepsDisplacementWithShuffledLines(t *testing.T) {
	cols := []float64{100, 0}
	rows := []float64{0, 10}
	nodes := []node{
		{col: 0, row: 0, dx: 100, dy: 5},
		{col: 0, row: 1, dx: 100, dy: 15},
		{col: 1, row: 0, dx: 0, dy: 5},
		{col: 1, row: 1, dx: 0, dy: 15},
	}
	grid := newControlGrid(cols, rows, nodes)

	assert.Equal(t, []float64{0, 100}, grid.xs)
	x, y := grid.inverse(100, 10)
	assert.InDelta(t, 100, x, 1e-9)
	assert.InDelta(t, 15, y, 1e-9)
}

func TestDistinctIndices(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	got := distinctIndices(rng, 40, 50)
	require.Len(t, got, 40)

	seen := map[float64]bool{}
	for _, v := range got {
		assert.False(t, seen[v])
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 50.0)
		seen[v] = true
	}

	assert.Len(t, distinctIndices(rng, 10, 4), 4)
}

func TestFaceLocator_FallsBackToCenter(t *testing.T) {
	logger, _ := test.NewNullLogger()
	input := gradientImage(t, 90, 120)
	defer input.Close()

	missing := NewFaceLocator(filepath.Join(t.TempDir(), "missing.xml"), logger)
	assert.False(t, missing.Detects())
	assert.Equal(t, image.Pt(60, 45), missing.Locate(input))
	assert.NoError(t, missing.Close())

	var nilLocator *FaceLocator
	assert.Equal(t, image.Pt(60, 45), nilLocator.Locate(input))
}

func TestClampPoint(t *testing.T) {
	assert.Equal(t, image.Pt(0, 9), clampPoint(image.Pt(-5, 30), 10, 10))
	assert.Equal(t, image.Pt(9, 0), clampPoint(image.Pt(50, -1), 10, 10))
}

func TestLoadPhrases(t *testing.T) {
	phrases, err := LoadPhrases("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPhrases, phrases)

	path := filepath.Join(t.TempDir(), "captions.txt")
	require.NoError(t, os.WriteFile(path, []byte("Hallo\n\n  Schnappi  \n"), 0o644))
	phrases, err = LoadPhrases(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hallo", "Schnappi"}, phrases)

	blank := filepath.Join(t.TempDir(), "blank.txt")
	require.NoError(t, os.WriteFile(blank, []byte("\n\n"), 0o644))
	_, err = LoadPhrases(blank)
	assert.Error(t, err)
}

func TestCaption_FoldsUmlauts(t *testing.T) {
	c := NewCaption(nil, []string{"Grüße"})
	assert.Equal(t, []string{"Gruesse"}, c.phrases)
}
