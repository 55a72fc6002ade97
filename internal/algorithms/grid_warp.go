// Piecewise-affine warps over a rectilinear control grid
package algorithms

import (
	"fmt"
	"math"
	"sort"

	"gocv.io/x/gocv"

	errs "photobooth/internal/errors"
)

// outputTrim is the number of rows removed from the bottom of grid warps
const outputTrim = 75

// controlGrid maps output coordinates at the grid nodes (xs[j], ys[i]) to
// the input coordinates (dx[j][i], dy[j][i]). Each cell is split into two
// triangles along its main diagonal and interpolated linearly inside each.
// Points outside the grid map to (-1, -1) and sample the border fill.
type controlGrid struct {
	xs, ys []float64
	dx, dy [][]float64
}

// node is one control point before sorting
type node struct {
	col, row int
	dx, dy   float64
}

// newControlGrid sorts node columns and rows while keeping each node's
// displacement attached to it.
func newControlGrid(cols, rows []float64, nodes []node) *controlGrid {
	colOrder := sortedOrder(cols)
	rowOrder := sortedOrder(rows)

	g := &controlGrid{
		xs: make([]float64, len(cols)),
		ys: make([]float64, len(rows)),
		dx: make([][]float64, len(cols)),
		dy: make([][]float64, len(cols)),
	}
	for j, c := range colOrder.sorted {
		g.xs[j] = c
		g.dx[j] = make([]float64, len(rows))
		g.dy[j] = make([]float64, len(rows))
	}
	for i, r := range rowOrder.sorted {
		g.ys[i] = r
	}
	for _, n := range nodes {
		j, i := colOrder.rank[n.col], rowOrder.rank[n.row]
		g.dx[j][i] = n.dx
		g.dy[j][i] = n.dy
	}
	return g
}

type ordering struct {
	sorted []float64
	rank   []int
}

func sortedOrder(values []float64) ordering {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	o := ordering{sorted: make([]float64, len(values)), rank: make([]int, len(values))}
	for r, i := range idx {
		o.sorted[r] = values[i]
		o.rank[i] = r
	}
	return o
}

// cell returns the index of the interval of sorted that contains v
func cell(sorted []float64, v float64) (int, bool) {
	n := len(sorted)
	if n < 2 || v < sorted[0] || v > sorted[n-1] {
		return 0, false
	}
	k := sort.SearchFloat64s(sorted, v)
	if k == 0 {
		k = 1
	}
	if k >= n {
		k = n - 1
	}
	return k - 1, true
}

func (g *controlGrid) inverse(x, y float64) (float64, float64) {
	j, okX := cell(g.xs, x)
	i, okY := cell(g.ys, y)
	if !okX || !okY {
		return -1, -1
	}

	x0, x1 := g.xs[j], g.xs[j+1]
	y0, y1 := g.ys[i], g.ys[i+1]
	if x1 == x0 || y1 == y0 {
		return -1, -1
	}
	u := (x - x0) / (x1 - x0)
	v := (y - y0) / (y1 - y0)

	lerp := func(d [][]float64) float64 {
		d00, d10 := d[j][i], d[j+1][i]
		d01, d11 := d[j][i+1], d[j+1][i+1]
		if u >= v {
			return d00 + u*(d10-d00) + v*(d11-d10)
		}
		return d00 + v*(d01-d00) + u*(d11-d01)
	}
	return lerp(g.dx), lerp(g.dy)
}

// oscillate builds nodes for every (col, row) pair in column-major order
// and pushes rows along a sine of three half periods over that order.
func oscillate(cols, rows []float64, amplitude, offset float64) []node {
	total := len(cols) * len(rows)
	nodes := make([]node, 0, total)
	for c, x := range cols {
		for r, y := range rows {
			k := c*len(rows) + r
			phase := 0.0
			if total > 1 {
				phase = 3 * math.Pi * float64(k) / float64(total-1)
			}
			dy := (y - math.Sin(phase)*amplitude) * 1.5
			dy -= 1.5 * offset
			nodes = append(nodes, node{col: c, row: r, dx: x, dy: dy})
		}
	}
	return nodes
}

func linspace(start, stop float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

// distinctIndices draws n distinct integers from [0, limit)
func distinctIndices(rng Rand, n, limit int) []float64 {
	if n > limit {
		n = limit
	}
	seen := make(map[int]bool, n)
	out := make([]float64, 0, n)
	for len(out) < n {
		v := rng.IntN(limit)
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, float64(v))
	}
	return out
}

func warpGrid(input gocv.Mat, grid *controlGrid) (gocv.Mat, error) {
	height := input.Rows() - outputTrim
	if height <= 0 {
		return gocv.NewMat(), fmt.Errorf("%w: need more than %d rows, got %d", errs.ErrImageTooSmall, outputTrim, input.Rows())
	}
	return remap(input, input.Cols(), height, grid.inverse, gocv.BorderConstant, black)
}

// Wave implements a sinusoidal vertical warp over an evenly spaced grid
type Wave struct{}

// NewWave creates a new wave filter
func NewWave() *Wave {
	return &Wave{}
}

func (w *Wave) Apply(input gocv.Mat, rng Rand) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), fmt.Errorf("input image is empty")
	}

	numCols := intBetween(rng, 3, 20)
	amplitude := float64(intBetween(rng, 100, 200))
	offset := float64(intBetween(rng, 10, 100))

	cols := linspace(0, float64(input.Cols()), numCols)
	rows := linspace(0, float64(input.Rows()), 10)

	grid := newControlGrid(cols, rows, oscillate(cols, rows, amplitude, offset))
	return warpGrid(input, grid)
}

func (w *Wave) GetName() string {
	return "Wave"
}

func (w *Wave) GetDescription() string {
	return "Sinusoidal row displacement on a 3 to 20 column control grid"
}

// Folding implements a wave over randomly chosen grid lines, which folds
// the image onto itself where the sine order and spatial order disagree.
type Folding struct {
	amplitude float64
	offset    float64
}

// NewFolding creates a new folding filter
func NewFolding() *Folding {
	return &Folding{amplitude: 50, offset: 100}
}

func (f *Folding) Apply(input gocv.Mat, rng Rand) (gocv.Mat, error) {
	if input.Empty() {
		return gocv.NewMat(), fmt.Errorf("input image is empty")
	}

	numCols := intBetween(rng, 10, 40)
	numRows := intBetween(rng, 10, 20)
	cols := distinctIndices(rng, numCols, input.Cols())
	rows := distinctIndices(rng, numRows, input.Rows())

	grid := newControlGrid(cols, rows, oscillate(cols, rows, f.amplitude, f.offset))
	return warpGrid(input, grid)
}

func (f *Folding) GetName() string {
	return "Folding"
}

func (f *Folding) GetDescription() string {
	return "Wave warp over 10 to 40 random columns and 10 to 20 random rows"
}
