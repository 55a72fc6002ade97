// Randomized artistic filter library over 8-bit BGR images
package algorithms

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	errs "photobooth/internal/errors"
)

// FilterID names one member of the closed set of filters
type FilterID int

const (
	FilterCaption FilterID = iota
	FilterSwirl
	FilterGamma
	FilterSaturation
	FilterAffine
	FilterBlur
	FilterSharpen
	FilterGlitchShapes
	FilterRotation
	FilterGreenSchimmer
	FilterPinkSchimmer
	FilterRadial
	FilterColorMask
	FilterFolding
	FilterWave
	FilterColorShift
	FilterBrokenRainbow
	FilterCursed
	FilterThreshold
)

var filterNames = map[FilterID]string{
	FilterCaption:       "caption",
	FilterSwirl:         "swirl",
	FilterGamma:         "gamma",
	FilterSaturation:    "saturation",
	FilterAffine:        "affine",
	FilterBlur:          "blur",
	FilterSharpen:       "sharpen",
	FilterGlitchShapes:  "glitch_shapes",
	FilterRotation:      "rotation",
	FilterGreenSchimmer: "green_schimmer",
	FilterPinkSchimmer:  "pink_schimmer",
	FilterRadial:        "radial",
	FilterColorMask:     "color_mask",
	FilterFolding:       "folding",
	FilterWave:          "wave",
	FilterColorShift:    "color_shift",
	FilterBrokenRainbow: "broken_rainbow",
	FilterCursed:        "cursed",
	FilterThreshold:     "threshold",
}

func (id FilterID) String() string {
	if name, ok := filterNames[id]; ok {
		return name
	}
	return fmt.Sprintf("filter(%d)", int(id))
}

// Filter defines the interface for a single randomized transform.
// Apply must not modify or close its input.
type Filter interface {
	Apply(input gocv.Mat, rng Rand) (gocv.Mat, error)
	GetName() string
	GetDescription() string
}

// Library owns one instance of every filter and applies them by ID
type Library struct {
	filters map[FilterID]Filter
	logger  logrus.FieldLogger
}

// NewLibrary creates a library with every filter registered. Face-aware
// filters share the given locator; phrases feed the caption filter.
func NewLibrary(locator *FaceLocator, phrases []string, logger logrus.FieldLogger) *Library {
	l := &Library{
		filters: make(map[FilterID]Filter),
		logger:  logger,
	}

	// Face filters
	l.Register(FilterCaption, NewCaption(locator, phrases))
	l.Register(FilterSwirl, NewSwirl(locator))

	// Color and tone
	l.Register(FilterGamma, NewGamma())
	l.Register(FilterSaturation, NewSaturation())
	l.Register(FilterColorMask, NewColorMask())
	l.Register(FilterColorShift, NewColorShift())
	l.Register(FilterBrokenRainbow, NewBrokenRainbow())
	l.Register(FilterCursed, NewCursed())
	l.Register(FilterThreshold, NewThreshold())

	// Texture and detail
	l.Register(FilterBlur, NewBlur())
	l.Register(FilterSharpen, NewSharpen())
	l.Register(FilterGreenSchimmer, NewGreenSchimmer())
	l.Register(FilterPinkSchimmer, NewPinkSchimmer())

	// Geometry
	l.Register(FilterAffine, NewAffine())
	l.Register(FilterRotation, NewRotation())
	l.Register(FilterRadial, NewRadial())
	l.Register(FilterWave, NewWave())
	l.Register(FilterFolding, NewFolding())

	// Compositing
	l.Register(FilterGlitchShapes, NewGlitchShapes())

	return l
}

func (l *Library) Register(id FilterID, filter Filter) {
	l.filters[id] = filter
}

// Get looks up a registered filter
func (l *Library) Get(id FilterID) (Filter, bool) {
	filter, exists := l.filters[id]
	return filter, exists
}

// IDs returns the registered filter IDs in ascending order
func (l *Library) IDs() []FilterID {
	ids := make([]FilterID, 0, len(l.filters))
	for id := range l.filters {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Apply runs one filter and normalizes its result to 8-bit BGR.
// The input is left untouched; the caller owns the returned Mat.
func (l *Library) Apply(id FilterID, input gocv.Mat, rng Rand) (output gocv.Mat, err error) {
	defer func() {
		if r := recover(); r != nil {
			output = gocv.NewMat()
			err = errs.WrapTransform(fmt.Errorf("panic: %v", r), "Library", "Apply", id.String())
		}
	}()

	filter, exists := l.Get(id)
	if !exists {
		return gocv.NewMat(), errs.WrapTransform(errs.ErrUnknownFilter, "Library", "Apply", id.String())
	}

	if input.Empty() {
		return gocv.NewMat(), errs.WrapTransform(errs.ErrEmptyImage, "Library", "Apply", id.String())
	}

	raw, err := filter.Apply(input, rng)
	if err != nil {
		raw.Close()
		return gocv.NewMat(), errs.WrapTransform(err, "Library", "Apply", id.String())
	}
	defer raw.Close()

	normalized, err := EnsureBGR8(raw)
	if err != nil {
		return gocv.NewMat(), errs.WrapTransform(err, "Library", "Apply", id.String()+" normalize")
	}

	l.logger.WithFields(logrus.Fields{
		"filter": filter.GetName(),
		"width":  normalized.Cols(),
		"height": normalized.Rows(),
	}).Debug("Filter applied")

	return normalized, nil
}
