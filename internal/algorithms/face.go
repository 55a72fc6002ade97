// Face location and caption phrases
package algorithms

import (
	"bufio"
	"fmt"
	"image"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// FaceLocator finds the focal point of an image. Without a usable
// classifier, or without a detected face, it returns the image center.
type FaceLocator struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
	loaded     bool
	logger     logrus.FieldLogger
}

// NewFaceLocator loads the cascade at path. An empty path or a cascade that
// fails to load leaves the locator in center-only mode.
func NewFaceLocator(path string, logger logrus.FieldLogger) *FaceLocator {
	f := &FaceLocator{logger: logger}
	if path == "" {
		logger.Info("No face cascade configured, captions and swirls use the image center")
		return f
	}

	f.classifier = gocv.NewCascadeClassifier()
	if !f.classifier.Load(path) {
		f.classifier.Close()
		logger.WithField("path", path).Warn("Failed to load face cascade, falling back to image center")
		return f
	}

	f.loaded = true
	logger.WithField("path", path).Debug("Face cascade loaded")
	return f
}

// Locate returns the center of the first detected face, clamped to the image
func (f *FaceLocator) Locate(img gocv.Mat) image.Point {
	center := imageCenter(img)
	if f == nil || !f.loaded || img.Empty() {
		return center
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	// CascadeClassifier is not safe for concurrent detection
	f.mu.Lock()
	faces := f.classifier.DetectMultiScaleWithParams(gray, 1.2, 4, 0,
		image.Pt(100, 100), image.Pt(1000, 1000))
	f.mu.Unlock()

	if len(faces) == 0 {
		return center
	}

	face := faces[0]
	point := image.Pt(face.Min.X+face.Dx()/2, face.Min.Y+face.Dy()/2)
	return clampPoint(point, img.Cols(), img.Rows())
}

// Detects reports whether a cascade is loaded
func (f *FaceLocator) Detects() bool {
	return f != nil && f.loaded
}

func (f *FaceLocator) Close() error {
	if f == nil || !f.loaded {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded = false
	return f.classifier.Close()
}

func clampPoint(p image.Point, width, height int) image.Point {
	return image.Pt(clampInt(p.X, 0, width-1), clampInt(p.Y, 0, height-1))
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DefaultPhrases is used when no captions file is configured
var DefaultPhrases = []string{
	"Schnappi!",
	"Schni schna schnappi",
	"Ich bin Schnappi",
	"Schnapp schnapp!",
	"Krokodil im Bild",
	"Bitte laecheln",
	"Kiste sagt Cheese",
	"Das bist du?",
	"Gut geschnappt",
	"Nochmal!",
}

// LoadPhrases reads one phrase per line, skipping blank lines
func LoadPhrases(path string) ([]string, error) {
	if path == "" {
		return DefaultPhrases, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open captions file: %w", err)
	}
	defer file.Close()

	var phrases []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		phrases = append(phrases, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read captions file: %w", err)
	}
	if len(phrases) == 0 {
		return nil, fmt.Errorf("captions file %s contains no phrases", path)
	}

	return phrases, nil
}
