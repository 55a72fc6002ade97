// Fullscreen kiosk display of the booth
package gui

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"photobooth/internal/delivery"
)

const (
	hintSize      = 36
	countdownSize = 280
	thumbWidth    = 960
	thumbHeight   = 540
)

var (
	background = color.Black
	foreground = color.White
)

// Kiosk shows one of three screens: capture, preview and download code.
// It implements session.Presenter.
type Kiosk struct {
	app    fyne.App
	window fyne.Window
	logger logrus.FieldLogger

	hint      *canvas.Text
	countdown *canvas.Text
	previews  []*canvas.Image
	qr        *canvas.Image
	wifi      *canvas.Image

	captureView *fyne.Container
	previewView *fyne.Container
	tokenView   *fyne.Container
}

// NewKiosk builds the window. wifiImage is optional and shown beside the
// download code.
func NewKiosk(app fyne.App, title string, fullscreen bool, slots int, wifiImage string, logger logrus.FieldLogger) *Kiosk {
	window := app.NewWindow(title)
	window.SetFullScreen(fullscreen)
	if !fullscreen {
		window.Resize(fyne.NewSize(1280, 800))
		window.CenterOnScreen()
	}

	k := &Kiosk{
		app:    app,
		window: window,
		logger: logger.WithField("component", "kiosk"),
	}
	k.initializeUI(slots, wifiImage)
	return k
}

func (k *Kiosk) initializeUI(slots int, wifiImage string) {
	k.hint = canvas.NewText("", foreground)
	k.hint.TextSize = hintSize
	k.hint.Alignment = fyne.TextAlignCenter

	k.countdown = canvas.NewText("", foreground)
	k.countdown.TextSize = countdownSize
	k.countdown.TextStyle = fyne.TextStyle{Bold: true}
	k.countdown.Alignment = fyne.TextAlignCenter

	k.captureView = container.NewCenter(k.countdown)

	// 2x2 for the usual four variants
	cols := 2
	if slots > 4 {
		cols = 3
	}
	grid := container.NewGridWithColumns(cols)
	for i := 0; i < slots; i++ {
		img := canvas.NewImageFromImage(placeholder())
		img.FillMode = canvas.ImageFillContain
		k.previews = append(k.previews, img)
		grid.Add(img)
	}
	k.previewView = grid

	k.qr = canvas.NewImageFromImage(placeholder())
	k.qr.FillMode = canvas.ImageFillContain
	k.qr.SetMinSize(fyne.NewSize(370, 370))

	token := []fyne.CanvasObject{layout.NewSpacer(), k.qr}
	if wifiImage != "" {
		wifi, err := imaging.Open(wifiImage)
		if err != nil {
			k.logger.WithError(err).WithField("path", wifiImage).Warn("Wi-Fi image not shown")
		} else {
			k.wifi = canvas.NewImageFromImage(wifi)
			k.wifi.FillMode = canvas.ImageFillContain
			k.wifi.SetMinSize(fyne.NewSize(370, 370))
			token = append(token, k.wifi)
		}
	}
	token = append(token, layout.NewSpacer())
	k.tokenView = container.NewCenter(container.NewHBox(token...))

	views := container.NewStack(k.captureView, k.previewView, k.tokenView)
	content := container.NewBorder(nil, container.NewPadded(k.hint), nil, nil, views)
	k.window.SetContent(container.NewStack(canvas.NewRectangle(background), content))
	k.show(k.captureView)
}

// show makes view the only visible screen
func (k *Kiosk) show(view *fyne.Container) {
	for _, v := range []*fyne.Container{k.captureView, k.previewView, k.tokenView} {
		if v == view {
			v.Show()
		} else {
			v.Hide()
		}
	}
}

func (k *Kiosk) setHint(text string) {
	k.hint.Text = text
	k.hint.Refresh()
}

func (k *Kiosk) ShowCapture(hint string) {
	fyne.Do(func() { k.renderCapture(hint) })
}

func (k *Kiosk) renderCapture(hint string) {
	k.countdown.Text = ""
	k.countdown.Refresh()
	k.setHint(hint)
	k.show(k.captureView)
}

func (k *Kiosk) ShowCountdown(remaining int) {
	fyne.Do(func() { k.renderCountdown(remaining) })
}

func (k *Kiosk) renderCountdown(remaining int) {
	k.countdown.Text = fmt.Sprintf("%d", remaining)
	k.countdown.Refresh()
	k.setHint("")
	k.show(k.captureView)
}

func (k *Kiosk) ShowProcessing(hint string) {
	fyne.Do(func() { k.renderProcessing(hint) })
}

func (k *Kiosk) renderProcessing(hint string) {
	k.countdown.Text = ""
	k.countdown.Refresh()
	k.setHint(hint)
	k.show(k.captureView)
}

// ShowPreview decodes the thumbnails on the calling goroutine and swaps
// them in on the UI thread
func (k *Kiosk) ShowPreview(paths []string, hint string) {
	thumbs := make([]image.Image, len(paths))
	for i, p := range paths {
		thumb, err := thumbnail(p)
		if err != nil {
			k.logger.WithError(err).WithField("path", p).Warn("Preview not shown")
			continue
		}
		thumbs[i] = thumb
	}
	fyne.Do(func() { k.renderPreview(thumbs, hint) })
}

func (k *Kiosk) renderPreview(thumbs []image.Image, hint string) {
	for i, img := range k.previews {
		if i < len(thumbs) && thumbs[i] != nil {
			img.Image = thumbs[i]
		} else {
			img.Image = placeholder()
		}
		img.Refresh()
	}
	k.setHint(hint)
	k.show(k.previewView)
}

func (k *Kiosk) ShowAccessToken(pkg *delivery.Package, hint string) {
	var code image.Image
	if pkg != nil {
		img, err := imaging.Open(pkg.TokenPath)
		if err != nil {
			k.logger.WithError(err).WithField("path", pkg.TokenPath).Error("Access token not shown")
		} else {
			code = img
		}
	}
	fyne.Do(func() { k.renderAccessToken(code, hint) })
}

func (k *Kiosk) renderAccessToken(code image.Image, hint string) {
	if code == nil {
		code = placeholder()
	}
	k.qr.Image = code
	k.qr.Refresh()
	k.setHint(hint)
	k.show(k.tokenView)
}

// Run shows the window and blocks in the UI loop until ctx ends or the
// window is closed. Must be called from the main goroutine.
func (k *Kiosk) Run(ctx context.Context, cancel context.CancelFunc) {
	go func() {
		<-ctx.Done()
		fyne.Do(k.app.Quit)
	}()
	k.window.SetOnClosed(cancel)
	k.window.ShowAndRun()
}

func thumbnail(path string) (image.Image, error) {
	src, err := imaging.Open(path)
	if err != nil {
		return nil, err
	}
	return imaging.Fit(src, thumbWidth, thumbHeight, imaging.Linear), nil
}

func placeholder() image.Image {
	return imaging.New(16, 9, color.NRGBA{R: 32, G: 32, B: 32, A: 255})
}
