// Headless presenter that logs screen changes
package session

import (
	"github.com/sirupsen/logrus"

	"photobooth/internal/delivery"
)

// LogPresenter prints every screen change to the log. Used when the
// booth runs without a display.
type LogPresenter struct {
	logger logrus.FieldLogger
}

func NewLogPresenter(logger logrus.FieldLogger) *LogPresenter {
	return &LogPresenter{logger: logger.WithField("component", "presenter")}
}

func (p *LogPresenter) ShowCapture(hint string) {
	p.logger.WithField("screen", StateCapture.String()).Info(hint)
}

func (p *LogPresenter) ShowCountdown(remaining int) {
	p.logger.WithField("remaining", remaining).Info("Countdown")
}

func (p *LogPresenter) ShowProcessing(hint string) {
	p.logger.WithField("screen", "processing").Info(hint)
}

func (p *LogPresenter) ShowPreview(paths []string, hint string) {
	p.logger.WithFields(logrus.Fields{
		"screen":   StateResultPreview.String(),
		"variants": paths,
	}).Info(hint)
}

func (p *LogPresenter) ShowAccessToken(pkg *delivery.Package, hint string) {
	fields := logrus.Fields{"screen": StateQrCode.String()}
	if pkg != nil {
		fields["url"] = pkg.URL
		fields["token"] = pkg.TokenPath
	}
	p.logger.WithFields(fields).Info(hint)
}
