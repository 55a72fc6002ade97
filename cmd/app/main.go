// Schnappi photo booth appliance

package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"fyne.io/fyne/v2/app"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"photobooth/internal/algorithms"
	"photobooth/internal/camera"
	"photobooth/internal/config"
	"photobooth/internal/core"
	"photobooth/internal/delivery"
	"photobooth/internal/gui"
	"photobooth/internal/hardware"
	imageio "photobooth/internal/io"
	"photobooth/internal/metrics"
	"photobooth/internal/server"
	"photobooth/internal/session"
	"photobooth/internal/variants"
)

const (
	AppName    = "Schnappi"
	AppID      = "de.schnappi.photobooth"
	AppVersion = "1.0.0"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML configuration file")
	debugMode := flag.Bool("debug", false, "Enable debug mode with verbose logging")
	seed := flag.Uint64("seed", 0, "Fixed random seed for reproducible variants (0 = random)")
	flag.Parse()

	logger := initLogger(*debugMode)
	logger.WithFields(logrus.Fields{
		"version":    AppVersion,
		"debug_mode": *debugMode,
		"config":     *configPath,
	}).Info("Starting photo booth")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if err := run(cfg, *seed, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("Photo booth stopped with error")
	}
	logger.Info("Photo booth shutting down gracefully")
}

func run(cfg *config.Config, seed uint64, logger *logrus.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.NewRecorder(registry)
	if err != nil {
		return err
	}

	// Filters and variants
	locator := algorithms.NewFaceLocator(cfg.Filters.FaceCascade, logger)
	defer locator.Close()

	phrases, err := algorithms.LoadPhrases(cfg.Filters.CaptionsFile)
	if err != nil {
		return err
	}

	policy := core.DefaultPolicy(cfg.Filters.DiscardSchimmer)
	policy.MaxPasses = cfg.Filters.MaxMediumPasses
	if err := policy.Validate(); err != nil {
		return err
	}
	composer := core.NewComposer(algorithms.NewLibrary(locator, phrases, logger), policy, logger)

	store := imageio.NewImageLoader(logger)
	producerOpts := []variants.Option{
		variants.WithCount(cfg.Filters.Variants),
		variants.WithWorkers(cfg.Filters.Workers),
		variants.WithTimeout(cfg.Filters.Timeout),
		variants.WithRecorder(recorder),
		variants.WithEvaluator(metrics.NewEvaluator()),
	}
	if seed != 0 {
		producerOpts = append(producerOpts, variants.WithSeedSource(variants.FixedSeeds(seed)))
	}
	producer := variants.NewProducer(composer, store, logger, producerOpts...)

	packager := delivery.NewPackager(cfg.Paths.PublicDir, cfg.Delivery.Host, cfg.Paths.TokenFile, cfg.Delivery.QRSize, recorder, logger)

	cam, err := newCamera(cfg.Camera, store, logger)
	if err != nil {
		return err
	}
	worker := session.NewWorker(cam, store, producer, packager, cfg.Paths.CaptureFile, cfg.Paths.VariantDir, logger)

	// Cabinet
	loop, err := newLoop(cfg.Hardware, recorder, logger)
	if err != nil {
		return err
	}

	// Display
	var (
		presenter session.Presenter = session.NewLogPresenter(logger)
		kiosk     *gui.Kiosk
	)
	if cfg.Display.Enabled {
		kiosk = gui.NewKiosk(app.NewWithID(AppID), cfg.Display.Title, cfg.Display.Fullscreen, producer.Count(), cfg.Display.WifiImage, logger)
		presenter = kiosk
	}

	orchestrator := session.NewOrchestrator(loop.Triggers(), worker, presenter, logger,
		session.WithCountdown(cfg.Session.Countdown, cfg.Session.CountdownStep),
		session.WithRecorder(recorder),
		session.WithTransitionHook(loop.Follow),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error { return orchestrator.Run(gctx) })
	if cfg.Server.Enabled {
		srv := server.New(cfg.Server.Addr, cfg.Paths.PublicDir, registry, orchestrator, logger)
		g.Go(func() error { return srv.Run(gctx) })
	}

	if kiosk != nil {
		// the UI loop owns the main goroutine; closing the window stops the booth
		kiosk.Run(gctx, cancel)
		cancel()
	}

	return g.Wait()
}

func newCamera(cfg config.CameraConfig, store camera.ImageStore, logger logrus.FieldLogger) (session.Camera, error) {
	opts := camera.Options{
		Width:  cfg.Width,
		Height: cfg.Height,
		HFlip:  cfg.HFlip,
		Warmup: cfg.Warmup,
	}
	switch cfg.Driver {
	case "file":
		return camera.NewFileCamera(cfg.SourceFile, opts, store, logger), nil
	default:
		return camera.NewDeviceCamera(cfg.Device, opts, store, logger), nil
	}
}

func newLoop(cfg config.HardwareConfig, recorder *metrics.Recorder, logger logrus.FieldLogger) (*hardware.Loop, error) {
	if cfg.Driver == "stdin" {
		logger.Info("Press Enter to trigger the booth")
		return hardware.NewLoop(hardware.FreePlay{}, hardware.NewLineInput(os.Stdin), hardware.LogLED{Logger: logger}, cfg.Debounce, recorder, logger), nil
	}

	if err := hardware.Init(); err != nil {
		return nil, err
	}
	coin, err := hardware.OpenGPIOInput(cfg.CoinPin)
	if err != nil {
		return nil, err
	}
	button, err := hardware.OpenGPIOInput(cfg.ButtonPin)
	if err != nil {
		return nil, err
	}
	led, err := hardware.OpenGPIOLED(cfg.LEDPin)
	if err != nil {
		return nil, err
	}
	return hardware.NewLoop(coin, button, led, cfg.Debounce, recorder, logger), nil
}

// initLogger initializes the logger with appropriate level
func initLogger(debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return logger
}
