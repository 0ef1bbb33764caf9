package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"booth/collage"
	"booth/config"
	"booth/notify"
	"booth/serve"
	"booth/store"
	"booth/video"
	"booth/video/camera"
	"booth/video/sink"
	"booth/video/source"
)

var (
	port       = flag.Int("port", 8080, "Port to host web frontend.")
	configPath = flag.String("config", "", "Path to a JSON or YAML config file.")
	device     = flag.String("camera", "", "Camera device path or index, overrides the config.")
	window     = flag.Bool("window", false, "Also show the preview in a local window.")
)

func setLogLevel(c *config.Config) {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.Warnf("Invalid log level %q: %v", c.LogLevel, err)
		return
	}
	log.SetLevel(lvl)
}

func openCamera(ctx context.Context, c source.Constraints) (source.Source, error) {
	v, err := camera.Open(ctx, c)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func main() {
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config.OnReload(setLogLevel)
	if *configPath != "" {
		if err := config.Load(ctx, *configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	cfg := config.Get()
	setLogLevel(cfg)

	cons, err := cfg.Constraints()
	if err != nil {
		log.Fatalf("Invalid camera config: %v", err)
	}
	if *device != "" {
		cons = cons.WithDevice(*device)
	}

	mux := http.NewServeMux()

	// Storage: MySQL when configured, otherwise a local directory.
	var backend store.Backend
	var push *notify.WebPush
	if cfg.Store.DatabaseDSN != "" {
		db, err := store.OpenMySQL(cfg.Store.DatabaseDSN)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		gb, err := store.NewGormBackend(db)
		if err != nil {
			log.Fatalf("Failed to prepare photo table: %v", err)
		}
		backend = gb
		push, err = notify.NewWebPush(db, cfg.PushSubscriber)
		if err != nil {
			log.Fatalf("Failed to set up web push: %v", err)
		}
		push.RegisterHandlers(mux)
	} else {
		fs, err := store.NewFilesystem(cfg.Store.Dir)
		if err != nil {
			log.Fatalf("Failed to create photo directory: %v", err)
		}
		backend = fs
	}
	photos := store.New(backend, store.Options{
		Key:      cfg.Store.Key,
		Capacity: cfg.Store.Capacity,
	})

	mjpegServer := sink.NewMJPEGServer()
	msraw := mjpegServer.NewStream(sink.MJPEGID{Name: "raw"})
	defer msraw.Close()
	mspreview := mjpegServer.NewStream(sink.MJPEGID{Name: "preview"})
	defer mspreview.Close()

	sinks := []sink.Sink{mspreview}
	if *window {
		w := camera.NewWindow("Photo booth")
		defer w.Close()
		sinks = append(sinks, w)
	}

	events := serve.NewEventUpdater()
	defer events.Close()

	notifier := &notify.Notifier{
		Hours: func() (int, int) {
			c := config.Get()
			return c.NotificationHoursStart, c.NotificationHoursEnd
		},
	}
	if push != nil {
		notifier.Listeners = append(notifier.Listeners, push)
	}

	// The preview burns the controller's countdown into its frames; the
	// controller is assigned before the camera starts.
	var ctrl *video.Controller
	cam := video.NewCamera(openCamera, video.PreviewOptions{
		Settings:  cfg.Settings(),
		Sinks:     sinks,
		RawSinks:  []sink.Sink{msraw},
		Countdown: func() (int, bool) { return ctrl.Countdown() },
	})
	defer cam.Close()

	ctrl = video.NewController(video.ControllerOptions{
		Grabber:   cam,
		Store:     photos,
		Still:     cfg.StillOptions(),
		Listeners: []video.Listener{events, notifier},
	})
	defer ctrl.Close()
	// A countdown never outlives the camera it was started on.
	cam.OnTeardown(func() { ctrl.Abort(video.ErrCameraStopped) })

	if err := cam.Start(ctx, cons); err != nil {
		// Capture stays disabled until a camera is selected over HTTP.
		log.Errorf("Camera unavailable: %v", err)
	} else {
		log.Infof("Camera started: %v", cons)
	}

	patterns := &serve.PatternServer{
		Lookup: func(name string) (string, bool) {
			return config.Get().PatternPath(config.Dir(), name)
		},
		Names: func() []string { return config.Get().PatternNames() },
	}
	background := func() string { return config.Get().Collage.Background }
	captionColor := func() string { return config.Get().Collage.CaptionColor }

	mux.Handle("/mjpeg", mjpegServer)
	mux.Handle("/events", events)
	(&serve.CaptureServer{Ctrl: ctrl}).RegisterHandlers(mux)
	(&serve.CameraServer{Camera: cam, Base: cons.WithDevice("")}).RegisterHandlers(mux)
	mux.Handle("/photos", &serve.PhotosServer{Store: photos})
	mux.Handle("/photos/clear", &serve.ClearServer{Store: photos})
	mux.Handle("/collage", &serve.CollageServer{
		Store:        photos,
		Patterns:     patterns,
		Layout:       collage.DefaultLayout,
		Background:   background,
		CaptionColor: captionColor,
	})
	mux.Handle("/pattern", patterns)
	mux.Handle("/options", &serve.OptionsServer{
		Colors:       func() []string { return config.Get().Collage.Colors },
		Patterns:     patterns,
		Background:   background,
		CaptionColor: captionColor,
	})
	mux.Handle("/metrics", promhttp.Handler())
	if cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	var h http.Handler = mux
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST"}),
	)(h)
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(log.StandardLogger()))(h)
	h = handlers.CombinedLoggingHandler(log.StandardLogger().Writer(), h)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: h,
	}
	go func() {
		log.Infof("Hosting web frontend on port %d", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	log.Infof("Caught signal %v", sig)

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("HTTP shutdown: %v", err)
	}
}
