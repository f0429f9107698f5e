package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/edgelive/internal/app"
	"github.com/ayusman/edgelive/internal/remote"
	"github.com/ayusman/edgelive/internal/server"
	"github.com/ayusman/edgelive/internal/session"
	"github.com/ayusman/edgelive/internal/store"
	"github.com/ayusman/edgelive/internal/tray"
)

type options struct {
	addr       string
	serviceURL string
	timeout    time.Duration
	camera     int
	debounce   time.Duration
	interval   time.Duration
	motion     float64
	maxEdge    int
	dbPath     string
	webDir     string
	logLevel   string
	logJSON    bool
	tray       bool
}

func parseOptions(args []string) (options, error) {
	var o options

	fs := flag.NewFlagSet("edgelive", flag.ContinueOnError)
	fs.StringVar(&o.addr, "addr", envString("EDGELIVE_ADDR", "127.0.0.1:8080"), "control API listen address")
	fs.StringVar(&o.serviceURL, "service", envString("EDGELIVE_SERVICE_URL", "http://localhost:8000"), "edge-detection service URL")
	fs.DurationVar(&o.timeout, "timeout", envDuration("EDGELIVE_TIMEOUT", remote.DefaultTimeout), "per-request service timeout")
	fs.IntVar(&o.camera, "camera", envInt("EDGELIVE_CAMERA", 0), "camera device id")
	fs.DurationVar(&o.debounce, "debounce", envDuration("EDGELIVE_DEBOUNCE", 0), "parameter debounce window (0 uses the default)")
	fs.DurationVar(&o.interval, "frame-interval", envDuration("EDGELIVE_FRAME_INTERVAL", app.DefaultFrameInterval), "pause between live frames")
	fs.Float64Var(&o.motion, "motion", envFloat("EDGELIVE_MOTION", 0), "percent of changed pixels needed to resend a live frame (0 disables)")
	fs.IntVar(&o.maxEdge, "max-edge", envInt("EDGELIVE_MAX_EDGE", 0), "downscale uploads whose longest edge exceeds this (0 uses the default, -1 disables)")
	fs.StringVar(&o.dbPath, "db", envString("EDGELIVE_DB", ""), "request log database path (empty keeps it in memory)")
	fs.StringVar(&o.webDir, "web", envString("EDGELIVE_WEB", ""), "static web directory")
	fs.StringVar(&o.logLevel, "log-level", envString("EDGELIVE_LOG_LEVEL", "info"), "log level")
	fs.BoolVar(&o.logJSON, "log-json", envBool("EDGELIVE_LOG_JSON", false), "write JSON logs instead of console output")
	fs.BoolVar(&o.tray, "tray", envBool("EDGELIVE_TRAY", false), "show a system tray menu")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.webDir == "" {
		o.webDir = findWebDir()
	}
	return o, nil
}

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	log := newLogger(opts)
	if err := run(opts, log); err != nil {
		log.Fatal().Err(err).Msg("edgelive failed")
	}
}

func newLogger(opts options) zerolog.Logger {
	level, err := zerolog.ParseLevel(opts.logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if opts.logJSON {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func run(opts options, log zerolog.Logger) error {
	log.Info().Msg("EdgeLive - live edge detection")

	service, err := remote.New(remote.Config{BaseURL: opts.serviceURL, Timeout: opts.timeout})
	if err != nil {
		return err
	}

	if opts.dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.dbPath), 0755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}
	st, err := store.New(opts.dbPath)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close()

	a, err := app.New(app.Config{
		Service:       service,
		Log:           st,
		CameraID:      opts.camera,
		Debounce:      opts.debounce,
		FrameInterval: opts.interval,
		MotionThresh:  opts.motion,
		MaxImageEdge:  opts.maxEdge,
		Logger:        log,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.webDir != "" {
		log.Info().Str("dir", opts.webDir).Msg("serving static files")
	}

	srv := server.New(server.Config{
		StaticDir: opts.webDir,
		App:       a,
		Store:     st,
		Logger:    log,
	})
	httpServer := srv.NewHTTPServer(opts.addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", opts.addr).Str("service", opts.serviceURL).Msg("starting server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	if opts.tray {
		t := newTray(a, "http://"+opts.addr, stop, log)
		go func() {
			<-ctx.Done()
			t.Quit()
		}()
		// systray needs the main goroutine.
		t.Run()
		stop()
	}

	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	return nil
}

// newTray builds the tray menu and keeps it in sync with the app's events.
func newTray(a *app.App, controlsURL string, quit func(), log zerolog.Logger) *tray.Tray {
	t := tray.New()

	t.OnModeToggle(func(webcam bool) error {
		mode := session.ModeUpload
		if webcam {
			mode = session.ModeWebcam
		}
		return a.SetMode(mode)
	})
	t.OnReset(func() {
		if err := a.Reset(); err != nil {
			log.Warn().Err(err).Msg("reset from tray")
		}
	})
	t.OnOpenControls(func() {
		if err := openBrowser(controlsURL); err != nil {
			log.Warn().Err(err).Msg("open controls")
		}
	})
	t.OnQuit(quit)

	events, cancel := a.Events()
	go func() {
		defer cancel()
		for ev := range events {
			switch ev.Type {
			case app.EventState:
				t.SetState(string(ev.State))
				t.SetWebcam(ev.State == app.StateWebcamActive || ev.State == app.StateWebcamInitializing)
			case app.EventNotice, app.EventError:
				t.SetNotice(ev.Message)
			}
		}
	}()

	return t
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.edgelive/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".edgelive", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return def
}

func envBool(key string, def bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return def
}
