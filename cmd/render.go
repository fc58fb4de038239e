package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/df07/go-render-farm/pkg/core"
	"github.com/df07/go-render-farm/pkg/farm"
	"github.com/df07/go-render-farm/pkg/loaders"
	"github.com/df07/go-render-farm/pkg/renderer"
	"github.com/df07/go-render-farm/pkg/scene"
	web "github.com/df07/go-render-farm/web/server"
)

// renderOptions is everything the render command needs
type renderOptions struct {
	// Scene is a built-in scene id or a scene file
	Scene         string
	Settings      scene.FilmSettings
	Threads       int
	Servers       []string
	ServerFile    string
	Farm          farm.Config
	StatsInterval time.Duration
	HTTPAddr      string
}

// noticeLogger prints progress lines through the command logger
type noticeLogger struct{}

func (noticeLogger) Printf(format string, args ...interface{}) {
	logger.Noticef("%s", strings.TrimRight(fmt.Sprintf(format, args...), "\n"))
}

// Render a scene locally and on any number of slaves.
func RenderScene(ctx *cli.Context) error {
	setupLogging(ctx)

	cfg, err := loadConfig(ctx)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	opts := renderOptions{
		Scene:         "cornell-box",
		Settings:      cfg.Film.Settings(),
		Threads:       cfg.Film.Threads,
		Servers:       servers(ctx, cfg.Farm.Servers),
		ServerFile:    cfg.Farm.ServerFile,
		Farm:          cfg.Farm.FarmConfig(),
		StatsInterval: cfg.Server.StatsInterval.Duration,
		HTTPAddr:      ctx.String("http"),
	}
	if ctx.NArg() > 0 {
		opts.Scene = ctx.Args().First()
	}
	if ctx.IsSet("serverinterval") {
		opts.Farm.UpdateInterval = time.Duration(ctx.Int("serverinterval")) * time.Second
	}
	if ctx.IsSet("serverfile") {
		opts.ServerFile = ctx.String("serverfile")
	}
	if ctx.IsSet("width") {
		opts.Settings.Width = ctx.Int("width")
	}
	if ctx.IsSet("height") {
		opts.Settings.Height = ctx.Int("height")
	}
	if ctx.IsSet("spp") {
		opts.Settings.HaltSPP = ctx.Int("spp")
	}
	if ctx.IsSet("filter") {
		opts.Settings.Filter = ctx.String("filter")
	}
	if ctx.IsSet("threads") {
		opts.Threads = ctx.Int("threads")
	}
	if ctx.IsSet("out") {
		opts.Settings.Filename = ctx.String("out")
	}
	if ctx.IsSet("flm") {
		opts.Settings.WriteResumeFLM = ctx.Bool("flm")
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := render(sigCtx, opts); err != nil {
		return cli.NewExitError(err, 1)
	}
	return nil
}

// render builds the scene, mirrors it to the slaves, renders until the
// halt condition or ctx is done and writes the outputs
func render(ctx context.Context, opts renderOptions) error {
	rf := farm.New(opts.Farm)
	networked := len(opts.Servers) > 0 || opts.ServerFile != ""
	for _, server := range opts.Servers {
		if err := rf.Connect(server); err != nil {
			logger.Errorf("Unable to connect server %s: %v", server, err)
		}
	}
	if opts.ServerFile != "" {
		// connects the listed servers before returning
		if err := rf.WatchServerList(ctx, opts.ServerFile); err != nil {
			logger.Errorf("Unable to watch %s: %v", opts.ServerFile, err)
			rf.ConnectServerList(opts.ServerFile)
		}
	}
	defer rf.DisconnectAll()

	local := scene.NewContext()
	var api scene.API = local
	if networked {
		api = farm.NewMirror(rf, local)
	}
	if err := describeScene(api, opts); err != nil {
		return err
	}
	f := local.RenderFilm()

	var progress core.Logger = noticeLogger{}
	if opts.HTTPAddr != "" {
		config := web.DefaultConfig()
		config.Addr = opts.HTTPAddr
		if filepath.Ext(opts.Scene) != "" {
			config.SceneDir = filepath.Dir(opts.Scene)
		}
		ws := web.NewServer(config, rf)
		ws.SetFilm(f)
		go func() {
			if err := ws.Start(ctx); err != nil {
				logger.Errorf("Web server stopped: %v", err)
			}
		}()
		progress = ws.Logger("render")
	}

	r := renderer.NewRenderer(local.Integrator(), f, renderer.Config{
		HaltSamplesPerPixel: local.HaltSamplesPerPixel(),
		Seed:                time.Now().UnixNano(),
	})
	r.Start(opts.Threads)

	if networked {
		if err := rf.StartFilmUpdater(ctx, f); err != nil {
			logger.Errorf("Unable to start film updater: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()

	interval := opts.StatsInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			logger.Noticef("Interrupted, writing outputs")
			break loop
		case <-done:
			break loop
		case <-ticker.C:
			progress.Printf("%s\n", r.Stats().String())
		}
	}
	r.Exit()

	if networked {
		rf.StopFilmUpdater()
		// collect what the slaves rendered since the last poll
		rf.UpdateFilm(context.Background(), f)
	}

	logger.Noticef("Render statistics\n%s", r.Stats().Table())
	if servers := rf.ServersStatus(); len(servers) > 0 {
		logger.Noticef("Server statistics\n%s", farm.FormatStatus(servers))
	}
	return f.WriteImage()
}

// describeScene replays a scene file or a built-in scene through api
func describeScene(api scene.API, opts renderOptions) error {
	ext := strings.ToLower(filepath.Ext(opts.Scene))
	for _, allowed := range scene.SceneFileExtensions {
		if ext == allowed {
			logger.Noticef("Loading scene file %s", opts.Scene)
			return loaders.Load(opts.Scene, api)
		}
	}
	logger.Noticef("Rendering built-in scene %s", opts.Scene)
	return scene.EmitBuiltin(api, opts.Scene, opts.Settings)
}
