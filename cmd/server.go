package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/df07/go-render-farm/pkg/server"
)

// Run a render slave until interrupted.
func RunServer(ctx *cli.Context) error {
	setupLogging(ctx)

	cfg, err := loadConfig(ctx)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	sc := cfg.Server.ServerConfig()
	if ctx.IsSet("serverport") {
		sc.Port = ctx.Int("serverport")
	}
	if ctx.IsSet("threads") {
		sc.Threads = ctx.Int("threads")
	}
	if ctx.IsSet("serverwriteflm") {
		sc.WriteFlmFile = ctx.Bool("serverwriteflm")
	}
	if ctx.IsSet("cachedir") {
		sc.CacheDir = ctx.String("cachedir")
	}
	if ctx.IsSet("password") {
		sc.Password = ctx.String("password")
	}
	if err := os.MkdirAll(sc.CacheDir, 0o755); err != nil {
		return cli.NewExitError(err, 1)
	}

	s := server.New(sc)
	if err := s.Start(); err != nil {
		logger.Criticalf("Unable to start server: %v", err)
		return cli.NewExitError(err, 1)
	}
	logger.Noticef("Render server listening on port %s with %d threads", s.Port(), sc.Threads)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Serve(sigCtx)
}
