package cmd

import (
	"errors"

	"github.com/urfave/cli"

	"github.com/df07/go-render-farm/pkg/farm"
)

// Reset the sessions of one or more slaves.
func ResetServers(ctx *cli.Context) error {
	setupLogging(ctx)

	cfg, err := loadConfig(ctx)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	targets := ctx.StringSlice("resetserver")
	if len(targets) == 0 {
		return cli.NewExitError("missing --resetserver", 1)
	}
	password := cfg.Server.Password
	if ctx.IsSet("password") {
		password = ctx.String("password")
	}

	rf := farm.New(cfg.Farm.FarmConfig())
	failed := 0
	for _, server := range targets {
		if err := rf.ResetServer(server, password); err != nil {
			if errors.Is(err, farm.ErrResetDenied) {
				logger.Warningf("Server %s refused the reset: wrong or missing password", server)
			} else {
				logger.Errorf("Unable to reset %s: %v", server, err)
			}
			failed++
			continue
		}
		logger.Noticef("Server %s reset", server)
	}
	if failed > 0 {
		return cli.NewExitError("", 1)
	}
	return nil
}
