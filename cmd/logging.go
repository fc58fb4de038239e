package cmd

import (
	"github.com/urfave/cli"

	"github.com/df07/go-render-farm/pkg/config"
	"github.com/df07/go-render-farm/pkg/log"
)

var logger = log.New("luxfarm")

func setupLogging(ctx *cli.Context) {
	if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}

	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	}
}

// loadConfig reads the file named by the global --config flag
func loadConfig(ctx *cli.Context) (config.Config, error) {
	return config.Load(ctx.GlobalString("config"))
}

// servers returns the --useserver values, or the configured list when the
// flag is absent
func servers(ctx *cli.Context, fallback []string) []string {
	if ctx.IsSet("useserver") {
		return ctx.StringSlice("useserver")
	}
	return fallback
}
