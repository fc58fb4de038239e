package cmd

import (
	"github.com/urfave/cli"

	"github.com/df07/go-render-farm/pkg/film"
)

// Merge independent resume films into one.
func MergeFilms(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() < 2 {
		return cli.NewExitError("usage: merge out.flm in1.flm [in2.flm ...]", 1)
	}
	args := ctx.Args()
	out := args.First()
	inputs := args.Tail()

	merged, err := film.MergeFiles(out, inputs...)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	logger.Noticef("Merged %d films into %s: %.0f samples", len(inputs), out, merged.NumberOfSamples())
	return nil
}
