package main

import (
	"os"

	"github.com/urfave/cli"

	"github.com/df07/go-render-farm/cmd"
)

func newApp() *cli.App {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "luxfarm"
	app.Usage = "progressive rendering across a farm of render servers"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:  "config, c",
			Usage: "TOML configuration file",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "server",
			Usage: "run a render server",
			Description: `
Accept one master at a time, replay the scene it sends, render it with the
local threads and hand the accumulated samples back when polled.`,
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "serverport, p",
					Value: 18018,
					Usage: "port to listen on",
				},
				cli.IntFlag{
					Name:  "threads, t",
					Usage: "render threads (default: one per CPU)",
				},
				cli.BoolFlag{
					Name:  "serverwriteflm, W",
					Usage: "send the film through an on-disk resume file",
				},
				cli.StringFlag{
					Name:  "cachedir",
					Usage: "directory for received files",
				},
				cli.StringFlag{
					Name:  "password",
					Usage: "password required by reset requests",
				},
			},
			Action: cmd.RunServer,
		},
		{
			Name:  "render",
			Usage: "render a scene, optionally on render servers",
			Description: `
Render a built-in scene (cornell-box, default) or an .lxs/.pbrt scene file.
Every --useserver receives a copy of the scene and its samples are merged
into the local film every --serverinterval seconds.`,
			ArgsUsage: "[scene id | scene file]",
			Flags: []cli.Flag{
				cli.StringSliceFlag{
					Name:  "useserver, u",
					Value: &cli.StringSlice{},
					Usage: "render server host[:port]",
				},
				cli.IntFlag{
					Name:  "serverinterval, i",
					Value: 180,
					Usage: "seconds between film updates from the servers",
				},
				cli.StringFlag{
					Name:  "serverfile",
					Usage: "file listing render servers, one per line; watched for changes",
				},
				cli.IntFlag{
					Name:  "width",
					Value: 640,
					Usage: "frame width",
				},
				cli.IntFlag{
					Name:  "height",
					Value: 480,
					Usage: "frame height",
				},
				cli.IntFlag{
					Name:  "spp",
					Usage: "stop at this many samples per pixel (default: render until interrupted)",
				},
				cli.StringFlag{
					Name:  "filter",
					Value: "mitchell",
					Usage: "pixel filter: box, triangle, gaussian, mitchell",
				},
				cli.IntFlag{
					Name:  "threads, t",
					Usage: "render threads (default: one per CPU)",
				},
				cli.StringFlag{
					Name:  "out, o",
					Value: "luxout",
					Usage: "output filename without extension",
				},
				cli.BoolTFlag{
					Name:  "flm",
					Usage: "write and resume from <out>.flm",
				},
				cli.StringFlag{
					Name:  "http",
					Usage: "serve status and preview pages on this address",
				},
			},
			Action: cmd.RenderScene,
		},
		{
			Name:  "reset",
			Usage: "end the sessions of render servers",
			Flags: []cli.Flag{
				cli.StringSliceFlag{
					Name:  "resetserver, r",
					Value: &cli.StringSlice{},
					Usage: "render server host[:port]",
				},
				cli.StringFlag{
					Name:  "password",
					Usage: "the servers' reset password",
				},
			},
			Action: cmd.ResetServers,
		},
		{
			Name:      "merge",
			Usage:     "merge resume films",
			ArgsUsage: "out.flm in1.flm in2.flm ...",
			Action:    cmd.MergeFilms,
		},
		{
			Name:  "status",
			Usage: "show whether render servers are free",
			Flags: []cli.Flag{
				cli.StringSliceFlag{
					Name:  "useserver, u",
					Value: &cli.StringSlice{},
					Usage: "render server host[:port]",
				},
				cli.StringFlag{
					Name:  "sid",
					Usage: "session id to check for",
				},
			},
			Action: cmd.ServerStatus,
		},
	}
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		os.Exit(1)
	}
}
