package cmd

import (
	"bytes"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/df07/go-render-farm/pkg/farm"
)

// serverState maps a reconnect reply to what it means for a new master
var serverState = map[string]string{
	farm.ReconnectIdle:      "READY",
	farm.ReconnectDenied:    "BUSY",
	farm.ReconnectConnected: "CONNECTED",
}

// Show whether slaves are free to accept a session.
func ServerStatus(ctx *cli.Context) error {
	setupLogging(ctx)

	cfg, err := loadConfig(ctx)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	targets := servers(ctx, cfg.Farm.Servers)
	if len(targets) == 0 {
		return cli.NewExitError("missing --useserver", 1)
	}

	rf := farm.New(cfg.Farm.FarmConfig())
	return writeStatus(os.Stdout, rf, targets, ctx.String("sid"))
}

func writeStatus(w io.Writer, rf *farm.RenderFarm, targets []string, sid string) error {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"Server", "State"})
	for _, server := range targets {
		state := "UNREACHABLE"
		if reply, err := rf.Reconnect(server, sid); err != nil {
			logger.Warningf("Unable to reach %s: %v", server, err)
		} else if s, ok := serverState[reply]; ok {
			state = s
		} else {
			state = reply
		}
		table.Append([]string{server, state})
	}
	table.Render()
	_, err := w.Write(buf.Bytes())
	return err
}
