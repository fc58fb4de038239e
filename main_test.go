package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"

	"github.com/df07/go-render-farm/pkg/film"
)

func TestAppCommands(t *testing.T) {
	app := newApp()
	tests := []struct {
		command string
		flags   []string
	}{
		{"server", []string{"serverport", "threads", "serverwriteflm", "cachedir", "password"}},
		{"render", []string{"useserver", "serverinterval", "serverfile", "width", "height", "spp", "filter", "threads", "out", "flm", "http"}},
		{"reset", []string{"resetserver", "password"}},
		{"merge", nil},
		{"status", []string{"useserver", "sid"}},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			c := app.Command(tt.command)
			require.NotNil(t, c)
			assert.NotNil(t, c.Action)

			var names []string
			for _, f := range c.Flags {
				names = append(names, strings.Split(f.GetName(), ",")[0])
			}
			for _, flag := range tt.flags {
				assert.Contains(t, names, flag)
			}
		})
	}
}

func writeFlm(t *testing.T, path string, samples float64) {
	t.Helper()
	opts := film.DefaultOptions()
	opts.XResolution = 4
	opts.YResolution = 4
	f := film.New(opts, film.NewBoxFilter(0.5, 0.5))
	require.NoError(t, f.CreateBuffers())
	f.AddSampleCount(samples)
	require.NoError(t, f.WriteResumeFilm(path))
}

func TestMergeCommand(t *testing.T) {
	dir := t.TempDir()
	in1 := filepath.Join(dir, "a.flm")
	in2 := filepath.Join(dir, "b.flm")
	out := filepath.Join(dir, "merged.flm")
	writeFlm(t, in1, 16)
	writeFlm(t, in2, 32)

	require.NoError(t, newApp().Run([]string{"luxfarm", "merge", out, in1, in2}))

	merged, err := film.ReadSnapshotFile(out)
	require.NoError(t, err)
	assert.Equal(t, 48.0, merged.NumberOfSamples())
}

func TestMergeCommandNeedsInputs(t *testing.T) {
	exited := -1
	cli.OsExiter = func(code int) { exited = code }
	t.Cleanup(func() { cli.OsExiter = os.Exit })

	err := newApp().Run([]string{"luxfarm", "merge", filepath.Join(t.TempDir(), "out.flm")})
	assert.Error(t, err)
	assert.Equal(t, 1, exited)
}
