// Package config loads the optional TOML configuration shared by the
// render and server commands. Values in the file override the built-in
// defaults; command-line flags override both.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"

	"github.com/df07/go-render-farm/pkg/farm"
	"github.com/df07/go-render-farm/pkg/scene"
	"github.com/df07/go-render-farm/pkg/server"
)

var ErrInvalid = errors.New("config: invalid value")

// Duration is a time.Duration written as a Go duration string ("180s")
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	d.Duration = v
	return nil
}

// Farm configures the master
type Farm struct {
	Servers        []string `toml:"servers"`
	ServerFile     string   `toml:"serverfile"`
	ServerInterval Duration `toml:"serverinterval"`
	ConnectTimeout Duration `toml:"connecttimeout"`
	ReadTimeout    Duration `toml:"readtimeout"`
	KeepAlive      Duration `toml:"keepalive"`
	Parallel       int      `toml:"parallel"`
}

// Server configures the slave
type Server struct {
	Port          int      `toml:"port"`
	Threads       int      `toml:"threads"`
	WriteFlm      bool     `toml:"writeflm"`
	CacheDir      string   `toml:"cachedir"`
	Password      string   `toml:"password"`
	ReadTimeout   Duration `toml:"readtimeout"`
	StatsInterval Duration `toml:"statsinterval"`
}

// Film configures the master's film
type Film struct {
	Width          int    `toml:"width"`
	Height         int    `toml:"height"`
	HaltSPP        int    `toml:"haltspp"`
	Filter         string `toml:"filter"`
	Filename       string `toml:"filename"`
	WriteInterval  int    `toml:"writeinterval"`
	WriteResumeFLM bool   `toml:"write_resume_flm"`
	WritePNG       bool   `toml:"write_png"`
	Threads        int    `toml:"threads"`
}

// Config is the complete configuration file
type Config struct {
	Farm   Farm   `toml:"farm"`
	Server Server `toml:"server"`
	Film   Film   `toml:"film"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	fc := farm.DefaultConfig()
	sc := server.DefaultConfig()
	return Config{
		Farm: Farm{
			ServerInterval: Duration{fc.UpdateInterval},
			ConnectTimeout: Duration{fc.ConnectTimeout},
			ReadTimeout:    Duration{fc.ReadTimeout},
			KeepAlive:      Duration{fc.KeepAlive},
			Parallel:       fc.Parallel,
		},
		Server: Server{
			Port:          sc.Port,
			Threads:       sc.Threads,
			CacheDir:      sc.CacheDir,
			ReadTimeout:   Duration{sc.ReadTimeout},
			StatsInterval: Duration{sc.StatsInterval},
		},
		Film: Film{
			Width:          640,
			Height:         480,
			Filter:         "mitchell",
			Filename:       "luxout",
			WriteInterval:  60,
			WriteResumeFLM: true,
			WritePNG:       true,
			Threads:        runtime.NumCPU(),
		},
	}
}

// Load reads path on top of the defaults. An empty path returns the
// defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	path, err := homedir.Expand(path)
	if err != nil {
		return c, err
	}
	f, err := os.Open(path)
	if err != nil {
		return c, err
	}
	defer f.Close()

	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(&c); err != nil {
		return c, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := c.normalize(); err != nil {
		return c, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

// normalize expands paths and checks ranges
func (c *Config) normalize() error {
	dir, err := homedir.Expand(c.Server.CacheDir)
	if err != nil {
		return err
	}
	c.Server.CacheDir = dir

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d", ErrInvalid, c.Server.Port)
	}
	if c.Film.Width <= 0 || c.Film.Height <= 0 {
		return fmt.Errorf("%w: film size %dx%d", ErrInvalid, c.Film.Width, c.Film.Height)
	}
	if c.Farm.Parallel <= 0 {
		c.Farm.Parallel = 1
	}
	if c.Server.Threads <= 0 {
		c.Server.Threads = runtime.NumCPU()
	}
	if c.Film.Threads <= 0 {
		c.Film.Threads = runtime.NumCPU()
	}
	return nil
}

// Encode writes c as TOML
func (c Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// FarmConfig converts the [farm] section
func (f Farm) FarmConfig() farm.Config {
	return farm.Config{
		ConnectTimeout: f.ConnectTimeout.Duration,
		ReadTimeout:    f.ReadTimeout.Duration,
		UpdateInterval: f.ServerInterval.Duration,
		KeepAlive:      f.KeepAlive.Duration,
		Parallel:       f.Parallel,
	}
}

// ServerConfig converts the [server] section
func (s Server) ServerConfig() server.Config {
	c := server.DefaultConfig()
	c.Port = s.Port
	c.Threads = s.Threads
	c.WriteFlmFile = s.WriteFlm
	c.CacheDir = s.CacheDir
	c.Password = s.Password
	c.ReadTimeout = s.ReadTimeout.Duration
	c.StatsInterval = s.StatsInterval.Duration
	return c
}

// Settings converts the [film] section
func (f Film) Settings() scene.FilmSettings {
	return scene.FilmSettings{
		Width:          f.Width,
		Height:         f.Height,
		Filter:         f.Filter,
		HaltSPP:        f.HaltSPP,
		Filename:       f.Filename,
		WriteInterval:  f.WriteInterval,
		WriteResumeFLM: f.WriteResumeFLM,
		WritePNG:       f.WritePNG,
	}
}
