package server

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/df07/go-render-farm/pkg/farm"
	"github.com/df07/go-render-farm/pkg/film"
	"github.com/df07/go-render-farm/pkg/paramset"
	"github.com/df07/go-render-farm/pkg/scene"
	"github.com/df07/go-render-farm/pkg/wire"
)

func startServer(t *testing.T, configure func(*Config)) (*RenderServer, string) {
	t.Helper()
	config := DefaultConfig()
	config.Port = 0
	config.Threads = 2
	config.CacheDir = t.TempDir()
	config.StatsInterval = 0
	config.ReadTimeout = 5 * time.Second
	if configure != nil {
		configure(&config)
	}

	s := New(config)
	require.NoError(t, s.Start())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	return s, net.JoinHostPort("127.0.0.1", s.Port())
}

func newFarm() *farm.RenderFarm {
	config := farm.DefaultConfig()
	config.ConnectTimeout = time.Second
	config.ReadTimeout = 5 * time.Second
	return farm.New(config)
}

// raw sends lines on a fresh connection and returns everything the server
// answers before closing it
func raw(t *testing.T, addr string, lines ...string) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	for _, l := range lines {
		require.NoError(t, wire.WriteLine(conn, l))
	}
	out, _ := io.ReadAll(conn)
	return string(out)
}

func sessionFilm(t *testing.T, s *RenderServer) *film.Film {
	t.Helper()
	sess, err := s.current()
	require.NoError(t, err)
	return sess.film()
}

func renderingDone(s *RenderServer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil && s.session.renderer != nil && s.session.renderer.NumThreads() == 0
}

func TestSessionLifecycle(t *testing.T) {
	s, addr := startServer(t, nil)
	assert.Equal(t, Ready, s.State())

	rf := newFarm()
	require.NoError(t, rf.Connect(addr))
	assert.Equal(t, Busy, s.State())
	sid := s.SessionID()
	assert.NotEmpty(t, sid)
	assert.Equal(t, sid, rf.ServersStatus()[0].SessionID)

	// single tenant
	other := newFarm()
	assert.ErrorIs(t, other.Connect(addr), farm.ErrHandshake)
	assert.Equal(t, sid, s.SessionID())

	require.NoError(t, rf.Disconnect(addr))
	assert.Eventually(t, func() bool { return s.State() == Ready }, time.Second, 10*time.Millisecond)
}

func TestReconnectStates(t *testing.T) {
	_, addr := startServer(t, nil)
	rf := newFarm()

	state, err := rf.Reconnect(addr, "nobody")
	require.NoError(t, err)
	assert.Equal(t, farm.ReconnectIdle, state)

	require.NoError(t, rf.Connect(addr))
	sid := rf.ServersStatus()[0].SessionID

	state, err = rf.Reconnect(addr, sid)
	require.NoError(t, err)
	assert.Equal(t, farm.ReconnectConnected, state)

	state, err = rf.Reconnect(addr, "someone-else")
	require.NoError(t, err)
	assert.Equal(t, farm.ReconnectDenied, state)
}

func TestReset(t *testing.T) {
	t.Run("with password", func(t *testing.T) {
		s, addr := startServer(t, func(c *Config) { c.Password = "hunter2" })
		require.NoError(t, newFarm().Connect(addr))

		rf := newFarm()
		assert.ErrorIs(t, rf.ResetServer(addr, "wrong"), farm.ErrResetDenied)
		assert.Equal(t, Busy, s.State())

		require.NoError(t, rf.ResetServer(addr, "hunter2"))
		assert.Equal(t, Ready, s.State())
	})

	t.Run("without password", func(t *testing.T) {
		s, addr := startServer(t, nil)
		require.NoError(t, newFarm().Connect(addr))
		assert.ErrorIs(t, newFarm().ResetServer(addr, ""), farm.ErrResetDenied)
		assert.Equal(t, Busy, s.State())
	})
}

func TestRejectedRequestsCloseTheConnection(t *testing.T) {
	s, addr := startServer(t, nil)

	assert.Empty(t, raw(t, addr, "notACommand"))
	assert.Empty(t, raw(t, addr, "luxWorldBegin"))
	assert.Empty(t, raw(t, addr, "luxGetFilm", "no-session"))

	require.NoError(t, newFarm().Connect(addr))
	assert.Empty(t, raw(t, addr, "luxGetFilm", "wrong-sid"))
	assert.Empty(t, raw(t, addr, "ServerDisconnect", "wrong-sid"))
	assert.Equal(t, Busy, s.State())

	// the scene is not rendering yet
	assert.Empty(t, raw(t, addr, "luxGetFilm", s.SessionID()))
}

func TestReplicatedSceneRendersOnServer(t *testing.T) {
	s, addr := startServer(t, nil)
	rf := newFarm()
	require.NoError(t, rf.Connect(addr))

	local := scene.NewContext()
	settings := scene.FilmSettings{
		Width:          8,
		Height:         6,
		HaltSPP:        2,
		Filename:       filepath.Join(t.TempDir(), "out"),
		WritePNG:       true,
		WriteResumeFLM: true,
	}
	require.NoError(t, scene.EmitBuiltin(farm.NewMirror(rf, local), "cornell-box", settings))

	assert.Eventually(t, func() bool { return renderingDone(s) }, 10*time.Second, 20*time.Millisecond)
	remote := sessionFilm(t, s)
	require.NotNil(t, remote)
	assert.GreaterOrEqual(t, remote.SamplesPerPixel(), 2.0)

	// outputs are the master's business
	assert.False(t, remote.Options().WritePNG)
	assert.False(t, remote.Options().WriteResumeFLM)

	master := local.RenderFilm()
	expected := remote.NumberOfSamples()
	got := rf.UpdateFilm(context.Background(), master)
	assert.Equal(t, expected, got)
	assert.Equal(t, expected, master.NumberOfSamples())
	assert.Equal(t, 0.0, remote.NumberOfSamples())

	// already cleared
	assert.Equal(t, 0.0, rf.UpdateFilm(context.Background(), master))
}

func TestGetFilmThroughResumeFile(t *testing.T) {
	s, addr := startServer(t, func(c *Config) { c.WriteFlmFile = true })
	rf := newFarm()
	require.NoError(t, rf.Connect(addr))

	local := scene.NewContext()
	require.NoError(t, scene.EmitBuiltin(farm.NewMirror(rf, local), "default",
		scene.FilmSettings{Width: 6, Height: 4, HaltSPP: 1}))
	assert.Eventually(t, func() bool { return renderingDone(s) }, 10*time.Second, 20*time.Millisecond)

	expected := sessionFilm(t, s).NumberOfSamples()
	assert.Equal(t, expected, rf.UpdateFilm(context.Background(), local.RenderFilm()))

	path := s.resumeFilmPath()
	snap, err := film.ReadSnapshotFile(path)
	require.NoError(t, err)
	assert.Equal(t, expected, snap.NumberOfSamples())

	require.NoError(t, rf.Disconnect(addr))
	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, time.Second, 10*time.Millisecond)
}

func TestFileParamsAreCached(t *testing.T) {
	s, addr := startServer(t, nil)
	src := filepath.Join(t.TempDir(), "sky.exr")
	require.NoError(t, os.WriteFile(src, []byte("radiance"), 0o644))

	rf := newFarm()
	require.NoError(t, rf.Connect(addr))
	rf.Send("luxWorldBegin")
	ps := paramset.New()
	ps.AddString("mapname", src)
	rf.SendParams("luxLightSource", "infinite", ps)
	rf.Flush()

	cached := filepath.Join(s.config.CacheDir, s.Port()+"_0.exr")
	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(cached)
		return err == nil && string(data) == "radiance"
	}, time.Second, 10*time.Millisecond)

	sess, err := s.current()
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		sess.sceneMu.Lock()
		defer sess.sceneMu.Unlock()
		lights := sess.scene.Description().Lights
		return len(lights) == 1 && lights[0].Params.FindOneString("mapname", "") == cached
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, rf.Disconnect(addr))
	assert.Eventually(t, func() bool {
		_, err := os.Stat(cached)
		return os.IsNotExist(err)
	}, time.Second, 10*time.Millisecond)
}

func TestGetLogReturnsCapturedErrors(t *testing.T) {
	s, addr := startServer(t, nil)
	rf := newFarm()
	require.NoError(t, rf.Connect(addr))
	rf.Send("luxWorldBegin")
	rf.SendName("luxNamedMaterial", "missing")
	rf.Flush()

	var out string
	assert.Eventually(t, func() bool {
		out = raw(t, addr, "luxGetLog", s.SessionID())
		return out != ""
	}, time.Second, 20*time.Millisecond)

	line, err := wire.ReadLine(bufio.NewReader(strings.NewReader(out)))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, "1 3 "), line)
	assert.Contains(t, line, "missing")

	// drained
	assert.Empty(t, raw(t, addr, "luxGetLog", s.SessionID()))
}

func TestEveryCommandIsRegisteredOnce(t *testing.T) {
	s := New(DefaultConfig())
	for _, cmd := range []string{
		"luxShape", "luxMaterial", "luxTexture", "luxLightSource", "luxCamera", "luxFilm",
		"luxSampler", "luxPixelFilter", "luxAccelerator", "luxSurfaceIntegrator",
		"luxVolumeIntegrator", "luxRenderer", "luxTranslate", "luxRotate", "luxScale",
		"luxLookAt", "luxConcatTransform", "luxTransform", "luxIdentity",
		"luxCoordinateSystem", "luxCoordSysTransform", "luxObjectBegin", "luxObjectEnd",
		"luxObjectInstance", "luxPortalInstance", "luxPortalShape", "luxMotionBegin",
		"luxMotionEnd", "luxMotionInstance", "luxWorldBegin", "luxWorldEnd",
		"luxAttributeBegin", "luxAttributeEnd", "luxTransformBegin", "luxTransformEnd",
		"luxMakeNamedMaterial", "luxNamedMaterial", "luxLightGroup", "luxAreaLightSource",
		"luxReverseOrientation", "luxMakeNamedVolume", "luxVolume", "luxExterior",
		"luxInterior", "luxSetEpsilon", "luxGetFilm", "luxGetLog", "ServerConnect",
		"ServerReconnect", "ServerDisconnect", "ServerReset",
	} {
		assert.Contains(t, s.handlers, cmd)
	}
	assert.Panics(t, func() { s.register("luxShape", noop) })
}
