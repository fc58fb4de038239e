package farm

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/df07/go-render-farm/pkg/core"
	"github.com/df07/go-render-farm/pkg/film"
	"github.com/df07/go-render-farm/pkg/paramset"
	"github.com/df07/go-render-farm/pkg/scene"
	"github.com/df07/go-render-farm/pkg/wire"
)

// fakeSlave answers the slave side of the protocol on a loopback port
type fakeSlave struct {
	t        *testing.T
	ln       net.Listener
	sid      string
	busy     bool
	password string
	film     *film.Film
	// truncate cuts GetFilm replies after this many bytes when positive
	truncate int

	mu           sync.Mutex
	streams      [][]byte
	disconnected []string
}

func newFakeSlave(t *testing.T, sid string) *fakeSlave {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeSlave{t: t, ln: ln, sid: sid, film: testFilm(t)}
	t.Cleanup(func() { ln.Close() })
	go s.serve()
	return s
}

func (s *fakeSlave) addr() string {
	return s.ln.Addr().String()
}

func (s *fakeSlave) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeSlave) handle(conn net.Conn) {
	defer conn.Close()
	br := bufio.NewReader(conn)
	cmd, err := wire.ReadLine(br)
	if err != nil {
		return
	}

	switch cmd {
	case "ServerConnect":
		if s.busy {
			wire.WriteLine(conn, "BUSY")
			return
		}
		wire.WriteLine(conn, "OK")
		wire.WriteLine(conn, s.sid)
	case "luxGetFilm":
		if sid, _ := wire.ReadLine(br); sid != s.sid {
			return
		}
		if s.truncate > 0 {
			var buf bytes.Buffer
			s.film.TransmitFilm(&buf, false)
			conn.Write(buf.Bytes()[:s.truncate])
			return
		}
		s.film.TransmitFilm(conn, true)
	case "ServerDisconnect":
		sid, _ := wire.ReadLine(br)
		s.mu.Lock()
		s.disconnected = append(s.disconnected, sid)
		s.mu.Unlock()
	case "ServerReconnect":
		sid, _ := wire.ReadLine(br)
		if sid == s.sid {
			wire.WriteLine(conn, ReconnectConnected)
		} else {
			wire.WriteLine(conn, ReconnectDenied)
		}
	case "ServerReset":
		wire.WriteLine(conn, "nonce-123")
		answer, _ := wire.ReadLine(br)
		want, _ := ResetDigest(s.password, "nonce-123")
		if answer == want {
			wire.WriteLine(conn, "RESET")
		} else {
			wire.WriteLine(conn, "DENIED")
		}
	default:
		rest, _ := io.ReadAll(br)
		s.mu.Lock()
		s.streams = append(s.streams, append([]byte(cmd+"\n"), rest...))
		s.mu.Unlock()
	}
}

func (s *fakeSlave) received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.streams...)
}

func testFilm(t *testing.T) *film.Film {
	t.Helper()
	opts := film.DefaultOptions()
	opts.XResolution = 4
	opts.YResolution = 4
	opts.WriteInterval = 0
	f := film.New(opts, film.NewBoxFilter(0, 0))
	require.NoError(t, f.CreateBuffers())
	return f
}

func testConfig() Config {
	config := DefaultConfig()
	config.ConnectTimeout = time.Second
	config.ReadTimeout = 2 * time.Second
	config.UpdateInterval = 20 * time.Millisecond
	return config
}

func TestSplitServerName(t *testing.T) {
	tests := []struct {
		in         string
		host, port string
	}{
		{"render01", "render01", DefaultPort},
		{"render01:9000", "render01", "9000"},
		{"[::1]:9000", "::1", "9000"},
		{"[::1]", "::1", DefaultPort},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			host, port := SplitServerName(tt.in)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.port, port)
		})
	}
}

func TestConnectAndDisconnect(t *testing.T) {
	slave := newFakeSlave(t, "sid-1")
	rf := New(testConfig())

	require.NoError(t, rf.Connect(slave.addr()))
	assert.True(t, rf.Connected(slave.addr()))
	assert.ErrorIs(t, rf.Connect(slave.addr()), ErrAlreadyConnected)

	status := rf.ServersStatus()
	require.Len(t, status, 1)
	assert.Equal(t, "sid-1", status[0].SessionID)

	require.NoError(t, rf.Disconnect(slave.addr()))
	assert.Equal(t, 0, rf.NumServers())
	assert.ErrorIs(t, rf.Disconnect(slave.addr()), ErrUnknownServer)

	assert.Eventually(t, func() bool {
		slave.mu.Lock()
		defer slave.mu.Unlock()
		return len(slave.disconnected) == 1 && slave.disconnected[0] == "sid-1"
	}, time.Second, 10*time.Millisecond)
}

func TestConnectBusyServer(t *testing.T) {
	slave := newFakeSlave(t, "sid-1")
	slave.busy = true
	rf := New(testConfig())

	assert.ErrorIs(t, rf.Connect(slave.addr()), ErrHandshake)
	assert.Equal(t, 0, rf.NumServers())
}

func TestConnectUnreachableServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	rf := New(testConfig())
	assert.Error(t, rf.Connect(addr))
	assert.Equal(t, 0, rf.NumServers())
}

func TestFlushSendsBufferOncePerSlave(t *testing.T) {
	a := newFakeSlave(t, "a")
	b := newFakeSlave(t, "b")
	rf := New(testConfig())

	// connecting with an empty buffer sends nothing
	require.NoError(t, rf.Connect(a.addr()))
	rf.SendFloats("luxTranslate", 1, 2.5, -3)
	rf.Flush()
	rf.Flush()

	// a late slave gets the whole buffer on connect
	require.NoError(t, rf.Connect(b.addr()))

	want := "luxTranslate\n1 2.5 -3\n\n"
	assert.Eventually(t, func() bool { return len(a.received()) == 1 && len(b.received()) == 1 },
		time.Second, 10*time.Millisecond)
	assert.Equal(t, want, string(a.received()[0]))
	assert.Equal(t, want, string(b.received()[0]))
}

func TestConnectMidSceneWaitsForFlush(t *testing.T) {
	slave := newFakeSlave(t, "a")
	rf := New(testConfig())

	rf.Send("luxWorldBegin")
	require.NoError(t, rf.Connect(slave.addr()))
	rf.Send("luxAttributeBegin")
	rf.Send("luxWorldEnd")
	assert.Empty(t, slave.received())

	rf.Flush()
	assert.Eventually(t, func() bool { return len(slave.received()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "luxWorldBegin\nluxAttributeBegin\nluxWorldEnd\n\n", string(slave.received()[0]))
}

func TestConcurrentFlushesSendTheSceneOnce(t *testing.T) {
	slave := newFakeSlave(t, "a")
	rf := New(testConfig())
	require.NoError(t, rf.Connect(slave.addr()))
	rf.Send("luxWorldBegin")
	rf.Send("luxWorldEnd")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rf.Flush()
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool { return len(slave.received()) >= 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, slave.received(), 1)
}

func TestSendParamsShipsFiles(t *testing.T) {
	dir := t.TempDir()
	mapPath := filepath.Join(dir, "env.png")
	require.NoError(t, os.WriteFile(mapPath, []byte("image-bytes"), 0o644))

	rf := New(testConfig())
	ps := paramset.New()
	ps.AddString("mapname", mapPath)
	ps.AddString("iesname", filepath.Join(dir, "missing.ies"))
	rf.SendParams("luxLightSource", "infinite", ps)

	br := bufio.NewReader(bytes.NewReader(rf.Commands()))
	cmd, _ := wire.ReadLine(br)
	name, _ := wire.ReadLine(br)
	assert.Equal(t, "luxLightSource", cmd)
	assert.Equal(t, "infinite", name)

	block, err := wire.ReadBlock(br, 0)
	require.NoError(t, err)
	decoded := paramset.New()
	require.NoError(t, decoded.UnmarshalBinary(block))
	assert.Equal(t, mapPath, decoded.FindOneString("mapname", ""))

	var content bytes.Buffer
	_, err = wire.ReadFile(br, &content)
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", content.String())

	// unreadable files are sent empty
	content.Reset()
	n, err := wire.ReadFile(br, &content)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = br.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSendFilmSkipsFiles(t *testing.T) {
	rf := New(testConfig())
	ps := paramset.New()
	ps.AddString("filename", "/does/not/matter")
	rf.SendFilm("luxFilm", "fleximage", ps)

	br := bufio.NewReader(bytes.NewReader(rf.Commands()))
	wire.ReadLine(br)
	wire.ReadLine(br)
	_, err := wire.ReadBlock(br, 0)
	require.NoError(t, err)
	_, err = br.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
}

func TestUpdateFilmMergesEverySlave(t *testing.T) {
	a := newFakeSlave(t, "a")
	b := newFakeSlave(t, "b")
	for _, s := range []*fakeSlave{a, b} {
		s.film.AddSample(film.Sample{X: 1.5, Y: 1.5, XYZ: core.NewXYZ(1, 1, 1), Alpha: 1})
		s.film.AddSampleCount(100)
	}

	rf := New(testConfig())
	require.NoError(t, rf.Connect(a.addr()))
	require.NoError(t, rf.Connect(b.addr()))
	master := testFilm(t)
	before := master.NumberOfSamples()

	// let the last contact age so the reset is visible
	time.Sleep(50 * time.Millisecond)
	got := rf.UpdateFilm(context.Background(), master)

	assert.Equal(t, 200.0, got)
	assert.Equal(t, before+200, master.NumberOfSamples())
	c, _ := master.GetData(1, 1)
	assert.InDelta(t, 1.0, c.Y, 1e-5)
	for _, s := range rf.ServersStatus() {
		assert.Equal(t, 100.0, s.NumberOfSamples)
		assert.Less(t, s.SecsSinceLastContact, 0.04)
	}

	// slaves cleared their film on transmit
	assert.Equal(t, 0.0, rf.UpdateFilm(context.Background(), master))
	assert.Equal(t, before+200, master.NumberOfSamples())
}

func TestDroppedConnectionLeavesFilmUnchanged(t *testing.T) {
	slave := newFakeSlave(t, "a")
	slave.film.AddSample(film.Sample{X: 2.5, Y: 0.5, XYZ: core.NewXYZ(3, 3, 3), Alpha: 1})
	slave.film.AddSampleCount(50)
	slave.truncate = 40

	rf := New(testConfig())
	require.NoError(t, rf.Connect(slave.addr()))
	master := testFilm(t)
	master.AddSample(film.Sample{X: 0.5, Y: 0.5, XYZ: core.NewXYZ(1, 1, 1), Alpha: 1})
	master.AddSampleCount(10)
	snapshot := master.Snapshot()

	assert.Equal(t, 0.0, rf.UpdateFilm(context.Background(), master))
	assert.Equal(t, snapshot, master.Snapshot())
	assert.Equal(t, 0.0, rf.ServersStatus()[0].NumberOfSamples)
}

func TestFilmUpdaterPollsUntilStopped(t *testing.T) {
	slave := newFakeSlave(t, "a")
	rf := New(testConfig())
	require.NoError(t, rf.Connect(slave.addr()))
	master := testFilm(t)

	require.NoError(t, rf.StartFilmUpdater(context.Background(), master))
	assert.ErrorIs(t, rf.StartFilmUpdater(context.Background(), master), ErrUpdaterRunning)

	slave.film.AddSampleCount(7)
	assert.Eventually(t, func() bool { return master.NumberOfSamples() == 7 },
		2*time.Second, 10*time.Millisecond)

	rf.StopFilmUpdater()
	rf.StopFilmUpdater()
	slave.film.AddSampleCount(5)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 7.0, master.NumberOfSamples())
}

func TestReconnectAndReset(t *testing.T) {
	slave := newFakeSlave(t, "sid-1")
	slave.password = "secret"
	rf := New(testConfig())

	state, err := rf.Reconnect(slave.addr(), "sid-1")
	require.NoError(t, err)
	assert.Equal(t, ReconnectConnected, state)

	state, err = rf.Reconnect(slave.addr(), "other")
	require.NoError(t, err)
	assert.Equal(t, ReconnectDenied, state)

	assert.NoError(t, rf.ResetServer(slave.addr(), "secret"))
	assert.ErrorIs(t, rf.ResetServer(slave.addr(), "wrong"), ErrResetDenied)
}

func TestResetDigestIsKeyed(t *testing.T) {
	a, err := ResetDigest("one", "nonce")
	require.NoError(t, err)
	b, err := ResetDigest("two", "nonce")
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func TestFormatStatus(t *testing.T) {
	out := FormatStatus([]ServerInfo{{Name: "render01", Port: "18018", SessionID: "abc", NumberOfSamples: 1234}})
	assert.Contains(t, out, "render01:18018")
	assert.Contains(t, out, "1234")
}

func TestServerListConnectsNewEntries(t *testing.T) {
	a := newFakeSlave(t, "a")
	b := newFakeSlave(t, "b")
	path := filepath.Join(t.TempDir(), "servers.txt")
	require.NoError(t, os.WriteFile(path, []byte("# farm\n"+a.addr()+"\n\n"), 0o644))

	rf := New(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, rf.WatchServerList(ctx, path))
	assert.Equal(t, 1, rf.NumServers())

	require.NoError(t, os.WriteFile(path, []byte(a.addr()+"\n"+b.addr()+"\n"), 0o644))
	assert.Eventually(t, func() bool { return rf.NumServers() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestMirrorReplicatesAndBuildsLocally(t *testing.T) {
	slave := newFakeSlave(t, "a")
	rf := New(testConfig())
	require.NoError(t, rf.Connect(slave.addr()))

	local := scene.NewContext()
	m := NewMirror(rf, local)
	require.NoError(t, scene.EmitBuiltin(m, "cornell-box", scene.FilmSettings{Width: 8, Height: 6}))

	require.NotNil(t, local.RenderFilm())
	assert.Eventually(t, func() bool { return len(slave.received()) == 1 }, time.Second, 10*time.Millisecond)

	stream := slave.received()[0]
	assert.True(t, bytes.HasPrefix(stream, []byte("luxPixelFilter\nmitchell\n")))
	assert.True(t, bytes.HasSuffix(stream, []byte("luxWorldEnd\n\n")))
	assert.Contains(t, string(stream), "luxLookAt\n278 278 -800 278 278 0 0 1 0\n")
}
