package renderer

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSource renders until limit units have been produced (0 = forever)
type countingSource struct {
	positions  int
	limit      int64
	rendered   atomic.Int64
	blackEvery int64

	mu   sync.Mutex
	seen map[int]int
}

func newCountingSource(positions int, limit int64) *countingSource {
	return &countingSource{positions: positions, limit: limit, seen: make(map[int]int)}
}

func (s *countingSource) Positions() int { return s.positions }

func (s *countingSource) Render(rng *rand.Rand, pos int) UnitResult {
	n := s.rendered.Add(1)
	if s.limit > 0 && n > s.limit {
		return UnitExhausted
	}
	s.mu.Lock()
	s.seen[pos]++
	s.mu.Unlock()
	if s.blackEvery > 0 && n%s.blackEvery == 0 {
		return UnitBlack
	}
	return UnitContributed
}

type fixedProgress struct {
	spp atomic.Int64
}

func (p *fixedProgress) SamplesPerPixel() float64 { return float64(p.spp.Load()) }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRendererRunsUntilSourceExhausted(t *testing.T) {
	src := newCountingSource(4, 1000)
	src.blackEvery = 4
	r := NewRenderer(src, nil, Config{})
	r.Start(3)
	r.Wait()

	stats := r.Stats()
	assert.Equal(t, uint64(1000), stats.Samples)
	assert.Equal(t, uint64(250), stats.BlackSamples)
	assert.InDelta(t, 75.0, stats.Efficiency, 1e-9)
	assert.Equal(t, 0, r.NumThreads(), "exhausted workers leave the pool")

	// The cursor spreads work evenly over the positions; the few units that
	// raced with exhaustion may land anywhere.
	for pos := 0; pos < 4; pos++ {
		assert.InDelta(t, 250, src.seen[pos], 5, "position %d", pos)
	}
}

func TestRendererAddRemoveThread(t *testing.T) {
	r := NewRenderer(newCountingSource(0, 0), nil, Config{})
	defer r.Exit()

	ids := []int{r.AddThread(), r.AddThread(), r.AddThread()}
	assert.Equal(t, []int{0, 1, 2}, ids)
	assert.Equal(t, 3, r.NumThreads())

	r.RemoveThread()
	assert.Equal(t, 2, r.NumThreads())

	r.RemoveThread()
	r.RemoveThread()
	r.RemoveThread() // no-op on an empty pool
	assert.Equal(t, 0, r.NumThreads())
}

func TestRendererPauseResume(t *testing.T) {
	src := newCountingSource(0, 0)
	r := NewRenderer(src, nil, Config{})
	r.Start(2)

	waitFor(t, func() bool { return src.rendered.Load() > 100 })
	r.Pause()
	// Give in-flight units time to finish, then the count must be stable.
	time.Sleep(20 * time.Millisecond)
	paused := src.rendered.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, paused, src.rendered.Load())

	// Threads added while paused start paused.
	r.AddThread()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, paused, src.rendered.Load())

	r.Resume()
	waitFor(t, func() bool { return src.rendered.Load() > paused+100 })

	r.Exit()
	assert.Equal(t, 0, r.NumThreads())
}

func TestRendererExitWhilePaused(t *testing.T) {
	r := NewRenderer(newCountingSource(0, 0), nil, Config{})
	r.Start(4)
	r.Pause()

	done := make(chan struct{})
	go func() {
		r.Exit()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Exit did not drain paused workers")
	}
}

func TestRendererHaltsAtTargetDensity(t *testing.T) {
	progress := &fixedProgress{}
	src := newCountingSource(0, 0)
	r := NewRenderer(src, progress, Config{HaltSamplesPerPixel: 8})
	r.Start(2)

	waitFor(t, func() bool { return src.rendered.Load() > 0 })
	progress.spp.Store(8)
	r.Wait()
	assert.Equal(t, 0, r.NumThreads())
	assert.Equal(t, float64(8), r.Stats().SamplesPerPixel)
}

func TestSignalWaitWakesOnChange(t *testing.T) {
	s := NewSignal(SignalPause)
	result := make(chan SignalState, 1)
	go func() { result <- s.Wait() }()

	select {
	case <-result:
		t.Fatal("Wait returned while paused")
	case <-time.After(10 * time.Millisecond):
	}

	s.Set(SignalExit)
	select {
	case st := <-result:
		assert.Equal(t, SignalExit, st)
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not wake up")
	}
	assert.Equal(t, SignalRun, NewSignal(SignalRun).Wait())
}

func TestScanCursorWraps(t *testing.T) {
	c := NewScanCursor(3)
	var got []int
	for i := 0; i < 7; i++ {
		got = append(got, c.Next())
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2, 0}, got)
	assert.Equal(t, 0, NewScanCursor(0).Next())
}

func TestRenderStatsFormatting(t *testing.T) {
	s := RenderStats{Threads: 2, Samples: 10, Elapsed: 2 * time.Second, SamplesPerSec: 5, SamplesPerPixel: 1.5, Efficiency: 90}
	assert.Equal(t, "2s - 2 threads - 1.50 S/p - 5 S/s - 90% efficiency", s.String())

	table := s.Table()
	require.NotEmpty(t, table)
	assert.Contains(t, table, "Samples/pixel")
	assert.Contains(t, table, "1.50")
}
