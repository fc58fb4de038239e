package renderer

import (
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/df07/go-render-farm/pkg/log"
)

// UnitResult reports the outcome of rendering one sample unit
type UnitResult uint8

const (
	UnitBlack       UnitResult = iota // rendered, contributed nothing
	UnitContributed                   // rendered and added to the film
	UnitExhausted                     // no more work; the worker exits
)

// SampleSource produces sample units for render workers. Implementations
// add their samples to a film; Render is called concurrently from every
// worker with a worker-private random source.
type SampleSource interface {
	// Positions is the number of coarse scan positions; zero disables the
	// scan cursor.
	Positions() int
	// Render renders one sample unit at scan position pos
	Render(rng *rand.Rand, pos int) UnitResult
}

// Progress reports the film's sample density for the halt condition
type Progress interface {
	SamplesPerPixel() float64
}

// Config controls a Renderer
type Config struct {
	// HaltSamplesPerPixel stops workers once the film reaches this density;
	// zero renders until the source is exhausted or Exit is called.
	HaltSamplesPerPixel float64
	// Seed derives the per-worker random sources
	Seed int64
}

// haltCheckInterval is the number of units a worker renders between halt checks
const haltCheckInterval = 256

// Renderer runs a pool of render workers over a SampleSource
type Renderer struct {
	source   SampleSource
	progress Progress
	config   Config
	cursor   *ScanCursor
	logger   log.Logger

	mu      sync.Mutex
	state   SignalState
	workers []*worker
	nextID  int
	wg      sync.WaitGroup

	samples atomic.Uint64
	black   atomic.Uint64

	// timer runs only while the pool is in SignalRun
	timerMu   sync.Mutex
	elapsed   time.Duration
	runningAt time.Time
}

// worker is a single render goroutine with its own signal
type worker struct {
	id     int
	signal *Signal
	done   chan struct{}
}

// NewRenderer creates a renderer with no workers. Workers start in the run
// state when added.
func NewRenderer(source SampleSource, progress Progress, config Config) *Renderer {
	return &Renderer{
		source:    source,
		progress:  progress,
		config:    config,
		cursor:    NewScanCursor(source.Positions()),
		logger:    log.New("renderer"),
		state:     SignalRun,
		runningAt: time.Now(),
	}
}

// Start adds n workers, or one per CPU when n <= 0
func (r *Renderer) Start(n int) {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	for i := 0; i < n; i++ {
		r.AddThread()
	}
}

// AddThread starts one more worker in the pool's current state and returns
// its id
func (r *Renderer) AddThread() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := &worker{
		id:     r.nextID,
		signal: NewSignal(r.state),
		done:   make(chan struct{}),
	}
	r.nextID++
	r.workers = append(r.workers, w)
	r.wg.Add(1)
	go r.run(w)
	return w.id
}

// RemoveThread stops the most recently added worker and waits for it to
// return
func (r *Renderer) RemoveThread() {
	r.mu.Lock()
	if len(r.workers) == 0 {
		r.mu.Unlock()
		return
	}
	w := r.workers[len(r.workers)-1]
	r.workers = r.workers[:len(r.workers)-1]
	r.mu.Unlock()

	w.signal.Set(SignalExit)
	<-w.done
}

// Pause suspends all workers after their current unit
func (r *Renderer) Pause() {
	r.signalAll(SignalPause)
}

// Resume continues paused workers
func (r *Renderer) Resume() {
	r.signalAll(SignalRun)
}

// Exit stops every worker and waits until all have returned
func (r *Renderer) Exit() {
	r.signalAll(SignalExit)
	r.wg.Wait()
}

// Wait blocks until every worker has returned
func (r *Renderer) Wait() {
	r.wg.Wait()
}

// NumThreads returns the number of live workers
func (r *Renderer) NumThreads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

func (r *Renderer) signalAll(state SignalState) {
	r.mu.Lock()
	prev := r.state
	r.state = state
	workers := make([]*worker, len(r.workers))
	copy(workers, r.workers)
	r.mu.Unlock()

	r.updateTimer(prev, state)
	for _, w := range workers {
		w.signal.Set(state)
	}
}

func (r *Renderer) updateTimer(prev, next SignalState) {
	r.timerMu.Lock()
	defer r.timerMu.Unlock()
	if prev == SignalRun && next != SignalRun {
		r.elapsed += time.Since(r.runningAt)
	} else if prev != SignalRun && next == SignalRun {
		r.runningAt = time.Now()
	}
}

// run is the main worker loop
func (r *Renderer) run(w *worker) {
	defer r.wg.Done()
	defer close(w.done)
	defer r.detach(w)

	rng := rand.New(rand.NewSource(r.config.Seed + int64(w.id)))
	for n := 0; ; n++ {
		if w.signal.Wait() == SignalExit {
			return
		}
		if n%haltCheckInterval == 0 && r.halted() {
			r.logger.Infof("Worker %d reached the sample target", w.id)
			return
		}

		switch r.source.Render(rng, r.cursor.Next()) {
		case UnitExhausted:
			return
		case UnitBlack:
			r.black.Add(1)
		}
		r.samples.Add(1)
	}
}

func (r *Renderer) halted() bool {
	return r.config.HaltSamplesPerPixel > 0 && r.progress != nil &&
		r.progress.SamplesPerPixel() >= r.config.HaltSamplesPerPixel
}

// detach removes a worker that stopped on its own from the pool
func (r *Renderer) detach(w *worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, other := range r.workers {
		if other == w {
			r.workers = append(r.workers[:i], r.workers[i+1:]...)
			return
		}
	}
}
