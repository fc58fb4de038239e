package renderer

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
)

// RenderStats contains statistics about the rendering process
type RenderStats struct {
	Threads         int           // Live workers
	Samples         uint64        // Sample units rendered by this pool
	BlackSamples    uint64        // Units that contributed nothing
	Elapsed         time.Duration // Time spent in the run state
	SamplesPerSec   float64       // Average rate over Elapsed
	SamplesPerPixel float64       // Film density including network samples
	Efficiency      float64       // Percentage of units that contributed
}

// Stats returns a snapshot of the pool statistics
func (r *Renderer) Stats() RenderStats {
	r.mu.Lock()
	threads := len(r.workers)
	state := r.state
	r.mu.Unlock()

	r.timerMu.Lock()
	elapsed := r.elapsed
	if state == SignalRun {
		elapsed += time.Since(r.runningAt)
	}
	r.timerMu.Unlock()

	s := RenderStats{
		Threads:      threads,
		Samples:      r.samples.Load(),
		BlackSamples: r.black.Load(),
		Elapsed:      elapsed,
		Efficiency:   100,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		s.SamplesPerSec = float64(s.Samples) / secs
	}
	if s.Samples > 0 {
		s.Efficiency = 100 - 100*float64(s.BlackSamples)/float64(s.Samples)
	}
	if r.progress != nil {
		s.SamplesPerPixel = r.progress.SamplesPerPixel()
	}
	return s
}

// String formats the statistics as a single progress line
func (s RenderStats) String() string {
	return fmt.Sprintf("%s - %d threads - %.2f S/p - %.0f S/s - %.0f%% efficiency",
		s.Elapsed.Truncate(time.Second), s.Threads, s.SamplesPerPixel, s.SamplesPerSec, s.Efficiency)
}

// Table renders the statistics as a two-column table
func (s RenderStats) Table() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Statistic", "Value"})
	table.Append([]string{"Render time", s.Elapsed.Truncate(time.Millisecond).String()})
	table.Append([]string{"Threads", fmt.Sprintf("%d", s.Threads)})
	table.Append([]string{"Samples", fmt.Sprintf("%d", s.Samples)})
	table.Append([]string{"Samples/pixel", fmt.Sprintf("%.2f", s.SamplesPerPixel)})
	table.Append([]string{"Samples/sec", fmt.Sprintf("%.0f", s.SamplesPerSec)})
	table.Append([]string{"Efficiency", fmt.Sprintf("%02.1f %%", s.Efficiency)})
	table.Render()
	return buf.String()
}

// PrintStats logs a progress line every interval until ctx is done
func (r *Renderer) PrintStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.logger.Notice(r.Stats().String())
		}
	}
}
