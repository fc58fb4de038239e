package farm

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/df07/go-render-farm/pkg/film"
	"github.com/df07/go-render-farm/pkg/wire"
)

// StartFilmUpdater polls every slave each UpdateInterval and merges the
// received samples into f, until ctx is cancelled or StopFilmUpdater is
// called
func (rf *RenderFarm) StartFilmUpdater(ctx context.Context, f *film.Film) error {
	rf.updaterMu.Lock()
	defer rf.updaterMu.Unlock()
	if rf.updaterCancel != nil {
		return ErrUpdaterRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	rf.updaterCancel = cancel
	rf.updaterDone = done

	interval := rf.config.UpdateInterval
	if interval <= 0 {
		interval = DefaultConfig().UpdateInterval
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rf.UpdateFilm(ctx, f)
			}
		}
	}()
	return nil
}

// StopFilmUpdater stops the poller and waits for an update in progress
func (rf *RenderFarm) StopFilmUpdater() {
	rf.updaterMu.Lock()
	cancel, done := rf.updaterCancel, rf.updaterDone
	rf.updaterCancel, rf.updaterDone = nil, nil
	rf.updaterMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// UpdateFilm pulls the film of every slave once and merges it into f. A
// failing slave is logged and skipped; the total merged sample count is
// returned.
func (rf *RenderFarm) UpdateFilm(ctx context.Context, f *film.Film) float64 {
	rf.mu.Lock()
	slaves := append([]*slave(nil), rf.slaves...)
	rf.mu.Unlock()

	received := make([]float64, len(slaves))
	g := new(errgroup.Group)
	if rf.config.Parallel > 0 {
		g.SetLimit(rf.config.Parallel)
	}
	for i, s := range slaves {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			n, err := rf.updateSlave(s, f)
			if err != nil {
				rf.logger.Errorf("Error while getting film from %s: %v", s.address(), err)
				return nil
			}
			received[i] = n

			rf.mu.Lock()
			s.samples += n
			s.lastContact = time.Now()
			rf.mu.Unlock()
			return nil
		})
	}
	g.Wait()

	var total float64
	for _, n := range received {
		total += n
	}
	return total
}

func (rf *RenderFarm) updateSlave(s *slave, f *film.Film) (float64, error) {
	rf.logger.Infof("Getting samples from %s", s.address())
	conn, err := rf.dial(s.address())
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetKeepAlive(true)
	}
	if err := wire.WriteLine(conn, "luxGetFilm"); err != nil {
		return 0, err
	}
	if err := wire.WriteLine(conn, s.sid); err != nil {
		return 0, err
	}
	if rf.config.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(rf.config.ReadTimeout))
	}

	// the whole reply is read before the film is touched
	data, err := io.ReadAll(bufio.NewReader(conn))
	if err != nil {
		return 0, fmt.Errorf("reading film: %w", err)
	}
	return f.UpdateFilm(bytes.NewReader(data))
}
