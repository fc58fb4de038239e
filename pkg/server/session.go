package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/df07/go-render-farm/pkg/film"
	"github.com/df07/go-render-farm/pkg/renderer"
	"github.com/df07/go-render-farm/pkg/scene"
)

// session is the state of one master's render job
type session struct {
	id string

	// sceneMu serializes access to scene
	sceneMu   sync.Mutex
	scene     *scene.Context
	renderer  *renderer.Renderer
	stopStats context.CancelFunc
	files     []string
}

// State returns READY or BUSY
func (s *RenderServer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return Ready
	}
	return Busy
}

// SessionID returns the active session ID, or "" when READY
func (s *RenderServer) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ""
	}
	return s.session.id
}

// beginSession moves READY to BUSY with a fresh session
func (s *RenderServer) beginSession() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return "", ErrBusy
	}
	s.session = &session{id: uuid.NewString(), scene: scene.NewContext()}
	s.capture.Reset()
	return s.session.id, nil
}

// current returns the active session
func (s *RenderServer) current() (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, ErrNoSession
	}
	return s.session, nil
}

// validateAccess reads the session ID line and checks it against the
// active session
func (s *RenderServer) validateAccess(q *request) (*session, error) {
	sid, err := q.line()
	if err != nil {
		return nil, fmt.Errorf("reading session ID: %w", err)
	}
	sess, err := s.current()
	if err != nil {
		return nil, err
	}
	if sid != sess.id {
		return nil, fmt.Errorf("%w: got %s", ErrAccessDenied, sid)
	}
	return sess, nil
}

// endSession stops rendering, removes cached files and returns to READY
func (s *RenderServer) endSession() {
	s.mu.Lock()
	sess := s.session
	s.session = nil
	var r *renderer.Renderer
	var stopStats context.CancelFunc
	if sess != nil {
		r, stopStats = sess.renderer, sess.stopStats
	}
	s.mu.Unlock()

	if sess == nil {
		return
	}
	s.logger.Infof("Ending session %s", sess.id)
	if stopStats != nil {
		stopStats()
	}
	if r != nil {
		r.Exit()
	}
	for _, f := range sess.files {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			s.logger.Warningf("Unable to remove %s: %v", f, err)
		}
	}
	if s.config.WriteFlmFile {
		os.Remove(s.resumeFilmPath())
	}
	s.capture.Reset()
}

func (s *RenderServer) resumeFilmPath() string {
	return filepath.Join(s.config.CacheDir, "server_resume_"+s.port+".flm")
}

// film returns the session's film once the scene is rendering
func (sess *session) film() *film.Film {
	sess.sceneMu.Lock()
	defer sess.sceneMu.Unlock()
	return sess.scene.RenderFilm()
}

// startRendering starts the render workers once the scene is complete
func (s *RenderServer) startRendering(sess *session) {
	f := sess.scene.RenderFilm()
	r := renderer.NewRenderer(sess.scene.Integrator(), f, renderer.Config{
		HaltSamplesPerPixel: sess.scene.HaltSamplesPerPixel(),
		// slaves must not share sample sequences
		Seed: time.Now().UnixNano(),
	})
	r.Start(s.config.Threads)

	ctx, cancel := context.WithCancel(context.Background())
	if s.config.StatsInterval > 0 {
		go r.PrintStats(ctx, s.config.StatsInterval)
	}

	s.mu.Lock()
	if s.session != sess {
		// ended while starting
		s.mu.Unlock()
		cancel()
		r.Exit()
		return
	}
	sess.renderer = r
	sess.stopStats = cancel
	s.mu.Unlock()
	s.logger.Noticef("Rendering with %d threads", r.NumThreads())
}
