package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/df07/go-render-farm/pkg/farm"
	"github.com/df07/go-render-farm/pkg/film"
	"github.com/df07/go-render-farm/pkg/log"
	"github.com/df07/go-render-farm/pkg/scene"
)

// ErrNoFilm is returned while no film has been attached
var ErrNoFilm = errors.New("web: no film")

// Farm is the part of the render farm shown by the status pages
type Farm interface {
	ServersStatus() []farm.ServerInfo
}

// Config controls the web server
type Config struct {
	Addr string
	// SceneDir is listed by /api/scenes next to the built-in scenes
	SceneDir string
	// EventInterval is the period of progress events
	EventInterval time.Duration
	// Gamma of the preview images
	Gamma float32
}

// DefaultConfig returns the web defaults
func DefaultConfig() Config {
	return Config{
		Addr:          ":8080",
		SceneDir:      "scenes",
		EventInterval: 2 * time.Second,
		Gamma:         2.2,
	}
}

// Server is the master's HTTP status surface
type Server struct {
	config Config
	farm   Farm
	logger log.Logger
	start  time.Time

	mu   sync.RWMutex
	film *film.Film

	console     chan ConsoleMessage
	subMu       sync.Mutex
	subscribers map[chan ConsoleMessage]struct{}
}

// NewServer creates a web server reporting on rf. rf may be nil for a
// render without slaves.
func NewServer(config Config, rf Farm) *Server {
	return &Server{
		config:      config,
		farm:        rf,
		logger:      log.New("web"),
		start:       time.Now(),
		console:     make(chan ConsoleMessage, 100),
		subscribers: map[chan ConsoleMessage]struct{}{},
	}
}

// SetFilm attaches the film shown by the preview and progress events
func (s *Server) SetFilm(f *film.Film) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.film = f
}

func (s *Server) currentFilm() *film.Film {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.film
}

// Logger returns a progress logger whose messages reach the event stream
func (s *Server) Logger(renderID string) *WebLogger {
	return NewWebLogger(renderID, s.console)
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/servers", s.handleServers)
	mux.HandleFunc("/api/scenes", s.handleScenes)
	mux.HandleFunc("/api/preview.png", s.handlePreview)
	mux.HandleFunc("/api/inspect", s.handleInspect)
	mux.HandleFunc("/api/events", s.handleEvents)
	return mux
}

// Start serves until ctx is done
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go s.fanOut(ctx)
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	s.logger.Noticef("Starting web server on http://%s", ln.Addr())
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// fanOut copies console messages to every event stream
func (s *Server) fanOut(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.console:
			s.subMu.Lock()
			for sub := range s.subscribers {
				select {
				case sub <- msg:
				default:
				}
			}
			s.subMu.Unlock()
		}
	}
}

func (s *Server) subscribe() chan ConsoleMessage {
	ch := make(chan ConsoleMessage, 100)
	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subMu.Unlock()
	return ch
}

func (s *Server) unsubscribe(ch chan ConsoleMessage) {
	s.subMu.Lock()
	delete(s.subscribers, ch)
	s.subMu.Unlock()
}

// handleHealth provides a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleServers lists the connected slaves
func (s *Server) handleServers(w http.ResponseWriter, r *http.Request) {
	servers := []farm.ServerInfo{}
	if s.farm != nil {
		servers = s.farm.ServersStatus()
	}
	writeJSON(w, http.StatusOK, servers)
}

// handleScenes lists the built-in scenes and the scene files
func (s *Server) handleScenes(w http.ResponseWriter, r *http.Request) {
	groups, err := scene.ListAllScenes(s.config.SceneDir)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// handlePreview returns the current composite as a PNG
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	f := s.currentFilm()
	if f == nil {
		http.Error(w, ErrNoFilm.Error(), http.StatusServiceUnavailable)
		return
	}
	data, err := encodePNG(f.Composite().ToRGBA(s.config.Gamma))
	if err != nil {
		s.logger.Errorf("Unable to encode preview: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(data)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// imageToBase64PNG converts an image to base64-encoded PNG
func imageToBase64PNG(img image.Image) (string, error) {
	data, err := encodePNG(img)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
