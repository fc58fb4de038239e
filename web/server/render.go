package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/df07/go-render-farm/pkg/farm"
)

// SSEEvent represents one Server-Sent Event
type SSEEvent struct {
	Type string `json:"type"` // "console", "progress", "error"
	Data string `json:"data"` // JSON-encoded data
}

// Stats represents film statistics
type Stats struct {
	Accepted        uint64  `json:"accepted"`
	Rejected        uint64  `json:"rejected"`
	Outliers        uint64  `json:"outliers"`
	NumberOfSamples float64 `json:"numberOfSamples"`
	SamplesPerPixel float64 `json:"samplesPerPixel"`
}

// ProgressUpdate represents a single progressive update sent via SSE
type ProgressUpdate struct {
	ElapsedMs int64             `json:"elapsedMs"`
	Stats     Stats             `json:"stats"`
	Servers   []farm.ServerInfo `json:"servers"`
	ImageData string            `json:"imageData,omitempty"` // Base64 encoded PNG
}

// handleEvents streams progress updates every EventInterval and console
// messages as they arrive until the client goes away. ?image=1 embeds the
// preview in every progress event.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	s.setSSEHeaders(w)
	withImage := r.URL.Query().Get("image") == "1"

	ctx := r.Context()
	console := s.subscribe()
	defer s.unsubscribe(console)

	interval := s.config.EventInterval
	if interval <= 0 {
		interval = DefaultConfig().EventInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	send := func(event SSEEvent) bool {
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, event.Data); err != nil {
			// Client disconnected during write
			return false
		}
		flusher.Flush()
		return true
	}

	if !send(s.progressEvent(withImage)) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !send(s.progressEvent(withImage)) {
				return
			}
		case msg := <-console:
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Errorf("Error marshaling console message: %v", err)
				continue
			}
			if !send(SSEEvent{Type: "console", Data: string(data)}) {
				return
			}
		}
	}
}

// setSSEHeaders sets the required headers for Server-Sent Events
func (s *Server) setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

func (s *Server) progressEvent(withImage bool) SSEEvent {
	update := ProgressUpdate{
		ElapsedMs: time.Since(s.start).Milliseconds(),
		Servers:   []farm.ServerInfo{},
	}
	if s.farm != nil {
		update.Servers = s.farm.ServersStatus()
	}
	if f := s.currentFilm(); f != nil {
		st := f.Stats()
		update.Stats = Stats{
			Accepted:        st.Accepted,
			Rejected:        st.Rejected,
			Outliers:        st.Outliers,
			NumberOfSamples: st.NumberOfSamples,
			SamplesPerPixel: st.SamplesPerPixel,
		}
		if withImage {
			img, err := imageToBase64PNG(f.Composite().ToRGBA(s.config.Gamma))
			if err != nil {
				return errorEvent(fmt.Sprintf("failed to encode image: %v", err))
			}
			update.ImageData = img
		}
	}

	data, err := json.Marshal(update)
	if err != nil {
		return errorEvent(err.Error())
	}
	return SSEEvent{Type: "progress", Data: string(data)}
}

func errorEvent(message string) SSEEvent {
	data, _ := json.Marshal(map[string]string{"error": message})
	return SSEEvent{Type: "error", Data: string(data)}
}
