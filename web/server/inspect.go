package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/chewxy/math32"
)

// InspectResponse represents the JSON response for pixel inspection
type InspectResponse struct {
	X     int        `json:"x"`
	Y     int        `json:"y"`
	XYZ   [3]float32 `json:"xyz"`
	RGB   [3]float32 `json:"rgb"`
	Alpha float32    `json:"alpha"`
	Color string     `json:"color"`
}

// handleInspect reports the composited value of one film pixel
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	f := s.currentFilm()
	if f == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": ErrNoFilm.Error()})
		return
	}
	width, height := f.Size()

	x, err := parseIntParam(r, "x", width)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	y, err := parseIntParam(r, "y", height)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	xyz, alpha := f.GetData(x, y)
	red, green, blue := xyz.ToRGB()
	writeJSON(w, http.StatusOK, InspectResponse{
		X:     x,
		Y:     y,
		XYZ:   [3]float32{xyz.X, xyz.Y, xyz.Z},
		RGB:   [3]float32{red, green, blue},
		Alpha: alpha,
		Color: fmt.Sprintf("#%02x%02x%02x", toHex(red), toHex(green), toHex(blue)),
	})
}

// parseIntParam parses a required coordinate in [0, limit)
func parseIntParam(r *http.Request, key string, limit int) (int, error) {
	value := r.URL.Query().Get(key)
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, value)
	}
	if parsed < 0 || parsed >= limit {
		return 0, fmt.Errorf("%s must be between 0 and %d, got: %d", key, limit-1, parsed)
	}
	return parsed, nil
}

func toHex(v float32) int {
	return int(255 * math32.Min(math32.Max(v, 0), 1))
}
