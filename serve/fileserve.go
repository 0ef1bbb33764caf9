package serve

import (
	"fmt"
	"image"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"booth/collage"
)

// PatternServer serves the configured background pattern images by name.
type PatternServer struct {
	// Lookup resolves a pattern name to its image file.
	Lookup func(name string) (string, bool)
	// Names lists the configured patterns.
	Names func() []string
}

func (s *PatternServer) path(name string) (string, error) {
	if s.Lookup == nil {
		return "", fmt.Errorf("no pattern named %q", name)
	}
	p, ok := s.Lookup(name)
	if !ok {
		return "", fmt.Errorf("no pattern named %q", name)
	}
	return p, nil
}

// List returns the pattern names in sorted order.
func (s *PatternServer) List() []string {
	if s.Names == nil {
		return nil
	}
	names := s.Names()
	sort.Strings(names)
	return names
}

// Load decodes the named pattern.
func (s *PatternServer) Load(name string) (image.Image, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return collage.DecodeImage(data)
}

func (s *PatternServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p, err := s.path(r.Form.Get("name"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	f, err := os.Open(p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	defer f.Close()

	ct := mime.TypeByExtension(filepath.Ext(p))
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Add("Content-Type", ct)
	io.Copy(w, f)
}

// OptionsServer lists the background presets offered on the result page.
type OptionsServer struct {
	Colors       func() []string
	Patterns     *PatternServer
	CaptionColor func() string
	Background   func() string
}

type OptionsResponse struct {
	Colors       []string
	Patterns     []string
	Background   string
	CaptionColor string
	MaxCaption   int
}

func (s *OptionsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := &OptionsResponse{
		Colors:     []string{},
		Patterns:   []string{},
		MaxCaption: collage.MaxCaption,
	}
	if s.Colors != nil {
		resp.Colors = s.Colors()
	}
	if s.Patterns != nil {
		if names := s.Patterns.List(); names != nil {
			resp.Patterns = names
		}
	}
	if s.Background != nil {
		resp.Background = s.Background()
	}
	if s.CaptionColor != nil {
		resp.CaptionColor = s.CaptionColor()
	}
	writeJSON(w, resp)
}
