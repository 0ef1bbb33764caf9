package serve

import (
	"errors"
	"fmt"
	"image/color"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"booth/collage"
	"booth/metrics"
)

// errRequest marks a malformed collage request.
var errRequest = errors.New("bad collage request")

// CollageServer renders the stored photo set into a downloadable strip.
//
// POST /collage with form fields:
//
//	color         background color (#rrggbb, #rgb or rgb(r,g,b))
//	pattern       background pattern name, instead of color
//	caption       up to collage.MaxCaption characters
//	caption_color caption text color
//	format        png (default) or jpeg
type CollageServer struct {
	Store    PhotoReader
	Patterns *PatternServer
	Layout   collage.Layout

	// Defaults for fields left empty in the request.
	Background   func() string
	CaptionColor func() string
}

type collageRequest struct {
	background   collage.Background
	caption      string
	captionColor color.Color
	format       collage.Format
}

func (s *CollageServer) parse(r *http.Request) (*collageRequest, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("%w: %v", errRequest, err)
	}
	req := &collageRequest{
		caption: r.Form.Get("caption"),
		format:  collage.Format(r.Form.Get("format")),
	}
	if err := collage.ValidateCaption(req.caption); err != nil {
		return nil, err
	}
	switch req.format {
	case "":
		req.format = collage.PNG
	case collage.PNG, collage.JPEG:
	default:
		return nil, fmt.Errorf("%w: unknown format %q", errRequest, req.format)
	}

	colorName, pattern := r.Form.Get("color"), r.Form.Get("pattern")
	switch {
	case colorName != "" && pattern != "":
		return nil, fmt.Errorf("%w: %v", errRequest, collage.ErrBackground)
	case pattern != "":
		if s.Patterns == nil {
			return nil, fmt.Errorf("%w: no patterns configured", errRequest)
		}
		img, err := s.Patterns.Load(pattern)
		if err != nil {
			if errors.Is(err, collage.ErrDecode) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", errRequest, err)
		}
		req.background = collage.PatternBackground(img)
	default:
		if colorName == "" && s.Background != nil {
			colorName = s.Background()
		}
		c, err := collage.ParseColor(colorName)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errRequest, err)
		}
		req.background = collage.ColorBackground(c)
	}

	captionColor := r.Form.Get("caption_color")
	if captionColor == "" && s.CaptionColor != nil {
		captionColor = s.CaptionColor()
	}
	if captionColor != "" {
		c, err := collage.ParseColor(captionColor)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errRequest, err)
		}
		req.captionColor = c
	}
	return req, nil
}

func collageStatus(err error) int {
	switch {
	case errors.Is(err, collage.ErrCaptionTooLong), errors.Is(err, errRequest):
		return http.StatusBadRequest
	case errors.Is(err, collage.ErrDecode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, collage.ErrNoPhotos):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *CollageServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	data, format, err := s.render(r)
	if err != nil {
		metrics.Collages.WithLabelValues("failed").Inc()
		fail(w, r, err, collageStatus(err))
		return
	}
	metrics.Collages.WithLabelValues(string(format)).Inc()

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename()))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (s *CollageServer) render(r *http.Request) ([]byte, collage.Format, error) {
	req, err := s.parse(r)
	if err != nil {
		return nil, "", err
	}

	rec, err := s.Store.Read(r.Context())
	if err != nil {
		return nil, "", err
	}
	encoded, err := rec.Images()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", collage.ErrDecode, err)
	}
	if len(encoded) == 0 {
		return nil, "", collage.ErrNoPhotos
	}

	start := time.Now()
	// Every photo is decoded before anything is drawn.
	photos, err := collage.DecodePhotos(r.Context(), encoded)
	if err != nil {
		return nil, "", err
	}
	layout := s.Layout
	if layout.PhotoWidth == 0 {
		layout = collage.DefaultLayout
	}
	img, err := collage.Render(collage.Spec{
		Photos:       photos,
		Background:   req.background,
		Caption:      req.caption,
		CaptionColor: req.captionColor,
	}, layout)
	if err != nil {
		return nil, "", err
	}
	data, err := collage.Export(img, req.format)
	if err != nil {
		return nil, "", err
	}
	elapsed := time.Since(start)
	metrics.CollageRenderSeconds.Observe(elapsed.Seconds())
	log.WithField("addr", r.RemoteAddr).Infof("Rendered %d photo collage (%s, %d bytes) in %v", len(photos), req.format, len(data), elapsed)
	return data, req.format, nil
}
