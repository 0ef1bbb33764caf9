// Package collage renders a finished photo set into a single image strip:
// photos stacked in one column with rounded corners over a color or tiled
// pattern, and an optional caption panel below the last photo.
package collage

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"unicode/utf8"

	"golang.org/x/image/font"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/fixed"

	"booth/util"
)

// MaxCaption is the longest caption accepted, in characters.
const MaxCaption = 20

var (
	// ErrCaptionTooLong is an input validation error; Render assumes
	// captions have already been validated.
	ErrCaptionTooLong = fmt.Errorf("caption longer than %d characters", MaxCaption)
	// ErrNoPhotos is returned when rendering an empty set.
	ErrNoPhotos = errors.New("no photos to render")
)

// ValidateCaption rejects captions over MaxCaption characters.
func ValidateCaption(s string) error {
	if utf8.RuneCountInString(s) > MaxCaption {
		return ErrCaptionTooLong
	}
	return nil
}

// Spec describes one render job.
type Spec struct {
	Photos       []image.Image
	Background   Background
	Caption      string
	CaptionColor color.Color
}

// Layout holds the fixed geometry of the strip.
type Layout struct {
	PhotoWidth  int
	PhotoHeight int
	Padding     int
	Gap         int
	Radius      float32

	// CaptionWidth is the share of PhotoWidth available to caption text.
	CaptionWidth  float64
	FontSize      float64
	LineHeight    int
	CaptionPadX   int
	CaptionPadY   int
	CaptionRadius float32
}

var DefaultLayout = Layout{
	PhotoWidth:    250,
	PhotoHeight:   250,
	Padding:       20,
	Gap:           20,
	Radius:        10,
	CaptionWidth:  0.92,
	FontSize:      20,
	LineHeight:    26,
	CaptionPadX:   10,
	CaptionPadY:   10,
	CaptionRadius: 10,
}

// Caption panel tints: light over flat colors, dark over busy patterns.
var (
	panelOverColor   = color.NRGBA{R: 255, G: 255, B: 255, A: 204}
	panelOverPattern = color.NRGBA{R: 0, G: 0, B: 0, A: 115}
)

// MaxTextWidth is the widest a caption line may be.
func (l Layout) MaxTextWidth() int {
	return int(float64(l.PhotoWidth) * l.CaptionWidth)
}

// PanelHeight is the caption panel height for the given number of lines.
func (l Layout) PanelHeight(lines int) int {
	if lines == 0 {
		return 0
	}
	return lines*l.LineHeight + 2*l.CaptionPadY
}

// photosBottom is the y coordinate just below the last of n photos.
func (l Layout) photosBottom(n int) int {
	return l.Padding + n*l.PhotoHeight + (n-1)*l.Gap
}

// CanvasSize returns the strip size for n photos and a caption of the given
// number of wrapped lines.
func (l Layout) CanvasSize(n, lines int) image.Point {
	h := n*l.PhotoHeight + (n-1)*l.Gap + 2*l.Padding
	if lines > 0 {
		h += l.Gap + l.PanelHeight(lines)
	}
	return image.Point{X: l.PhotoWidth + 2*l.Padding, Y: h}
}

// PhotoRect is the cell of the i-th photo.
func (l Layout) PhotoRect(i int) image.Rectangle {
	y := l.Padding + i*(l.PhotoHeight+l.Gap)
	return image.Rect(l.Padding, y, l.Padding+l.PhotoWidth, y+l.PhotoHeight)
}

// Render draws the strip. Only the photos present get a cell.
func Render(spec Spec, l Layout) (*image.RGBA, error) {
	n := len(spec.Photos)
	if n == 0 {
		return nil, ErrNoPhotos
	}
	if err := spec.Background.validate(); err != nil {
		return nil, err
	}

	var face font.Face
	var lines []string
	if spec.Caption != "" {
		var err error
		face, err = util.NewFace(l.FontSize)
		if err != nil {
			return nil, err
		}
		defer face.Close()
		lines = Wrap(face, spec.Caption, l.MaxTextWidth())
	}

	size := l.CanvasSize(n, len(lines))
	canvas := image.NewRGBA(image.Rectangle{Max: size})
	spec.Background.paint(canvas)

	for i, photo := range spec.Photos {
		r := l.PhotoRect(i)
		fillRounded(canvas, r, l.Radius, cover(photo, r.Dx(), r.Dy()))
	}

	if len(lines) > 0 {
		drawCaption(canvas, face, lines, spec, l, n)
	}
	return canvas, nil
}

// cover scales img to fill w x h, keeping its aspect ratio and cropping the
// overflow evenly from both sides.
func cover(img image.Image, w, h int) *image.RGBA {
	sr := img.Bounds()
	sw, sh := sr.Dx(), sr.Dy()
	var crop image.Rectangle
	if sw*h > w*sh {
		cw := max(1, sh*w/h)
		x := sr.Min.X + (sw-cw)/2
		crop = image.Rect(x, sr.Min.Y, x+cw, sr.Max.Y)
	} else {
		ch := max(1, sw*h/w)
		y := sr.Min.Y + (sh-ch)/2
		crop = image.Rect(sr.Min.X, y, sr.Max.X, y+ch)
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, crop, xdraw.Src, nil)
	return dst
}

func drawCaption(canvas *image.RGBA, face font.Face, lines []string, spec Spec, l Layout, n int) {
	widest := 0
	widths := make([]int, len(lines))
	for i, line := range lines {
		widths[i] = util.MeasureString(face, line)
		widest = max(widest, widths[i])
	}

	pw := widest + 2*l.CaptionPadX
	ph := l.PanelHeight(len(lines))
	x := l.Padding + (l.PhotoWidth-pw)/2
	y := l.photosBottom(n) + l.Gap
	panel := image.Rect(x, y, x+pw, y+ph)

	tint := panelOverColor
	if spec.Background.IsPattern() {
		tint = panelOverPattern
	}
	fillRounded(canvas, panel, l.CaptionRadius, image.NewUniform(tint))

	textColor := spec.CaptionColor
	if textColor == nil {
		textColor = color.Black
	}
	m := face.Metrics()
	lead := (l.LineHeight - (m.Ascent + m.Descent).Ceil()) / 2
	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(textColor),
		Face: face,
	}
	for i, line := range lines {
		baseline := panel.Min.Y + l.CaptionPadY + i*l.LineHeight + lead + m.Ascent.Ceil()
		d.Dot = fixed.P(panel.Min.X+(pw-widths[i])/2, baseline)
		d.DrawString(line)
	}
}

// Format is an export encoding.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
)

// Filename is the download name for a format.
func (f Format) Filename() string {
	if f == JPEG {
		return "photo-grid.jpg"
	}
	return "photo-grid.png"
}

func (f Format) ContentType() string {
	if f == JPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// Export encodes the rendered strip.
func Export(img image.Image, f Format) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch f {
	case JPEG:
		// JPEG has no alpha; flatten onto white first.
		flat := image.NewRGBA(img.Bounds())
		draw.Draw(flat, flat.Bounds(), image.White, image.Point{}, draw.Src)
		draw.Draw(flat, flat.Bounds(), img, img.Bounds().Min, draw.Over)
		err = jpeg.Encode(&buf, flat, &jpeg.Options{Quality: 92})
	case PNG, "":
		err = png.Encode(&buf, img)
	default:
		return nil, fmt.Errorf("unknown export format %q", f)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
