package process

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
	"testing"

	"booth/video/source"
)

func randomImage(w, h int, seed int64) *image.RGBA {
	r := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	r.Read(img.Pix)
	return img
}

func clone(img *image.RGBA) *image.RGBA {
	c := image.NewRGBA(img.Rect)
	copy(c.Pix, img.Pix)
	return c
}

func TestNoneIsIdentity(t *testing.T) {
	img := randomImage(17, 9, 1)
	want := clone(img)
	Apply(img, None)
	if !bytes.Equal(img.Pix, want.Pix) {
		t.Error("none filter changed pixel data")
	}
}

func TestGrayscaleIdempotent(t *testing.T) {
	once := randomImage(32, 24, 2)
	Apply(once, Grayscale)
	twice := clone(once)
	Apply(twice, Grayscale)
	if !bytes.Equal(once.Pix, twice.Pix) {
		t.Error("grayscale applied twice differs from once")
	}
}

func TestFilterPixels(t *testing.T) {
	tests := []struct {
		filter Filter
		in     color.RGBA
		want   color.RGBA
	}{
		{Grayscale, color.RGBA{10, 20, 31, 77}, color.RGBA{20, 20, 20, 77}},
		{Sepia, color.RGBA{10, 20, 30, 255}, color.RGBA{25, 22, 17, 255}},
		{Sepia, color.RGBA{255, 255, 255, 255}, color.RGBA{255, 255, 239, 255}},
		{Vintage, color.RGBA{200, 100, 50, 255}, color.RGBA{200, 95, 45, 255}},
		{Vintage, color.RGBA{0, 0, 0, 12}, color.RGBA{0, 0, 0, 12}},
	}
	for _, tt := range tests {
		img := image.NewRGBA(image.Rect(0, 0, 1, 1))
		img.SetRGBA(0, 0, tt.in)
		Apply(img, tt.filter)
		if got := img.RGBAAt(0, 0); got != tt.want {
			t.Errorf("%s(%v) = %v, want %v", tt.filter, tt.in, got, tt.want)
		}
	}
}

func TestParseFilter(t *testing.T) {
	for _, f := range Filters {
		got, err := ParseFilter(string(f))
		if err != nil || got != f {
			t.Errorf("ParseFilter(%q) = %v, %v", f, got, err)
		}
	}
	if got, _ := ParseFilter(""); got != None {
		t.Errorf("ParseFilter(\"\") = %v, want none", got)
	}
	if _, err := ParseFilter("posterize"); err == nil {
		t.Error("ParseFilter(posterize) should fail")
	}
}

func TestRenderMirror(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	left := color.RGBA{255, 0, 0, 255}
	right := color.RGBA{0, 0, 255, 255}
	for y := 0; y < 2; y++ {
		src.SetRGBA(0, y, left)
		src.SetRGBA(2, y, right)
	}

	tests := []struct {
		name     string
		settings Settings
		flipped  bool
	}{
		{"mirrored user", Settings{Mirrored: true, FacingMode: source.FacingUser}, true},
		{"mirrored environment", Settings{Mirrored: true, FacingMode: source.FacingEnvironment}, false},
		{"unmirrored user", Settings{Mirrored: false, FacingMode: source.FacingUser}, false},
	}
	for _, tt := range tests {
		dst := RenderNew(src, tt.settings)
		wantLeft := left
		if tt.flipped {
			wantLeft = right
		}
		for y := 0; y < 2; y++ {
			if got := dst.RGBAAt(0, y); got != wantLeft {
				t.Errorf("%s: pixel (0,%d) = %v, want %v", tt.name, y, got, wantLeft)
			}
		}
	}
}

func TestRenderAppliesFilterAfterFlip(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	src.SetRGBA(0, 0, color.RGBA{30, 60, 90, 255})
	src.SetRGBA(1, 0, color.RGBA{0, 0, 0, 255})
	dst := RenderNew(src, Settings{Mirrored: true, FacingMode: source.FacingUser, Filter: Grayscale})
	if got, want := dst.RGBAAt(1, 0), (color.RGBA{60, 60, 60, 255}); got != want {
		t.Errorf("pixel (1,0) = %v, want %v", got, want)
	}
	if !bytes.Equal(src.Pix[:4], []byte{30, 60, 90, 255}) {
		t.Error("Render must not modify its source")
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		w, h, max int
		want      image.Point
	}{
		{1920, 1080, 1280, image.Point{1280, 720}},
		{1080, 1440, 720, image.Point{540, 720}},
		{640, 480, 1280, image.Point{640, 480}},
		{640, 480, 0, image.Point{640, 480}},
	}
	for _, tt := range tests {
		got := Fit(image.NewRGBA(image.Rect(0, 0, tt.w, tt.h)), tt.max).Bounds().Size()
		if got != tt.want {
			t.Errorf("Fit(%dx%d, %d) = %v, want %v", tt.w, tt.h, tt.max, got, tt.want)
		}
	}
}

func TestEncodeAndReencode(t *testing.T) {
	img := randomImage(400, 300, 3)
	data, err := EncodeStill(img, StillOptions{MaxEdge: 200, Quality: 70})
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 200 || cfg.Height != 150 {
		t.Errorf("encoded size %dx%d, want 200x150", cfg.Width, cfg.Height)
	}

	smaller, err := Reencode(data, StillOptions{MaxEdge: 100, Quality: 30})
	if err != nil {
		t.Fatal(err)
	}
	if len(smaller) >= len(data) {
		t.Errorf("reencoded %d bytes, original %d", len(smaller), len(data))
	}
	if _, err := Reencode([]byte("not a jpeg"), DefaultStill); err == nil {
		t.Error("Reencode of garbage should fail")
	}
}

func TestDrawCountdown(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 160, 120))
	before := clone(img)
	DrawCountdown(img, 3)
	if bytes.Equal(img.Pix, before.Pix) {
		t.Error("countdown overlay drew nothing")
	}
	if got := img.RGBAAt(0, 0); got != (color.RGBA{}) {
		t.Errorf("corner pixel touched: %v", got)
	}
}
