package process

import (
	"image"
	"image/color"
	"image/draw"
	"strconv"

	log "github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"booth/util"
)

var (
	colorCountdown   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	colorCountdownBG = color.RGBA{R: 0, G: 0, B: 0, A: 110}
)

// DrawCountdown burns the remaining countdown seconds into the middle of img.
func DrawCountdown(img *image.RGBA, remaining int) {
	b := img.Bounds()
	size := float64(b.Dy()) / 4
	if size < 12 {
		size = 12
	}
	face, err := util.NewFace(size)
	if err != nil {
		log.Errorf("Unable to load countdown font: %v", err)
		return
	}
	defer face.Close()

	text := strconv.Itoa(remaining)
	tw := util.MeasureString(face, text)
	m := face.Metrics()
	th := (m.Ascent + m.Descent).Ceil()

	pad := int(size / 4)
	box := image.Rect(0, 0, tw+2*pad, th+2*pad)
	box = box.Add(image.Point{
		X: b.Min.X + (b.Dx()-box.Dx())/2,
		Y: b.Min.Y + (b.Dy()-box.Dy())/2,
	})
	draw.Draw(img, box, image.NewUniform(colorCountdownBG), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(colorCountdown),
		Face: face,
		Dot:  fixed.P(box.Min.X+pad, box.Min.Y+pad+m.Ascent.Ceil()),
	}
	d.DrawString(text)
}
