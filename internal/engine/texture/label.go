package texture

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var (
	regularOnce sync.Once
	regular     *opentype.Font
	regularErr  error
)

func regularFont() (*opentype.Font, error) {
	regularOnce.Do(func() {
		regular, regularErr = opentype.Parse(goregular.TTF)
	})
	return regular, regularErr
}

// DrawLabel writes text in the Go Regular face, left aligned in r and
// vertically centered. The size is derived from the box height.
func DrawLabel(dst draw.Image, r image.Rectangle, text string, col color.Color) error {
	if text == "" || r.Dy() < 6 {
		return nil
	}
	f, err := regularFont()
	if err != nil {
		return fmt.Errorf("parsing label font: %w", err)
	}
	size := float64(r.Dy()) * 0.6
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return err
	}
	defer face.Close()

	m := face.Metrics()
	textHeight := (m.Ascent + m.Descent).Ceil()
	baseline := r.Min.Y + (r.Dy()-textHeight)/2 + m.Ascent.Ceil()

	clip, ok := dst.(subImager)
	target := dst
	if ok {
		if sub, ok := clip.SubImage(r).(draw.Image); ok {
			target = sub
		}
	}
	d := &font.Drawer{
		Dst:  target,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(r.Min.X+r.Dy()/4, baseline),
	}
	d.DrawString(text)
	return nil
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}
