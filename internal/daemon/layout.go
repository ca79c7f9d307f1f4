package daemon

import (
	"image"
	"image/color"

	"github.com/Faultbox/wf-filters/internal/compositor"
	"github.com/Faultbox/wf-filters/internal/config"
	"github.com/Faultbox/wf-filters/internal/engine/texture"
	"github.com/Faultbox/wf-filters/pkg/math"
)

// outputLayout places outputs left to right, both in the global layout and
// in the window.
type outputLayout struct {
	// logical holds each output's layout box.
	logical []math.Box
	// sizes holds each output's framebuffer size.
	sizes []math.Box
	// offsets holds each output's left edge in window pixels.
	offsets []int32
	width   int32
	height  int32
}

func layoutOutputs(outputs []config.OutputConfig) outputLayout {
	var l outputLayout
	var logicalX int32
	for _, oc := range outputs {
		scale := oc.Scale
		if scale == 0 {
			scale = 1
		}
		box := math.Box{X: logicalX, Width: oc.Width, Height: oc.Height}
		size := math.Box{Width: oc.Width, Height: oc.Height}.ScaleBy(scale)

		l.logical = append(l.logical, box)
		l.sizes = append(l.sizes, size)
		l.offsets = append(l.offsets, l.width)
		l.width += size.Width
		if size.Height > l.height {
			l.height = size.Height
		}
		logicalX += oc.Width
	}
	return l
}

// viewBox returns the layout box of a configured view. View coordinates are
// relative to the output's top-left corner.
func viewBox(vc config.ViewConfig, l outputLayout, outputs []config.OutputConfig) math.Box {
	box := math.Box{X: vc.X, Y: vc.Y, Width: vc.Width, Height: vc.Height}
	for i, oc := range outputs {
		if vc.Output == "" || oc.Name == vc.Output {
			return box.Translate(l.logical[i].X, l.logical[i].Y)
		}
	}
	return box
}

// viewImage renders a configured view's buffer: the decoration margins in a
// darker shade with the title in the top band, and the content area filled
// with the view's image or color.
func viewImage(vc config.ViewConfig, margins math.Vec4) (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, int(vc.Width), int(vc.Height)))
	texture.Fill(img, img.Rect, rgba(vc.Color, 0.6))

	content := image.Rect(
		int(margins[0]), int(margins[1]),
		int(vc.Width)-int(margins[2]), int(vc.Height)-int(margins[3]),
	).Intersect(img.Rect)
	texture.Fill(img, content, rgba(vc.Color, 1))

	var err error
	if vc.Image != "" {
		var src image.Image
		if src, err = texture.Load(vc.Image); err == nil {
			texture.Fit(img, content, src)
		}
	}

	titleBar := image.Rect(int(margins[0]), 0, int(vc.Width)-int(margins[2]), int(margins[1]))
	if lerr := texture.DrawLabel(img, titleBar, vc.Title, color.White); lerr != nil && err == nil {
		err = lerr
	}
	return img, err
}

// rgba converts a color to premultiplied 8-bit RGBA, darkening it by shade.
func rgba(c [4]float32, shade float32) color.RGBA {
	a := clamp01(c[3])
	channel := func(v float32) uint8 {
		return uint8(clamp01(v*shade)*a*255 + 0.5)
	}
	return color.RGBA{R: channel(c[0]), G: channel(c[1]), B: channel(c[2]), A: uint8(a*255 + 0.5)}
}

func clamp01(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// drag moves a view with the pointer.
type drag struct {
	view   *compositor.View
	offset math.Vec2
}

func startDrag(v *compositor.View, at math.Vec2) *drag {
	g := v.Geometry()
	return &drag{
		view:   v,
		offset: at.Sub(math.Vec2{X: float32(g.X), Y: float32(g.Y)}),
	}
}

func (d *drag) update(at math.Vec2) {
	if !d.view.Mapped() {
		return
	}
	p := at.Sub(d.offset)
	d.view.Move(int32(p.X), int32(p.Y))
}
