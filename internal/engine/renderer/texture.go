package renderer

import (
	"errors"
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Faultbox/wf-filters/internal/gpu"
)

// ErrOutOfScope is returned by calls made outside a Begin/End scope.
var ErrOutOfScope = errors.New("GPU call outside render scope")

// UploadRGBA implements gpu.Device.
func (r *Renderer) UploadRGBA(width, height int32, pixels []byte) (gpu.Texture, error) {
	if !r.inScope("UploadRGBA") {
		return gpu.Texture{}, ErrOutOfScope
	}
	if width <= 0 || height <= 0 {
		return gpu.Texture{}, fmt.Errorf("texture size %dx%d is empty", width, height)
	}
	if len(pixels) != int(width*height*4) {
		return gpu.Texture{}, fmt.Errorf("pixel data size mismatch: expected %d, got %d", width*height*4, len(pixels))
	}

	// GL samples row 0 at v = 0, the bottom of the quad
	flipped := make([]byte, len(pixels))
	row := int(width * 4)
	for y := 0; y < int(height); y++ {
		src := (int(height) - 1 - y) * row
		copy(flipped[y*row:(y+1)*row], pixels[src:src+row])
	}

	var id uint32
	gl.GenTextures(1, &id)
	gl.BindTexture(gl.TEXTURE_2D, id)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, width, height, 0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(flipped))
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	return gpu.Texture{ID: id, Width: width, Height: height}, nil
}

// DeleteTexture implements gpu.Device.
func (r *Renderer) DeleteTexture(t gpu.Texture) {
	if !r.inScope("DeleteTexture") {
		return
	}
	if t.ID != 0 {
		gl.DeleteTextures(1, &t.ID)
	}
}

// Present copies src into the window's default framebuffer at x, y
// (top-left origin). windowHeight is the default framebuffer height.
func (r *Renderer) Present(src gpu.Target, x, y, windowHeight int32) {
	if !r.inScope("Present") {
		return
	}
	dstY := windowHeight - y - src.Height
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, src.FBO)
	gl.BindFramebuffer(gl.DRAW_FRAMEBUFFER, 0)
	gl.BlitFramebuffer(
		0, 0, src.Width, src.Height,
		x, dstY, x+src.Width, dstY+src.Height,
		gl.COLOR_BUFFER_BIT, gl.NEAREST,
	)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
}
