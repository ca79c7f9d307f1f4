package daemon

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/wf-filters/internal/config"
	"github.com/Faultbox/wf-filters/internal/gpu"
	"github.com/Faultbox/wf-filters/pkg/math"
)

// viewMargins returns the decoration of vc as left, top, right, bottom.
func viewMargins(vc config.ViewConfig) math.Vec4 {
	return math.Vec4{vc.Margins.Left, vc.Margins.Top, vc.Margins.Right, vc.Margins.Bottom}
}

// uploadViews paints and uploads one texture per view in a single device
// scope. On error the textures uploaded so far are returned with it.
func uploadViews(dev gpu.Device, log *zap.Logger, views []config.ViewConfig) ([]gpu.Texture, error) {
	images := make([][]byte, len(views))
	for i, vc := range views {
		img, err := viewImage(vc, viewMargins(vc))
		if err != nil {
			log.Warn("view content incomplete", zap.String("title", vc.Title), zap.Error(err))
		}
		images[i] = img.Pix
	}

	var (
		textures []gpu.Texture
		err      error
	)
	gpu.With(dev, gpu.Target{}, func() {
		for i, vc := range views {
			tex, uerr := dev.UploadRGBA(vc.Width, vc.Height, images[i])
			if uerr != nil {
				err = fmt.Errorf("view %q: %w", vc.Title, uerr)
				return
			}
			textures = append(textures, tex)
		}
	})
	return textures, err
}

// releaseTextures deletes textures in a single device scope.
func releaseTextures(dev gpu.Device, textures []gpu.Texture) {
	if len(textures) == 0 {
		return
	}
	gpu.With(dev, gpu.Target{}, func() {
		for _, t := range textures {
			dev.DeleteTexture(t)
		}
	})
}
