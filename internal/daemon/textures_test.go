package daemon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Faultbox/wf-filters/internal/config"
	"github.com/Faultbox/wf-filters/internal/gpu/gputest"
)

func TestUploadViewsStaysInScope(t *testing.T) {
	dev := gputest.New()
	views := []config.ViewConfig{
		{Title: "term", Width: 40, Height: 30, Color: [4]float32{1, 0, 0, 1}},
		{Title: "editor", Width: 20, Height: 10, Color: [4]float32{0, 0, 1, 1}},
	}

	textures, err := uploadViews(dev, zap.NewNop(), views)
	require.NoError(t, err)
	require.Len(t, textures, 2)
	assert.Equal(t, int32(40), textures[0].Width)
	assert.Equal(t, int32(10), textures[1].Height)
	assert.Len(t, dev.Textures, 2)

	releaseTextures(dev, textures)
	assert.Empty(t, dev.Textures)
	assert.Empty(t, dev.Violations)
}

func TestUploadViewsReturnsPartialOnError(t *testing.T) {
	dev := gputest.New()
	views := []config.ViewConfig{
		{Title: "term", Width: 8, Height: 8},
		{Title: "empty"},
	}

	textures, err := uploadViews(dev, zap.NewNop(), views)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `view "empty"`)
	require.Len(t, textures, 1)

	releaseTextures(dev, textures)
	assert.Empty(t, dev.Textures)
	assert.Empty(t, dev.Violations)
}

