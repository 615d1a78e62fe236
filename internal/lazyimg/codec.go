package lazyimg

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/TAAK61/qr-code-reader-sub001/internal/pixbuf"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// SupportedExtensions lists the file extensions the default codec decodes.
var SupportedExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// IsSupported reports whether path has a supported image extension.
func IsSupported(path string) bool {
	return slices.Contains(SupportedExtensions, strings.ToLower(filepath.Ext(path)))
}

// Codec turns an encoded stream into metadata or pixels.
type Codec interface {
	// DecodeConfig reads only the format header.
	DecodeConfig(r io.Reader) (pixbuf.Info, error)
	// Decode materializes the full pixel buffer.
	Decode(r io.Reader) (*pixbuf.PixelBuffer, error)
}

// ImagingCodec decodes every format registered with the image package.
// AutoOrient applies EXIF orientation on decode, which can swap the
// dimensions reported by DecodeConfig.
type ImagingCodec struct {
	AutoOrient bool
}

// DecodeConfig implements Codec.
func (c ImagingCodec) DecodeConfig(r io.Reader) (pixbuf.Info, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return pixbuf.Info{}, fmt.Errorf("decode header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return pixbuf.Info{}, fmt.Errorf("%w: header reports %dx%d", pixbuf.ErrInvalidDimensions, cfg.Width, cfg.Height)
	}
	model := modelFor(cfg.ColorModel)
	return pixbuf.Info{
		Width:          cfg.Width,
		Height:         cfg.Height,
		Model:          model,
		Format:         format,
		EstimatedBytes: int64(cfg.Width) * int64(cfg.Height) * int64(model.Channels()),
	}, nil
}

// Decode implements Codec.
func (c ImagingCodec) Decode(r io.Reader) (*pixbuf.PixelBuffer, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(c.AutoOrient))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return pixbuf.FromImage(img)
}

func modelFor(m color.Model) pixbuf.ColorModel {
	if _, ok := m.(color.Palette); ok {
		return pixbuf.Indexed
	}
	if m == color.GrayModel {
		return pixbuf.Gray
	}
	return pixbuf.RGB
}
