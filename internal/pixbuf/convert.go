package pixbuf

import (
	"errors"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// FromImage copies img into a new heap buffer. Gray images become Gray buffers,
// paletted images keep their palette as Indexed buffers and everything else is
// flattened to RGB (alpha is dropped).
func FromImage(img image.Image) (*PixelBuffer, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch src := img.(type) {
	case *image.Gray:
		out, err := New(w, h, Gray)
		if err != nil {
			return nil, err
		}
		for y := range h {
			o := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(out.Pix[y*w:(y+1)*w], src.Pix[o:o+w])
		}
		return out, nil
	case *image.Paletted:
		if len(src.Palette) == 0 {
			break
		}
		out, err := New(w, h, Indexed)
		if err != nil {
			return nil, err
		}
		for y := range h {
			o := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(out.Pix[y*w:(y+1)*w], src.Pix[o:o+w])
		}
		out.Palette = append(color.Palette(nil), src.Palette...)
		return out, nil
	}

	out, err := New(w, h, RGB)
	if err != nil {
		return nil, err
	}
	nrgba := imaging.Clone(img)
	for y := range h {
		srow := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+4*w]
		drow := out.Pix[y*3*w : (y+1)*3*w]
		for x := range w {
			drow[3*x] = srow[4*x]
			drow[3*x+1] = srow[4*x+1]
			drow[3*x+2] = srow[4*x+2]
		}
	}
	return out, nil
}

// ToImage returns a standard library image sharing no memory with the buffer.
func (b *PixelBuffer) ToImage() (image.Image, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	rect := image.Rect(0, 0, b.Width, b.Height)
	switch b.Model {
	case Gray:
		img := image.NewGray(rect)
		copy(img.Pix, b.Pix)
		return img, nil
	case Indexed:
		img := image.NewPaletted(rect, append(color.Palette(nil), b.Palette...))
		copy(img.Pix, b.Pix)
		return img, nil
	default:
		img := image.NewNRGBA(rect)
		n := b.Len()
		for i := range n {
			img.Pix[4*i] = b.Pix[3*i]
			img.Pix[4*i+1] = b.Pix[3*i+1]
			img.Pix[4*i+2] = b.Pix[3*i+2]
			img.Pix[4*i+3] = 0xff
		}
		return img, nil
	}
}

// PaletteRGB returns the 8-bit RGB channels of palette entry i.
func (b *PixelBuffer) PaletteRGB(i uint8) (r, g, bl uint8) {
	if int(i) >= len(b.Palette) {
		return 0, 0, 0
	}
	c := color.NRGBAModel.Convert(b.Palette[i]).(color.NRGBA)
	return c.R, c.G, c.B
}
