package preprocess

import "github.com/TAAK61/qr-code-reader-sub001/internal/pixbuf"

// paletteMapper maps RGB triples back to the closest entry of a fixed
// palette. Lookups are memoized since filtered palette images tend to
// produce few distinct colors.
type paletteMapper struct {
	rgb  [][3]uint8
	memo map[[3]uint8]uint8
}

func newPaletteMapper(buf *pixbuf.PixelBuffer) *paletteMapper {
	m := &paletteMapper{
		rgb:  make([][3]uint8, len(buf.Palette)),
		memo: make(map[[3]uint8]uint8),
	}
	for i := range buf.Palette {
		r, g, b := buf.PaletteRGB(uint8(i))
		m.rgb[i] = [3]uint8{r, g, b}
	}
	return m
}

// color returns the RGB value of index i; out-of-range indices read as black.
func (m *paletteMapper) color(i uint8) [3]uint8 {
	if int(i) >= len(m.rgb) {
		return [3]uint8{}
	}
	return m.rgb[i]
}

// nearest returns the first palette index with the smallest squared RGB
// distance to c.
func (m *paletteMapper) nearest(c [3]uint8) uint8 {
	if idx, ok := m.memo[c]; ok {
		return idx
	}
	best, bestDist := 0, -1
	for i, p := range m.rgb {
		dr := int(p[0]) - int(c[0])
		dg := int(p[1]) - int(c[1])
		db := int(p[2]) - int(c[2])
		d := dr*dr + dg*dg + db*db
		if bestDist < 0 || d < bestDist {
			best, bestDist = i, d
			if d == 0 {
				break
			}
		}
	}
	m.memo[c] = uint8(best)
	return uint8(best)
}
