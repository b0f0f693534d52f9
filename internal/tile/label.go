package tile

import (
	"image"
	"image/color"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/unicode/norm"
)

var labelFace font.Face = basicfont.Face7x13

const ellipsis = "..."

// sanitizeLabel folds compatibility forms (full-width latin and the like) to
// their plain equivalents and replaces what the bitmap face cannot draw.
func sanitizeLabel(name string) string {
	folded := norm.NFKC.String(name)
	var b strings.Builder
	for _, r := range folded {
		switch {
		case r < 0x20 || r == 0x7f:
			continue
		case r > 0x7e:
			b.WriteByte('?')
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// fitText truncates s with an ellipsis until it fits in width pixels.
func fitText(face font.Face, s string, width int) string {
	if font.MeasureString(face, s).Ceil() <= width {
		return s
	}
	runes := []rune(s)
	for n := len(runes) - 1; n > 0; n-- {
		candidate := string(runes[:n]) + ellipsis
		if font.MeasureString(face, candidate).Ceil() <= width {
			return candidate
		}
	}
	return ""
}

// drawLabel writes text centered in band. It reports whether anything was drawn.
func drawLabel(dst *image.RGBA, band image.Rectangle, text string) bool {
	text = fitText(labelFace, sanitizeLabel(text), band.Dx())
	if text == "" || band.Empty() {
		return false
	}

	m := labelFace.Metrics()
	ascent, descent := m.Ascent.Ceil(), m.Descent.Ceil()
	if ascent+descent > band.Dy() {
		return false
	}

	w := font.MeasureString(labelFace, text).Ceil()
	x := band.Min.X + (band.Dx()-w)/2
	baseline := band.Min.Y + (band.Dy()+ascent-descent)/2

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: labelFace,
		Dot:  fixed.P(x, baseline),
	}
	d.DrawString(text)
	return true
}
