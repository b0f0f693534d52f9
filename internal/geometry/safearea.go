package geometry

import (
	"image"
	"math"
)

// Target aspect ratio of the safe area.
const (
	AspectW = 16
	AspectH = 9
)

// SafeArea returns the largest centered 16:9 rectangle inside a width x height
// canvas. Wider canvases are pillarboxed, taller ones letterboxed.
func SafeArea(width, height int) image.Rectangle {
	if width <= 0 || height <= 0 {
		return image.Rectangle{}
	}

	target := float64(AspectW) / float64(AspectH)
	actual := float64(width) / float64(height)

	if actual > target {
		w := min(int(math.Round(float64(height)*target)), width)
		x := (width - w) / 2
		return image.Rect(x, 0, x+w, height)
	}

	h := min(int(math.Round(float64(width)/target)), height)
	y := (height - h) / 2
	return image.Rect(0, y, width, y+h)
}

// FitAspect returns the largest rectangle with aspect aw:ah centered inside r.
func FitAspect(r image.Rectangle, aw, ah int) image.Rectangle {
	if r.Empty() || aw <= 0 || ah <= 0 {
		return image.Rectangle{}
	}
	w, h := r.Dx(), r.Dy()
	target := float64(aw) / float64(ah)

	if float64(w)/float64(h) > target {
		fw := min(int(math.Round(float64(h)*target)), w)
		x := r.Min.X + (w-fw)/2
		return image.Rect(x, r.Min.Y, x+fw, r.Max.Y)
	}
	fh := min(int(math.Round(float64(w)/target)), h)
	y := r.Min.Y + (h-fh)/2
	return image.Rect(r.Min.X, y, r.Max.X, y+fh)
}

// Insets are per-side margins in raw pixels.
type Insets struct {
	Top, Right, Bottom, Left int
}

// Inset shrinks r by in. A result that would be inverted is empty.
func Inset(r image.Rectangle, in Insets) image.Rectangle {
	out := image.Rect(r.Min.X+in.Left, r.Min.Y+in.Top, r.Max.X-in.Right, r.Max.Y-in.Bottom)
	if out.Min.X >= out.Max.X || out.Min.Y >= out.Max.Y {
		return image.Rectangle{}
	}
	return out
}
