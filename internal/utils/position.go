package utils

const (
	positionMargin       = 20.0
	defaultSurfaceWidth  = 440.0
	defaultSurfaceHeight = 600.0
)

// Rect is a selection bounding box in viewport coordinates.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Viewport describes the visible window and its scroll offset.
type Viewport struct {
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	ScrollX float64 `json:"scrollX"`
	ScrollY float64 `json:"scrollY"`
}

// Size is the measured size of the result surface.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Point is a page-coordinate anchor for the result surface.
type Point struct {
	Left float64 `json:"left"`
	Top  float64 `json:"top"`
}

// CalculatePosition places the result surface next to the selection and keeps it
// fully inside the viewport. A nil selection centers the surface.
func CalculatePosition(sel *Rect, vp Viewport, surface Size) Point {
	w := surface.Width
	if w <= 0 {
		w = defaultSurfaceWidth
	}
	h := surface.Height
	if h <= 0 {
		h = defaultSurfaceHeight
	}

	if sel == nil {
		return Point{
			Left: (vp.Width-w)/2 + vp.ScrollX,
			Top:  (vp.Height-h)/2 + vp.ScrollY,
		}
	}

	var left float64
	switch {
	case sel.Right+w+positionMargin < vp.Width:
		left = sel.Right + positionMargin
	case sel.Left-w-positionMargin > 0:
		left = sel.Left - w - positionMargin
	default:
		left = (vp.Width - w) / 2
	}
	left += vp.ScrollX

	// Slide from "starts at selection" near the top of the viewport to
	// "ends at selection" near the bottom.
	centerY := sel.Top + sel.Height/2
	var pct float64
	if vp.Height > 0 {
		pct = clamp(centerY/vp.Height, 0, 1)
	}
	top := centerY - pct*h + vp.ScrollY

	minTop := positionMargin + vp.ScrollY
	maxTop := vp.Height - h - positionMargin + vp.ScrollY
	top = clamp(top, minTop, maxTop)

	return Point{Left: left, Top: top}
}

// clamp bounds v to [lo, hi]; lo wins when the range is inverted.
func clamp(v, lo, hi float64) float64 {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}
