package domain

import (
	"fmt"
	"image"
	"math/rand"
)

const (
	DefaultRegionMin    = 10
	DefaultRegionMax    = 50
	DefaultRegionExtent = 30
)

// Region is the overlay rectangle, expressed as percentage offsets into a
// fixed-size container. Width and height both equal Extent.
type Region struct {
	Top    int `json:"top"`
	Left   int `json:"left"`
	Extent int `json:"extent"`
}

// Bounds maps the region onto a w×h pixel container.
func (r Region) Bounds(w, h int) image.Rectangle {
	x0 := w * r.Left / 100
	y0 := h * r.Top / 100
	x1 := w * (r.Left + r.Extent) / 100
	y1 := h * (r.Top + r.Extent) / 100
	return image.Rect(x0, y0, x1, y1)
}

// InBounds reports whether the rectangle lies fully inside [0,100] on both axes.
func (r Region) InBounds() bool {
	return r.Top >= 0 && r.Left >= 0 &&
		r.Top+r.Extent <= 100 && r.Left+r.Extent <= 100
}

type RegionPlacer struct {
	min    int
	max    int
	extent int
}

func DefaultRegionPlacer() RegionPlacer {
	return RegionPlacer{min: DefaultRegionMin, max: DefaultRegionMax, extent: DefaultRegionExtent}
}

// NewRegionPlacer returns a placer drawing offsets from [min, max). Every
// placement must keep the extent inside the container.
func NewRegionPlacer(min, max, extent int) (RegionPlacer, error) {
	if min < 0 || max <= min || extent <= 0 {
		return RegionPlacer{}, fmt.Errorf("region offsets [%d,%d) extent %d: %w", min, max, extent, ErrConfiguration)
	}
	if max-1+extent > 100 {
		return RegionPlacer{}, fmt.Errorf("region max %d with extent %d overflows container: %w", max, extent, ErrConfiguration)
	}
	return RegionPlacer{min: min, max: max, extent: extent}, nil
}

func (p RegionPlacer) Place(r *rand.Rand) Region {
	span := p.max - p.min
	return Region{
		Top:    p.min + r.Intn(span),
		Left:   p.min + r.Intn(span),
		Extent: p.extent,
	}
}
