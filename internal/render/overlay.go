// Package render draws a session snapshot: the photo, the detection region
// and, once a challenge exists, its marker grid.
package render

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"math"

	"github.com/fogleman/gg"

	"github.com/hperssn/gridcheck/internal/domain"
	"github.com/hperssn/gridcheck/internal/session"
)

const (
	defaultWidth  = 500
	defaultHeight = 375
)

// Overlay renders s on top of its photo, or on a blank canvas when the
// session has no frame yet.
func Overlay(s session.Snapshot, frame image.Image) image.Image {
	base := s.Photo
	if base == nil {
		base = frame
	}

	var dc *gg.Context
	if base != nil {
		dc = gg.NewContextForImage(base)
	} else {
		dc = gg.NewContext(defaultWidth, defaultHeight)
		dc.SetRGB(0.15, 0.15, 0.15)
		dc.Clear()
	}

	if s.Region == nil {
		return dc.Image()
	}
	area := s.Region.Bounds(dc.Width(), dc.Height())

	if s.Challenge == nil {
		drawRegionOutline(dc, area)
		return dc.Image()
	}
	drawGrid(dc, area, s.Challenge, s.Responses)
	return dc.Image()
}

func EncodePNG(w io.Writer, s session.Snapshot, frame image.Image) error {
	if err := png.Encode(w, Overlay(s, frame)); err != nil {
		return fmt.Errorf("encode overlay: %w", err)
	}
	return nil
}

func drawRegionOutline(dc *gg.Context, area image.Rectangle) {
	dc.SetRGB(1, 0, 0)
	dc.SetLineWidth(2)
	dc.DrawRectangle(float64(area.Min.X), float64(area.Min.Y), float64(area.Dx()), float64(area.Dy()))
	dc.Stroke()
}

func drawGrid(dc *gg.Context, area image.Rectangle, ch *domain.Challenge, rs domain.ResponseSet) {
	cellW := float64(area.Dx()) / float64(ch.Grid.Cols)
	cellH := float64(area.Dy()) / float64(ch.Grid.Rows)

	for i, m := range ch.Grid.Cells {
		row, col := i/ch.Grid.Cols, i%ch.Grid.Cols
		x := float64(area.Min.X) + float64(col)*cellW
		y := float64(area.Min.Y) + float64(row)*cellH
		selected := i < len(rs) && rs[i]

		switch {
		case selected:
			dc.SetRGBA(1, 0, 0, 0.3)
			dc.DrawRectangle(x, y, cellW, cellH)
			dc.Fill()
		case !m.IsNone():
			dc.SetRGBA(1, 1, 1, 0.1)
			dc.DrawRectangle(x, y, cellW, cellH)
			dc.Fill()
		}

		dc.SetRGBA(1, 1, 1, 0.5)
		dc.SetLineWidth(1)
		dc.DrawRectangle(x+0.5, y+0.5, cellW-1, cellH-1)
		dc.Stroke()

		if m.IsNone() {
			continue
		}
		if selected {
			dc.SetRGB(1, 0, 0)
		} else {
			dc.SetRGBA(1, 1, 1, 0.7)
		}
		drawMarker(dc, m, x+cellW/2, y+cellH/2, math.Min(cellW, cellH)*0.3)
		dc.Fill()
	}
}

func drawMarker(dc *gg.Context, m domain.Marker, cx, cy, r float64) {
	switch m {
	case domain.MarkerCircle:
		dc.DrawCircle(cx, cy, r)
	case domain.MarkerSquare:
		dc.DrawRectangle(cx-r, cy-r, 2*r, 2*r)
	case domain.MarkerTriangle:
		// play-button triangle pointing right
		dc.MoveTo(cx-r, cy-r)
		dc.LineTo(cx+r, cy)
		dc.LineTo(cx-r, cy+r)
		dc.ClosePath()
	default:
		dc.DrawRegularPolygon(5, cx, cy, r, 0)
	}
}
