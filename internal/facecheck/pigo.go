package facecheck

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"os"

	pigo "github.com/esimov/pigo/core"
	"go.uber.org/zap"
)

type PigoConfig struct {
	CascadePath  string
	MinSize      int
	MaxSize      int
	ShiftFactor  float64
	ScaleFactor  float64
	IoUThreshold float64
	MinQuality   float32
}

func DefaultPigoConfig() PigoConfig {
	return PigoConfig{
		CascadePath:  "cascade/facefinder",
		MinSize:      20,
		MaxSize:      1000,
		ShiftFactor:  0.1,
		ScaleFactor:  1.1,
		IoUThreshold: 0.2,
		MinQuality:   5.0,
	}
}

// Pigo detects faces with a pixel-intensity-comparison cascade.
type Pigo struct {
	classifier *pigo.Pigo
	cfg        PigoConfig
	log        *zap.Logger
}

func NewPigo(cfg PigoConfig, log *zap.Logger) (*Pigo, error) {
	data, err := os.ReadFile(cfg.CascadePath)
	if err != nil {
		return nil, fmt.Errorf("read face cascade: %w", err)
	}

	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack face cascade: %w", err)
	}

	log.Info("face cascade loaded", zap.String("path", cfg.CascadePath))
	return &Pigo{classifier: classifier, cfg: cfg, log: log}, nil
}

func (p *Pigo) HasFace(ctx context.Context, img image.Image) (bool, error) {
	if img == nil {
		return false, ErrNoFrame
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	bounds := img.Bounds()
	nrgba := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, draw.Src)

	cols, rows := bounds.Dx(), bounds.Dy()
	params := pigo.CascadeParams{
		MinSize:     p.cfg.MinSize,
		MaxSize:     p.cfg.MaxSize,
		ShiftFactor: p.cfg.ShiftFactor,
		ScaleFactor: p.cfg.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(nrgba),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := p.classifier.RunCascade(params, 0.0)
	dets = p.classifier.ClusterDetections(dets, p.cfg.IoUThreshold)

	for _, d := range dets {
		if d.Q >= p.cfg.MinQuality {
			p.log.Debug("face found",
				zap.Int("row", d.Row),
				zap.Int("col", d.Col),
				zap.Int("scale", d.Scale),
				zap.Float32("q", d.Q),
			)
			return true, nil
		}
	}
	return false, nil
}
