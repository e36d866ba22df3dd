package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hperssn/gridcheck/internal/config"
	"github.com/hperssn/gridcheck/internal/domain"
	"github.com/hperssn/gridcheck/internal/facecheck"
	"github.com/hperssn/gridcheck/internal/httpapi"
	"github.com/hperssn/gridcheck/internal/logger"
	"github.com/hperssn/gridcheck/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer log.Sync()

	detector, err := newDetector(cfg, log)
	if err != nil {
		return err
	}

	sessCfg, err := sessionConfig(cfg)
	if err != nil {
		return err
	}

	build := func(cam session.Camera) (*session.Controller, error) {
		return session.New(sessCfg, cam, detector, session.WithLogger(log))
	}
	manager := session.NewManager(build, cfg.SessionTTL, log)
	defer manager.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go manager.Run(ctx, cfg.CleanupInterval)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.Routes(manager, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func newDetector(cfg config.Config, log *zap.Logger) (session.FaceDetector, error) {
	if cfg.FaceDetector == "accept-all" {
		log.Warn("face detection disabled, every frame passes")
		return facecheck.Always(true), nil
	}

	pc := facecheck.DefaultPigoConfig()
	pc.CascadePath = cfg.FaceCascadePath
	pc.MinSize = cfg.FaceMinSize
	pc.MaxSize = cfg.FaceMaxSize
	pc.MinQuality = cfg.FaceMinQuality
	det, err := facecheck.NewPigo(pc, log)
	if err != nil {
		return nil, fmt.Errorf("load face detector from FACE_CASCADE_PATH=%q: %w (point it at pigo's cascade/facefinder, or set FACE_DETECTOR=accept-all)", cfg.FaceCascadePath, err)
	}
	return det, nil
}

func sessionConfig(cfg config.Config) (session.Config, error) {
	placer, err := domain.NewRegionPlacer(cfg.RegionMin, cfg.RegionMax, cfg.RegionExtent)
	if err != nil {
		return session.Config{}, err
	}

	sc := session.DefaultConfig()
	sc.Rows = cfg.GridRows
	sc.Cols = cfg.GridCols
	sc.MarkedCells = cfg.MarkedCells
	sc.Placer = placer
	sc.TickInterval = cfg.TickInterval
	return sc, nil
}
