package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"kioskhelper/internal/config"
	"kioskhelper/internal/handlers"
	"kioskhelper/internal/logger"
	"kioskhelper/internal/repository/sqlite"
	"kioskhelper/internal/routes"
	"kioskhelper/internal/services"
	"kioskhelper/internal/services/ai"
	"kioskhelper/internal/services/storage"
	"kioskhelper/internal/services/websocket"
)

type App struct {
	config     *config.Config
	logger     *logger.Logger
	perception *Perception
	db         *sqlite.DB
	decisions  *sqlite.DecisionRepository
	buffer     *storage.DecisionBuffer
	hubService *websocket.HubService
	manager    *services.Manager
	wg         sync.WaitGroup
}

func NewApp() (*App, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log := logger.NewLogger(cfg)

	perception, err := NewPerception(cfg, log)
	if err != nil {
		log.Close()
		return nil, err
	}

	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		perception.Close()
		log.Close()
		return nil, fmt.Errorf("failed to open decision log: %w", err)
	}
	decisions := sqlite.NewDecisionRepository(db)
	buffer := storage.NewDecisionBuffer(decisions, cfg.DecisionBufferLimit, log)
	hub := websocket.NewHubService(log)

	var annotate services.AnnotateFunc
	if cfg.StreamAnnotated {
		annotate = ai.DrawButtons
	}
	mng := services.NewManager(perception.Pipeline, perception.Strategy, hub, buffer, ai.DecodeFrame, annotate, log)

	return &App{
		config:     cfg,
		logger:     log,
		perception: perception,
		db:         db,
		decisions:  decisions,
		buffer:     buffer,
		hubService: hub,
		manager:    mng,
	}, nil
}

// Run serves until SIGINT or SIGTERM and then shuts down gracefully.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start background services
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.buffer.Run(ctx, a.config.DecisionFlushInterval)
	}()
	go func() {
		defer a.wg.Done()
		a.hubService.Run(ctx)
	}()
	if a.config.CameraUDPPort > 0 {
		go handlers.UDPCameraHandler(ctx, a.manager, a.logger, a.config.CameraUDPPort)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           routes.SetupRoutes(a.manager, a.hubService, a.decisions, a.config, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Printf("🚀 Kiosk Helper Server\n")
	fmt.Printf("📍 URL: http://localhost:%d\n", a.config.Port)
	fmt.Printf("🤖 Detector: %s\n", a.config.DetectorModelPath)
	fmt.Printf("🔎 Matcher: %s\n", a.manager.StrategyName())
	fmt.Printf("💾 Decisions: %s\n", a.config.DBPath)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		stop()
		a.wg.Wait()
		return err
	case <-ctx.Done():
	}

	a.logger.Info("🛑 Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := server.Shutdown(shutdownCtx)
	a.wg.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close stops the worker and releases models, the database and log files.
// Run must have returned.
func (a *App) Close() error {
	a.manager.Stop()
	a.buffer.Flush()

	errs := []error{
		a.perception.Close(),
		a.db.Close(),
	}
	errs = append(errs, a.logger.Close())
	return errors.Join(errs...)
}
