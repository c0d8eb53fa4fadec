package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"asistencia/checador-terminal/internal/client"
	"asistencia/checador-terminal/internal/config"
	"asistencia/checador-terminal/internal/database"
	"asistencia/checador-terminal/internal/device"
	"asistencia/checador-terminal/internal/logger"
	"asistencia/checador-terminal/internal/models"
	"asistencia/checador-terminal/internal/presenter"
	"asistencia/checador-terminal/internal/queue"
	"asistencia/checador-terminal/internal/router"
	"asistencia/checador-terminal/internal/scanui"
	"asistencia/checador-terminal/internal/server"
	"asistencia/checador-terminal/internal/store"
	"asistencia/checador-terminal/internal/terminal"

	"go.uber.org/zap"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/local.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting checador terminal",
		zap.String("env", cfg.Env),
		zap.String("config_path", *configPath),
		zap.String("reader", cfg.Reader.Name),
	)

	// Initialize database for the offline check-in queue
	db, err := database.New(cfg.StoragePath, log.Logger)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close database", zap.Error(err))
		}
	}()

	// Build the session identity for this terminal run
	sessionManager := device.NewSessionManager()
	sessionID, err := sessionManager.GetOrGenerateSessionID(cfg.Reader.SessionID)
	if err != nil {
		log.Fatal("Failed to get session id", zap.Error(err))
	}
	identity := models.SessionIdentity{
		ReaderName: cfg.Reader.Name,
		SessionID:  sessionID,
	}

	if cfg.Reader.SessionID == "" {
		log.Info("Generated session id", zap.String("session_id", sessionID))
	} else {
		log.Info("Using configured session id", zap.String("session_id", sessionID))
	}

	// Initialize API client
	apiClient := client.NewAPIClient(
		cfg.Backend.BaseURL,
		cfg.Backend.APIKey,
		time.Duration(cfg.Backend.Timeout)*time.Second,
		log.Logger,
	)

	// Initialize offline check-in queue
	checkinQueue := queue.NewCheckinQueue(db.DB, log.Logger)

	// Initialize attendance store, scan display and presenter
	attendanceStore := store.New(
		apiClient,
		time.Duration(cfg.Display.FetchDebounce)*time.Millisecond,
		nil,
		log.Logger,
	)
	machine := scanui.NewMachine(log.Logger)
	display := presenter.New(
		machine,
		time.Duration(cfg.Display.ResultWindow)*time.Second,
		time.Duration(cfg.Display.PanelClearWindow)*time.Second,
		attendanceStore.ClearPanel,
		log.Logger,
	)

	// Initialize terminal service
	terminalService := terminal.NewService(
		identity,
		apiClient,
		attendanceStore,
		display,
		checkinQueue,
		wsURLFromBase(cfg.Backend.BaseURL),
		time.Duration(cfg.Channel.ReconnectDelay)*time.Second,
		log.Logger,
	)

	if err := terminalService.Start(); err != nil {
		log.Fatal("Failed to start terminal service", zap.Error(err))
	}

	// Local HTTP surface for the PIN pad and the display front-end
	var httpServer *http.Server
	if cfg.Server.Enabled {
		terminalServer := server.NewTerminalServer(terminalService, attendanceStore, log.Logger)
		addr := fmt.Sprintf("localhost:%d", cfg.Server.Port)
		httpServer = &http.Server{
			Addr:         addr,
			Handler:      router.New(terminalServer, log.Logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		go func() {
			log.Info("Starting terminal HTTP server",
				zap.String("address", addr),
			)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("Terminal HTTP server error", zap.Error(err))
			}
		}()
	} else {
		log.Info("Terminal HTTP server disabled in configuration")
	}

	log.Info("Checador terminal started successfully",
		zap.String("reader", identity.ReaderName),
		zap.String("session_id", identity.SessionID),
		zap.String("backend_url", cfg.Backend.BaseURL),
	)

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))

	log.Info("Shutting down checador terminal...")

	// Stop HTTP server first so no new swipes arrive mid-teardown
	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Warn("HTTP server shutdown error", zap.Error(err))
		} else {
			log.Info("HTTP server stopped")
		}
	}

	// Stop terminal service (releases the reader, closes the channel)
	done := make(chan struct{})
	go func() {
		terminalService.Stop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("Terminal service stopped successfully")
	case <-time.After(5 * time.Second):
		log.Warn("Shutdown timeout reached, forcing immediate exit")
		os.Exit(1)
	}

	// Drop swipes that kept failing for a week - quick, don't wait
	if err := checkinQueue.CleanupOldEntries(7 * 24 * time.Hour); err != nil {
		log.Error("Failed to cleanup old check-ins", zap.Error(err))
	}

	log.Info("Checador terminal stopped")
}

// wsURLFromBase derives the push channel endpoint from the backend base URL
func wsURLFromBase(baseURL string) string {
	ws := baseURL
	if strings.HasPrefix(ws, "https://") {
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	} else if strings.HasPrefix(ws, "http://") {
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return strings.TrimSuffix(ws, "/") + "/ws"
}
