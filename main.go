package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/driftline/odometry.report/internal/config"
	"github.com/driftline/odometry.report/internal/db"
	"github.com/driftline/odometry.report/internal/monitoring"
	"github.com/driftline/odometry.report/internal/replay"
	"github.com/driftline/odometry.report/internal/version"
	"github.com/driftline/odometry.report/internal/vo"
	"github.com/driftline/odometry.report/internal/vo/sparse"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address for the status API")
	dbFile     = flag.String("db", "vo_sessions.db", "SQLite database path")
	configPath = flag.String("config", "", "Optional tuning config (JSON)")
	framesPath = flag.String("frames", "fixtures/frames.jsonl", "Replay frames file (JSONL)")
	frameRate  = flag.Float64("rate", 30.0, "Replay frame rate in fps (0 = unpaced)")
	logLevel   = flag.String("log", "diag", "Log verbosity: ops, diag, trace, or off")
	autostart  = flag.Bool("autostart", true, "Request start immediately instead of waiting for the API")
)

func main() {
	flag.Parse()
	log.Printf("odometry replay daemon %s", version.String())

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if err := monitoring.ConfigureStreams(*logLevel, os.Stderr); err != nil {
		log.Fatalf("configure logging: %v", err)
	}

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("load tuning config: %v", err)
		}
	}

	source, err := replay.Open(*framesPath)
	if err != nil {
		log.Fatalf("open replay source: %v", err)
	}
	defer source.Close()

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()

	cfgJSON, err := json.Marshal(tuning)
	if err != nil {
		log.Fatalf("encode tuning config: %v", err)
	}
	session, err := database.CreateSession(*framesPath, string(cfgJSON))
	if err != nil {
		log.Fatalf("create session: %v", err)
	}
	log.Printf("session %s replaying %s", session.SessionID, *framesPath)

	handler := vo.NewFrameHandler(tuning.HandlerConfig())
	pipeline := sparse.NewPipeline(tuning.PipelineConfig())
	if *autostart {
		handler.RequestStart()
	}

	var interval time.Duration
	if *frameRate > 0 {
		interval = time.Duration(float64(time.Second) / *frameRate)
	}
	runner := &Runner{
		Handler:  handler,
		Pipeline: pipeline,
		Source:   source,
		DB:       database,
		Session:  session,
		Interval: interval,
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Processing goroutine: the single writer of handler state.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := runner.Run(ctx); err != nil {
			log.Printf("processing loop failed: %v", err)
		}
		log.Print("processing loop terminated")
	}()

	// HTTP server goroutine.
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		apiMux := NewServer(handler, database, session).ServeMux()
		mux.Handle("/api/vo/", http.StripPrefix("/api/vo", apiMux))

		server := &http.Server{
			Addr:    *listen,
			Handler: mux,
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
