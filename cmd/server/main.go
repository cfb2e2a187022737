package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NutaEnjoyer/halomax/internal/call"
	"github.com/NutaEnjoyer/halomax/internal/config"
	"github.com/NutaEnjoyer/halomax/internal/httpserver"
	"github.com/NutaEnjoyer/halomax/internal/provider"
	"github.com/NutaEnjoyer/halomax/internal/storage"
	"github.com/NutaEnjoyer/halomax/internal/telephony"
	"github.com/NutaEnjoyer/halomax/internal/webhook"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	var recordings telephony.Storage
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceRoleKey != "" {
		sb, err := storage.NewSupabase(storage.Config{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseServiceRoleKey,
			Bucket:         cfg.SupabaseBucket,
		})
		if err != nil {
			log.Fatalf("supabase: %v", err)
		}
		recordings = sb
	} else if cfg.RecordCalls {
		log.Println("Warning: RECORD_CALLS enabled without Supabase credentials - recordings will be dropped")
	}

	tel := telephony.NewService(telephony.Config{
		AccountSID:    cfg.TwilioAccountSID,
		AuthToken:     cfg.TwilioAuthToken,
		PublicBaseURL: cfg.PublicBaseURL,
	}, recordings)

	srv := httpserver.New(cfg, tel, call.NewManager(), webhook.NewReporter(), provider.New)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}
