// Command qr-backend-dev runs a local stand-in for the QR provisioning backend.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qrpay-labs/merchant-console/internal/config"
	"github.com/qrpay-labs/merchant-console/internal/devbackend"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	store, err := devbackend.OpenStore(cfg.DevBackend.StoragePath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	auth, err := devbackend.NewAuth(cfg.DevBackend.JWTSecret, cfg.DevBackend.TokenTTL)
	if err != nil {
		log.Fatalf("init auth: %v", err)
	}

	srv := devbackend.New(store, auth, cfg.DevBackend.QRBaseURL)
	go func() {
		if err := srv.Start(cfg.DevBackend.Addr); err != nil {
			log.Fatalf("server stopped: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
