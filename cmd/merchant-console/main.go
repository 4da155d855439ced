package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/qrpay-labs/merchant-console/internal/apiclient"
	"github.com/qrpay-labs/merchant-console/internal/config"
	"github.com/qrpay-labs/merchant-console/internal/server"
	"github.com/qrpay-labs/merchant-console/internal/service"
	"github.com/qrpay-labs/merchant-console/internal/session"
	"github.com/qrpay-labs/merchant-console/internal/storage/bolt"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	store, err := bolt.New(cfg.Storage.Path, []byte(cfg.Session.EncryptionKey))
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	sess, err := session.Open(context.Background(), store)
	if err != nil {
		log.Fatalf("restore session: %v", err)
	}
	if sess.Authenticated() {
		log.Println("restored previous session")
	}

	client, err := apiclient.New(cfg.Backend.BaseURL, sess, cfg.Backend.RequestTimeout)
	if err != nil {
		log.Fatalf("init backend client: %v", err)
	}

	logSvc := service.NewQRLogService(store)
	srv := server.New(cfg, store, sess, client, logSvc)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("server stopped: %v", err)
		}
	}()
	log.Printf("merchant console on %s, backend %s", cfg.HTTP.Addr, client.BaseURL())

	// graceful shutdown
	waitForSignal()
	log.Println("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
