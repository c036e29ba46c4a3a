package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wwan-labs/wwan-avs/config"
	"github.com/wwan-labs/wwan-avs/internal/adapter/agentclient"
	"github.com/wwan-labs/wwan-avs/internal/adapter/ledger"
	"github.com/wwan-labs/wwan-avs/internal/adapter/oracle"
	"github.com/wwan-labs/wwan-avs/internal/adapter/storage"
	"github.com/wwan-labs/wwan-avs/internal/attestation"
	"github.com/wwan-labs/wwan-avs/internal/directory"
	"github.com/wwan-labs/wwan-avs/internal/registry"
	"github.com/wwan-labs/wwan-avs/internal/service"
	"github.com/wwan-labs/wwan-avs/internal/sigverify"
	"github.com/wwan-labs/wwan-avs/internal/store"
	transporthttp "github.com/wwan-labs/wwan-avs/internal/transport/http"
	"github.com/wwan-labs/wwan-avs/policy"
)

func main() {
	cfg := config.Load()

	log.Printf("Starting AVS node...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Ledger RPC: %s", cfg.LedgerRPCURL)

	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	reg := registry.New(db)
	dir := directory.New(db)

	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	var signer *sigverify.Signer
	if cfg.ValidatorPrivateKey != "" {
		signer, err = sigverify.NewSigner(cfg.ValidatorPrivateKey)
	} else {
		signer, err = sigverify.GenerateSigner()
	}
	if err != nil {
		log.Fatalf("Failed to initialize validator identity: %v", err)
	}
	log.Printf("Validator address: %s", signer.Address())

	storageClient := storage.NewClient(cfg.StorageURL, cfg.StorageKey)
	oracleClient := oracle.NewClient(cfg.OracleURL)
	notifier := agentclient.NewClient(cfg.AgentCallbackTimeout)

	var ledgerClient *ledger.Client
	var attLedger attestation.Ledger
	var svcLedger service.Ledger
	if cfg.LedgerRPCURL != "" {
		ledgerClient = ledger.NewClient(cfg.LedgerRPCURL)
		attLedger = ledgerClient
		svcLedger = ledgerClient
	}

	pipeline := attestation.New(reg, storageClient, attLedger, signer, cfg.LedgerTxTimeout)
	svc := service.New(reg, dir, policyEngine, pipeline, oracleClient, storageClient, svcLedger, notifier, cfg)

	server := transporthttp.NewServer(svc)

	runCtx, stop := context.WithCancel(ctx)
	if ledgerClient != nil {
		listener := ledger.NewListener(ledgerClient, svc, cfg.EventPollEvery)
		go listener.Run(runCtx)
		log.Printf("Ledger event listener polling every %s", cfg.EventPollEvery)
	}

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("API started on port %d", cfg.HTTPPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down AVS node...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("AVS node stopped")
}
