package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"vestchain/config"
	"vestchain/core/state"
	"vestchain/crypto"
	gatewayauth "vestchain/gateway/auth"
	"vestchain/native/vesting"
	"vestchain/observability/logging"
	"vestchain/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "vesting-gateway.toml", "path to gateway configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.Setup("vesting-gateway", cfg.Env)

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		log.Fatalf("open ledger database: %v", err)
	}
	defer db.Close()

	ledger := state.NewManager(db)
	if err := seedGenesis(ledger, cfg); err != nil {
		log.Fatalf("seed genesis balances: %v", err)
	}

	engine := vesting.NewEngine()
	engine.SetState(ledger)
	engine.SetCustodian(ledger)
	engine.SetEmitter(logEmitter{log: logger})

	skew, err := cfg.Skew()
	if err != nil {
		log.Fatalf("parse timestamp skew: %v", err)
	}
	secrets := make(map[string]string, len(cfg.APIKeys))
	for _, key := range cfg.APIKeys {
		secrets[key.Key] = key.Secret
	}
	auth := gatewayauth.NewAuthenticator(secrets, skew, nil)
	server := NewServer(auth, engine, ledger, logger)

	srv := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: server,
	}

	go func() {
		logger.Info("vesting gateway listening", "address", cfg.ListenAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down vesting gateway")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "graceful shutdown failed: %v\n", err)
	}
}

func seedGenesis(ledger *state.Manager, cfg *config.Config) error {
	for _, bal := range cfg.Genesis {
		addr, err := crypto.DecodeAddress(bal.Address)
		if err != nil {
			return err
		}
		token, err := vesting.NormalizeToken(bal.Token)
		if err != nil {
			return err
		}
		var out [20]byte
		copy(out[:], addr.Bytes())
		if err := ledger.EnsureGenesisBalance(out, token, bal.Amount); err != nil {
			return err
		}
	}
	return nil
}
