package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/chain-credentials/issuer-api/api"
	"github.com/chain-credentials/issuer-api/database"
	"github.com/chain-credentials/issuer-api/external"
	"github.com/chain-credentials/issuer-api/metrics"
	"github.com/chain-credentials/issuer-api/models"
	"github.com/chain-credentials/issuer-api/services"
	"github.com/chain-credentials/issuer-api/tasks"
	"github.com/chain-credentials/issuer-api/util"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.uber.org/zap"
)

func waitForTermination() {
	// Trap termination signals
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// Block until a signal is received.
	<-c

	// Allow subsequent termination signals to quickly shut down by removing the trap.
	signal.Reset()
	close(c)
}

var logger *zap.Logger

// Logger initialization.
func initLogger(debug bool) error {
	var cfg zap.Config
	var err error

	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	logger, err = cfg.Build()
	return err
}

func main() {
	var cfg config
	var err error

	// Parse command line arguments.
	if cfg, err = parseArguments(); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing command-line arguments: %v\n", err)
		os.Exit(1)
	}

	// Initialize the logger.
	if err := initLogger(cfg.Debug); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}

	// Connect to the database and initialize the database schema, if necessary.
	var db *sql.DB
	db, err = database.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("Unable to open the database connection", zap.Error(err))
	}
	defer db.Close()

	// The operator wallet signs every transaction before submission.
	wallet, err := util.NewWalletFromHex(cfg.OperatorKey)
	if err != nil {
		logger.Fatal("Unable to load the operator wallet", zap.Error(err))
	}

	// Credential metadata is encrypted before pinning.
	cipher, err := util.NewAESCipher(cfg.MetadataKey)
	if err != nil {
		logger.Fatal("Unable to initialize the metadata cipher", zap.Error(err))
	}

	// Background task to update the registry of known issuers.
	issuers := models.NewIssuerRegistry()
	updateIssuers := tasks.NewUpdateIssuersTask(cfg.RegistryURL, issuers, logger)
	go updateIssuers.Run()

	// Clock
	clock := clockwork.NewRealClock()

	// Metrics
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// Services contain the business logic and are used by the API handlers.
	svcCfg := &services.ServiceConfig{
		DB:       db,
		Signer:   external.NewSignerClient(cfg.SignerURL),
		Ledger:   external.NewLedgerClient(cfg.LedgerURL),
		Pinner:   external.NewPinClient(cfg.PinURL, cfg.PinToken),
		Cipher:   cipher,
		Identity: external.NewIdentityClient(cfg.IdentityURL),
		Issuers:  issuers,
		Wallet:   wallet,
		Logger:   logger,
		Clock:    clock,
		Metrics:  m,
	}
	svc := services.NewService(svcCfg)
	if err := svc.Init(); err != nil {
		logger.Fatal("Unable to initialize the service layer", zap.Error(err))
	}

	// Background task to keep persisted chain statuses current.
	refreshStatus := tasks.NewRefreshStatusTask(svc, logger)
	go refreshStatus.Run()

	// Create the API router.
	path := "/issuer/v1/"
	router := api.NewAPIRouter(path, svc, cfg.AllowedOrigins, logger)
	http.Handle(path, router)
	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Listen on the provided address. This listener will be used by the HTTP server.
	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to listen on provided address %s\n%v\n", cfg.ListenAddr, err)
		os.Exit(1)
	}

	// Spin up the HTTP server on a different goroutine, since it blocks.
	server := http.Server{}
	var serverWaitGroup sync.WaitGroup
	serverWaitGroup.Add(1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("url", cfg.ListenAddr))
		if err := server.Serve(listener); err != nil {
			logger.Error("HTTP server stopped", zap.Error(err))
		}
		serverWaitGroup.Done()
	}()

	waitForTermination()

	// Shut down gracefully
	logger.Info("Received termination signal, shutting down...")
	_ = server.Shutdown(context.Background())
	listener.Close()

	// Wait for the listener/server to exit
	serverWaitGroup.Wait()

	// Shut down the service layer
	svc.Deinit()

	// Stop the background tasks
	if err = refreshStatus.Stop(); err != nil {
		logger.Error("Error stopping background tasks", zap.Error(err))
	}
	if err = updateIssuers.Stop(); err != nil {
		logger.Error("Error stopping background tasks", zap.Error(err))
	}

	logger.Info("Shutdown complete")

	_ = logger.Sync()
}
