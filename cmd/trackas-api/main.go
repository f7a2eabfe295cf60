// README: Entry point; loads config, wires services, starts HTTP server and background jobs.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"trackas/internal/config"
	httptransport "trackas/internal/http"
	"trackas/internal/infra"
	"trackas/internal/jobs"
	"trackas/internal/modules/assignment"
	"trackas/internal/modules/escrow"
	"trackas/internal/modules/fleet"
	"trackas/internal/modules/pod"
	"trackas/internal/modules/shipment"
	"trackas/internal/notify"
	"trackas/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("db init", zap.Error(err))
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer func() { _ = redisClient.Close() }()

	blobs, err := storage.NewFSStore(cfg.Storage.Dir)
	if err != nil {
		logger.Fatal("blob store init", zap.Error(err))
	}
	sender := notify.NewRedisSender(redisClient)

	fleetStore := fleet.NewPgStore(dbPool, redisClient)
	fleetSvc := fleet.NewService(fleetStore)

	shipmentStore := shipment.NewPgStore(dbPool)
	shipmentSvc := shipment.NewService(shipmentStore)

	escrowStore := escrow.NewPgStore(dbPool)
	escrowSvc := escrow.NewService(escrowStore, shipmentSvc, fleetSvc, logger)

	assignmentStore := assignment.NewPgStore(dbPool)
	assignmentSvc := assignment.NewService(assignmentStore, shipmentSvc, fleetSvc, escrowSvc, sender, assignment.Config{
		MaxRetries:      cfg.Assignment.MaxRetries,
		CandidateLimit:  cfg.Assignment.CandidateLimit,
		RadiusKm:        cfg.Assignment.RadiusKm,
		ResponseTimeout: cfg.Assignment.ResponseTimeout,
		RetryBackoff:    cfg.Assignment.RetryBackoff,
	}, logger)
	defer assignmentSvc.Close()

	podStore := pod.NewPgStore(dbPool)
	podSvc := pod.NewService(podStore, shipmentSvc, fleetSvc, escrowSvc, blobs, sender, logger)

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Shipments:   shipmentSvc,
		Assignments: assignmentSvc,
		Fleet:       fleetSvc,
		Escrow:      escrowSvc,
		Pods:        podSvc,
		Log:         logger,
	})

	sweeper := jobs.NewAssignmentSweeper(assignmentSvc, logger)
	if err := sweeper.Start(); err != nil {
		logger.Fatal("sweeper start", zap.Error(err))
	}
	defer sweeper.Stop()

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", zap.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server", zap.Error(err))
	}
}
