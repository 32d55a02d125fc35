package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"

	"github.com/meridianlabs/cosmos-identity/cosmos"
	"github.com/meridianlabs/cosmos-identity/internal/config"
	"github.com/meridianlabs/cosmos-identity/internal/logger"
)

func main() {
	teardown := flag.Bool("teardown", false, "delete the identity database instead of creating it")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)

	cred, err := azcosmos.NewKeyCredential(cfg.Cosmos.Key)
	if err != nil {
		logger.Fatal("failed to create credential", "error", err)
	}
	client, err := azcosmos.NewClientWithKey(cfg.Cosmos.Endpoint, cred, nil)
	if err != nil {
		logger.Fatal("failed to create cosmos client", "error", err)
	}

	p := cosmos.NewProvisioner(client, cfg.Cosmos.Database, logger.Logger)

	if *teardown {
		deleted, err := p.DeleteDatabaseIfExists(ctx)
		if err != nil {
			logger.Fatal("teardown failed", "error", err)
		}
		if !deleted {
			logger.Info("database did not exist", "database", cfg.Cosmos.Database)
		}
		return
	}

	if _, err := p.CreateDatabase(ctx); err != nil {
		logger.Fatal("provisioning failed", "error", err)
	}
	statuses, err := p.CreateRequiredContainers(ctx)
	if err != nil {
		logger.Fatal("provisioning failed", "error", err)
	}

	created := 0
	for _, s := range statuses {
		if s.Created {
			created++
		}
	}
	logger.Info("provisioning complete",
		"database", cfg.Cosmos.Database,
		"containers", len(statuses),
		"created", created,
	)
}
