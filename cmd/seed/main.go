package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"tenant-broker/backend/internal/config"
	"tenant-broker/backend/internal/logging"
	"tenant-broker/backend/internal/repository"
	"tenant-broker/backend/pkg/models"
)

func main() {
	ctx := context.Background()
	logger := logging.NewLogger()

	configFile := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load config
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to DB
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	store := repository.NewPostgresStore(pool)
	if err := store.ApplySchema(ctx); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	// 1. Ensure the dev tenant exists
	apiKey := "dev-tenant-key"
	t, err := store.GetTenantByAPIKey(ctx, apiKey)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Fatalf("Failed to look up tenant: %v", err)
		}
		logger.Info("Creating default tenant")
		t = &models.Tenant{
			ID:       uuid.New().String(),
			Name:     "Local Dev Tenant",
			WalletID: uuid.New().String(),
			APIKey:   apiKey,
		}
		if err := store.CreateTenant(ctx, t); err != nil {
			log.Fatalf("Failed to create tenant: %v", err)
		}
	} else {
		logger.Info("Found existing tenant", "id", t.ID)
	}

	// 2. Ensure a reusable invitation exists for connection testing
	invitationKey := "seed-reusable-invitation-key"
	if _, err := store.GetInvitationByKey(ctx, t.ID, invitationKey); err == nil {
		logger.Info("Skipping existing invitation", "invitation_key", invitationKey)
	} else if errors.Is(err, repository.ErrNotFound) {
		inv := &models.ConnectionInvitation{
			ID:            uuid.New().String(),
			TenantID:      t.ID,
			InvitationKey: invitationKey,
			Label:         "Local Dev Tenant",
			Reusable:      true,
			Invitation: map[string]any{
				"@type":           "https://didcomm.org/connections/1.0/invitation",
				"label":           "Local Dev Tenant",
				"recipient_keys":  []string{invitationKey},
				"service_endpoint": "http://localhost:8030",
			},
			Tags: []string{"seeded"},
		}
		if err := store.CreateInvitation(ctx, inv); err != nil {
			log.Fatalf("Failed to create invitation: %v", err)
		}
		logger.Info("Seeded reusable invitation", "invitation_key", invitationKey)
	} else {
		log.Fatalf("Failed to look up invitation: %v", err)
	}

	logger.Info("Seeding complete!")
}
