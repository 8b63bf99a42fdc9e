package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"log"
	"os"
	"time"

	"storefront/config"
	"storefront/internal/auth"
	"storefront/internal/models"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

//go:embed catalog.json
var catalogJSON []byte

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()
	logger := util.GetLogger()

	adminEmail := os.Getenv("SEED_ADMIN_EMAIL")
	if adminEmail == "" {
		adminEmail = "admin@example.com"
	}
	adminPassword := os.Getenv("SEED_ADMIN_PASSWORD")
	if len(adminPassword) < 6 {
		log.Fatal("SEED_ADMIN_PASSWORD must be set to at least 6 characters")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := store.NewStore(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	sessions, err := auth.NewSessionManager(cfg.Session.Secret, cfg.Session.TTL)
	if err != nil {
		log.Fatalf("Failed to initialize sessions: %v", err)
	}
	accounts := service.NewAccountService(db, sessions)

	admin, err := accounts.CreateAdmin(ctx, "Admin", adminEmail, adminPassword)
	if err != nil {
		log.Fatalf("Failed to create admin: %v", err)
	}
	logger.Info("Admin account ready", zap.String("email", admin.Email))

	existing, err := db.ListProducts(ctx, store.ProductFilter{})
	if err != nil {
		log.Fatalf("Failed to read catalog: %v", err)
	}
	if len(existing) > 0 {
		logger.Info("Catalog already populated, skipping products", zap.Int("products", len(existing)))
		return
	}

	var products []service.ProductInput
	if err := json.Unmarshal(catalogJSON, &products); err != nil {
		log.Fatalf("Failed to decode catalog: %v", err)
	}

	catalog := service.NewCatalogService(db)
	identity := &auth.Identity{UserID: admin.ID, Role: models.RoleAdmin}
	for i := range products {
		p, err := catalog.CreateProduct(ctx, identity, &products[i])
		if err != nil {
			log.Fatalf("Failed to create product %q: %v", products[i].Name, err)
		}
		logger.Info("Product created", zap.String("name", p.Name))
	}
}
