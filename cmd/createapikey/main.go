package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/makkenzo/apiguard/internal/domain/apikey"
	"github.com/makkenzo/apiguard/internal/storage/postgres"
	"github.com/makkenzo/apiguard/internal/util"
	"go.uber.org/zap"
)

func main() {
	name := flag.String("name", "Bootstrap Key", "Human-readable name for the key")
	principalIDStr := flag.String("principal", "", "Owning principal id (UUID, required)")
	tier := flag.String("tier", string(apikey.TierBasic), "Rate limit tier")
	scopesStr := flag.String("scopes", string(apikey.ScopeReadBrands), "Comma-separated scopes")
	flag.Parse()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	principalID, err := uuid.Parse(*principalIDStr)
	if err != nil {
		log.Fatalf("-principal must be a valid UUID: %v", err)
	}

	if !apikey.Tier(*tier).Valid() {
		log.Fatalf("Unknown tier: %s", *tier)
	}

	scopes, unknown := apikey.ParseScopes(*scopesStr)
	if len(unknown) > 0 {
		log.Printf("Ignoring unknown scopes: %v", unknown)
	}

	fullKey, prefix, keyHash, err := util.GenerateAPIKey()
	if err != nil {
		log.Fatalf("Failed to generate API key: %v", err)
	}

	fmt.Printf("Generated API Key (SAVE THIS securely!):\n%s\n\n", fullKey)
	fmt.Printf("Prefix: %s\n", prefix)
	fmt.Printf("Key Hash: %s\n", keyHash)

	logger, _ := zap.NewDevelopment()
	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v\n", err)
	}
	defer pool.Close()

	repo := postgres.NewAPIKeyRepository(pool, logger)

	newKeyRecord := &apikey.APIKey{
		KeyHash:     keyHash,
		Prefix:      prefix,
		Name:        *name,
		PrincipalID: principalID,
		IsActive:    true,
		Tier:        apikey.Tier(*tier),
		Scopes:      scopes,
	}

	keyID, err := repo.Create(context.Background(), newKeyRecord)
	if err != nil {
		log.Fatalf("Failed to save API key to database: %v", err)
	}

	fmt.Printf("\nAPI Key saved to database with ID: %s\n", keyID)
}
