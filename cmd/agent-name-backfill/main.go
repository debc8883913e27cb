// agent-name-backfill rewrites delivery rows that still carry a raw login
// id in delivery_agent with the agent's display name. Safe to re-run; rows
// already holding a display name are left alone.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/agent-name-backfill
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dlvery/dlvery_backend/config"
	"github.com/dlvery/dlvery_backend/models"
	"github.com/dlvery/dlvery_backend/utils"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	// Redis is optional here; without it the backfill lock degrades to
	// warn-and-proceed.
	if os.Getenv("REDIS_ADDRESS") != "" {
		config.ConnectRedisWithRetry()
	}

	ctx = utils.SetUserIdInContext(ctx, 0)
	ctx = utils.SetUserNameInContext(ctx, "AgentNameBackfill")

	updated, err := models.BackfillAgentDisplayNames(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backfill failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Backfill complete: %d delivery rows updated\n", updated)
}
