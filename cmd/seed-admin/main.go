package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/garment_backend/config"
	"bitbucket.org/mmdatafocus/garment_backend/models"
)

// Seeds the first owner account. Run once against a fresh database:
//
//	go run ./cmd/seed-admin -username owner -name "Factory Owner"
//
// The password comes from SEED_ADMIN_PASSWORD to keep it out of shell
// history.
func main() {
	username := flag.String("username", "owner", "login username for the seeded account")
	name := flag.String("name", "Owner", "display name")
	flag.Parse()

	password := strings.TrimSpace(os.Getenv("SEED_ADMIN_PASSWORD"))
	if password == "" {
		fmt.Fprintln(os.Stderr, "SEED_ADMIN_PASSWORD is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx := context.Background()
	user, err := models.CreateUser(ctx, &models.NewUser{
		Name:     *name,
		Username: *username,
		Password: password,
		Role:     string(models.UserRoleOwner),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed owner: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded owner user id=%d username=%s\n", user.ID, user.Username)
}
