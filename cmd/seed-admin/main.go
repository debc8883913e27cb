// seed-admin creates or updates the initial inventory-team user. The
// account is created pre-verified so it can log in without the email
// round trip.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-admin
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dlvery/dlvery_backend/config"
	"github.com/dlvery/dlvery_backend/models"
	"github.com/dlvery/dlvery_backend/utils"
	"gorm.io/gorm"
)

const (
	defaultUsername = "dlveryAdmin"
	defaultEmail    = "admin@dlvery.local"
	defaultFullName = "Dlvery Admin"
)

func main() {
	username := flag.String("username", defaultUsername, "admin username")
	email := flag.String("email", defaultEmail, "admin email")
	fullName := flag.String("full-name", defaultFullName, "admin full name")
	password := flag.String("password", "", "admin password (required)")
	flag.Parse()

	if *password == "" {
		fmt.Fprintln(os.Stderr, "-password is required")
		os.Exit(2)
	}
	if violations := utils.ValidatePassword(*password); len(violations) > 0 {
		for _, v := range violations {
			fmt.Fprintln(os.Stderr, v)
		}
		os.Exit(2)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 0)
	ctx = utils.SetUserNameInContext(ctx, "Seed")

	hashed, err := utils.HashPassword(*password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}
	hashedStr := string(hashed)

	var existing models.User
	err = db.WithContext(ctx).Model(&models.User{}).Where("username = ?", *username).First(&existing).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
			os.Exit(1)
		}
		u := models.User{
			Username:      *username,
			Email:         *email,
			FullName:      *fullName,
			PasswordHash:  &hashedStr,
			Role:          models.RoleInventoryTeam,
			OauthProvider: models.ProviderLocal,
			IsActive:      utils.NewTrue(),
			EmailVerified: utils.NewTrue(),
		}
		if err := db.WithContext(ctx).Create(&u).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created inventory admin: username=%q\n", *username)
		return
	}

	if err := db.WithContext(ctx).Model(&models.User{}).Where("username = ?", *username).Updates(map[string]any{
		"password_hash":  hashedStr,
		"email":          *email,
		"full_name":      *fullName,
		"role":           models.RoleInventoryTeam,
		"is_active":      utils.NewTrue(),
		"email_verified": utils.NewTrue(),
	}).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Updated inventory admin: username=%q\n", *username)
}
