// Command bootstrap-user seeds an initial account in the datastore.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"vidstream/internal/models"
	"vidstream/internal/storage"
)

func main() {
	var (
		jsonPath    string
		postgresDSN string
		username    string
		email       string
		displayName string
		password    string
	)

	flag.StringVar(&jsonPath, "json", "", "Path to the JSON datastore (store.json)")
	flag.StringVar(&postgresDSN, "postgres-dsn", "", "Postgres connection string")
	flag.StringVar(&username, "username", "", "Username for the account")
	flag.StringVar(&email, "email", "", "Email address for the account")
	flag.StringVar(&displayName, "name", "", "Display name for the account")
	flag.StringVar(&password, "password", "", "Password for the account")
	flag.Parse()

	if jsonPath == "" && postgresDSN == "" {
		fatalf("either --json or --postgres-dsn must be provided")
	}
	if jsonPath != "" && postgresDSN != "" {
		fatalf("only one datastore option may be provided")
	}
	if strings.TrimSpace(username) == "" {
		fatalf("--username is required")
	}
	if strings.TrimSpace(email) == "" {
		fatalf("--email is required")
	}
	if len(password) < 8 {
		fatalf("--password must be at least 8 characters")
	}
	if strings.TrimSpace(displayName) == "" {
		displayName = strings.TrimSpace(username)
	}

	repo, err := openRepository(jsonPath, postgresDSN)
	if err != nil {
		fatalf("open datastore: %v", err)
	}
	defer closeRepository(repo)

	user, created, err := bootstrapUser(repo, username, email, displayName, password)
	if err != nil {
		fatalf("bootstrap user: %v", err)
	}

	state := "updated"
	if created {
		state = "created"
	}
	fmt.Printf("Account %s (%s) %s successfully.\n", user.Username, user.Email, state)
	if created {
		fmt.Println("Remember to rotate this password after the first login.")
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func openRepository(jsonPath, postgresDSN string) (storage.Repository, error) {
	if jsonPath != "" {
		return storage.NewJSONRepository(jsonPath)
	}
	return storage.NewPostgresRepository(postgresDSN)
}

func closeRepository(repo storage.Repository) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = repo.Close(ctx)
}

func bootstrapUser(repo storage.Repository, username, email, displayName, password string) (models.User, bool, error) {
	normalizedEmail := strings.ToLower(strings.TrimSpace(email))
	if existing, ok := repo.FindUserByLogin(username); ok {
		return updateExisting(repo, existing, normalizedEmail, displayName)
	}
	if existing, ok := repo.FindUserByLogin(normalizedEmail); ok {
		return updateExisting(repo, existing, normalizedEmail, displayName)
	}

	user, err := repo.CreateUser(storage.CreateUserParams{
		Username:    strings.TrimSpace(username),
		Email:       normalizedEmail,
		DisplayName: displayName,
		Password:    password,
	})
	if err != nil {
		return models.User{}, false, err
	}
	return user, true, nil
}

// updateExisting refreshes profile fields on an account that is already
// present. Passwords are never overwritten here; an existing owner changes
// theirs through the API.
func updateExisting(repo storage.Repository, existing models.User, email, displayName string) (models.User, bool, error) {
	var update storage.UserUpdate
	if existing.DisplayName != displayName {
		update.DisplayName = &displayName
	}
	if existing.Email != email {
		update.Email = &email
	}
	if update.DisplayName == nil && update.Email == nil {
		return existing, false, nil
	}
	updated, err := repo.UpdateUser(existing.ID, update)
	if err != nil {
		return models.User{}, false, err
	}
	return updated, false, nil
}
