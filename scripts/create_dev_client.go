package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/franciscosanchezn/authzilla/internal/database"
	"github.com/franciscosanchezn/authzilla/internal/models"
	"github.com/franciscosanchezn/authzilla/internal/services"
	"github.com/joho/godotenv"
)

func main() {
	// Parse command line flags
	dbPath := flag.String("db", "authzilla.sqlite", "SQLite database file")
	email := flag.String("email", "dev@authzilla.local", "Owner email")
	password := flag.String("password", "dev-password-123", "Owner password, used only when the user is created")
	redirectURI := flag.String("redirect-uri", "http://localhost:3000/callback", "Registered redirect URI")
	public := flag.Bool("public", false, "Create a public client (no secret)")
	rotate := flag.Bool("rotate", false, "Enable refresh token rotation")
	flag.Parse()

	_ = godotenv.Load()
	ctx := context.Background()

	db, err := database.InitDatabase(ctx, database.DatabaseConfig{Driver: "sqlite", Path: *dbPath})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	users := services.NewUserService(db)
	clients := services.NewClientService(db)

	// Get or create the owner
	owner, err := users.GetUserByEmail(ctx, *email)
	if errors.Is(err, services.ErrUserNotFound) {
		owner = &models.User{Email: *email, Name: "Development User", Password: *password}
		if err := users.CreateUser(ctx, owner); err != nil {
			log.Fatal("Failed to create user:", err)
		}
		fmt.Printf("Created new user: %s (ID: %d)\n", owner.Email, owner.ID)
	} else if err != nil {
		log.Fatal("Failed to look up user:", err)
	} else {
		fmt.Printf("Found existing user: %s (ID: %d)\n", owner.Email, owner.ID)
	}

	client, secret, err := clients.CreateClient(ctx, owner.ID, services.CreateClientInput{
		Name:         "Development Client",
		Domain:       "http://localhost",
		Public:       *public,
		RedirectURIs: []string{*redirectURI},
	})
	if err != nil {
		log.Fatal("Failed to create client:", err)
	}

	if *rotate {
		blob, err := clients.LookupConfiguration(ctx, client.ID)
		if err != nil {
			log.Fatal("Failed to load client configuration:", err)
		}
		blob.Refresh.RotationEnabled = true
		if _, err := clients.PushConfiguration(ctx, client.ID, owner.ID, *blob); err != nil {
			log.Fatal("Failed to update client configuration:", err)
		}
	}

	fmt.Println("✓ Development OAuth client created!")
	fmt.Printf("Client ID: %s\n", client.ID)
	if secret != "" {
		fmt.Printf("Client Secret: %s\n", secret)
	}
	fmt.Printf("Redirect URI: %s\n", *redirectURI)
	fmt.Println("\nLog in, then open the authorization URL in the same browser:")
	fmt.Printf("curl -c cookies.txt -X POST http://localhost:8080/api/v1/auth/login \\\n")
	fmt.Printf("  -H 'Content-Type: application/json' -d '{\"email\":\"%s\",\"password\":\"...\"}'\n", owner.Email)
	fmt.Printf("http://localhost:8080/oauth/authorize?response_type=code&client_id=%s&redirect_uri=%s&state=dev\n", client.ID, *redirectURI)
	if secret != "" {
		fmt.Println("\nOr request a machine token:")
		fmt.Printf("curl -X POST http://localhost:8080/oauth/token \\\n")
		fmt.Printf("  -d 'grant_type=client_credentials' \\\n")
		fmt.Printf("  -u '%s:%s'\n", client.ID, secret)
	}
}
