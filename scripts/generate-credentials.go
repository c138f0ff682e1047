//go:build ignore

// This script issues a session token and optionally an API key for a user.
// Run with: go run scripts/generate-credentials.go -config config.yaml -user alice -role analyst
//
// The API key flow writes the key record to the configured database, so the
// database must be reachable and migrated.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/chainscope/bridge-sentinel/pkg/auth"
	"github.com/chainscope/bridge-sentinel/pkg/config"
	"github.com/chainscope/bridge-sentinel/pkg/pgutil"
	"github.com/chainscope/bridge-sentinel/pkg/store"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to configuration file")
	userID := flag.String("user", "", "User id the credential belongs to")
	email := flag.String("email", "", "User email embedded in the session token")
	role := flag.String("role", "analyst", "Role: admin, analyst or partner")
	withKey := flag.Bool("api-key", false, "Also issue a long-lived API key")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "missing -user")
		os.Exit(1)
	}
	if !auth.ValidRole(auth.Role(*role)) {
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(1)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	tokens := auth.NewTokenService(cfg.Auth.TokenSecret, cfg.Auth.TokenIssuer, cfg.Auth.TokenTTL)
	token, err := tokens.IssueToken(*userID, *email, auth.Role(*role))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to issue token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Session token:")
	fmt.Println(token)

	if !*withKey {
		return
	}

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	keys := auth.NewAPIKeyService(store.New(db))
	plaintext, rec, err := keys.IssueKey(context.Background(), *userID, auth.Role(*role), nil, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to issue api key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("API key (store it now, the secret is not retrievable):")
	fmt.Println(plaintext)
	fmt.Printf("Key id: %s\n", rec.ID)
}
