// Package main mints development JWTs for calling the ChangeGate API.
//
// There is no user directory; identity lives entirely in the token. This
// command signs one with the configured secret so curl and e2e scripts can
// authenticate.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"changegate.io/changegate/internal/api/middleware"
	"changegate.io/changegate/internal/config"
	"changegate.io/changegate/internal/workflow"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "token error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	userID := flag.String("user", "dev-admin", "subject user id")
	username := flag.String("username", "", "display username (defaults to user id)")
	role := flag.String("role", string(workflow.RoleAdmin), "role claim: ADMIN, EDITOR or VIEWER")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if !workflow.Role(*role).IsValid() {
		return fmt.Errorf("unknown role %q", *role)
	}
	name := *username
	if name == "" {
		name = *userID
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	token, expiresAt, err := middleware.GenerateToken(middleware.JWTConfig{
		SigningKey: []byte(cfg.Security.JWTSecret),
		Issuer:     "changegate",
		ExpiresIn:  *ttl,
	}, *userID, name, *role)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires: %s\n", expiresAt.Format(time.RFC3339))
	return nil
}
