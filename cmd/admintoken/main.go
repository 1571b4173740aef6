// Command admintoken mints an admin bearer token signed with JWT_SECRET.
//
//	admintoken -subject ops@flowershop.example -ttl 8h
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/vaidashi/flower-shop-api/internal/auth"
	"github.com/vaidashi/flower-shop-api/internal/config"
	"github.com/vaidashi/flower-shop-api/pkg/logger"
)

func main() {
	subject := flag.String("subject", "admin", "token subject, usually the operator's email")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to JWT_TOKEN_TTL)")
	flag.Parse()

	cfg, err := config.Load()

	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *ttl > 0 {
		cfg.Auth.TokenTTL = *ttl
	}

	l := logger.NewLogger(cfg.LogLevel, logger.WithOutput(os.Stderr))

	authenticator, err := auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL, l)

	if err != nil {
		log.Fatalf("Failed to create authenticator: %v", err)
	}

	token, expires, err := authenticator.IssueToken(*subject, time.Now())

	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}

	l.Info("Admin token issued", "subject", *subject, "expiresAt", expires.Format(time.RFC3339))
	fmt.Println(token)
}
