// Command issue-token mints an access token for a subject and registers its
// session in the configured shared registry, so the token is accepted by
// every API instance until it expires or is revoked.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"secureshop.org/internal/auth"
	"secureshop.org/internal/config"
	"secureshop.org/internal/session"
)

func main() {
	log.SetFlags(0)
	var (
		subject = flag.String("subject", "", "user id the token is issued to")
		role    = flag.String("role", "", "admin, clerk or customer")
		email   = flag.String("email", "", "optional email claim")
		company = flag.String("company", "", "optional company id claim")
		ttl     = flag.Duration("ttl", 0, "token lifetime (defaults to SECURESHOP_TOKEN_TTL)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.SessionBackend == config.BackendMemory {
		log.Fatal("issue-token needs a shared session backend: set SECURESHOP_SESSION_BACKEND to redis or postgres")
	}

	r, err := auth.ParseRole(*role)
	if err != nil {
		log.Fatalf("role: %v", err)
	}
	lifetime := cfg.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sessions, closeSessions, err := session.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("session registry: %v", err)
	}
	defer closeSessions()

	codec, err := auth.NewJWTCodec(cfg.JWTSecret, auth.WithIssuer(cfg.JWTIssuer))
	if err != nil {
		log.Fatalf("jwt codec: %v", err)
	}
	token, expiresAt, err := session.Start(ctx, sessions, codec, auth.Identity{
		Subject:   *subject,
		Role:      r,
		Email:     *email,
		CompanyID: *company,
	}, lifetime)
	if err != nil {
		log.Fatalf("%v", err)
	}

	fmt.Fprintf(os.Stderr, "token for %s (%s) expires %s\n", *subject, r, expiresAt.UTC().Format(time.RFC3339))
	fmt.Println(token)
}
