package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"farmdeal/auth"
	"farmdeal/chat"
	"farmdeal/db"
	"farmdeal/deal"
	"farmdeal/listing"
	"farmdeal/logging"
	"farmdeal/profile"
)

func main() {
	ctx := context.Background()

	connString := os.Getenv("DATABASE_URL")
	pool, err := db.NewPool(ctx, connString)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	server := &Server{
		authService:    auth.NewService(auth.NewRepository(pool), jwtSecret),
		profileService: profile.NewService(profile.NewRepository(pool)),
		deals:          deal.NewPGStore(pool),
		listings:       listing.NewPGStore(pool),
		messages:       chat.NewPGRepository(pool, chat.NewHub()),
		log:            logger,
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info(ctx, "api listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatalf("http server: %v", err)
	}
}
