package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/fastygo/magiclink/internal/app"
	"github.com/fastygo/magiclink/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	apiURL := flag.String("api", "", "API base URL (overrides API_URL)")
	profile := flag.String("profile", "", "session profile (overrides SESSION_PROFILE)")
	driver := flag.String("session", "", "session driver: bolt, redis or memory (overrides SESSION_DRIVER)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *apiURL != "" {
		cfg.API.BaseURL = strings.TrimRight(*apiURL, "/")
	}
	if *profile != "" {
		cfg.Session.Profile = *profile
	}
	if *driver != "" {
		cfg.Session.Driver = strings.ToLower(*driver)
	}
	if *verbose {
		cfg.Logger.Level = "debug"
	}

	client, err := app.New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("startup error: %v", err)
	}

	ctx, cancel := client.Listen(context.Background())
	runErr := client.Run(ctx, flag.Args())
	cancel()

	if runErr != nil && !errors.Is(runErr, app.ErrUsage) {
		client.Logger().Error("command failed", zap.Error(runErr))
	}
	if err := client.Close(context.Background()); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	if runErr != nil {
		os.Exit(1)
	}
}
