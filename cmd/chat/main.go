// Package main implements a terminal chat client for the bug answer API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func main() {
	var (
		apiURL  = flag.String("api", envOr("CHATBOT_API_URL", "http://localhost:8000"), "bug answer API base URL")
		timeout = flag.Duration("timeout", 10*time.Second, "per-request timeout")
		verbose = flag.Bool("v", false, "log requests to stderr")
	)
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := newClient(*apiURL, *timeout, logger)
	if !c.Healthy(ctx) {
		fmt.Fprintf(os.Stderr, "cannot reach the chat API at %s, check that the service is running\n", *apiURL)
		os.Exit(1)
	}

	if err := newSession(c, os.Stdout).Run(ctx, os.Stdin); err != nil {
		logger.Error("chat session ended with error", "err", err)
		os.Exit(1)
	}
}
