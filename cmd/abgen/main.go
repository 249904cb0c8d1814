// Package main implements the abgen binary, which writes a synthetic A/B
// checkout experiment dataset.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Printf("abgen: %v", err)
		stop()
		os.Exit(1)
	}
}
