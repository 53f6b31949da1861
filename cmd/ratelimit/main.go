// Command ratelimit starts the service application.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/3arlN3t/Realitychecker-sub002/internal/ratelimit"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	printOnly := len(args) > 0 && args[0] == "print_config"
	if printOnly {
		args = args[1:]
	}

	cfg, err := ratelimit.LoadConfig(ratelimit.LoadOptions{Args: args})
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if printOnly {
		if err := ratelimit.PrintConfig(os.Stdout, cfg); err != nil {
			log.Fatalf("failed to print configuration: %v", err)
		}
		return
	}

	app, err := ratelimit.NewApplication(cfg)
	if err != nil {
		log.Fatalf("failed to create application: %v", err)
	}

	if err := app.Start(ctx); err != nil {
		log.Fatalf("failed to start application: %v", err)
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("failed to shutdown application: %v", err)
	}
}
