package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/supertedai/memgate/internal/sched"
	"github.com/supertedai/memgate/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, db, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// Embed any facts missing vectors from earlier degraded runs.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if n, err := eng.EmbedMissingFacts(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "embed missing: %v\n", err)
		} else if n > 0 {
			fmt.Fprintf(os.Stderr, "  embedded %d missing facts\n", n)
		}
	}()

	var runner *sched.Runner
	if cfg.Maintenance.Schedule != "" {
		runner, err = sched.New(eng, cfg.Maintenance.Schedule)
		if err != nil {
			return err
		}
		runner.Start()
		defer runner.Stop()
		fmt.Fprintf(os.Stderr, "  maintenance: %s\n", cfg.Maintenance.Schedule)
	}

	srv := server.New(db, eng, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "memgate serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", db.Path)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
