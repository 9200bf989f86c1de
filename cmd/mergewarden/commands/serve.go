package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mergewarden/mergewarden/internal/core/config"
	"github.com/mergewarden/mergewarden/internal/core/engine"
	"github.com/mergewarden/mergewarden/internal/core/rules"
	"github.com/mergewarden/mergewarden/internal/server"
)

var serveAddr string

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook listener and process events as they arrive",
	Long: `Starts the HTTP listener the webhook transport delivers events to.

Events for distinct pull requests are processed in parallel; events for the
same pull request are serialized. SIGHUP reloads the rule file without
dropping in-flight evaluations.

Environment variables:
  GITHUB_TOKEN   Required for side effects. Token with repo permissions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
}

func runServe() error {
	cfg, cfgPath, err := loadConfig()
	if err != nil {
		return err
	}

	ruleset := compileRules(cfg)
	if len(ruleset.Rules) == 0 {
		log.Printf("[serve] warning: rule set is empty, every event will be a no-op")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hostClient := newHostClient(ctx, cfg)

	eng, err := engine.New(cfg, ruleset, hostClient, engine.WithDryRun(dryRun))
	if err != nil {
		return err
	}

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.New(eng, cfg.Server.WebhookSecret),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// SIGHUP swaps the rule set atomically; a failed reload keeps the old
	// rules.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			reloaded, err := reloadRules(cfgPath)
			if err != nil {
				log.Printf("[serve] reload failed, keeping current rule set: %v", err)
				continue
			}
			eng.SwapRuleSet(reloaded)
			log.Printf("[serve] rule set reloaded (%d rules)", len(reloaded.Rules))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[serve] listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Printf("[serve] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// reloadRules re-reads and recompiles the config file used at startup.
func reloadRules(path string) (*rules.RuleSet, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return compileRules(cfg), nil
}
