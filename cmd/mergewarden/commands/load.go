package commands

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/mergewarden/mergewarden/internal/core/config"
	"github.com/mergewarden/mergewarden/internal/core/rules"
	githubclient "github.com/mergewarden/mergewarden/internal/integrations/github"
)

// loadConfig locates and loads the config file, honoring the --config flag.
func loadConfig() (*config.Config, string, error) {
	path := config.FindConfigPath(cfgFile)
	if path == "" {
		if cfgFile != "" {
			return nil, "", fmt.Errorf("config file %q not found", cfgFile)
		}
		return nil, "", fmt.Errorf("no configuration file found (looked for .github/mergewarden.yaml and .mergewarden.yaml)")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if verbose {
		log.Printf("[config] loaded %s (%d rules)", path, len(cfg.Rules))
	}
	return cfg, path, nil
}

// compileRules compiles the rule list leniently, logging every malformed
// rule. One bad rule never blocks the rest.
func compileRules(cfg *config.Config) *rules.RuleSet {
	rs, errs := cfg.CompileRules()
	for _, err := range errs {
		log.Printf("[config] skipping malformed rule: %v", err)
	}
	return rs
}

// newHostClient builds the GitHub client from the environment token and the
// dispatch settings.
func newHostClient(ctx context.Context, cfg *config.Config) *githubclient.Client {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		log.Printf("[github] GITHUB_TOKEN not set, using unauthenticated client")
	}
	retry := githubclient.DefaultRetryConfig()
	retry.MaxRetries = cfg.Dispatch.MaxRetries
	return githubclient.NewClient(ctx, token,
		githubclient.WithCallTimeout(time.Duration(cfg.Dispatch.TimeoutSeconds)*time.Second),
		githubclient.WithRetryConfig(retry),
	)
}
