// Package config handles loading the merge-warden configuration file and
// compiling its declarative rule list into an executable rule set.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/mergewarden/mergewarden/internal/core/host"
	"github.com/mergewarden/mergewarden/internal/core/rules"
)

// Config is the root configuration structure.
type Config struct {
	// Server configures the webhook listener.
	Server ServerConfig `yaml:"server"`

	// Dispatch configures hosting-API call behavior.
	Dispatch DispatchConfig `yaml:"dispatch"`

	// BotUsers lists additional author names treated as bots. Events
	// authored by bots are dropped to prevent self-trigger loops.
	BotUsers []string `yaml:"bot_users,omitempty"`

	// Repositories lists the repositories this config applies to. Empty
	// means all repositories are allowed (single-repo mode).
	Repositories []RepositoryConfig `yaml:"repositories,omitempty"`

	// Rules is the ordered rule list. Order is significant: earlier rules
	// win conflicts between terminal actions.
	Rules []RuleConfig `yaml:"rules"`
}

// ServerConfig holds webhook listener settings.
type ServerConfig struct {
	Addr          string `yaml:"addr"`
	WebhookSecret string `yaml:"webhook_secret,omitempty"`
}

// DispatchConfig holds hosting-API call settings.
type DispatchConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
	MaxRetries     int `yaml:"max_retries"`
}

// RepositoryConfig enables processing for one repository.
type RepositoryConfig struct {
	Org     string `yaml:"org"`
	Repo    string `yaml:"repo"`
	Enabled bool   `yaml:"enabled"`
}

// RuleConfig is the declarative form of one rule. Conditions items are
// either predicate strings or nested and/or/not blocks.
type RuleConfig struct {
	Name       string        `yaml:"name"`
	Conditions []any         `yaml:"conditions"`
	Actions    ActionsConfig `yaml:"actions"`
}

// ActionsConfig is the actions block of a rule. Key presence, not value,
// decides whether an action is requested, so a bare "close:" counts.
type ActionsConfig struct {
	Close   *CloseAction
	Comment *CommentAction
	Merge   *MergeAction
	Squash  *SquashAction
}

// CloseAction closes the pull request.
type CloseAction struct{}

// CommentAction posts a templated comment.
type CommentAction struct {
	Message string `yaml:"message"`
}

// MergeAction merges the pull request with the given method.
type MergeAction struct {
	Method string `yaml:"method,omitempty"`
}

// SquashAction squash-merges with a templated commit message.
type SquashAction struct {
	CommitMessage string `yaml:"commit_message,omitempty"`
}

// UnmarshalYAML decodes the actions mapping key by key so that null-valued
// keys ("close:" with no body) still register the action.
func (a *ActionsConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("actions must be a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]
		switch key {
		case "close":
			a.Close = &CloseAction{}
			if err := decodeAction(val, a.Close); err != nil {
				return fmt.Errorf("close: %w", err)
			}
		case "comment":
			a.Comment = &CommentAction{}
			if err := decodeAction(val, a.Comment); err != nil {
				return fmt.Errorf("comment: %w", err)
			}
		case "merge":
			a.Merge = &MergeAction{}
			if err := decodeAction(val, a.Merge); err != nil {
				return fmt.Errorf("merge: %w", err)
			}
		case "squash":
			a.Squash = &SquashAction{}
			if err := decodeAction(val, a.Squash); err != nil {
				return fmt.Errorf("squash: %w", err)
			}
		default:
			return fmt.Errorf("unknown action %q (want close, comment, merge, squash)", key)
		}
	}
	return nil
}

func decodeAction(val *yaml.Node, out any) error {
	if val.Tag == "!!null" {
		return nil
	}
	return val.Decode(out)
}

// Load reads a config file from the given path and expands environment
// variables in its content.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// FindConfigPath searches for a config file in standard locations.
func FindConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	candidates := []string{
		".github/mergewarden.yaml",
		".github/mergewarden.yml",
		".mergewarden.yaml",
		".mergewarden.yml",
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			abs, _ := filepath.Abs(c)
			return abs
		}
	}

	return ""
}

// applyDefaults sets default values for unset fields.
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Dispatch.TimeoutSeconds <= 0 {
		c.Dispatch.TimeoutSeconds = 30
	}
	if c.Dispatch.MaxRetries <= 0 {
		c.Dispatch.MaxRetries = 4
	}
}

// CompileRules compiles the declarative rule list into a rule set. It is
// lenient: malformed rules are returned as errors and skipped, but never
// block compilation of the remaining rules.
func (c *Config) CompileRules() (*rules.RuleSet, []error) {
	var compiled []rules.Rule
	var errs []error
	seen := make(map[string]struct{}, len(c.Rules))

	for i, rc := range c.Rules {
		r, err := compileRule(rc)
		if err != nil {
			errs = append(errs, fmt.Errorf("rules[%d]: %w", i, err))
			continue
		}
		if _, dup := seen[r.Name]; dup {
			errs = append(errs, fmt.Errorf("rules[%d]: duplicate rule name %q", i, r.Name))
			continue
		}
		seen[r.Name] = struct{}{}
		compiled = append(compiled, r)
	}

	rs, err := rules.NewRuleSet(compiled)
	if err != nil {
		// Shape and uniqueness were already enforced above.
		errs = append(errs, err)
		rs = &rules.RuleSet{}
	}
	return rs, errs
}

func compileRule(rc RuleConfig) (rules.Rule, error) {
	if rc.Name == "" {
		return rules.Rule{}, fmt.Errorf("rule without a name")
	}

	cond, err := rules.ParseConditions(rc.Conditions)
	if err != nil {
		return rules.Rule{}, &rules.EvaluationError{Rule: rc.Name, Err: err}
	}

	actions, err := compileActions(rc.Actions)
	if err != nil {
		return rules.Rule{}, &rules.EvaluationError{Rule: rc.Name, Err: err}
	}
	if len(actions) == 0 {
		return rules.Rule{}, &rules.EvaluationError{Rule: rc.Name, Err: fmt.Errorf("no actions")}
	}

	return rules.Rule{Name: rc.Name, Condition: cond, Actions: actions}, nil
}

func compileActions(ac ActionsConfig) ([]rules.Action, error) {
	var actions []rules.Action

	if ac.Comment != nil {
		if ac.Comment.Message == "" {
			return nil, fmt.Errorf("comment action requires a message")
		}
		if _, err := template.New("comment").Parse(ac.Comment.Message); err != nil {
			return nil, fmt.Errorf("comment template: %w", err)
		}
		actions = append(actions, rules.Action{Kind: rules.ActionComment, Message: ac.Comment.Message})
	}
	if ac.Close != nil {
		actions = append(actions, rules.Action{Kind: rules.ActionClose})
	}
	if ac.Merge != nil {
		method, err := mergeMethod(ac.Merge.Method)
		if err != nil {
			return nil, err
		}
		actions = append(actions, rules.Action{Kind: rules.ActionMerge, Method: method})
	}
	if ac.Squash != nil {
		if ac.Squash.CommitMessage != "" {
			if _, err := template.New("squash").Parse(ac.Squash.CommitMessage); err != nil {
				return nil, fmt.Errorf("squash commit message template: %w", err)
			}
		}
		actions = append(actions, rules.Action{
			Kind:    rules.ActionSquash,
			Message: ac.Squash.CommitMessage,
			Method:  host.MergeMethodSquash,
		})
	}

	return actions, nil
}

func mergeMethod(m string) (host.MergeMethod, error) {
	switch m {
	case "", "merge":
		return host.MergeMethodMerge, nil
	case "squash":
		return host.MergeMethodSquash, nil
	case "rebase":
		return host.MergeMethodRebase, nil
	}
	return "", fmt.Errorf("unknown merge method %q (want merge, squash, rebase)", m)
}

// RepositoryEnabled reports whether the given repository may be processed.
// An empty repositories list allows everything.
func (c *Config) RepositoryEnabled(org, repo string) bool {
	if len(c.Repositories) == 0 {
		return true
	}
	for _, rc := range c.Repositories {
		if rc.Org == org && rc.Repo == repo {
			return rc.Enabled
		}
	}
	return false
}
