package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"canonkeep/internal/canon"
	"canonkeep/internal/eval"
)

// DefaultPath is where LoadProjectConfig looks unless told otherwise.
const DefaultPath = "canonkeep.yaml"

type ProjectConfig struct {
	Project string        `yaml:"project"`
	Version int           `yaml:"version"`
	Storage StorageConfig `yaml:"storage"`
	Neo4j   Neo4jConfig   `yaml:"neo4j"`
	Policy  PolicyConfig  `yaml:"policy"`
	Lease   LeaseConfig   `yaml:"lease"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" env:"CANONKEEP_STORAGE_DRIVER"`
	DSN    string `yaml:"dsn" env:"CANONKEEP_STORAGE_DSN"`
}

type Neo4jConfig struct {
	URI      string `yaml:"uri" env:"CANONKEEP_NEO4J_URI"`
	Username string `yaml:"username" env:"CANONKEEP_NEO4J_USERNAME"`
	Password string `yaml:"password" env:"CANONKEEP_NEO4J_PASSWORD"`
	Database string `yaml:"database" env:"CANONKEEP_NEO4J_DATABASE"`
}

type PolicyConfig struct {
	Threshold         *float64           `yaml:"threshold"`
	Weights           WeightsConfig      `yaml:"weights"`
	AuthorityWeights  map[string]float64 `yaml:"authority_weights"`
	RetconAuthorities []string           `yaml:"retcon_authorities"`
}

type WeightsConfig struct {
	Authority   *float64 `yaml:"authority"`
	Evidence    *float64 `yaml:"evidence"`
	Consistency *float64 `yaml:"consistency"`
	Confidence  *float64 `yaml:"confidence"`
}

type LeaseConfig struct {
	TTLSeconds int `yaml:"ttl_seconds" env:"CANONKEEP_LEASE_TTL_SECONDS"`
}

// LoadProjectConfig reads the yaml config, applies environment
// overrides, and validates the result.
func LoadProjectConfig(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	if err := validateProjectConfig(&cfg); err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	return &cfg, nil
}

func validateProjectConfig(cfg *ProjectConfig) error {
	if strings.TrimSpace(cfg.Project) == "" {
		return fmt.Errorf("project name is required")
	}
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported version: %d", cfg.Version)
	}
	switch cfg.Storage.Driver {
	case "sqlite", "postgres":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			return fmt.Errorf("storage dsn is required for driver %s", cfg.Storage.Driver)
		}
	case "neo4j":
		if strings.TrimSpace(cfg.Neo4j.URI) == "" {
			return fmt.Errorf("neo4j uri is required for driver neo4j")
		}
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			return fmt.Errorf("storage dsn is required for staging alongside neo4j")
		}
	default:
		return fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}
	if cfg.Lease.TTLSeconds < 0 {
		return fmt.Errorf("lease ttl must not be negative: %d", cfg.Lease.TTLSeconds)
	}
	if _, err := cfg.EvalPolicy(); err != nil {
		return err
	}
	return nil
}

// EvalPolicy assembles the evaluation policy, falling back to the
// defaults for anything the config leaves unset.
func (cfg *ProjectConfig) EvalPolicy() (eval.Policy, error) {
	policy := eval.Default()

	if cfg.Policy.Threshold != nil {
		policy.Threshold = *cfg.Policy.Threshold
	}
	if w := cfg.Policy.Weights.Authority; w != nil {
		policy.Weights.Authority = *w
	}
	if w := cfg.Policy.Weights.Evidence; w != nil {
		policy.Weights.Evidence = *w
	}
	if w := cfg.Policy.Weights.Consistency; w != nil {
		policy.Weights.Consistency = *w
	}
	if w := cfg.Policy.Weights.Confidence; w != nil {
		policy.Weights.Confidence = *w
	}
	for name, weight := range cfg.Policy.AuthorityWeights {
		authority := canon.Authority(strings.ToLower(name))
		if !authority.Valid() {
			return eval.Policy{}, fmt.Errorf("unknown authority in authority_weights: %s", name)
		}
		policy.AuthorityWeights[authority] = weight
	}
	if len(cfg.Policy.RetconAuthorities) > 0 {
		policy.RetconAuthorities = nil
		for _, name := range cfg.Policy.RetconAuthorities {
			policy.RetconAuthorities = append(policy.RetconAuthorities, canon.Authority(strings.ToLower(name)))
		}
	}

	if err := policy.Validate(); err != nil {
		return eval.Policy{}, err
	}
	return policy, nil
}
