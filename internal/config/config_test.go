package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"canonkeep/internal/canon"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "canonkeep.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

const minimalConfig = `
project: test
version: 1
storage:
  driver: sqlite
  dsn: sqlite://canonkeep.db
`

func TestLoadProjectConfig(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := LoadProjectConfig(path)
	if err != nil {
		t.Fatalf("LoadProjectConfig: %v", err)
	}
	if cfg.Project != "test" || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadProjectConfig_EnvOverrides(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	t.Setenv("CANONKEEP_STORAGE_DSN", "sqlite://other.db")
	t.Setenv("CANONKEEP_LEASE_TTL_SECONDS", "120")

	cfg, err := LoadProjectConfig(path)
	if err != nil {
		t.Fatalf("LoadProjectConfig: %v", err)
	}
	if cfg.Storage.DSN != "sqlite://other.db" {
		t.Fatalf("dsn = %s", cfg.Storage.DSN)
	}
	if cfg.Lease.TTLSeconds != 120 {
		t.Fatalf("ttl = %d", cfg.Lease.TTLSeconds)
	}
}

func TestLoadProjectConfig_Invalid(t *testing.T) {
	cases := []struct {
		name     string
		contents string
		wantErr  string
	}{
		{"missing project", "version: 1\nstorage:\n  driver: sqlite\n  dsn: sqlite://x.db\n", "project name"},
		{"bad version", "project: p\nversion: 2\nstorage:\n  driver: sqlite\n  dsn: sqlite://x.db\n", "version"},
		{"bad driver", "project: p\nversion: 1\nstorage:\n  driver: mysql\n  dsn: x\n", "driver"},
		{"sqlite without dsn", "project: p\nversion: 1\nstorage:\n  driver: sqlite\n", "dsn is required"},
		{"neo4j without uri", "project: p\nversion: 1\nstorage:\n  driver: neo4j\n  dsn: sqlite://x.db\n", "neo4j uri"},
		{"neo4j without staging dsn", "project: p\nversion: 1\nstorage:\n  driver: neo4j\nneo4j:\n  uri: bolt://localhost:7687\n", "staging"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.contents)
			_, err := LoadProjectConfig(path)
			if err == nil {
				t.Fatalf("expected error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestEvalPolicy_Defaults(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	cfg, err := LoadProjectConfig(path)
	if err != nil {
		t.Fatalf("LoadProjectConfig: %v", err)
	}

	policy, err := cfg.EvalPolicy()
	if err != nil {
		t.Fatalf("EvalPolicy: %v", err)
	}
	if policy.Threshold != 0.6 {
		t.Fatalf("threshold = %g", policy.Threshold)
	}
	if policy.AuthorityWeights[canon.AuthoritySource] != 1.0 {
		t.Fatalf("source weight = %g", policy.AuthorityWeights[canon.AuthoritySource])
	}
}

func TestEvalPolicy_Overrides(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
policy:
  threshold: 0.7
  weights:
    confidence: 0.2
  authority_weights:
    gm: 0.9
  retcon_authorities:
    - source
`)
	cfg, err := LoadProjectConfig(path)
	if err != nil {
		t.Fatalf("LoadProjectConfig: %v", err)
	}

	policy, err := cfg.EvalPolicy()
	if err != nil {
		t.Fatalf("EvalPolicy: %v", err)
	}
	if policy.Threshold != 0.7 || policy.Weights.Confidence != 0.2 {
		t.Fatalf("overrides not applied: %+v", policy)
	}
	if policy.Weights.Authority != 0.3 {
		t.Fatalf("unset weights should keep defaults: %+v", policy.Weights)
	}
	if policy.AuthorityWeights[canon.AuthorityGM] != 0.9 {
		t.Fatalf("gm weight = %g", policy.AuthorityWeights[canon.AuthorityGM])
	}
	if policy.AllowsRetcon(canon.AuthorityGM) {
		t.Fatalf("retcon authorities should be replaced, not merged")
	}
	if !policy.AllowsRetcon(canon.AuthoritySource) {
		t.Fatalf("source should be allowed")
	}
}

func TestEvalPolicy_RejectsNonMonotonicWeights(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
policy:
  authority_weights:
    player: 0.95
`)
	if _, err := LoadProjectConfig(path); err == nil {
		t.Fatalf("expected validation error for player > gm")
	}
}
