package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aevon-lab/aevon-rollup/internal/core/granularity"
)

const stockDefinition = `
name: "stockAggregation"
source_event: "stockStream"
every: "sec...year"
group_by: ["symbol"]
aggregates:
  - {function: sum, field: price, as: totalPrice}
  - {function: avg, field: price, as: avgPrice}
`

func writeConfig(t *testing.T, definitions map[string]string, body string) string {
	t.Helper()
	root := t.TempDir()
	defsDir := filepath.Join(root, "aggregations")
	requireNoError(t, os.MkdirAll(defsDir, 0o755))
	for name, content := range definitions {
		requireNoError(t, os.WriteFile(filepath.Join(defsDir, name), []byte(content), 0o644))
	}

	cfgPath := filepath.Join(root, "aevon.yaml")
	requireNoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(body, defsDir)), 0o644))
	return cfgPath
}

func TestLoad_ValidConfigAndDefinitions(t *testing.T) {
	cfgPath := writeConfig(t, map[string]string{"stock.yaml": stockDefinition}, `
server:
  port: 8080
  host: "127.0.0.1"
  mode: "release"
database:
  type: "badger"
  path: "/var/lib/aevon"
aggregation:
  config_dir: "%s"
  flush_idle_after: "30s"
  late_policy: "drop"
recovery:
  lookback: "24h"
retention:
  enabled: true
  interval: "10m"
  max_age:
    seconds: "1h"
    minutes: "168h"
breaker:
  enabled: true
  timeout: "15s"
`)

	cfg, err := Load(cfgPath)
	requireNoError(t, err)
	if len(cfg.Definitions) != 1 {
		t.Fatalf("expected 1 loaded definition, got %d", len(cfg.Definitions))
	}
	if got := len(cfg.Definitions[0].Granularities); got != 6 {
		t.Errorf("expected sec...year to expand to 6 levels, got %d", got)
	}
	if cfg.Server.Addr() != "127.0.0.1:8080" {
		t.Errorf("unexpected addr %q", cfg.Server.Addr())
	}
	if cfg.Aggregation.IdleAfter() != 30*time.Second || cfg.Aggregation.SweepEvery() != 30*time.Second {
		t.Errorf("sweep should default to flush_idle_after, got idle=%s sweep=%s", cfg.Aggregation.IdleAfter(), cfg.Aggregation.SweepEvery())
	}
	if !cfg.Aggregation.SkipReplayed {
		t.Errorf("skip_replayed should default to true")
	}
	if cfg.Recovery.LookbackWindow() != 24*time.Hour {
		t.Errorf("unexpected lookback %s", cfg.Recovery.LookbackWindow())
	}
	if cfg.Breaker.BreakerTimeout() != 15*time.Second || cfg.Breaker.FailureThreshold != 5 {
		t.Errorf("unexpected breaker settings %+v", cfg.Breaker)
	}

	interval, maxAge, err := cfg.Retention.Policy()
	requireNoError(t, err)
	if interval != 10*time.Minute {
		t.Errorf("unexpected retention interval %s", interval)
	}
	if maxAge[granularity.Seconds] != time.Hour || maxAge[granularity.Minutes] != 168*time.Hour {
		t.Errorf("unexpected retention ages %v", maxAge)
	}
}

func TestLoad_SpansAcceptDaysAndYears(t *testing.T) {
	cfgPath := writeConfig(t, map[string]string{"stock.yaml": stockDefinition}, `
aggregation:
  config_dir: "%s"
recovery:
  lookback: "2y"
retention:
  enabled: true
  interval: "1h"
  max_age:
    seconds: "30d"
    hours: "36h"
`)

	cfg, err := Load(cfgPath)
	requireNoError(t, err)

	day := 24 * time.Hour
	if cfg.Recovery.LookbackWindow() != 730*day {
		t.Errorf("expected 2y lookback to be 730 days, got %s", cfg.Recovery.LookbackWindow())
	}
	_, maxAge, err := cfg.Retention.Policy()
	requireNoError(t, err)
	if maxAge[granularity.Seconds] != 30*day {
		t.Errorf("expected 30d seconds retention, got %s", maxAge[granularity.Seconds])
	}
	if maxAge[granularity.Hours] != 36*time.Hour {
		t.Errorf("expected 36h hours retention, got %s", maxAge[granularity.Hours])
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	cfgPath := writeConfig(t, map[string]string{"stock.yaml": stockDefinition}, `
database:
  type: "postgres"
aggregation:
  config_dir: "%s"
`)
	t.Setenv("AEVON_DATABASE__TYPE", "memory")
	t.Setenv("AEVON_SERVER__PORT", "9090")

	cfg, err := Load(cfgPath)
	requireNoError(t, err)
	if cfg.Database.Type != "memory" {
		t.Errorf("expected env to override database.type, got %q", cfg.Database.Type)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected env to override server.port, got %d", cfg.Server.Port)
	}
}

func TestLoad_InvalidConfigFailsStartup(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name: "invalid server port",
			body: `
server:
  port: -1
aggregation:
  config_dir: "%s"
`,
			wantErr: "invalid server.port",
		},
		{
			name: "unsupported database type",
			body: `
database:
  type: "sqlite"
aggregation:
  config_dir: "%s"
`,
			wantErr: "unsupported database.type",
		},
		{
			name: "invalid flush interval",
			body: `
aggregation:
  config_dir: "%s"
  flush_idle_after: "nope"
`,
			wantErr: "invalid aggregation.flush_idle_after",
		},
		{
			name: "invalid late policy",
			body: `
aggregation:
  config_dir: "%s"
  late_policy: "ignore"
`,
			wantErr: "invalid aggregation.late_policy",
		},
		{
			name: "retention level unknown",
			body: `
aggregation:
  config_dir: "%s"
retention:
  enabled: true
  max_age:
    weeks: "24h"
`,
			wantErr: "retention.max_age",
		},
		{
			name: "invalid lookback span",
			body: `
aggregation:
  config_dir: "%s"
recovery:
  lookback: "3w"
`,
			wantErr: "invalid recovery.lookback",
		},
		{
			name: "invalid retention span",
			body: `
aggregation:
  config_dir: "%s"
retention:
  enabled: true
  max_age:
    seconds: "-2d"
`,
			wantErr: "invalid retention.max_age.seconds",
		},
		{
			name: "retention without ages",
			body: `
aggregation:
  config_dir: "%s"
retention:
  enabled: true
`,
			wantErr: "retention requires",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfgPath := writeConfig(t, map[string]string{"stock.yaml": stockDefinition}, tc.body)
			_, err := Load(cfgPath)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoad_EnabledAggregationWithoutDefinitionsFailsStartup(t *testing.T) {
	cfgPath := writeConfig(t, nil, `
aggregation:
  config_dir: "%s"
  enabled: true
  require_definitions: true
`)

	_, err := Load(cfgPath)
	if err == nil || !strings.Contains(err.Error(), "no aggregation definitions found") {
		t.Fatalf("expected no definitions error, got %v", err)
	}
}

func TestLoad_InvalidDefinitionFileFailsStartup(t *testing.T) {
	cfgPath := writeConfig(t, map[string]string{"bad.yaml": `
name: "bad_definition"
source_event: "stockStream"
every: "year...sec"
aggregates:
  - {function: sum, field: price}
`}, `
aggregation:
  config_dir: "%s"
`)

	_, err := Load(cfgPath)
	if err == nil || !strings.Contains(err.Error(), "failed to load aggregation definitions") {
		t.Fatalf("expected definition load error, got %v", err)
	}
}

func requireNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
