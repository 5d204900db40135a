package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mwantia/mdquery/engine"
	"github.com/mwantia/mdquery/engine/source/mount"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "mdquery.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  json: true
engine:
  home: /Users/me
  batch_interval: 250ms
source:
  address: memory://
query:
  scopes: [kMDQueryScopeComputer]
  limit: 10
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Log.Level != "debug" || !cfg.Log.JSON {
		t.Errorf("unexpected log section %+v", cfg.Log)
	}
	if cfg.Engine.Home != "/Users/me" || cfg.Engine.BatchInterval != 250*time.Millisecond {
		t.Errorf("unexpected engine section %+v", cfg.Engine)
	}
	// Unset values keep their defaults
	if cfg.Engine.RestartRetries != engine.DefaultRestartRetries {
		t.Errorf("RestartRetries = %d, want default", cfg.Engine.RestartRetries)
	}
	if cfg.Source.Address != "memory://" || cfg.Query.Limit != 10 || len(cfg.Query.Scopes) != 1 {
		t.Errorf("unexpected config %+v", cfg)
	}

	e, err := cfg.NewEngine(cfg.Logger("test"))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if e.Source().Name() != "memory" {
		t.Errorf("source = %s, want memory", e.Source().Name())
	}
}

func TestLoad_Mounts(t *testing.T) {
	path := writeConfig(t, `
source:
  address: memory://
  mounts:
    - path: /Volumes/scratch
      address: memory://
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	src, err := cfg.NewSource()
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}

	ms, ok := src.(*mount.MountSource)
	if !ok {
		t.Fatalf("expected mount source, got %T", src)
	}
	infos := ms.Mounts()
	if len(infos) != 2 || infos[0].Path != "/" || infos[1].Path != "/Volumes/scratch" {
		t.Errorf("unexpected mounts %+v", infos)
	}
}

func TestLoad_Empty(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source.Address == "" || cfg.Engine.BatchInterval != engine.DefaultBatchInterval {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"syntax":   "log: [",
		"level":    "log:\n  level: loud\n",
		"interval": "engine:\n  batch_interval: 0s\n",
		"limit":    "query:\n  limit: -1\n",
		"address":  "source:\n  address: \"\"\n",
		"mount":    "source:\n  mounts:\n    - path: /x\n",
	}

	for name, content := range tests {
		t.Run(name, func(tst *testing.T) {
			if _, err := Load(writeConfig(tst, content)); err == nil {
				tst.Fatal("expected error")
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
