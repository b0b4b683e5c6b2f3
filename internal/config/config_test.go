package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"boardline/internal/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	if cfg.Storage.Backend != "memory" {
		t.Fatalf("backend = %q", cfg.Storage.Backend)
	}
	if cfg.Server.Addr != ":8484" || cfg.Server.BasePath != "/api/v1" {
		t.Fatalf("server defaults = %+v", cfg.Server)
	}
}

func TestFromYAML(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
storage:
  backend: sqlite
  path: data/boardline.db
server:
  addr: ":9000"
webhooks:
  - url: https://example.test/hook
    events: [ticket:created]
workflows:
  - id: triage
    name: Triage
    states: [inbox, accepted]
    transitions:
      inbox: [accepted]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Storage.Backend != "sqlite" || cfg.Storage.Path != "data/boardline.db" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Server.Addr != ":9000" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.BasePath != "/api/v1" {
		t.Fatalf("unset base path should default, got %q", cfg.Server.BasePath)
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].URL != "https://example.test/hook" {
		t.Fatalf("webhooks = %+v", cfg.Webhooks)
	}
	if len(cfg.Workflows) != 1 {
		t.Fatalf("workflows = %+v", cfg.Workflows)
	}
	w := cfg.Workflows[0].Domain()
	if w.ID != "triage" || len(w.States) != 2 || len(w.Transitions["inbox"]) != 1 {
		t.Fatalf("workflow conversion = %+v", w)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"unknown backend", "storage:\n  backend: oracle\n"},
		{"sqlite without path", "storage:\n  backend: sqlite\n"},
		{"postgres without dsn", "storage:\n  backend: postgres\n"},
		{"webhook without url", "webhooks:\n  - events: [ticket:created]\n"},
		{"workflow without id", "workflows:\n  - name: Nameless\n"},
		{"broken yaml", "storage: [\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := config.FromYAML([]byte(tc.yaml)); err == nil {
				t.Fatalf("want error")
			}
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()

	// Missing file means defaults.
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if cfg.Storage.Backend != "memory" {
		t.Fatalf("missing file should default: %+v", cfg.Storage)
	}

	if err := os.WriteFile(filepath.Join(dir, "boardline.yml"), []byte("storage:\n  backend: sqlite\n  path: db.sqlite\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err = config.LoadOptional(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Fatalf("config file ignored: %+v", cfg.Storage)
	}
}

func TestPath(t *testing.T) {
	if got := config.Path(""); got != "boardline.yml" {
		t.Fatalf("empty workspace path = %q", got)
	}
	if got := config.Path("/tmp/ws"); got != "/tmp/ws/boardline.yml" {
		t.Fatalf("path = %q", got)
	}
}
