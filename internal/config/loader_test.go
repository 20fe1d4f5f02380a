package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", "addr: :9999\nlibraries_dir: /tmp\nquiet_ms: 350\ncache_capacity: 10\npreview_level: auto\n")
	cfg, err := Load(p)
	if err != nil { t.Fatalf("load: %v", err) }
	if cfg.Addr != ":9999" || cfg.LibrariesDir != "/tmp" || cfg.QuietMs != 350 || cfg.CacheCapacity != 10 || cfg.PreviewLevel != "auto" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"addr":":7070","libraries_dir":"/m","job_timeout_ms":60000,"queue_capacity":20,"export_level":"high"}`)
	cfg, err := Load(p)
	if err != nil { t.Fatalf("load: %v", err) }
	if cfg.Addr != ":7070" || cfg.LibrariesDir != "/m" || cfg.JobTimeoutMs != 60000 || cfg.QueueCapacity != 20 || cfg.ExportLevel != "high" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "addr=\":8081\"\nlibraries_dir=\"/x\"\nworker_bin=\"/usr/bin/geomkernel\"\nworker_args=[\"--vfs\"]\nhardware_level=\"low\"\n")
	cfg, err := Load(p)
	if err != nil { t.Fatalf("load: %v", err) }
	if cfg.Addr != ":8081" || cfg.LibrariesDir != "/x" || cfg.WorkerBin != "/usr/bin/geomkernel" || len(cfg.WorkerArgs) != 1 || cfg.HardwareLevel != "low" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil { t.Fatalf("expected error on empty path") }
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil { t.Fatalf("expected unsupported extension error") }
}
