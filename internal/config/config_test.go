package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"lifehub/internal/config"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "lifehub.yaml")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:8080" || cfg.WorkHours.Start != 8 || cfg.WorkHours.End != 18 {
		t.Errorf("defaults = %+v", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lifehub.yaml")
	yml := `
listen: ":9090"
work_hours:
  start: 9
  end: 30
ics:
  - url: https://example.com/team.ics
    name: team
    calendar_id: work
mirror:
  dsn: "host=db user=lifehub"
  user_id: u1
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.WorkHours != (config.WorkHoursConfig{Start: 8, End: 18}) {
		t.Errorf("invalid work hours not reset: %+v", cfg.WorkHours)
	}
	if cfg.RefreshCron != "*/15 * * * *" || cfg.HorizonDays != 30 {
		t.Errorf("defaults not filled: %+v", cfg)
	}
	if len(cfg.ICS) != 1 || cfg.ICS[0].ID != "team" || cfg.ICS[0].CalendarID != "work" {
		t.Errorf("ICS = %+v", cfg.ICS)
	}
	if cfg.Mirror.UserID != "u1" {
		t.Errorf("Mirror = %+v", cfg.Mirror)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lifehub.yaml")
	cfg := config.DefaultConfig()
	cfg.Timezone = "Europe/Berlin"
	cfg.Auth.JWTSecret = "s3cret"

	if err := config.Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Timezone != "Europe/Berlin" || loaded.Auth.JWTSecret != "s3cret" {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestLocationFallsBackToLocal(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Timezone = "Not/AZone"
	if cfg.Location() != time.Local {
		t.Error("unknown zone should fall back to time.Local")
	}
	cfg.Timezone = "UTC"
	if cfg.Location().String() != "UTC" {
		t.Errorf("Location = %v", cfg.Location())
	}
}
