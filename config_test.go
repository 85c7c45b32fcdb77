package dbpool

import (
	"testing"
	"time"
)

const sampleConfig = `
targets:
  - key: primary
    driver: postgres
    dsn: "host=10.0.0.1 dbname=app"
    maxsize: 20
    maxwait: 1.5
    expires: 600
    cleanup: 60
  - key: replica
    driver: mysql
    dsn: "app:secret@tcp(10.0.0.2:3306)/app"
`

func TestConfigParse(t *testing.T) {
	var c FileConfig
	if err := c.Parse([]byte(sampleConfig)); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(c.Targets) != 2 {
		t.Fatalf("targets = %d, want 2", len(c.Targets))
	}

	primary, ok := c.Target("primary")
	if !ok {
		t.Fatal("primary target missing")
	}
	if primary.Driver != "postgres" || primary.MaxSize != 20 {
		t.Errorf("primary = %+v", primary)
	}

	cfg := primary.PoolConfig(&mockFactory{})
	if cfg.MaxWait != 1500*time.Millisecond {
		t.Errorf("maxwait = %v", cfg.MaxWait)
	}
	if cfg.Expires != 10*time.Minute || cfg.Cleanup != time.Minute {
		t.Errorf("expires = %v cleanup = %v", cfg.Expires, cfg.Cleanup)
	}
}

func TestConfigDefaults(t *testing.T) {
	var c FileConfig
	if err := c.Parse([]byte(sampleConfig)); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	replica, _ := c.Target("replica")
	cfg := replica.PoolConfig(&mockFactory{})
	if cfg.MaxSize != DefaultMaxSize {
		t.Errorf("maxsize = %d, want default %d", cfg.MaxSize, DefaultMaxSize)
	}
	if cfg.MaxWait != 0 {
		t.Errorf("maxwait = %v, want fail-fast 0", cfg.MaxWait)
	}
}

func TestConfigRejectsMissingKey(t *testing.T) {
	var c FileConfig
	err := c.Parse([]byte("targets:\n  - dsn: \"dbname=x\"\n"))
	if err == nil {
		t.Error("expected an error for a target without key")
	}
}

func TestConfigTargetNotFound(t *testing.T) {
	var c FileConfig
	if _, ok := c.Target("nope"); ok {
		t.Error("found a target in an empty config")
	}
}
