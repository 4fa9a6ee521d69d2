package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults() should validate: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{
			name:   "unknown mode",
			mutate: func(c *Config) { c.Mode = "batch" },
			want:   "unknown mode",
		},
		{
			name:   "unknown log level",
			mutate: func(c *Config) { c.LogLevel = "verbose" },
			want:   "unknown log_level",
		},
		{
			name: "encrypted key without password",
			mutate: func(c *Config) {
				c.Authority.EncryptedKeyPath = "/etc/marketd/key.json"
				c.Authority.KeyPassword = ""
			},
			want: "key_password is required",
		},
		{
			name:   "postgres port out of range",
			mutate: func(c *Config) { c.Postgres.Port = 70000 },
			want:   "postgres: port",
		},
		{
			name: "pool min exceeds max",
			mutate: func(c *Config) {
				c.Postgres.PoolMinConns = 20
				c.Postgres.PoolMaxConns = 5
			},
			want: "pool_min_conns must not exceed",
		},
		{
			name:   "empty redis addr",
			mutate: func(c *Config) { c.Redis.Addr = "" },
			want:   "redis: addr",
		},
		{
			name: "archive enabled without bucket",
			mutate: func(c *Config) {
				c.Archive.Enabled = true
				c.S3.Bucket = ""
			},
			want: "s3: bucket",
		},
		{
			name: "archive enabled with zero interval",
			mutate: func(c *Config) {
				c.Archive.Enabled = true
				c.Archive.Interval = duration{}
			},
			want: "archive: interval",
		},
		{
			name:   "negative rate limit",
			mutate: func(c *Config) { c.Server.RateLimit = -1 },
			want:   "rate_limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.Redis.Addr = ""
	cfg.Server.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	for _, want := range []string{"unknown mode", "redis: addr", "server: port"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("combined error missing %q:\n%s", want, err.Error())
		}
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d duration
	if err := d.UnmarshalText([]byte("90s")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if d.Duration != 90*time.Second {
		t.Errorf("got %v, want 90s", d.Duration)
	}

	if err := d.UnmarshalText([]byte("not-a-duration")); err == nil {
		t.Error("expected error for invalid duration string")
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
mode = "full"
log_level = "debug"

[postgres]
host = "db.internal"
port = 5433

[archive]
enabled = true
interval = "30m"

[server]
rate_limit = 5
rate_window = "10s"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MARKETD_POSTGRES_PASSWORD", "hunter2")
	t.Setenv("MARKETD_SERVER_RATE_LIMIT", "50")
	t.Setenv("MARKETD_MODE", "archive")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// File values override defaults.
	if cfg.Postgres.Host != "db.internal" || cfg.Postgres.Port != 5433 {
		t.Errorf("postgres = %s:%d, want db.internal:5433", cfg.Postgres.Host, cfg.Postgres.Port)
	}
	if cfg.Archive.Interval.Duration != 30*time.Minute {
		t.Errorf("archive interval = %v, want 30m", cfg.Archive.Interval.Duration)
	}
	if cfg.Server.RateWindow.Duration != 10*time.Second {
		t.Errorf("rate window = %v, want 10s", cfg.Server.RateWindow.Duration)
	}

	// Defaults survive where the file is silent.
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("redis addr = %q, want default", cfg.Redis.Addr)
	}

	// Env overrides beat file values.
	if cfg.Postgres.Password != "hunter2" {
		t.Errorf("postgres password = %q, want env override", cfg.Postgres.Password)
	}
	if cfg.Server.RateLimit != 50 {
		t.Errorf("rate_limit = %d, want env override 50", cfg.Server.RateLimit)
	}
	if cfg.Mode != "archive" {
		t.Errorf("mode = %q, want env override archive", cfg.Mode)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Authority.PrivateKey = "deadbeef"
	cfg.Postgres.Password = "pgpass"
	cfg.Redis.Password = "rpass"
	cfg.S3.SecretKey = "s3secret"
	cfg.Server.APIKey = "apikey"
	cfg.Notify.TelegramToken = "tgtoken"

	red := RedactedConfig(&cfg)

	for name, got := range map[string]string{
		"authority.private_key": red.Authority.PrivateKey,
		"postgres.password":     red.Postgres.Password,
		"redis.password":        red.Redis.Password,
		"s3.secret_key":         red.S3.SecretKey,
		"server.api_key":        red.Server.APIKey,
		"notify.telegram_token": red.Notify.TelegramToken,
	} {
		if got != "***" {
			t.Errorf("%s = %q, want redacted", name, got)
		}
	}

	// Empty secrets stay empty rather than gaining a placeholder.
	if red.Authority.KeyPassword != "" {
		t.Errorf("empty key_password became %q", red.Authority.KeyPassword)
	}

	// The original is untouched.
	if cfg.Postgres.Password != "pgpass" {
		t.Error("RedactedConfig mutated the original")
	}

	// Slices are copies.
	red.Server.CORSOrigins[0] = "mutated"
	if cfg.Server.CORSOrigins[0] == "mutated" {
		t.Error("redacted copy shares the cors_origins slice")
	}
}
