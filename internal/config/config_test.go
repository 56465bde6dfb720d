package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestRequireEnv(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		value     string
		shouldSet bool
		wantPanic bool
	}{
		{
			name:      "variable set",
			key:       "TEST_VAR",
			value:     "test_value",
			shouldSet: true,
			wantPanic: false,
		},
		{
			name:      "variable not set",
			key:       "TEST_VAR_MISSING",
			shouldSet: false,
			wantPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.shouldSet {
				if err := os.Setenv(tt.key, tt.value); err != nil {
					t.Fatalf("failed to set env var: %v", err)
				}
				defer func() {
					if err := os.Unsetenv(tt.key); err != nil {
						t.Errorf("failed to unset env var: %v", err)
					}
				}()
			}

			if tt.wantPanic {
				defer func() {
					if r := recover(); r == nil {
						t.Errorf("requireEnv() should have panicked")
					}
				}()
			}

			result := requireEnv(tt.key)
			if !tt.wantPanic && result != tt.value {
				t.Errorf("requireEnv() = %v, want %v", result, tt.value)
			}
		})
	}
}

func TestMustDuration(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		def      time.Duration
		expected time.Duration
	}{
		{
			name:     "valid duration",
			key:      "TEST_DURATION",
			value:    "5s",
			def:      1 * time.Second,
			expected: 5 * time.Second,
		},
		{
			name:     "invalid duration uses default",
			key:      "TEST_DURATION_INVALID",
			value:    "invalid",
			def:      10 * time.Second,
			expected: 10 * time.Second,
		},
		{
			name:     "missing variable uses default",
			key:      "TEST_DURATION_MISSING",
			value:    "",
			def:      15 * time.Second,
			expected: 15 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				if err := os.Setenv(tt.key, tt.value); err != nil {
					t.Fatalf("failed to set env var: %v", err)
				}
				defer func() {
					if err := os.Unsetenv(tt.key); err != nil {
						t.Errorf("failed to unset env var: %v", err)
					}
				}()
			}

			result := mustDuration(tt.key, tt.def)
			if result != tt.expected {
				t.Errorf("mustDuration() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMustBool(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		def      bool
		expected bool
	}{
		{
			name:     "true value",
			key:      "TEST_BOOL",
			value:    "true",
			def:      false,
			expected: true,
		},
		{
			name:     "false value",
			key:      "TEST_BOOL_FALSE",
			value:    "false",
			def:      true,
			expected: false,
		},
		{
			name:     "invalid value uses default",
			key:      "TEST_BOOL_INVALID",
			value:    "invalid",
			def:      true,
			expected: true,
		},
		{
			name:     "missing variable uses default",
			key:      "TEST_BOOL_MISSING",
			value:    "",
			def:      false,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				if err := os.Setenv(tt.key, tt.value); err != nil {
					t.Fatalf("failed to set env var: %v", err)
				}
				defer func() {
					if err := os.Unsetenv(tt.key); err != nil {
						t.Errorf("failed to unset env var: %v", err)
					}
				}()
			}

			result := mustBool(tt.key, tt.def)
			if result != tt.expected {
				t.Errorf("mustBool() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestSplitAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected []string
	}{
		{name: "empty", in: "", expected: nil},
		{name: "single", in: "admin.local", expected: []string{"admin.local"}},
		{name: "spaces and quotes", in: ` "a.local" , 'b.local',,c.local `, expected: []string{"a.local", "b.local", "c.local"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitAndTrim(tt.in)
			if len(got) != len(tt.expected) {
				t.Fatalf("splitAndTrim() = %v, want %v", got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("splitAndTrim()[%d] = %q, want %q", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SELECTORD_STORE_DRIVER", "")
	t.Setenv("SELECTORD_LOG_LEVEL", "")
	t.Setenv("SELECTORD_VIEW_CONCURRENCY", "")

	cfg := Load()
	if cfg.StoreDriver != DriverMemory {
		t.Errorf("StoreDriver = %q, want %q", cfg.StoreDriver, DriverMemory)
	}
	if cfg.ListenPort != ":8080" {
		t.Errorf("ListenPort = %q, want :8080", cfg.ListenPort)
	}
	if cfg.ViewConcurrency != 8 {
		t.Errorf("ViewConcurrency = %d, want 8", cfg.ViewConcurrency)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestLoadRequiresBackendTarget(t *testing.T) {
	tests := []struct {
		name   string
		driver string
		envKey string
	}{
		{name: "sqlite needs dsn", driver: DriverSQLite, envKey: "SELECTORD_STORE_DSN"},
		{name: "postgres needs dsn", driver: DriverPostgres, envKey: "SELECTORD_STORE_DSN"},
		{name: "redis needs addr", driver: DriverRedis, envKey: "SELECTORD_REDIS_ADDR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SELECTORD_STORE_DRIVER", tt.driver)
			t.Setenv(tt.envKey, "")

			defer func() {
				r := recover()
				if r == nil {
					t.Fatalf("Load() should have panicked")
				}
				if msg, _ := r.(string); !strings.Contains(msg, tt.envKey) {
					t.Errorf("panic message %q should name %s", msg, tt.envKey)
				}
			}()
			Load()
		})
	}
}

func TestLoadRedisPasswordRequired(t *testing.T) {
	t.Setenv("SELECTORD_STORE_DRIVER", DriverRedis)
	t.Setenv("SELECTORD_REDIS_ADDR", "localhost:6379")
	t.Setenv("SELECTORD_REDIS_PASSWORD_REQUIRED", "true")
	t.Setenv("SELECTORD_REDIS_PASSWORD", "")

	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Load() should have panicked without a redis password")
		}
	}()
	Load()
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ListenPort:      ":8080",
			ShutdownTimeout: time.Second,
			RequestTimeout:  time.Second,
			LogLevel:        "info",
			StoreDriver:     DriverMemory,
			ViewConcurrency: 4,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.StoreDriver = "etcd" }, wantErr: "StoreDriver must be one of"},
		{name: "sql driver without dsn", mutate: func(c *Config) { c.StoreDriver = DriverMySQL }, wantErr: "StoreDSN is required"},
		{name: "sql driver with dsn", mutate: func(c *Config) { c.StoreDriver = DriverSQLite; c.StoreDSN = "file:x.db" }},
		{name: "redis without addr", mutate: func(c *Config) { c.StoreDriver = DriverRedis }, wantErr: "RedisAddr is required"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "trace" }, wantErr: "LogLevel must be one of"},
		{name: "zero view concurrency", mutate: func(c *Config) { c.ViewConcurrency = 0 }, wantErr: "ViewConcurrency must be min 1"},
		{name: "bad cidr", mutate: func(c *Config) { c.AllowedCIDRS = []string{"10.0.0.0/8", "nope"} }, wantErr: "AllowedCIDRS[1] must be an IP or CIDR"},
		{name: "ip and cidr accepted", mutate: func(c *Config) { c.AllowedCIDRS = []string{"10.0.0.0/8", "192.168.1.10"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestRedacted(t *testing.T) {
	c := &Config{StoreDriver: DriverPostgres, StoreDSN: "postgres://u:p@db/x", RedisPassword: "secret"}
	r := c.Redacted()
	if r.StoreDSN == c.StoreDSN || r.RedisPassword == c.RedisPassword {
		t.Errorf("Redacted() leaked secrets: %+v", r)
	}
	if c.RedisPassword != "secret" {
		t.Errorf("Redacted() must not modify the receiver")
	}
}
