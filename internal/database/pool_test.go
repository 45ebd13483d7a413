package database

import (
	"testing"

	"github.com/rickgao/pricesync/internal/config"
)

func TestPoolConfig(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.DBConfig
		wantHost string
		wantPort uint16
		wantTLS  bool
		wantMax  int32
		wantMin  int32
	}{
		{
			name: "local without tls",
			cfg: config.DBConfig{
				Host: "localhost", Port: 5432, Name: "prices",
				User: "sync", Password: "secret", SSLMode: "disable",
				MaxConns: 4, MinConns: 1,
			},
			wantHost: "localhost",
			wantPort: 5432,
			wantMax:  4,
			wantMin:  1,
		},
		{
			name: "password needing escapes",
			cfg: config.DBConfig{
				Host: "db.internal", Port: 6432, Name: "prices",
				User: "sync", Password: "p@ss:w/rd?#%", SSLMode: "require",
				MaxConns: 8, MinConns: 2,
			},
			wantHost: "db.internal",
			wantPort: 6432,
			wantTLS:  true,
			wantMax:  8,
			wantMin:  2,
		},
		{
			name: "ipv6 host",
			cfg: config.DBConfig{
				Host: "::1", Port: 5433, Name: "prices",
				User: "sync", Password: "secret", SSLMode: "disable",
				MaxConns: 2, MinConns: 1,
			},
			wantHost: "::1",
			wantPort: 5433,
			wantMax:  2,
			wantMin:  1,
		},
		{
			name: "min capped at max",
			cfg: config.DBConfig{
				Host: "localhost", Port: 5432, Name: "prices",
				User: "sync", Password: "secret", SSLMode: "disable",
				MaxConns: 3, MinConns: 10,
			},
			wantHost: "localhost",
			wantPort: 5432,
			wantMax:  3,
			wantMin:  3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PoolConfig(tt.cfg)
			if err != nil {
				t.Fatalf("PoolConfig() error = %v", err)
			}

			cc := got.ConnConfig
			if cc.Host != tt.wantHost || cc.Port != tt.wantPort {
				t.Errorf("addr = %s:%d, want %s:%d", cc.Host, cc.Port, tt.wantHost, tt.wantPort)
			}
			if cc.Database != tt.cfg.Name || cc.User != tt.cfg.User {
				t.Errorf("database/user = %s/%s", cc.Database, cc.User)
			}
			if cc.Password != tt.cfg.Password {
				t.Errorf("Password = %q, want %q", cc.Password, tt.cfg.Password)
			}
			if got := cc.RuntimeParams["application_name"]; got != ApplicationName {
				t.Errorf("application_name = %q", got)
			}
			if (cc.TLSConfig != nil) != tt.wantTLS {
				t.Errorf("TLS = %v, want %v", cc.TLSConfig != nil, tt.wantTLS)
			}
			if got.MaxConns != tt.wantMax || got.MinConns != tt.wantMin {
				t.Errorf("conns = %d/%d, want %d/%d", got.MinConns, got.MaxConns, tt.wantMin, tt.wantMax)
			}
			if got.MaxConnIdleTime != maxConnIdleTime || got.HealthCheckPeriod != healthCheckPeriod {
				t.Errorf("idle = %v, health = %v", got.MaxConnIdleTime, got.HealthCheckPeriod)
			}
		})
	}
}

func TestPoolConfig_DefaultSSLMode(t *testing.T) {
	got, err := PoolConfig(config.DBConfig{
		Host: "localhost", Port: 5432, Name: "prices", User: "sync",
	})
	if err != nil {
		t.Fatalf("PoolConfig() error = %v", err)
	}
	// prefer tries TLS first and keeps a plaintext fallback.
	if got.ConnConfig.TLSConfig == nil || len(got.ConnConfig.Fallbacks) == 0 {
		t.Errorf("TLS = %v, fallbacks = %d, want prefer semantics",
			got.ConnConfig.TLSConfig != nil, len(got.ConnConfig.Fallbacks))
	}
}

func TestPoolConfig_InvalidSSLMode(t *testing.T) {
	_, err := PoolConfig(config.DBConfig{
		Host: "localhost", Port: 5432, Name: "prices", User: "sync", SSLMode: "sometimes",
	})
	if err == nil {
		t.Error("expected error for unknown sslmode")
	}
}
