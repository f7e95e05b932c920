package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestConfig_DSN tests keyword/value rendering and quoting.
func TestConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		expected string
	}{
		{
			name:     "minimal",
			cfg:      Config{Host: "db", Port: 5432, User: "app", Password: "secret", Name: "favsync", SSLMode: "disable"},
			expected: "host=db port=5432 user=app password=secret dbname=favsync sslmode=disable",
		},
		{
			name: "application name and timeout",
			cfg: Config{
				Host: "db", Port: 5432, User: "app", Name: "favsync",
				ApplicationName: "favorites-sync-service",
				ConnectTimeout:  7 * time.Second,
			},
			expected: "host=db port=5432 user=app dbname=favsync application_name=favorites-sync-service connect_timeout=7",
		},
		{
			name:     "sub-second timeout is raised",
			cfg:      Config{Host: "db", Port: 5432, ConnectTimeout: 300 * time.Millisecond},
			expected: "host=db port=5432 connect_timeout=2",
		},
		{
			name:     "quoted password",
			cfg:      Config{Host: "db", Port: 5432, Password: `it's a \secret`},
			expected: `host=db port=5432 password='it\'s a \\secret'`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.cfg.DSN())
		})
	}
}

// TestNewConnection_Unreachable tests that a refused connection is reported
// instead of handing out a broken handle.
func TestNewConnection_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := NewConnection(ctx, Config{
		Host:           "127.0.0.1",
		Port:           1,
		User:           "app",
		Name:           "favsync",
		SSLMode:        "disable",
		ConnectTimeout: 2 * time.Second,
	}, zap.NewNop())

	require.Error(t, err)
	assert.Nil(t, db)
}
