package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080, TimeoutSeconds: 30},
		Database: DatabaseConfig{Port: 5432, SSLMode: "disable"},
		JWT:      JWTConfig{Secret: "secret"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "server.port"},
		{name: "bad sslmode", mutate: func(c *Config) { c.Database.SSLMode = "prefer" }, wantErr: "sslmode"},
		{name: "missing secret", mutate: func(c *Config) { c.JWT.Secret = "" }, wantErr: "jwt.secret"},
		{name: "smtp without host", mutate: func(c *Config) { c.SMTP.Enabled = true }, wantErr: "smtp.host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig_DefaultsAndEnv(t *testing.T) {
	t.Setenv("LETTER_JWT_SECRET", "from-env")
	t.Setenv("LETTER_SMTP_PASSWORD", "smtp-pass")
	t.Setenv("LETTER_SERVER_PORT", "9090")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, "smtp-pass", cfg.SMTP.Password)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 24, cfg.JWT.ExpiryHours)
	assert.Equal(t, int64(5<<20), cfg.Letters.MaxAttachmentBytes)
	assert.Contains(t, cfg.Letters.AllowedContentTypes, "application/pdf")
	assert.Equal(t, time.Hour, cfg.Worker.ReminderInterval)
	assert.Equal(t, 30*time.Second, cfg.Server.Timeout())
}
