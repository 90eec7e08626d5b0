package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPlatformDefaults(t *testing.T) {
	for _, tt := range []struct {
		name   string
		env    map[string]string
		cfg    Config
		wantDB string
		addr   string
		admin  string
	}{
		{
			name:   "Empty",
			cfg:    Config{Addr: defaultAddr, AdminURLPrefix: "http://127.0.0.1:8000"},
			addr:   defaultAddr,
			admin:  "http://127.0.0.1:8000",
			wantDB: "",
		},
		{
			name:   "DatabaseURL",
			env:    map[string]string{"DATABASE_URL": "postgres://u:p@db/merch", "PORT": "9000"},
			cfg:    Config{Addr: defaultAddr},
			wantDB: "postgres://u:p@db/merch",
			addr:   "0.0.0.0:9000",
		},
		{
			name:   "ExplicitWins",
			env:    map[string]string{"DATABASE_URL": "postgres://other", "PORT": "9000"},
			cfg:    Config{Addr: "127.0.0.1:1", DatabaseURL: "postgres://mine"},
			wantDB: "postgres://mine",
			addr:   "127.0.0.1:1",
		},
		{
			name: "DBParts",
			env: map[string]string{
				"DB_NAME": "merch", "DB_USER": "shop", "DB_PASSWORD": "p@ss", "DB_HOST": "pg",
				"ADMIN_URL_PREFIX": "https://admin.example",
			},
			cfg:    Config{Addr: defaultAddr, AdminURLPrefix: "http://127.0.0.1:8000"},
			wantDB: "postgres://shop:p%40ss@pg:5432/merch",
			addr:   defaultAddr,
			admin:  "https://admin.example",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.applyPlatformDefaults(func(k string) string { return tt.env[k] })
			assert.Equal(t, tt.wantDB, cfg.DatabaseURL)
			assert.Equal(t, tt.addr, cfg.Addr)
			assert.Equal(t, tt.admin, cfg.AdminURLPrefix)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Telegram: TelegramConfig{Mode: ModePolling},
		Notify:   NotifyConfig{Workers: 1, QueueSize: 1},
	}
	require.NoError(t, valid.validate())

	bad := valid
	bad.Telegram.Mode = "carrier-pigeon"
	assert.ErrorContains(t, bad.validate(), "invalid telegram mode")

	bad = valid
	bad.Notify.Workers = 0
	assert.Error(t, bad.validate())
}
