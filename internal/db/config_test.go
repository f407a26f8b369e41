package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigWithDefaults(t *testing.T) {
	t.Run("zero values use defaults", func(t *testing.T) {
		cfg := Config{URL: "ws://localhost:8000/rpc"}.withDefaults()
		d := DefaultConfig()
		assert.Equal(t, "root", cfg.AuthLevel)
		assert.Equal(t, d.ConnectTimeout, cfg.ConnectTimeout)
		assert.Equal(t, d.ReconnectInitial, cfg.ReconnectInitial)
		assert.Equal(t, d.ReconnectMax, cfg.ReconnectMax)
		assert.Equal(t, d.ReconnectRetries, cfg.ReconnectRetries)
	})

	t.Run("explicit values are kept", func(t *testing.T) {
		cfg := Config{
			AuthLevel:        "database",
			ConnectTimeout:   time.Second,
			ReconnectInitial: 200 * time.Millisecond,
			ReconnectMax:     5 * time.Second,
			ReconnectRetries: 3,
		}.withDefaults()
		assert.Equal(t, "database", cfg.AuthLevel)
		assert.Equal(t, time.Second, cfg.ConnectTimeout)
		assert.Equal(t, 200*time.Millisecond, cfg.ReconnectInitial)
		assert.Equal(t, 5*time.Second, cfg.ReconnectMax)
		assert.Equal(t, 3, cfg.ReconnectRetries)
	})

	t.Run("max below initial is raised", func(t *testing.T) {
		cfg := Config{ReconnectInitial: time.Minute, ReconnectMax: time.Second}.withDefaults()
		assert.Equal(t, time.Minute, cfg.ReconnectMax)
	})
}

func TestRPCBase(t *testing.T) {
	tests := map[string]string{
		"ws://localhost:8000/rpc":  "ws://localhost:8000",
		"ws://localhost:8000/rpc/": "ws://localhost:8000",
		"wss://db.example.com":     "wss://db.example.com",
		"wss://db.example.com/":    "wss://db.example.com",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, rpcBase(in))
		})
	}
}
