package bot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "test-token"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.Storage.Mode)
	assert.Equal(t, defaultEmailDomains, cfg.Registration.EmailDomains)
	assert.Equal(t, time.Duration(0), cfg.IdleTTL())

	balance, err := cfg.StartingBalance()
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestLoadConfigFull(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "test-token"
operators:
  ids: [111, 222]
registration:
  email_domains: ["Corp.Example"]
dialog:
  idle_ttl_minutes: 15
storage:
  mode: memory
trading:
  starting_balance: "2500.50"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []int64{111, 222}, cfg.Operators.IDs)
	// Domains are lowercased on load.
	assert.Equal(t, []string{"corp.example"}, cfg.Registration.EmailDomains)
	assert.Equal(t, 15*time.Minute, cfg.IdleTTL())

	balance, err := cfg.StartingBalance()
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("2500.50")))
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"postgres without host": `
telegram:
  token: "t"
storage:
  mode: postgres
`,
		"unknown storage mode": `
telegram:
  token: "t"
storage:
  mode: redis
`,
		"negative idle ttl": `
telegram:
  token: "t"
dialog:
  idle_ttl_minutes: -1
`,
		"malformed balance": `
telegram:
  token: "t"
trading:
  starting_balance: "lots"
`,
	}
	for name, yaml := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, yaml))
			assert.Error(t, err)
		})
	}
}
