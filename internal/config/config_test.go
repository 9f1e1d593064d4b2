package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "REQUEST_TIMEOUT", "STORE_DRIVER", "CACHE_TTL", "ORDER_STATUS_POLICY", "RUN_MIGRATIONS", "LEDGER_WORKERS", "PG_MAX_CONNS", "PG_MIN_CONNS"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, StorePostgres, cfg.StoreDriver)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, "open", cfg.StatusPolicy)
	assert.True(t, cfg.RunMigrations)
	assert.Equal(t, 8, cfg.LedgerWorkers)
	assert.Equal(t, 8, cfg.PGMaxConns)
	assert.Equal(t, 1, cfg.PGMinConns)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("REQUEST_TIMEOUT", "bogus")
	t.Setenv("RUN_MIGRATIONS", "false")
	t.Setenv("LEDGER_WORKERS", "3")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("ORDER_STATUS_POLICY", "open")
	t.Setenv("PG_MAX_CONNS", "32")
	t.Setenv("PG_MIN_CONNS", "4")

	cfg := Load()
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout, "unparsable value falls back")
	assert.False(t, cfg.RunMigrations)
	assert.Equal(t, 3, cfg.LedgerWorkers)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 32, cfg.PGMaxConns)
	assert.Equal(t, 4, cfg.PGMinConns)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EmptyDisablesInfra(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := Load()
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestValidate(t *testing.T) {
	base := Config{StoreDriver: StoreMemory, StatusPolicy: "strict", LedgerWorkers: 1, PGMaxConns: 8, PGMinConns: 1}
	require.NoError(t, base.Validate())

	bad := base
	bad.StoreDriver = "mysql"
	assert.Error(t, bad.Validate())

	bad = base
	bad.StatusPolicy = "lenient"
	assert.Error(t, bad.Validate())

	bad = base
	bad.LedgerWorkers = 0
	assert.Error(t, bad.Validate())

	bad = base
	bad.PGMinConns = 9
	assert.Error(t, bad.Validate())

	bad = base
	bad.PGMaxConns = 0
	assert.Error(t, bad.Validate())
}
