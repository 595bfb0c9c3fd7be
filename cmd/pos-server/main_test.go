package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pos/internal/app"
)

func TestReadConfigFromEnv_Defaults(t *testing.T) {
	cfg, warnings, err := readConfigFromEnv(mapLookup(nil))
	require.NoError(t, err)

	assert.Empty(t, warnings)
	assert.Equal(t, app.DefaultConfig(), cfg)
}

func TestReadConfigFromEnv_ValidOverrides(t *testing.T) {
	cfg, warnings, err := readConfigFromEnv(mapLookup(map[string]string{
		envHTTPAddr:         "localhost:3000",
		envMetricsAddr:      "localhost:9090",
		envOrdersDir:        " /data/orders ",
		envStaticDir:        "./public",
		envMaxOrders:        "100",
		envOrderBase:        "2001",
		envPersistQueue:     "32",
		envSubscriberBuffer: "8",
		envLogLevel:         "DEBUG",
		envAllowedOrigins:   "http://till.local, http://kitchen.local,",
		envShutdownTimeout:  "10s",
		envKafkaBrokers:     "kafka-1:9092,kafka-2:9092",
		envKafkaTopic:       "pos.custom",
	}))
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, "localhost:3000", cfg.HTTPAddr)
	assert.Equal(t, "localhost:9090", cfg.MetricsAddr)
	assert.Equal(t, "/data/orders", cfg.OrdersDir)
	assert.Equal(t, "./public", cfg.StaticDir)
	assert.Equal(t, 100, cfg.MaxOrders)
	assert.Equal(t, int64(2001), cfg.OrderNumberBase)
	assert.Equal(t, 32, cfg.PersistQueueSize)
	assert.Equal(t, 8, cfg.SubscriberBuffer)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"http://till.local", "http://kitchen.local"}, cfg.AllowedOrigins)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "pos.custom", cfg.KafkaTopic)
	require.NoError(t, cfg.Validate())
}

func TestReadConfigFromEnv_InvalidValuesFallbackToDefaults(t *testing.T) {
	defaultCfg := app.DefaultConfig()

	cfg, warnings, err := readConfigFromEnv(mapLookup(map[string]string{
		envMaxOrders:        "0",
		envOrderBase:        "-1",
		envPersistQueue:     "many",
		envSubscriberBuffer: "-3",
		envLogLevel:         "loud",
		envShutdownTimeout:  "-1s",
	}))
	require.NoError(t, err)
	assert.Len(t, warnings, 6)

	assert.Equal(t, defaultCfg, cfg)
}

func TestReadConfigFromEnv_BlankValuesIgnored(t *testing.T) {
	cfg, warnings, err := readConfigFromEnv(mapLookup(map[string]string{
		envHTTPAddr:       "   ",
		envAllowedOrigins: " , ",
		envKafkaBrokers:   "",
	}))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, app.DefaultConfig(), cfg)
}

func TestReadConfigFromEnv_ConfigFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pos.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_orders: 20\nhttp_addr: \":4000\"\n"), 0o600))

	cfg, warnings, err := readConfigFromEnv(mapLookup(map[string]string{
		envConfigFile: path,
		envHTTPAddr:   ":5000",
	}))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 20, cfg.MaxOrders, "value from file")
	assert.Equal(t, ":5000", cfg.HTTPAddr, "env wins over file")
}

func TestReadConfigFromEnv_BadConfigFile(t *testing.T) {
	_, _, err := readConfigFromEnv(mapLookup(map[string]string{
		envConfigFile: filepath.Join(t.TempDir(), "missing.yaml"),
	}))
	require.Error(t, err)
}

func TestSetupLogger(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)

	require.NoError(t, setupLogger("warn"))
	assert.Equal(t, log.WarnLevel, log.GetLevel())

	require.NoError(t, setupLogger(""))
	assert.Equal(t, log.InfoLevel, log.GetLevel())

	require.Error(t, setupLogger("chatty"))
	assert.Equal(t, log.InfoLevel, log.GetLevel())
}

func TestParseInt(t *testing.T) {
	value, err := parseInt(" 12 ", func(v int) bool { return v > 0 }, "must be > 0")
	require.NoError(t, err)
	assert.Equal(t, 12, value)

	_, err = parseInt("0", func(v int) bool { return v > 0 }, "must be > 0")
	assert.EqualError(t, err, "must be > 0")
}

func TestParseDuration(t *testing.T) {
	value, err := parseDuration(" 250ms ", func(v time.Duration) bool { return v >= 0 }, "must be >= 0")
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, value)

	_, err = parseDuration("-1ms", func(v time.Duration) bool { return v >= 0 }, "must be >= 0")
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b ,"))
	assert.Nil(t, splitList(" , "))
}

func mapLookup(values map[string]string) envLookup {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
