package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"APP_ENV":                    "",
		"PORT":                       "",
		"CART_TTL":                   "",
		"PAYMENT_PROVIDER":           "",
		"FAMILY_RATE_SINGLE_BPS":     "",
		"FAMILY_RATE_TWO_BPS":        "",
		"FAMILY_RATE_THREE_PLUS_BPS": "",
		"TODDLER_FAMILY_RATE_BPS":    "",
		"REDIS_URL":                  "",
	})
	require.NoError(t, err)
	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, 30*time.Minute, cfg.CartTTL)
	require.Equal(t, time.Minute, cfg.CartSweepInterval)
	require.Equal(t, "mock", cfg.PaymentProvider)
	require.Equal(t, int64(1500), cfg.FamilyRates.SingleCourseBps)
	require.Equal(t, int64(3000), cfg.FamilyRates.TwoCoursesBps)
	require.Equal(t, int64(5000), cfg.FamilyRates.ThreePlusBps)
	require.Equal(t, int64(3000), cfg.FamilyRates.ToddlerBps)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"PORT":                   ":9090",
		"CART_TTL":               "45m",
		"CATALOG_CACHE_TTL":      "bogus",
		"FAMILY_RATE_SINGLE_BPS": "1000",
		"CORS_ALLOWED_ORIGINS":   "https://a.example, ,https://b.example",
		"METRICS_ENABLED":        "false",
	})
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.Equal(t, 45*time.Minute, cfg.CartTTL)
	require.Equal(t, 5*time.Minute, cfg.CatalogCacheTTL)
	require.Equal(t, int64(1000), cfg.FamilyRates.SingleCourseBps)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	require.False(t, cfg.Obs.MetricsEnabled)
}

func TestLoadRejectsHTTPGatewayWithoutURL(t *testing.T) {
	_, err := LoadForTests(map[string]string{
		"PAYMENT_PROVIDER": "http",
		"PAYMENT_BASE_URL": "",
	})
	require.Error(t, err)

	_, err = LoadForTests(map[string]string{"PAYMENT_PROVIDER": "paypal"})
	require.Error(t, err)
}

func TestLoadRequiresRedisInProduction(t *testing.T) {
	_, err := LoadForTests(map[string]string{
		"APP_ENV":   "production",
		"REDIS_URL": "",
	})
	require.Error(t, err)
}
