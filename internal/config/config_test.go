package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	cfg, err := load(nil, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Handler.ServerAddr)
	require.Equal(t, "info", cfg.Logger.LogLevel)
	require.Equal(t, "HARSH21", cfg.Service.HouseCode)
	require.Equal(t, "Asia/Kolkata", cfg.Service.Timezone)
	require.True(t, cfg.Service.ReferralReward.Equal(decimal.NewFromInt(21)))
	require.True(t, cfg.Service.ReferralThreshold.Equal(decimal.NewFromInt(20)))
	require.Equal(t, 5, cfg.Trigger.Attempts)
	require.Equal(t, 500*time.Millisecond, cfg.Trigger.Backoff)
	require.Equal(t, 24*time.Hour, cfg.Token.TTL)
	require.Equal(t, "test-secret", cfg.Token.Secret)
}

func TestLoadRequiresSecret(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.env")

	// пустое значение задано явно
	t.Setenv("JWT_SECRET", "")
	_, err := load(nil, missing)
	require.ErrorIs(t, err, ErrNoSecret)

	// переменная не задана вовсе
	os.Unsetenv("JWT_SECRET")
	_, err = load(nil, missing)
	require.Error(t, err)
}

func TestLoadEnvFileAndFlags(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("REFERRAL_REWARD=50.5\nTRIGGER_ATTEMPTS=3\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("REFERRAL_REWARD")
		os.Unsetenv("TRIGGER_ATTEMPTS")
	})
	t.Setenv("RUN_ADDRESS", ":9090")
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := load([]string{"-a", ":7070", "-l", "debug"}, envFile)
	require.NoError(t, err)
	require.Equal(t, ":7070", cfg.Handler.ServerAddr)
	require.Equal(t, "debug", cfg.Logger.LogLevel)
	require.True(t, cfg.Service.ReferralReward.Equal(decimal.RequireFromString("50.5")))
	require.Equal(t, 3, cfg.Trigger.Attempts)
}

func TestLoadBadFlag(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	_, err := load([]string{"-x"}, filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}
