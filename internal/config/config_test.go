package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, NotifyLog, cfg.Notify.Driver)
	assert.Equal(t, 5, cfg.Admission.MaxAttempts)
	assert.Equal(t, 168*time.Hour, cfg.Admission.InvitationTTL)
	assert.Equal(t, 48*time.Hour, cfg.Admission.OfferTTL)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Notify.KafkaBrokers)
	assert.Contains(t, cfg.Database.DSN(), "dbname=eventadmission")
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 10, cfg.HTTP.TokenRateBurst)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/x")
	t.Setenv("NOTIFY_DRIVER", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SWEEP_INTERVAL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "postgres://u:p@db:5432/x", cfg.Database.DSN())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notify.KafkaBrokers)
	assert.Equal(t, 30*time.Second, cfg.Worker.SweepInterval)
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("NOTIFY_DRIVER", "carrier-pigeon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOTIFY_DRIVER")
}

func TestLoad_RejectsNonPositiveAttempts(t *testing.T) {
	t.Setenv("ADMISSION_MAX_ATTEMPTS", "0")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_OfferTTL(t *testing.T) {
	t.Setenv("WAITLIST_OFFER_TTL", "0s")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.Admission.OfferTTL)

	t.Setenv("WAITLIST_OFFER_TTL", "-1h")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WAITLIST_OFFER_TTL")
}
