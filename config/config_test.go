package config

import (
	"testing"

	"bike-marketplace/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "5", cfg.Business.PlatformFeePercent)
	assert.Equal(t, int64(50000), cfg.Business.WithdrawMinAmount)
	assert.Equal(t, int64(1000000), cfg.Business.WithdrawFeeFreeFrom)
	assert.Equal(t, int64(10000), cfg.Business.WithdrawFlatFee)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("WITHDRAW_FLAT_FEE", "15000")
	t.Setenv("DATABASE_MIGRATE", "false")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := Load()

	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, int64(15000), cfg.Business.WithdrawFlatFee)
	assert.False(t, cfg.Database.MigrateOnStart)
	assert.Equal(t, 0, cfg.Redis.DB)
}

func TestParseDevSessions(t *testing.T) {
	sessions, err := ParseDevSessions("buyer-1=1:buyer, seller-2=2:SELLER:premium,admin=4:ADMIN")
	require.NoError(t, err)

	assert.Equal(t, models.Principal{UserID: 1, Role: models.RoleBuyer}, sessions["buyer-1"])
	assert.Equal(t, models.Principal{UserID: 2, Role: models.RoleSeller, PlanType: models.PlanPremium}, sessions["seller-2"])
	assert.Equal(t, models.RoleAdmin, sessions["admin"].Role)

	empty, err := ParseDevSessions("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, bad := range []string{"no-separator", "=1:BUYER", "t=abc:BUYER", "t=1", "t=1:OWNER", "t=1:SELLER:GOLD:x"} {
		_, err := ParseDevSessions(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoad_DevSessions(t *testing.T) {
	t.Setenv("DEV_SESSIONS", "demo-admin=9:ADMIN")
	t.Setenv("WALLET_SELF_DEPOSIT", "true")

	cfg := Load()

	assert.Equal(t, models.Principal{UserID: 9, Role: models.RoleAdmin}, cfg.Auth.DevSessions["demo-admin"])
	assert.True(t, cfg.Business.AllowSelfDeposit)
}
