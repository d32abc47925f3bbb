package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumerConfig_WithDefaults_EmptyConfig(t *testing.T) {
	cfg := ConsumerConfig{}.WithDefaults()

	require.NotNil(t, cfg.SessionTimeout)
	assert.Equal(t, DefaultSessionTimeout, *cfg.SessionTimeout)
	require.NotNil(t, cfg.MaxPollInterval)
	assert.Equal(t, DefaultMaxPollInterval, *cfg.MaxPollInterval)
	require.NotNil(t, cfg.PollTimeout)
	assert.Equal(t, DefaultPollTimeout, *cfg.PollTimeout)
}

func TestConsumerConfig_WithDefaults_KeepsCustomValues(t *testing.T) {
	customSession := 5 * time.Minute
	original := ConsumerConfig{SessionTimeout: &customSession}

	cfg := original.WithDefaults()
	assert.Equal(t, customSession, *cfg.SessionTimeout)
	assert.Equal(t, DefaultMaxPollInterval, *cfg.MaxPollInterval)

	// The receiver is a copy.
	assert.Nil(t, original.MaxPollInterval)
	assert.Nil(t, original.PollTimeout)
}

func TestLoadConsumerConfig(t *testing.T) {
	t.Setenv("KAFKA_BOOTSTRAP_SERVERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_SESSION_TIMEOUT", "30s")

	cfg := LoadConsumerConfig()
	assert.Equal(t, "broker1:9092,broker2:9092", cfg.BootstrapServers)
	assert.Equal(t, "blocks", cfg.Topic)
	assert.Equal(t, "logfilter", cfg.GroupID)
	assert.Equal(t, "earliest", cfg.AutoOffsetReset)
	require.NotNil(t, cfg.SessionTimeout)
	assert.Equal(t, 30*time.Second, *cfg.SessionTimeout)
	assert.True(t, cfg.Enabled())
	require.NoError(t, cfg.Validate())
}

func TestConsumerConfig_Validate(t *testing.T) {
	t.Parallel()
	valid := ConsumerConfig{Topic: "blocks", GroupID: "g", AutoOffsetReset: "latest"}
	require.NoError(t, valid.Validate())
	assert.False(t, valid.Enabled())

	noTopic := valid
	noTopic.Topic = ""
	require.Error(t, noTopic.Validate())

	noGroup := valid
	noGroup.GroupID = ""
	require.Error(t, noGroup.Validate())

	badReset := valid
	badReset.AutoOffsetReset = "smallest"
	require.Error(t, badReset.Validate())
}
