package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestScoringConfigKeepsLLMDefaultWhenOmitted(t *testing.T) {
	var config Config
	require.NoError(t, yaml.Unmarshal([]byte("game:\n  target_score_default: 5\n"), &config))

	cfg := config.scoringConfig()

	assert.True(t, cfg.LLMEnabled)
}

func TestScoringConfigHonorsExplicitLLMSetting(t *testing.T) {
	var config Config
	require.NoError(t, yaml.Unmarshal([]byte("scoring:\n  llm_enabled: false\n"), &config))
	assert.False(t, config.scoringConfig().LLMEnabled)

	config = Config{}
	require.NoError(t, yaml.Unmarshal([]byte("scoring:\n  llm_enabled: true\n  llm_timeout_ms: 900\n"), &config))
	cfg := config.scoringConfig()
	assert.True(t, cfg.LLMEnabled)
	assert.Equal(t, int64(900), cfg.LLMTimeout.Milliseconds())
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	config, err := loadConfig("does-not-exist.yaml")

	require.NoError(t, err)
	assert.True(t, config.scoringConfig().LLMEnabled)
	assert.Equal(t, 10, config.roomConfig().TargetScoreDefault)
}
