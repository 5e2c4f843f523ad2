package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalized(t *testing.T) {
	cfg := Config{
		Enabled:         true,
		Sensitivity:     140,
		CustomBlocklist: []string{" BadWord ", "badword", "", "other"},
		CustomAllowlist: nil,
	}

	got := cfg.Normalized()

	assert.Equal(t, MaxSensitivity, got.Sensitivity)
	assert.Equal(t, []string{"badword", "other"}, got.CustomBlocklist)
	assert.Nil(t, got.CustomAllowlist)
	assert.Equal(t, 140, cfg.Sensitivity, "receiver must not be modified")
}

func TestNormalizedClampsNegativeSensitivity(t *testing.T) {
	assert.Equal(t, MinSensitivity, Config{Sensitivity: -3}.Normalized().Sensitivity)
}
