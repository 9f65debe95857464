package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scrimp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
version: "1"
provider: aws
regions:
  - us-east-1
  - eu-west-1
scan:
  concurrency: 8
  adapter_timeout: 15s
pricing:
  default_price:
    price_per_unit: 0.05
    unit: GB-month
  fallback:
    aws:
      ebs:
        price_per_unit: 0.08
        unit: GB-month
rule_defaults:
  ebs_volume_unattached:
    thresholds:
      min_age_days: 3
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "aws", cfg.Provider)
	assert.Equal(t, []string{"us-east-1", "eu-west-1"}, cfg.Regions)
	assert.Equal(t, 8, cfg.Scan.Concurrency)
	assert.Equal(t, 15*time.Second, cfg.Scan.AdapterTimeout)
	assert.Equal(t, 0.08, cfg.Pricing.Fallback["aws"]["ebs"].PricePerUnit)
	require.NotNil(t, cfg.Pricing.DefaultPrice)
	assert.Equal(t, 0.05, cfg.Pricing.DefaultPrice.PricePerUnit)
	assert.Equal(t, 3.0, cfg.RuleDefaults["ebs_volume_unattached"].Thresholds["min_age_days"])
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
version: "1"
provider: aws
regions: [us-east-1]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Scan.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Scan.AdapterTimeout)
	assert.Equal(t, "@hourly", cfg.Daemon.Schedule)
	assert.Equal(t, ":9090", cfg.Daemon.MetricsAddr)
	assert.Equal(t, "scrimp", cfg.OTEL.ServiceName)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing version", "provider: aws\nregions: [us-east-1]\n"},
		{"missing provider", "version: \"1\"\nregions: [us-east-1]\n"},
		{"no regions", "version: \"1\"\nprovider: aws\n"},
		{"bad timeout", "version: \"1\"\nprovider: aws\nregions: [us-east-1]\nscan:\n  adapter_timeout: soon\n"},
		{"negative price", "version: \"1\"\nprovider: aws\nregions: [us-east-1]\npricing:\n  fallback:\n    aws:\n      ebs:\n        price_per_unit: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}
