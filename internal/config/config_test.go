package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.yaml"), nil)
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.General.Environment)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Web.Enabled)
	assert.Equal(t, defaultWebPort, cfg.Web.Port)
	assert.Equal(t, defaultIterationCap, cfg.Pipeline.IterationCap)
	assert.Equal(t, defaultReloadHistoryCap, cfg.Housekeeping.ReloadHistoryMax)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
general:
  environment: prod
  name: loquat-prod
web:
  port: 9090
logging:
  level: debug
  format: text
  output: console
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.General.Environment)
	assert.Equal(t, "loquat-prod", cfg.General.Name)
	assert.Equal(t, 9090, cfg.Web.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_FlagOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "logging:\n  level: debug\n  format: text\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "warn", "")
	flags.String("log-format", "json", "")
	require.NoError(t, flags.Set("log-level", "error"))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Logging.Level, "explicitly-set flag overrides the file")
	assert.Equal(t, "text", cfg.Logging.Format, "unset flag leaves the file value alone")
}

func TestValidate_RejectsBadEnvironment(t *testing.T) {
	cfg := minimalValidConfig()
	cfg.General.Environment = "staging"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsBadLoggingLevel(t *testing.T) {
	cfg := minimalValidConfig()
	cfg.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsBadPort(t *testing.T) {
	cfg := minimalValidConfig()
	cfg.Web.Enabled = true
	cfg.Web.Port = 70000
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsBadShutdownPolicy(t *testing.T) {
	cfg := minimalValidConfig()
	cfg.Shutdown.StagePolicy = map[string]string{"Adapters": "Retry"}
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsNonPositiveIterationCap(t *testing.T) {
	cfg := minimalValidConfig()
	cfg.Pipeline.IterationCap = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_AcceptsMinimalValidConfig(t *testing.T) {
	cfg := minimalValidConfig()
	assert.NoError(t, cfg.Validate())
}

func TestWebConfig_Address(t *testing.T) {
	w := WebConfig{Host: "0.0.0.0", Port: 8080}
	assert.Equal(t, "0.0.0.0:8080", w.Address())
}

func TestSetDefaults_IdempotentAcrossInstances(t *testing.T) {
	v1 := viper.New()
	v2 := viper.New()
	SetDefaults(v1)
	SetDefaults(v2)
	assert.Equal(t, v1.Get("web.port"), v2.Get("web.port"))
}

func minimalValidConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}
