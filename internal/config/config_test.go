package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, `
server:
  address: ":9090"
mysql:
  host: "127.0.0.1"
  port: 3306
  username: "root"
  database: "cv_insight"
redis:
  address: "127.0.0.1:6379"
llm:
  model: "qwen-plus"
  extraction_timeout: "45s"
rate_limit:
  enabled: true
  max_per_window: 5
  window_seconds: 30
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err, "加载配置文件失败")

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "cv_insight", cfg.MySQL.Database)
	assert.Equal(t, 45*time.Second, cfg.LLM.ExtractionTimeoutDuration())
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window())
	assert.Equal(t, 5, cfg.RateLimit.MaxPerWindow)
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeTempConfig(t, `
mysql:
  host: "127.0.0.1"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	// 未配置项应落到默认值
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, 60*time.Second, cfg.LLM.ExtractionTimeoutDuration())
	assert.Equal(t, time.Minute, cfg.RateLimit.Window())
	assert.Equal(t, "cv-insight-go", cfg.Tracing.ServiceName)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeTempConfig(t, `
llm:
  api_key: "from-file"
`)

	t.Setenv("LLM_API_KEY", "from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.LLM.APIKey, "环境变量应覆盖文件中的密钥")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
