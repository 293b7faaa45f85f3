package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
LLM:
  BaseURL: https://api.openai.com/v1
  APIKey: sk-test
  Model: gpt-4o-mini
`

func clearEnv(t *testing.T) {
	for _, key := range []string{"LLM_API_KEY", "LLM_BASE_URL", "LLM_MODEL", "DATABASE_DSN"} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	c, err := Load([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", c.Database.Driver)
	assert.Contains(t, c.Database.DSN, "_fk=1")
	assert.Equal(t, "openai", c.LLM.Provider)
	assert.Equal(t, 30, c.LLM.TimeoutSeconds)
	assert.Equal(t, 1, c.LLM.RetryTimes)
	assert.Equal(t, 4, c.Analysis.Concurrency)
	assert.Equal(t, 5, c.Topic.K)
	assert.Equal(t, 10, c.Topic.TopWords)
	assert.Equal(t, 100, c.Topic.PreviewLength)
	assert.Equal(t, uint64(42), c.Topic.Seed)
	assert.Equal(t, "count", c.Topic.Weighting)
	assert.Equal(t, 30.0, c.Layout.Perplexity)
	assert.Equal(t, "mecab", c.Tagger.Command)
	assert.Equal(t, 1, c.Topic.NGramMax)
}

func TestLoad_WithoutLLMCredentials(t *testing.T) {
	clearEnv(t)
	c, err := Load([]byte("Topic:\n  K: 3\n"))
	require.NoError(t, err, "不调用 LLM 的命令无需凭据")
	assert.Equal(t, 3, c.Topic.K)
	assert.Error(t, c.LLM.ValidateCredentials())
}

func TestLLM_ValidateCredentials(t *testing.T) {
	tests := []struct {
		name    string
		llm     LLM
		wantErr string
	}{
		{"完整凭据", LLM{Provider: "openai", BaseURL: "https://api.openai.com/v1", APIKey: "sk-test", Model: "gpt-4o-mini"}, ""},
		{"缺少 APIKey", LLM{Provider: "openai", BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-mini"}, "LLM.APIKey"},
		{"openai 缺少 BaseURL", LLM{Provider: "openai", APIKey: "sk-test", Model: "gpt-4o-mini"}, "LLM.BaseURL"},
		{"gemini 无需 BaseURL", LLM{Provider: "gemini", APIKey: "key", Model: "gemini-2.0-flash"}, ""},
		{"缺少 Model", LLM{Provider: "gemini", APIKey: "key"}, "LLM.Model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.llm.ValidateCredentials()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_API_KEY", "sk-env")
	t.Setenv("DATABASE_DSN", "file:env.db?_fk=1")

	c, err := Load([]byte(minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, "sk-env", c.LLM.APIKey)
	assert.Equal(t, "file:env.db?_fk=1", c.Database.DSN)
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML+"Topic:\n  K: 3\n"), 0644))

	c, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Topic.K)

	_, err = LoadFromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"有效配置", func(c *Config) {}, ""},
		{"未知数据库驱动", func(c *Config) { c.Database.Driver = "mysql" }, "Database.Driver"},
		{"缺少 APIKey 不影响整体校验", func(c *Config) { c.LLM.APIKey = ""; c.LLM.Model = "" }, ""},
		{"未知 Provider", func(c *Config) { c.LLM.Provider = "claude" }, "LLM.Provider"},
		{"gemini 无需 BaseURL", func(c *Config) { c.LLM.Provider = "gemini"; c.LLM.BaseURL = "" }, ""},
		{"重试次数过大", func(c *Config) { c.LLM.RetryTimes = 5 }, "LLM.RetryTimes"},
		{"并发为 0", func(c *Config) { c.Analysis.Concurrency = 0 }, "Analysis.Concurrency"},
		{"并发过大", func(c *Config) { c.Analysis.Concurrency = 64 }, "Analysis.Concurrency"},
		{"文档比例越界", func(c *Config) { c.Topic.MaxDocRatio = 1.5 }, "Topic.MaxDocRatio"},
		{"未知权重", func(c *Config) { c.Topic.Weighting = "bm25" }, "Topic.Weighting"},
		{"最小文档频次为 0", func(c *Config) { c.Topic.MinDocFreq = 0 }, "Topic.MinDocFreq"},
		{"困惑度非正", func(c *Config) { c.Layout.Perplexity = -1 }, "Layout.Perplexity"},
		{"词组长度越界", func(c *Config) { c.Topic.NGramMax = 3 }, "Topic.NGramMax"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			c, err := Load([]byte(minimalYAML))
			require.NoError(t, err)

			tt.mutate(c)
			err = c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
