package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Database struct {
	Driver string `yaml:"Driver"` // "sqlite3" 或 "postgres"
	DSN    string `yaml:"DSN"`
}

type Sock5Proxy struct {
	Host   string `yaml:"Host"`
	Port   int32  `yaml:"Port"`
	Enable bool   `yaml:"Enable"`
}

type LLM struct {
	Provider          string  `yaml:"Provider"` // "openai"（兼容 OpenAI API 的端点）或 "gemini"
	BaseURL           string  `yaml:"BaseURL"`
	APIKey            string  `yaml:"APIKey"`
	Model             string  `yaml:"Model"`
	MaxTokens         int     `yaml:"MaxTokens"` // 单次回复的最大 token 数
	Temperature       float32 `yaml:"Temperature"`
	TimeoutSeconds    int     `yaml:"TimeoutSeconds"`    // 单次调用超时，默认 30
	RetryTimes        int     `yaml:"RetryTimes"`        // 单次调用最多尝试次数，1 表示不重试
	RetryIntervalMs   int     `yaml:"RetryIntervalMs"`   // 重试初始间隔（毫秒）
	RequestsPerMinute int     `yaml:"RequestsPerMinute"` // 0 表示不限速
}

type Analysis struct {
	Concurrency    int `yaml:"Concurrency"`    // 同时进行的 LLM 调用上限
	MaxPromptChars int `yaml:"MaxPromptChars"` // 总体分析 prompt 中评论部分的字符预算
}

type Tagger struct {
	Command   string   `yaml:"Command"` // 词性标注器命令，默认 mecab
	Args      []string `yaml:"Args"`
	TimeoutMs int      `yaml:"TimeoutMs"`
}

type Topic struct {
	K             int     `yaml:"K"`             // 默认主题数
	TopWords      int     `yaml:"TopWords"`      // 每个主题的关键词数
	MaxFeatures   int     `yaml:"MaxFeatures"`   // 词表上限
	MinDocFreq    int     `yaml:"MinDocFreq"`    // 最小文档频次
	MaxDocRatio   float64 `yaml:"MaxDocRatio"`   // 最大文档比例 (0,1]
	Weighting     string  `yaml:"Weighting"`     // "count" 或 "tfidf"
	Iterations    int     `yaml:"Iterations"`    // LDA 迭代次数
	Seed          uint64  `yaml:"Seed"`          // LDA 随机种子
	PreviewLength int     `yaml:"PreviewLength"` // 评论预览截断长度（字符）
	NGramMax      int     `yaml:"NGramMax"`      // 1 只用单词，2 追加相邻词对
}

type Layout struct {
	Perplexity        float64 `yaml:"Perplexity"`
	LearningRate      float64 `yaml:"LearningRate"`
	MaxIter           int     `yaml:"MaxIter"`
	EarlyExaggeration float64 `yaml:"EarlyExaggeration"`
	Seed              uint64  `yaml:"Seed"`
}

type Schedule struct {
	Enable        bool   `yaml:"Enable"`
	Cron          string `yaml:"Cron"`          // cron 表达式，如 "0 3 * * *"
	RetryTimes    int    `yaml:"RetryTimes"`    // 单个应用重新分析失败的重试次数
	RetryInterval int    `yaml:"RetryInterval"` // 重试间隔（秒）
}

type Metrics struct {
	ListenAddr string `yaml:"ListenAddr"` // 如 ":9100"，为空则不暴露
}

type Log struct {
	Dir        string `yaml:"Dir"`
	Level      string `yaml:"Level"`
	MaxSizeMB  int    `yaml:"MaxSizeMB"`
	MaxBackups int    `yaml:"MaxBackups"`
	MaxAgeDays int    `yaml:"MaxAgeDays"`
}

type Config struct {
	Database   Database   `yaml:"Database"`
	Sock5Proxy Sock5Proxy `yaml:"Sock5Proxy"`
	LLM        LLM        `yaml:"LLM"`
	Analysis   Analysis   `yaml:"Analysis"`
	Tagger     Tagger     `yaml:"Tagger"`
	Topic      Topic      `yaml:"Topic"`
	Layout     Layout     `yaml:"Layout"`
	Schedule   Schedule   `yaml:"Schedule"`
	Metrics    Metrics    `yaml:"Metrics"`
	Log        Log        `yaml:"Log"`
}

func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Load(data)
}

// Load 解析 YAML，加载 .env 中的环境变量覆盖，再补全默认值并校验
func Load(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}

	// .env 不存在时忽略，直接使用系统环境变量
	_ = godotenv.Load()
	c.applyEnv()
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite3" {
		c.Database.DSN = "file:data/sqlite.db?mode=rwc&_journal_mode=WAL&_fk=1"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 2000
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.3
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 30
	}
	if c.LLM.RetryTimes == 0 {
		c.LLM.RetryTimes = 1
	}
	if c.LLM.RetryIntervalMs == 0 {
		c.LLM.RetryIntervalMs = 500
	}

	if c.Analysis.Concurrency == 0 {
		c.Analysis.Concurrency = 4
	}
	if c.Analysis.MaxPromptChars == 0 {
		c.Analysis.MaxPromptChars = 12000
	}

	if c.Tagger.Command == "" {
		c.Tagger.Command = "mecab"
	}
	if c.Tagger.TimeoutMs == 0 {
		c.Tagger.TimeoutMs = 5000
	}

	if c.Topic.K == 0 {
		c.Topic.K = 5
	}
	if c.Topic.TopWords == 0 {
		c.Topic.TopWords = 10
	}
	if c.Topic.MaxFeatures == 0 {
		c.Topic.MaxFeatures = 100
	}
	if c.Topic.MinDocFreq == 0 {
		c.Topic.MinDocFreq = 1
	}
	if c.Topic.MaxDocRatio == 0 {
		c.Topic.MaxDocRatio = 1.0
	}
	if c.Topic.Weighting == "" {
		c.Topic.Weighting = "count"
	}
	if c.Topic.Iterations == 0 {
		c.Topic.Iterations = 50
	}
	if c.Topic.Seed == 0 {
		c.Topic.Seed = 42
	}
	if c.Topic.PreviewLength == 0 {
		c.Topic.PreviewLength = 100
	}
	if c.Topic.NGramMax == 0 {
		c.Topic.NGramMax = 1
	}

	if c.Layout.Perplexity == 0 {
		c.Layout.Perplexity = 30
	}
	if c.Layout.LearningRate == 0 {
		c.Layout.LearningRate = 200
	}
	if c.Layout.MaxIter == 0 {
		c.Layout.MaxIter = 500
	}
	if c.Layout.EarlyExaggeration == 0 {
		c.Layout.EarlyExaggeration = 12
	}
	if c.Layout.Seed == 0 {
		c.Layout.Seed = 42
	}

	if c.Schedule.Cron == "" {
		c.Schedule.Cron = "0 3 * * *"
	}
	if c.Schedule.RetryTimes == 0 {
		c.Schedule.RetryTimes = 3
	}
	if c.Schedule.RetryInterval == 0 {
		c.Schedule.RetryInterval = 60
	}

	if c.Log.Dir == "" {
		c.Log.Dir = "logs"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 10
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 10
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 30
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	// 验证 Database
	if c.Database.Driver != "sqlite3" && c.Database.Driver != "postgres" {
		return fmt.Errorf("Database.Driver 必须是 'sqlite3' 或 'postgres'")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("Database.DSN 不能为空")
	}

	// 验证 LLM
	if c.LLM.Provider != "openai" && c.LLM.Provider != "gemini" {
		return fmt.Errorf("LLM.Provider 必须是 'openai' 或 'gemini'")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("LLM.MaxTokens 必须大于 0")
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return fmt.Errorf("LLM.TimeoutSeconds 必须大于 0")
	}
	if c.LLM.RetryTimes < 1 || c.LLM.RetryTimes > 3 {
		return fmt.Errorf("LLM.RetryTimes 必须在 1 到 3 之间")
	}
	if c.LLM.RequestsPerMinute < 0 {
		return fmt.Errorf("LLM.RequestsPerMinute 必须 >= 0")
	}

	// 验证 Analysis
	if c.Analysis.Concurrency < 1 || c.Analysis.Concurrency > 16 {
		return fmt.Errorf("Analysis.Concurrency 必须在 1 到 16 之间")
	}
	if c.Analysis.MaxPromptChars < 100 {
		return fmt.Errorf("Analysis.MaxPromptChars 必须 >= 100")
	}

	// 验证 Topic
	if c.Topic.K < 1 {
		return fmt.Errorf("Topic.K 必须大于 0")
	}
	if c.Topic.TopWords < 1 {
		return fmt.Errorf("Topic.TopWords 必须大于 0")
	}
	if c.Topic.MaxFeatures < 1 {
		return fmt.Errorf("Topic.MaxFeatures 必须大于 0")
	}
	if c.Topic.MinDocFreq < 1 {
		return fmt.Errorf("Topic.MinDocFreq 必须 >= 1")
	}
	if c.Topic.MaxDocRatio <= 0 || c.Topic.MaxDocRatio > 1 {
		return fmt.Errorf("Topic.MaxDocRatio 必须在 (0, 1] 区间")
	}
	if c.Topic.Weighting != "count" && c.Topic.Weighting != "tfidf" {
		return fmt.Errorf("Topic.Weighting 必须是 'count' 或 'tfidf'")
	}
	if c.Topic.PreviewLength < 1 {
		return fmt.Errorf("Topic.PreviewLength 必须大于 0")
	}
	if c.Topic.NGramMax < 1 || c.Topic.NGramMax > 2 {
		return fmt.Errorf("Topic.NGramMax 必须是 1 或 2")
	}

	// 验证 Layout
	if c.Layout.Perplexity <= 0 {
		return fmt.Errorf("Layout.Perplexity 必须大于 0")
	}
	if c.Layout.MaxIter < 1 {
		return fmt.Errorf("Layout.MaxIter 必须大于 0")
	}

	// 验证 Schedule
	if c.Schedule.Enable && c.Schedule.Cron == "" {
		return fmt.Errorf("Schedule.Cron 不能为空")
	}
	if c.Schedule.RetryTimes < 0 {
		return fmt.Errorf("Schedule.RetryTimes 必须 >= 0")
	}
	if c.Schedule.RetryInterval < 0 {
		return fmt.Errorf("Schedule.RetryInterval 必须 >= 0")
	}

	return nil
}

// ValidateCredentials 验证调用 LLM 所需的凭据，只有需要调用 LLM 的命令才检查
func (l *LLM) ValidateCredentials() error {
	if l.APIKey == "" {
		return fmt.Errorf("LLM.APIKey 不能为空")
	}
	if l.Provider == "openai" && l.BaseURL == "" {
		return fmt.Errorf("LLM.BaseURL 不能为空")
	}
	if l.Model == "" {
		return fmt.Errorf("LLM.Model 不能为空")
	}
	return nil
}
