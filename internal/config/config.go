package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAuthorityURL = "https://login.microsoftonline.com"
	DefaultGraphBaseURL = "https://graph.microsoft.com/v1.0"
	DefaultGraphScope   = "https://graph.microsoft.com/.default"
	DefaultLLMBaseURL   = "https://api.openai.com/v1"
	DefaultLLMModel     = "gpt-3.5-turbo"
	DefaultJournalPath  = "data/journal.db"

	TokenCacheMemory  = "memory"
	TokenCacheKeyring = "keyring"

	ContentTypeText = "text"
	ContentTypeHTML = "html"
)

type Sock5Proxy struct {
	Host   string `yaml:"Host"`
	Port   int32  `yaml:"Port"`
	Enable bool   `yaml:"Enable"`
}

type Graph struct {
	TenantID     string   `yaml:"TenantID"`
	ClientID     string   `yaml:"ClientID"`
	ClientSecret string   `yaml:"ClientSecret"` // 可配置但不使用，设备码登录为公共客户端
	TeamID       string   `yaml:"TeamID"`
	ChannelID    string   `yaml:"ChannelID"`
	AuthorityURL string   `yaml:"AuthorityURL"` // OAuth 授权地址，租户 ID 拼接在其后
	BaseURL      string   `yaml:"BaseURL"`      // Graph API 根地址
	Scopes       []string `yaml:"Scopes"`
	TokenCache   string   `yaml:"TokenCache"`  // "memory" / "keyring"
	ContentType  string   `yaml:"ContentType"` // 发送消息的格式："text" / "html"
}

type LLM struct {
	BaseURL   string `yaml:"BaseURL"` // 兼容 OpenAI API 的端点
	APIKey    string `yaml:"APIKey"`
	Model     string `yaml:"Model"`
	MaxTokens int    `yaml:"MaxTokens"` // 模型上下文窗口大小，仅用于超限告警
}

type Run struct {
	DaysBack       int    `yaml:"DaysBack"`       // 拉取最近多少天的消息，默认 1
	Cron           string `yaml:"Cron"`           // cron 表达式，为空则只运行一次
	RunOnStart     bool   `yaml:"RunOnStart"`     // 定时模式下启动时是否立即运行一次
	RequestTimeout int    `yaml:"RequestTimeout"` // Graph/OAuth 单次请求超时（秒）
	AuthTimeout    int    `yaml:"AuthTimeout"`    // 交互式登录等待上限（秒）
	SummaryTimeout int    `yaml:"SummaryTimeout"` // LLM 调用超时（秒）
}

type Journal struct {
	Enable bool   `yaml:"Enable"`
	Path   string `yaml:"Path"`
}

type Log struct {
	Level string `yaml:"Level"` // 控制台日志级别，默认 debug
	Dir   string `yaml:"Dir"`   // 文件日志目录，默认 logs
}

type Config struct {
	Log        Log        `yaml:"Log"`
	Sock5Proxy Sock5Proxy `yaml:"Sock5Proxy"`
	Graph      Graph      `yaml:"Graph"`
	LLM        LLM        `yaml:"LLM"`
	Run        Run        `yaml:"Run"`
	Journal    Journal    `yaml:"Journal"`
}

// LoadFromFile 读取并验证配置
func LoadFromFile(filename string) (*Config, error) {
	c, err := Read(filename)
	if err != nil {
		return nil, err
	}

	// 验证配置
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Read 读取配置文件，再用 .env 与环境变量覆盖并填充默认值，不做验证
// 配置文件不存在时只使用环境变量
func Read(filename string) (*Config, error) {
	var c Config
	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if err == nil {
			if err = yaml.Unmarshal(data, &c); err != nil {
				return nil, err
			}
		}
	}

	// .env 不存在不算错误
	_ = godotenv.Load()
	c.applyEnv(os.LookupEnv)
	c.applyDefaults()

	return &c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	overrides := []struct {
		key    string
		target *string
	}{
		{"TEAMS_CLIENT_ID", &c.Graph.ClientID},
		{"TEAMS_CLIENT_SECRET", &c.Graph.ClientSecret},
		{"TEAMS_TENANT_ID", &c.Graph.TenantID},
		{"TEAMS_TEAM_ID", &c.Graph.TeamID},
		{"TEAMS_CHANNEL_ID", &c.Graph.ChannelID},
		{"OPENAI_API_KEY", &c.LLM.APIKey},
		{"OPENAI_BASE_URL", &c.LLM.BaseURL},
		{"DIGEST_CRON", &c.Run.Cron},
	}
	for _, o := range overrides {
		if v, ok := lookup(o.key); ok && strings.TrimSpace(v) != "" {
			*o.target = strings.TrimSpace(v)
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "debug"
	}
	if c.Log.Dir == "" {
		c.Log.Dir = "logs"
	}
	if c.Graph.AuthorityURL == "" {
		c.Graph.AuthorityURL = DefaultAuthorityURL
	}
	if c.Graph.BaseURL == "" {
		c.Graph.BaseURL = DefaultGraphBaseURL
	}
	if len(c.Graph.Scopes) == 0 {
		c.Graph.Scopes = []string{DefaultGraphScope, "offline_access"}
	}
	if c.Graph.TokenCache == "" {
		c.Graph.TokenCache = TokenCacheMemory
	}
	if c.Graph.ContentType == "" {
		c.Graph.ContentType = ContentTypeText
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = DefaultLLMBaseURL
	}
	if c.LLM.Model == "" {
		c.LLM.Model = DefaultLLMModel
	}
	if c.Run.DaysBack == 0 {
		c.Run.DaysBack = 1
	}
	if c.Run.RequestTimeout == 0 {
		c.Run.RequestTimeout = 30
	}
	if c.Run.AuthTimeout == 0 {
		c.Run.AuthTimeout = 300
	}
	if c.Run.SummaryTimeout == 0 {
		c.Run.SummaryTimeout = 120
	}
	if c.Journal.Path == "" {
		c.Journal.Path = DefaultJournalPath
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	// 验证 Graph
	if c.Graph.TenantID == "" {
		return fmt.Errorf("Graph.TenantID 不能为空")
	}
	if c.Graph.ClientID == "" {
		return fmt.Errorf("Graph.ClientID 不能为空")
	}
	if c.Graph.TeamID == "" {
		return fmt.Errorf("Graph.TeamID 不能为空")
	}
	if c.Graph.ChannelID == "" {
		return fmt.Errorf("Graph.ChannelID 不能为空")
	}
	if c.Graph.TokenCache != TokenCacheMemory && c.Graph.TokenCache != TokenCacheKeyring {
		return fmt.Errorf("Graph.TokenCache 必须是 'memory' 或 'keyring'")
	}
	if c.Graph.ContentType != ContentTypeText && c.Graph.ContentType != ContentTypeHTML {
		return fmt.Errorf("Graph.ContentType 必须是 'text' 或 'html'")
	}

	// 验证 LLM
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM.APIKey 不能为空")
	}
	if c.LLM.MaxTokens < 0 {
		return fmt.Errorf("LLM.MaxTokens 必须 >= 0")
	}

	// 验证 Run
	if c.Run.DaysBack <= 0 {
		return fmt.Errorf("Run.DaysBack 必须大于 0")
	}
	if c.Run.RequestTimeout <= 0 || c.Run.AuthTimeout <= 0 || c.Run.SummaryTimeout <= 0 {
		return fmt.Errorf("Run 中的超时时间必须大于 0")
	}
	if c.Run.Cron != "" {
		if _, err := cron.ParseStandard(c.Run.Cron); err != nil {
			return fmt.Errorf("Run.Cron 无效: %w", err)
		}
	}

	if c.Sock5Proxy.Enable && (c.Sock5Proxy.Host == "" || c.Sock5Proxy.Port <= 0) {
		return fmt.Errorf("Sock5Proxy 启用时 Host 和 Port 不能为空")
	}

	return nil
}

func (r Run) RequestTimeoutDuration() time.Duration {
	return time.Duration(r.RequestTimeout) * time.Second
}

func (r Run) AuthTimeoutDuration() time.Duration {
	return time.Duration(r.AuthTimeout) * time.Second
}

func (r Run) SummaryTimeoutDuration() time.Duration {
	return time.Duration(r.SummaryTimeout) * time.Second
}
