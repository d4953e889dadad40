package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/SunilRudraKumar/Easy/internal/config/paramstore"
)

const (
	// EnvConfigPath 指定配置文件路径的环境变量。
	EnvConfigPath = "EASYMCP_CONFIG"
	// DefaultPath 是未指定时使用的配置文件。
	DefaultPath = "configs/easymcp.json"
)

// 鉴权模式。
const (
	AuthModeCredentials      = "credentials"
	AuthModeInsecureAllowAll = "insecure_allow_all"
)

// Config 描述了 easymcpd 在启动阶段需要加载的全部配置。
type Config struct {
	Server       ServerConfig       `json:"server"`
	Metrics      MetricsConfig      `json:"metrics"`
	Logging      LoggingConfig      `json:"logging"`
	LLM          LLMConfig          `json:"llm"`
	Conversation ConversationConfig `json:"conversation"`
	Action       ActionConfig       `json:"action"`
	Storage      StorageConfig      `json:"storage"`
	Events       EventsConfig       `json:"events"`
	Web3         Web3Config         `json:"web3"`
	Wallet       WalletConfig       `json:"wallet"`
	Auth         AuthConfig         `json:"auth"`
	Runtime      RuntimeConfig      `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address             string `json:"address"`
	ReadTimeoutSeconds  int    `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `json:"write_timeout_seconds"`
}

// ReadTimeout 返回请求读取超时。
func (c ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout 返回响应写入超时。
func (c ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// MetricsConfig 控制独立的 Prometheus 监听端口。
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
}

// LoggingConfig 对应 pkg/logger.Config。
type LoggingConfig struct {
	Level       string      `json:"level"`
	Format      string      `json:"format"`
	OutputPaths []string    `json:"output_paths"`
	Audit       AuditConfig `json:"audit"`
}

// AuditConfig 控制审计日志文件及其轮转。
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	BaseURL        string `json:"base_url"`
	APIKey         Secret `json:"api_key"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	MaxTokens      int    `json:"max_tokens"`
}

// Timeout 返回模型调用的超时时间。
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ConversationConfig 控制会话历史与待确认提案的生命周期。
type ConversationConfig struct {
	HistoryTTLSeconds int `json:"history_ttl_seconds"`
	PendingTTLSeconds int `json:"pending_ttl_seconds"`
	HistoryWindow     int `json:"history_window"`
}

// HistoryTTL 返回会话历史的滑动过期时间。
func (c ConversationConfig) HistoryTTL() time.Duration {
	return time.Duration(c.HistoryTTLSeconds) * time.Second
}

// PendingTTL 返回待确认提案的过期时间。
func (c ConversationConfig) PendingTTL() time.Duration {
	return time.Duration(c.PendingTTLSeconds) * time.Second
}

// ActionConfig 控制已确认动作的执行。
type ActionConfig struct {
	TimeoutSeconds int `json:"timeout_seconds"`
}

// Timeout 返回单次动作执行的超时时间。
func (c ActionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StorageConfig 统一描述会话与账户存储。
type StorageConfig struct {
	Conversation ConversationStoreConfig `json:"conversation"`
	Accounts     AccountStoreConfig      `json:"accounts"`
}

// ConversationStoreConfig 选择会话存储驱动：memory、redis 或 dynamodb。
// dynamodb 只保存历史，待确认提案仍使用 redis（若配置）或内存。
type ConversationStoreConfig struct {
	Driver   string         `json:"driver"`
	Redis    RedisConfig    `json:"redis"`
	DynamoDB DynamoDBConfig `json:"dynamodb"`
}

// RedisConfig 描述 Redis 连接。
type RedisConfig struct {
	Address  string `json:"address"`
	Password Secret `json:"password"`
	DB       int    `json:"db"`
}

// DynamoDBConfig 描述 DynamoDB 表。
type DynamoDBConfig struct {
	Table  string `json:"table"`
	Region string `json:"region"`
}

// AccountStoreConfig 选择账户存储驱动：memory 或 mysql。
type AccountStoreConfig struct {
	Driver string      `json:"driver"`
	MySQL  MySQLConfig `json:"mysql"`
}

// MySQLConfig 描述 MySQL 连接池。
type MySQLConfig struct {
	DSN                    Secret `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

// EventsConfig 选择审计事件的投递方式，多个驱动时同时投递。
type EventsConfig struct {
	Drivers  []string       `json:"drivers"`
	Redis    RedisStream    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisStream 描述事件写入的 stream。
type RedisStream struct {
	Address  string `json:"address"`
	Password Secret `json:"password"`
	DB       int    `json:"db"`
	Stream   string `json:"stream"`
	MaxLen   int64  `json:"max_len"`
}

// RabbitMQConfig 描述事件写入的队列。
type RabbitMQConfig struct {
	URL   Secret `json:"url"`
	Queue string `json:"queue"`
}

// Web3Config 指定集群定义文件。
type Web3Config struct {
	ClustersFile          string `json:"clusters_file"`
	DefaultCluster        string `json:"default_cluster"`
	ConfirmTimeoutSeconds int    `json:"confirm_timeout_seconds"`
}

// WalletConfig 包含助记词加密密钥（32 字节，hex 或 base64）。
type WalletConfig struct {
	SealingKey Secret `json:"sealing_key"`
}

// AuthConfig 选择待确认动作的鉴权方式。
type AuthConfig struct {
	Mode string `json:"mode"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// Secret 是一个敏感配置项，按 Value、Env、Param 的顺序解析。
// JSON 中可以直接写字符串，等价于只设置 Value。
type Secret struct {
	Value string `json:"value,omitempty"`
	Env   string `json:"env,omitempty"`
	Param string `json:"param,omitempty"`
}

// UnmarshalJSON 同时接受字符串与对象两种写法。
func (s *Secret) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		return json.Unmarshal(trimmed, &s.Value)
	}
	type plain Secret
	var decoded plain
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return err
	}
	*s = Secret(decoded)
	return nil
}

// String 避免在日志中泄露明文。
func (s Secret) String() string {
	if s.Value == "" {
		return ""
	}
	return "***"
}

// Resolve 返回密钥明文。Param 需要 getter，未配置任何来源时返回空字符串。
func (s Secret) Resolve(ctx context.Context, getter paramstore.Getter) (string, error) {
	if s.Value != "" {
		return s.Value, nil
	}
	if s.Env != "" {
		if v := os.Getenv(s.Env); v != "" {
			return v, nil
		}
	}
	if s.Param != "" {
		if getter == nil {
			return "", fmt.Errorf("读取参数 %s 需要 SSM 客户端", s.Param)
		}
		return getter.GetParameter(ctx, s.Param)
	}
	return "", nil
}

// ResolvePath 依次使用命令行参数、环境变量与默认值确定配置文件路径。
func ResolvePath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if env := strings.TrimSpace(os.Getenv(EnvConfigPath)); env != "" {
		return env
	}
	return DefaultPath
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ReadTimeoutSeconds <= 0 {
		c.Server.ReadTimeoutSeconds = 15
	}
	if c.Server.WriteTimeoutSeconds <= 0 {
		c.Server.WriteTimeoutSeconds = 60
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path != "" && !filepath.IsAbs(c.Logging.Audit.Path) {
		c.Logging.Audit.Path = filepath.Join(baseDir, c.Logging.Audit.Path)
	}

	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = "anthropic"
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = 30
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 1024
	}

	if c.Conversation.HistoryTTLSeconds <= 0 {
		c.Conversation.HistoryTTLSeconds = 3600
	}
	if c.Conversation.PendingTTLSeconds <= 0 {
		c.Conversation.PendingTTLSeconds = 300
	}
	if c.Action.TimeoutSeconds <= 0 {
		c.Action.TimeoutSeconds = 60
	}

	if c.Storage.Conversation.Driver == "" {
		c.Storage.Conversation.Driver = "memory"
	}
	if c.Storage.Accounts.Driver == "" {
		c.Storage.Accounts.Driver = "memory"
	}

	if len(c.Events.Drivers) == 0 {
		c.Events.Drivers = []string{"none"}
	}
	if c.Events.Redis.Stream == "" {
		c.Events.Redis.Stream = "easymcp:events"
	}
	if c.Events.RabbitMQ.Queue == "" {
		c.Events.RabbitMQ.Queue = "easymcp.events"
	}

	if c.Web3.ClustersFile == "" {
		c.Web3.ClustersFile = filepath.Join(baseDir, "clusters.yaml")
	} else if !filepath.IsAbs(c.Web3.ClustersFile) {
		c.Web3.ClustersFile = filepath.Join(baseDir, c.Web3.ClustersFile)
	}
	if c.Web3.DefaultCluster == "" {
		c.Web3.DefaultCluster = "devnet"
	}
	if c.Web3.ConfirmTimeoutSeconds <= 0 {
		c.Web3.ConfirmTimeoutSeconds = 60
	}

	if c.Auth.Mode == "" {
		c.Auth.Mode = AuthModeCredentials
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
}

// Validate 检查枚举类配置项。
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("不支持的 llm.provider: %s", c.LLM.Provider)
	}
	switch c.Storage.Conversation.Driver {
	case "memory":
	case "redis":
		if c.Storage.Conversation.Redis.Address == "" {
			return errors.New("storage.conversation.redis.address 不能为空")
		}
	case "dynamodb":
		if c.Storage.Conversation.DynamoDB.Table == "" {
			return errors.New("storage.conversation.dynamodb.table 不能为空")
		}
	default:
		return fmt.Errorf("不支持的会话存储驱动: %s", c.Storage.Conversation.Driver)
	}
	switch c.Storage.Accounts.Driver {
	case "memory", "mysql":
	default:
		return fmt.Errorf("不支持的账户存储驱动: %s", c.Storage.Accounts.Driver)
	}
	for _, driver := range c.Events.Drivers {
		switch driver {
		case "none", "memory", "redis", "rabbitmq":
		default:
			return fmt.Errorf("不支持的事件驱动: %s", driver)
		}
	}
	switch c.Auth.Mode {
	case AuthModeCredentials, AuthModeInsecureAllowAll:
	default:
		return fmt.Errorf("不支持的 auth.mode: %s", c.Auth.Mode)
	}
	return nil
}

// NeedsParamStore 判断是否有密钥需要从 SSM 读取。
func (c *Config) NeedsParamStore() bool {
	for _, s := range c.secrets() {
		if s.Value == "" && s.Param != "" {
			return true
		}
	}
	return false
}

// NeedsAWS 判断启动时是否需要加载 AWS 凭证。
func (c *Config) NeedsAWS() bool {
	return c.Storage.Conversation.Driver == "dynamodb" || c.NeedsParamStore()
}

// ResolveSecrets 将所有密钥解析为明文并写回 Value。
func (c *Config) ResolveSecrets(ctx context.Context, getter paramstore.Getter) error {
	for _, s := range c.secrets() {
		v, err := s.Resolve(ctx, getter)
		if err != nil {
			return fmt.Errorf("解析密钥失败: %w", err)
		}
		s.Value = v
	}
	return nil
}

func (c *Config) secrets() []*Secret {
	return []*Secret{
		&c.LLM.APIKey,
		&c.Storage.Conversation.Redis.Password,
		&c.Storage.Accounts.MySQL.DSN,
		&c.Events.Redis.Password,
		&c.Events.RabbitMQ.URL,
		&c.Wallet.SealingKey,
	}
}
