package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config 描述了 cosignd 在启动阶段需要加载的核心配置。
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Flow    FlowConfig    `yaml:"flow"`
	Relay   RelayConfig   `yaml:"relay"`
	Chain   ChainConfig   `yaml:"chain"`
	Wallet  WalletConfig  `yaml:"wallet"`
	Storage StorageConfig `yaml:"storage"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address        string `yaml:"address"`
	MetricsAddress string `yaml:"metrics_address"`
}

// LoggingConfig 控制结构化日志与审计日志输出。
type LoggingConfig struct {
	Level       string   `yaml:"level"`
	Format      string   `yaml:"format"`
	OutputPaths []string `yaml:"output_paths"`
	AuditPath   string   `yaml:"audit_path"`
}

// FlowConfig 描述三步签名编排所需的固定参数。
type FlowConfig struct {
	// SecondarySigners 是默认的副签名人地址列表，可在创建流程时覆盖。
	SecondarySigners []string `yaml:"secondary_signers"`
	ScriptURL        string   `yaml:"script_url"`
	TransferAmount   uint64   `yaml:"transfer_amount"`
	ReturnAmount     uint64   `yaml:"return_amount"`
	DepositAmount    uint64   `yaml:"deposit_amount"`
	ExpirySeconds    int64    `yaml:"expiry_seconds"`
	// EnforceRoles 控制是否校验当前会话身份与步骤角色匹配。
	EnforceRoles           bool  `yaml:"enforce_roles"`
	ConfirmIntervalSeconds int64 `yaml:"confirm_interval_seconds"`
	ConfirmTimeoutSeconds  int64 `yaml:"confirm_timeout_seconds"`
}

// RelayConfig 描述中继存储与通知队列的后端选择。
type RelayConfig struct {
	Store    RelayStoreConfig `yaml:"store"`
	Notifier NotifierConfig   `yaml:"notifier"`
}

// RelayStoreConfig 目前支持 memory、redis 与 mysql 三种驱动。
type RelayStoreConfig struct {
	Driver string      `yaml:"driver"`
	DSN    string      `yaml:"dsn"`
	Redis  RedisConfig `yaml:"redis"`
}

// NotifierConfig 描述中继事件通知队列。
type NotifierConfig struct {
	Driver   string         `yaml:"driver"`
	Redis    RedisConfig    `yaml:"redis"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

// RedisConfig 统一描述 Redis 连接参数。
type RedisConfig struct {
	Address    string `yaml:"address"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	KeyPrefix  string `yaml:"key_prefix"`
	Queue      string `yaml:"queue"`
	BlockWait  int64  `yaml:"block_wait_seconds"`
	TTLSeconds int64  `yaml:"ttl_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Queue      string `yaml:"queue"`
	Prefetch   int    `yaml:"prefetch"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// ChainConfig 描述可用链节点与默认链。
type ChainConfig struct {
	Default string                     `yaml:"default"`
	Chains  map[string]ChainDefinition `yaml:"chains"`
}

// ChainDefinition 描述单条链的接入方式。
type ChainDefinition struct {
	Type        string `yaml:"type"`
	BaseURL     string `yaml:"base_url"`
	ChainID     uint64 `yaml:"chain_id"`
	Description string `yaml:"description"`
}

// WalletConfig 描述签名人密钥环的加载方式与注册表后端。
type WalletConfig struct {
	KeystorePath string         `yaml:"keystore_path"`
	Signers      []SignerConfig `yaml:"signers"`
	Registry     RegistryConfig `yaml:"registry"`
}

// RegistryConfig 目前支持 memory 与 mysql 两种驱动。
type RegistryConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// SignerConfig 描述单个具名签名人。
type SignerConfig struct {
	Name       string `yaml:"name"`
	PrivateKey string `yaml:"private_key"`
}

// StorageConfig 统一描述流程状态持久化后端。
type StorageConfig struct {
	FlowStore FlowStoreConfig `yaml:"flow_store"`
}

// FlowStoreConfig 目前提供内存实现，可切换到 MySQL。
type FlowStoreConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int64  `yaml:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int64  `yaml:"conn_max_idle_time_seconds"`
}

// Load 负责解析指定路径的 YAML 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Flow.TransferAmount == 0 {
		c.Flow.TransferAmount = 100
	}
	if c.Flow.ReturnAmount == 0 {
		c.Flow.ReturnAmount = 50
	}
	if c.Flow.DepositAmount == 0 {
		c.Flow.DepositAmount = 1000
	}
	if c.Flow.ExpirySeconds <= 0 {
		c.Flow.ExpirySeconds = 300
	}
	if c.Flow.ConfirmIntervalSeconds <= 0 {
		c.Flow.ConfirmIntervalSeconds = 1
	}
	if c.Flow.ConfirmTimeoutSeconds <= 0 {
		c.Flow.ConfirmTimeoutSeconds = 60
	}

	if c.Relay.Store.Driver == "" {
		c.Relay.Store.Driver = "memory"
	}
	if c.Relay.Notifier.Driver == "" {
		c.Relay.Notifier.Driver = "memory"
	}

	if c.Storage.FlowStore.Driver == "" {
		c.Storage.FlowStore.Driver = "memory"
	}

	if c.Wallet.Registry.Driver == "" {
		c.Wallet.Registry.Driver = "memory"
	}

	if c.Wallet.KeystorePath != "" && !filepath.IsAbs(c.Wallet.KeystorePath) {
		c.Wallet.KeystorePath = filepath.Join(baseDir, c.Wallet.KeystorePath)
	}
}
