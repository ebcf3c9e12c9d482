package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"CoSign-Relay/internal/api"
	"CoSign-Relay/internal/chain/provider"
	"CoSign-Relay/internal/config"
	"CoSign-Relay/internal/flow"
	"CoSign-Relay/internal/observability/alerting"
	"CoSign-Relay/internal/observability/metrics"
	"CoSign-Relay/internal/relay"
	"CoSign-Relay/internal/script"
	"CoSign-Relay/internal/storage/mysql"
	"CoSign-Relay/internal/wallet"
	"CoSign-Relay/pkg/logger"
)

// main 是 cosignd 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("cosignd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("COSIGN_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "cosign.yaml")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled: cfg.Logging.AuditPath != "",
			Path:    cfg.Logging.AuditPath,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()

	keyring, err := wallet.LoadKeyring(cfg.Wallet)
	if err != nil {
		return err
	}

	chainRegistry, err := provider.NewRegistry(cfg.Chain)
	if err != nil {
		return err
	}
	defer chainRegistry.Close()

	chainClient, err := chainRegistry.DefaultClient()
	if err != nil {
		return err
	}

	relayStore, err := buildRelayStore(ctx, cfg.Relay.Store)
	if err != nil {
		return err
	}
	defer relayStore.Close()

	notifier, err := buildNotifier(cfg.Relay.Notifier)
	if err != nil {
		return err
	}
	defer func() {
		if err := notifier.Close(); err != nil {
			logger.L().Warn("关闭通知队列失败", slog.Any("error", err))
		}
	}()

	// 消费端把中继事件落到日志，真实部署中副签名进程会在这里接入。
	go func() {
		err := notifier.Consume(ctx, 1, func(_ context.Context, notice relay.Notice) error {
			logger.Named("relay.notices").Info("收到中继事件",
				slog.String("run_id", notice.RunID),
				slog.String("event", notice.Event),
			)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Warn("通知消费异常退出", slog.Any("error", err))
		}
	}()

	flowStore, err := buildFlowStore(ctx, cfg.Storage.FlowStore)
	if err != nil {
		return err
	}
	defer flowStore.Close()

	registry, err := buildWalletRegistry(ctx, cfg.Wallet.Registry)
	if err != nil {
		return err
	}
	defer registry.Close()

	// 密钥环中的签名人在启动时登记，连接历史留给会话建立时更新。
	now := time.Now()
	for _, name := range keyring.Names() {
		signer, ok := keyring.Signer(name)
		if !ok {
			continue
		}
		if err := registry.Save(ctx, wallet.Record{
			Name:         signer.Name,
			Address:      signer.Address,
			RegisteredAt: now,
		}); err != nil {
			return err
		}
	}

	walletSvc := wallet.NewService(keyring, chainClient, wallet.WithRegistry(registry))
	alerts := alerting.NewFanout(&alerting.LogNotifier{})

	coordinator := flow.NewCoordinator(cfg.Flow, flowStore, relayStore, walletSvc,
		script.NewHTTPFetcher(0),
		flow.WithNotifier(notifier),
		flow.WithAlerts(alerts),
		flow.WithChainID(defaultChainID(cfg.Chain)),
	)

	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Warn("指标服务异常退出", slog.Any("error", err))
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, coordinator, walletSvc)
	logger.L().Info("cosignd 已启动",
		slog.String("address", cfg.Server.Address),
		slog.Int("signers", len(keyring.Names())),
	)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildRelayStore(ctx context.Context, cfg config.RelayStoreConfig) (relay.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return relay.NewMemoryStore(), nil
	case "redis":
		return relay.NewRedisStore(relay.RedisStoreConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       time.Duration(cfg.Redis.TTLSeconds) * time.Second,
		})
	case "mysql":
		return relay.NewMySQLStore(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("未知的中继存储驱动: %s", cfg.Driver)
	}
}

func buildNotifier(cfg config.NotifierConfig) (relay.Queue, error) {
	switch cfg.Driver {
	case "", "memory":
		return relay.NewMemoryQueue(1024), nil
	case "redis":
		return relay.NewRedisQueue(relay.RedisQueueConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Queue:    cfg.Redis.Queue,
		})
	case "rabbitmq":
		return relay.NewRabbitMQQueue(relay.RabbitMQQueueConfig{
			URL:   cfg.RabbitMQ.URL,
			Queue: cfg.RabbitMQ.Queue,
		})
	default:
		return nil, fmt.Errorf("未知的通知队列驱动: %s", cfg.Driver)
	}
}

func buildWalletRegistry(ctx context.Context, cfg config.RegistryConfig) (wallet.Registry, error) {
	switch cfg.Driver {
	case "", "memory":
		return wallet.NewMemoryRegistry(), nil
	case "mysql":
		return wallet.NewMySQLRegistry(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("未知的签名人注册表驱动: %s", cfg.Driver)
	}
}

func buildFlowStore(ctx context.Context, cfg config.FlowStoreConfig) (flow.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return flow.NewMemoryStore(), nil
	case "mysql":
		return mysql.NewFlowStore(ctx, mysql.Config{
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("未知的流程存储驱动: %s", cfg.Driver)
	}
}

// defaultChainID 与 provider.Registry 的默认链选择保持一致。
func defaultChainID(cfg config.ChainConfig) uint64 {
	if def, ok := cfg.Chains[cfg.Default]; ok {
		return def.ChainID
	}
	names := make([]string, 0, len(cfg.Chains))
	for name := range cfg.Chains {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 0 {
		return cfg.Chains[names[0]].ChainID
	}
	return 0
}
