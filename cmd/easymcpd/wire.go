package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/SunilRudraKumar/Easy/internal/action"
	"github.com/SunilRudraKumar/Easy/internal/agent"
	"github.com/SunilRudraKumar/Easy/internal/api"
	"github.com/SunilRudraKumar/Easy/internal/auth"
	"github.com/SunilRudraKumar/Easy/internal/config"
	"github.com/SunilRudraKumar/Easy/internal/config/paramstore"
	"github.com/SunilRudraKumar/Easy/internal/conversation"
	"github.com/SunilRudraKumar/Easy/internal/events"
	"github.com/SunilRudraKumar/Easy/internal/gateway"
	"github.com/SunilRudraKumar/Easy/internal/llm"
	"github.com/SunilRudraKumar/Easy/internal/llm/anthropic"
	"github.com/SunilRudraKumar/Easy/internal/llm/openai"
	"github.com/SunilRudraKumar/Easy/internal/observability/metrics"
	"github.com/SunilRudraKumar/Easy/internal/storage/dynamodb"
	"github.com/SunilRudraKumar/Easy/internal/storage/mysql"
	"github.com/SunilRudraKumar/Easy/internal/storage/redis"
	"github.com/SunilRudraKumar/Easy/internal/wallet"
	"github.com/SunilRudraKumar/Easy/internal/web3/provider"
	"github.com/SunilRudraKumar/Easy/pkg/logger"
)

var (
	awsOnce sync.Once
	awsCfg  aws.Config
	awsErr  error
)

// loadAWS 在第一次需要时加载默认凭证链。
func loadAWS(ctx context.Context, region string) (aws.Config, error) {
	awsOnce.Do(func() {
		var opts []func(*awsconfig.LoadOptions) error
		if region != "" {
			opts = append(opts, awsconfig.WithRegion(region))
		}
		awsCfg, awsErr = awsconfig.LoadDefaultConfig(ctx, opts...)
		if awsErr != nil {
			awsErr = fmt.Errorf("加载 AWS 配置失败: %w", awsErr)
		}
	})
	return awsCfg, awsErr
}

func resolveSecrets(ctx context.Context, cfg *config.Config) error {
	var getter paramstore.Getter
	if cfg.NeedsParamStore() {
		awsConf, err := loadAWS(ctx, cfg.Storage.Conversation.DynamoDB.Region)
		if err != nil {
			return err
		}
		client, err := paramstore.New(ssm.NewFromConfig(awsConf))
		if err != nil {
			return err
		}
		getter = client
	}
	return cfg.ResolveSecrets(ctx, getter)
}

// closers 按注册的逆序释放资源。
type closers []func()

func (c *closers) add(fn func()) { *c = append(*c, fn) }

func (c closers) closeAll() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.L()
	var cleanup closers
	defer cleanup.closeAll()

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	history, pending, err := conversationStores(ctx, cfg, &cleanup)
	if err != nil {
		return err
	}

	accounts, err := accountRepository(ctx, cfg, &cleanup)
	if err != nil {
		return err
	}

	publisher, err := eventPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	cleanup.add(func() {
		if err := publisher.Close(); err != nil {
			log.Warn("关闭事件发布器失败", "error", err)
		}
	})

	chains, err := provider.NewRegistry(ctx, cfg.Web3)
	if err != nil {
		return err
	}
	cleanup.add(chains.Close)
	chain, err := chains.DefaultClient()
	if err != nil {
		return err
	}

	sealer, err := wallet.NewSealer(cfg.Wallet.SealingKey.Value)
	if err != nil {
		return err
	}
	wallets, err := wallet.NewService(accounts, sealer, chain)
	if err != nil {
		return err
	}

	registry := action.NewRegistry()
	if err := wallet.RegisterActions(registry, wallets); err != nil {
		return err
	}

	client, err := llmClient(cfg.LLM)
	if err != nil {
		return err
	}
	model, err := gateway.New(client,
		gateway.WithModelTimeout(cfg.LLM.Timeout()),
		gateway.WithMaxTokens(cfg.LLM.MaxTokens),
	)
	if err != nil {
		return err
	}

	authorizer, err := newAuthorizer(cfg.Auth, wallets)
	if err != nil {
		return err
	}

	turns, err := agent.New(history, pending, model, action.NewDispatcher(registry), authorizer,
		agent.WithPendingTTL(cfg.Conversation.PendingTTL()),
		agent.WithDispatchTimeout(cfg.Action.Timeout()),
		agent.WithPublisher(publisher),
	)
	if err != nil {
		return err
	}

	server := api.NewServer(cfg.Server.Address, turns, wallets,
		api.WithTimeouts(cfg.Server.ReadTimeout(), cfg.Server.WriteTimeout()),
	)

	log.Info("easymcpd 启动",
		"version", version,
		"address", cfg.Server.Address,
		"cluster", chain.Cluster(),
		"conversation_store", cfg.Storage.Conversation.Driver,
		"account_store", cfg.Storage.Accounts.Driver,
		"events", cfg.Events.Drivers,
		"auth", cfg.Auth.Mode,
	)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return server.Start(gctx) })
	if cfg.Metrics.Enabled {
		group.Go(func() error { return metrics.StartServer(gctx, cfg.Metrics.Address) })
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func conversationStores(ctx context.Context, cfg *config.Config, cleanup *closers) (conversation.HistoryStore, conversation.PendingStore, error) {
	conv := cfg.Conversation
	store := cfg.Storage.Conversation

	switch store.Driver {
	case "redis":
		client, err := redisClient(ctx, store.Redis, cleanup)
		if err != nil {
			return nil, nil, err
		}
		history := redis.NewHistoryStore(client,
			redis.WithHistoryTTL(conv.HistoryTTL()),
			redis.WithHistoryWindow(conv.HistoryWindow),
		)
		return history, redis.NewPendingStore(client, nil), nil
	case "dynamodb":
		awsConf, err := loadAWS(ctx, store.DynamoDB.Region)
		if err != nil {
			return nil, nil, err
		}
		history, err := dynamodb.New(awsdynamodb.NewFromConfig(awsConf), store.DynamoDB.Table,
			dynamodb.WithTTL(conv.HistoryTTL()),
		)
		if err != nil {
			return nil, nil, err
		}
		if store.Redis.Address == "" {
			logger.L().Warn("dynamodb 驱动未配置 redis，待确认提案仅保存在本进程内存中")
			return history, conversation.NewMemoryPendingStore(), nil
		}
		client, err := redisClient(ctx, store.Redis, cleanup)
		if err != nil {
			return nil, nil, err
		}
		return history, redis.NewPendingStore(client, nil), nil
	default:
		return conversation.NewMemoryHistoryStore(conversation.WithMemoryTTL(conv.HistoryTTL())),
			conversation.NewMemoryPendingStore(), nil
	}
}

func redisClient(ctx context.Context, c config.RedisConfig, cleanup *closers) (*goredis.Client, error) {
	client, err := redis.NewClient(ctx, redis.Config{
		Address:  c.Address,
		Password: c.Password.Value,
		DB:       c.DB,
	})
	if err != nil {
		return nil, err
	}
	cleanup.add(func() { _ = client.Close() })
	return client, nil
}

func accountRepository(ctx context.Context, cfg *config.Config, cleanup *closers) (wallet.AccountRepository, error) {
	if cfg.Storage.Accounts.Driver != "mysql" {
		return wallet.NewMemoryAccountRepository(), nil
	}
	repo, err := mysql.NewAccountRepository(ctx, mysqlConfig(cfg.Storage.Accounts.MySQL))
	if err != nil {
		return nil, err
	}
	cleanup.add(func() { _ = repo.Close() })
	return repo, nil
}

func eventPublisher(ctx context.Context, cfg *config.Config) (events.Publisher, error) {
	var targets []events.Named
	for _, driver := range cfg.Events.Drivers {
		switch driver {
		case "memory":
			targets = append(targets, events.Named{Name: driver, Publisher: events.NewMemory(1024)})
		case "redis":
			rc := cfg.Events.Redis
			client, err := redis.NewClient(ctx, redis.Config{Address: rc.Address, Password: rc.Password.Value, DB: rc.DB})
			if err != nil {
				return nil, err
			}
			stream, err := events.NewRedisStream(client, rc.Stream, rc.MaxLen)
			if err != nil {
				_ = client.Close()
				return nil, err
			}
			targets = append(targets, events.Named{Name: driver, Publisher: stream.OwnClient()})
		case "rabbitmq":
			queue, err := events.NewRabbitMQ(events.RabbitMQConfig{
				URL:   cfg.Events.RabbitMQ.URL.Value,
				Queue: cfg.Events.RabbitMQ.Queue,
			})
			if err != nil {
				return nil, err
			}
			targets = append(targets, events.Named{Name: driver, Publisher: queue})
		}
	}
	if len(targets) == 0 {
		return events.None{}, nil
	}
	return events.NewFanout(targets...), nil
}

func llmClient(c config.LLMConfig) (llm.Client, error) {
	switch c.Provider {
	case "openai":
		return openai.NewClient(openai.Config{
			APIKey:  c.APIKey.Value,
			BaseURL: c.BaseURL,
			Model:   c.Model,
			Timeout: c.Timeout(),
		})
	default:
		return anthropic.NewClient(anthropic.Config{
			APIKey:    c.APIKey.Value,
			BaseURL:   c.BaseURL,
			Model:     c.Model,
			MaxTokens: c.MaxTokens,
		})
	}
}

func newAuthorizer(c config.AuthConfig, store auth.CredentialStore) (auth.Authorizer, error) {
	if c.Mode == config.AuthModeInsecureAllowAll {
		logger.L().Warn("auth.mode=insecure_allow_all，所有确认都会被放行")
		return auth.NewAllowAll(), nil
	}
	return auth.NewCredentialAuthorizer(store)
}
