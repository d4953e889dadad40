package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/SunilRudraKumar/Easy/internal/config"
	"github.com/SunilRudraKumar/Easy/internal/storage/mysql"
	"github.com/SunilRudraKumar/Easy/pkg/logger"
)

// version 由构建时的 -ldflags "-X main.version=..." 注入。
var version = "dev"

// main 是 easymcpd 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "easymcpd 运行失败: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "easymcpd",
		Short:         "Conversational Solana wallet assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径，默认读取 $"+config.EnvConfigPath)

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP API",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig(cmd.Context(), configPath)
				if err != nil {
					return err
				}
				defer logger.Sync()
				return serve(cmd.Context(), cfg)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply MySQL migrations for the accounts table",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig(cmd.Context(), configPath)
				if err != nil {
					return err
				}
				defer logger.Sync()
				if cfg.Storage.Accounts.Driver != "mysql" {
					return errors.New("migrate 仅支持 mysql 账户存储")
				}
				if err := mysql.Migrate(cmd.Context(), mysqlConfig(cfg.Storage.Accounts.MySQL)); err != nil {
					return err
				}
				logger.L().Info("MySQL 迁移完成")
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the build version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return root
}

// loadConfig 读取配置、初始化日志并解析密钥。
func loadConfig(ctx context.Context, flagValue string) (*config.Config, error) {
	cfg, err := config.Load(config.ResolvePath(flagValue))
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
			Compress:   cfg.Logging.Audit.Compress,
		},
	}); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	if err := resolveSecrets(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mysqlConfig(c config.MySQLConfig) mysql.Config {
	return mysql.Config{
		DSN:             c.DSN.Value,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: time.Duration(c.ConnMaxLifetimeSeconds) * time.Second,
	}
}
