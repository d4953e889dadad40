package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/SunilRudraKumar/Easy/internal/agent"
	"github.com/SunilRudraKumar/Easy/internal/observability/metrics"
	"github.com/SunilRudraKumar/Easy/internal/wallet"
	"github.com/SunilRudraKumar/Easy/pkg/logger"
)

const maxBodyBytes = 1 << 20

// TurnHandler 处理一次对话轮次，由 agent.Agent 实现。
type TurnHandler interface {
	HandleTurn(ctx context.Context, req agent.TurnRequest) (*agent.TurnResponse, error)
}

// Wallets 是钱包路由依赖的服务，由 wallet.Service 实现。
type Wallets interface {
	CreateAccount(ctx context.Context, email, password string) (wallet.CreatedAccount, error)
	RegisterWallet(ctx context.Context) (wallet.RegisteredWallet, error)
	SendSOL(ctx context.Context, req wallet.SendRequest) (wallet.Receipt, error)
}

// Option 配置 Server。
type Option func(*Server)

// WithTimeouts 设置读写超时。
func WithTimeouts(read, write time.Duration) Option {
	return func(s *Server) {
		if read > 0 {
			s.readTimeout = read
		}
		if write > 0 {
			s.writeTimeout = write
		}
	}
}

// Server 负责暴露 REST 接口。
type Server struct {
	addr         string
	turns        TurnHandler
	wallets      Wallets
	readTimeout  time.Duration
	writeTimeout time.Duration
	log          *slog.Logger
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, turns TurnHandler, wallets Wallets, opts ...Option) *Server {
	s := &Server{
		addr:         addr,
		turns:        turns,
		wallets:      wallets,
		readTimeout:  15 * time.Second,
		writeTimeout: 90 * time.Second,
		log:          logger.Named("api"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 构建路由。ctx 取消后所有请求返回 503。
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /mcp/chat", instrument("chat", http.HandlerFunc(s.handleChat)))
	mux.Handle("POST /users/create-account", instrument("create_account", http.HandlerFunc(s.handleCreateAccount)))
	mux.Handle("POST /users/register", instrument("register", http.HandlerFunc(s.handleRegister)))
	mux.Handle("POST /transactions/send", instrument("send", http.HandlerFunc(s.handleSend)))
	mux.Handle("GET /healthz", instrument("healthz", http.HandlerFunc(handleHealth)))
	mux.Handle("GET /metrics", metrics.Handler())
	return withContext(ctx, mux)
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("API 服务已启动", slog.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "Service is shutting down"})
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
