// Package solana implements web3.Client against a Solana JSON-RPC endpoint.
package solana

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/SunilRudraKumar/Easy/internal/web3"
	"github.com/SunilRudraKumar/Easy/pkg/logger"
)

const (
	defaultCommitment     = "confirmed"
	defaultConfirmTimeout = 60 * time.Second
	defaultPollInterval   = 500 * time.Millisecond
)

// ErrConfirmTimeout is returned when a submitted transaction is not confirmed in time.
var ErrConfirmTimeout = errors.New("solana: transaction confirmation timed out")

// Config describes how to construct a cluster client.
type Config struct {
	Name            string
	RPCURL          string
	ExplorerCluster string
	Commitment      string
	ConfirmTimeout  time.Duration
	PollInterval    time.Duration
}

// Client talks to one Solana cluster.
type Client struct {
	cfg Config
	log *slog.Logger

	mu  sync.Mutex
	rpc *gethrpc.Client
}

// NewClient dials the configured RPC endpoint.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置 Solana RPC 地址")
	}
	if cfg.Commitment == "" {
		cfg.Commitment = defaultCommitment
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = defaultConfirmTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接 Solana 节点失败: %w", err)
	}
	return &Client{
		cfg: cfg,
		log: logger.Named("solana").With("cluster", cfg.Name),
		rpc: rpcClient,
	}, nil
}

// Cluster returns the configured cluster name.
func (c *Client) Cluster() string {
	return c.cfg.Name
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpc != nil {
		c.rpc.Close()
		c.rpc = nil
	}
}

func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	c.mu.Lock()
	rpcClient := c.rpc
	c.mu.Unlock()
	if rpcClient == nil {
		return errors.New("Solana 客户端已关闭")
	}
	return rpcClient.CallContext(ctx, result, method, args...)
}

type commitmentOpts struct {
	Commitment string `json:"commitment,omitempty"`
}

// Balance returns the lamport balance of an address.
func (c *Client) Balance(ctx context.Context, address string) (uint64, error) {
	if _, err := ParsePublicKey(address); err != nil {
		return 0, err
	}
	var resp struct {
		Value uint64 `json:"value"`
	}
	if err := c.call(ctx, &resp, "getBalance", address, commitmentOpts{Commitment: c.cfg.Commitment}); err != nil {
		return 0, fmt.Errorf("查询余额失败: %w", err)
	}
	return resp.Value, nil
}

// Transfer signs, submits and waits for confirmation of a SystemProgram transfer.
func (c *Client) Transfer(ctx context.Context, from ed25519.PrivateKey, to string, lamports uint64) (web3.Transfer, error) {
	blockhash, err := c.latestBlockhash(ctx)
	if err != nil {
		return web3.Transfer{}, err
	}
	tx, err := BuildTransfer(from, to, lamports, blockhash)
	if err != nil {
		return web3.Transfer{}, err
	}

	var signature string
	sendOpts := map[string]any{
		"encoding":            "base64",
		"preflightCommitment": c.cfg.Commitment,
	}
	if err := c.call(ctx, &signature, "sendTransaction", base64.StdEncoding.EncodeToString(tx.Raw), sendOpts); err != nil {
		return web3.Transfer{}, fmt.Errorf("发送交易失败: %w", err)
	}
	if signature == "" {
		signature = tx.Signature
	}
	c.log.Info("transaction submitted", "signature", signature, "lamports", lamports)

	if err := c.waitForConfirmation(ctx, signature); err != nil {
		return web3.Transfer{}, err
	}
	return web3.Transfer{
		Signature: signature,
		Explorer:  web3.ExplorerURL(signature, c.cfg.ExplorerCluster),
	}, nil
}

func (c *Client) latestBlockhash(ctx context.Context) (string, error) {
	var resp struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.call(ctx, &resp, "getLatestBlockhash", commitmentOpts{Commitment: c.cfg.Commitment}); err != nil {
		return "", fmt.Errorf("获取最新区块哈希失败: %w", err)
	}
	if resp.Value.Blockhash == "" {
		return "", errors.New("节点未返回区块哈希")
	}
	return resp.Value.Blockhash, nil
}

type signatureStatus struct {
	Slot               uint64 `json:"slot"`
	Err                any    `json:"err"`
	ConfirmationStatus string `json:"confirmationStatus"`
}

func (c *Client) waitForConfirmation(ctx context.Context, signature string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		var resp struct {
			Value []*signatureStatus `json:"value"`
		}
		err := c.call(ctx, &resp, "getSignatureStatuses", []string{signature}, map[string]bool{"searchTransactionHistory": true})
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("查询交易状态失败: %w", err)
		}
		if err == nil && len(resp.Value) > 0 && resp.Value[0] != nil {
			status := resp.Value[0]
			if status.Err != nil {
				return fmt.Errorf("交易执行失败: %v", status.Err)
			}
			if reached(status.ConfirmationStatus, c.cfg.Commitment) {
				c.log.Info("transaction confirmed", "signature", signature, "slot", status.Slot, "status", status.ConfirmationStatus)
				return nil
			}
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrConfirmTimeout
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

var commitmentRank = map[string]int{"processed": 1, "confirmed": 2, "finalized": 3}

// reached reports whether status satisfies the wanted commitment level.
// Anything below confirmed never counts.
func reached(status, want string) bool {
	got := commitmentRank[status]
	need := commitmentRank[want]
	if need < commitmentRank["confirmed"] {
		need = commitmentRank["confirmed"]
	}
	return got >= need
}

var _ web3.Client = (*Client)(nil)
