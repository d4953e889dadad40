// Package wallet 管理托管的 Solana 钱包：账户创建、助记词加密保存与转账。
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SunilRudraKumar/Easy/internal/auth"
	"github.com/SunilRudraKumar/Easy/internal/conversation"
	xerrors "github.com/SunilRudraKumar/Easy/internal/errors"
	"github.com/SunilRudraKumar/Easy/internal/web3"
	"github.com/SunilRudraKumar/Easy/internal/web3/solana"
	"github.com/SunilRudraKumar/Easy/pkg/logger"
)

const (
	msgAccountCreated = "Account created successfully"
	msgWalletCreated  = "Wallet created successfully"
)

// CreatedAccount 是 CreateAccount 的返回值。
type CreatedAccount struct {
	Message   string `json:"message"`
	UserID    string `json:"userId"`
	PublicKey string `json:"publicKey"`
	Mnemonic  string `json:"mnemonic"`
}

// RegisteredWallet 是 RegisterWallet 的返回值。
type RegisteredWallet struct {
	Message   string `json:"message"`
	UserID    string `json:"userId"`
	Mnemonic  string `json:"mnemonic"`
	PublicKey string `json:"publicKey"`
	SecretKey string `json:"secretKey"`
}

// SendRequest 描述一次 SOL 转账。
type SendRequest struct {
	SenderEmail string  `json:"senderEmail"`
	Password    string  `json:"password"`
	ToAddress   string  `json:"toAddress"`
	Amount      float64 `json:"amount"`
}

// Receipt 是已确认转账的回执。
type Receipt struct {
	Message  string `json:"message"`
	TxHash   string `json:"txHash"`
	Explorer string `json:"explorer"`
}

// Option 配置 Service。
type Option func(*Service)

// WithClock 替换时间来源。
func WithClock(now conversation.Clock) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator 替换账户 ID 生成器。
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// Service 组合账户仓库、助记词加密与链客户端。
type Service struct {
	accounts AccountRepository
	sealer   *Sealer
	chain    web3.Client
	now      conversation.Clock
	newID    func() string
	log      *slog.Logger
}

// NewService 创建钱包服务。
func NewService(accounts AccountRepository, sealer *Sealer, chain web3.Client, opts ...Option) (*Service, error) {
	if accounts == nil {
		return nil, errors.New("wallet: account repository must not be nil")
	}
	if sealer == nil {
		return nil, errors.New("wallet: sealer must not be nil")
	}
	if chain == nil {
		return nil, errors.New("wallet: chain client must not be nil")
	}
	s := &Service{
		accounts: accounts,
		sealer:   sealer,
		chain:    chain,
		now:      time.Now,
		newID:    uuid.NewString,
		log:      logger.Named("wallet"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// CreateAccount 创建带邮箱与密码的托管钱包。
func (s *Service) CreateAccount(ctx context.Context, email, password string) (CreatedAccount, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return CreatedAccount{}, xerrors.New(xerrors.CodeInvalidArgument, "Email and password are required")
	}
	existing, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return CreatedAccount{}, err
	}
	if existing != nil {
		return CreatedAccount{}, xerrors.New(xerrors.CodeConflict, "User already exists")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return CreatedAccount{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "Invalid password")
	}
	account, mnemonic, _, err := s.newAccount(email, hash)
	if err != nil {
		return CreatedAccount{}, err
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return CreatedAccount{}, err
	}
	s.log.Info("account created", slog.String("user_id", account.ID), slog.String("public_key", account.PublicKey))
	return CreatedAccount{
		Message:   msgAccountCreated,
		UserID:    account.ID,
		PublicKey: account.PublicKey,
		Mnemonic:  mnemonic,
	}, nil
}

// RegisterWallet 创建不带凭证的钱包，并把私钥返回给调用方保管。
func (s *Service) RegisterWallet(ctx context.Context) (RegisteredWallet, error) {
	account, mnemonic, keys, err := s.newAccount("", "")
	if err != nil {
		return RegisteredWallet{}, err
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return RegisteredWallet{}, err
	}
	s.log.Info("wallet registered", slog.String("user_id", account.ID), slog.String("public_key", account.PublicKey))
	return RegisteredWallet{
		Message:   msgWalletCreated,
		UserID:    account.ID,
		Mnemonic:  mnemonic,
		PublicKey: account.PublicKey,
		SecretKey: keys.SecretKey(),
	}, nil
}

func (s *Service) newAccount(email, passwordHash string) (Account, string, Keypair, error) {
	mnemonic, err := NewMnemonic()
	if err != nil {
		return Account{}, "", Keypair{}, xerrors.Wrap(CodeWalletFailure, err, "Failed to generate wallet")
	}
	keys, err := DeriveKeypair(mnemonic)
	if err != nil {
		return Account{}, "", Keypair{}, xerrors.Wrap(CodeWalletFailure, err, "Failed to generate wallet")
	}
	sealed, err := s.sealer.Seal([]byte(mnemonic))
	if err != nil {
		return Account{}, "", Keypair{}, xerrors.Wrap(CodeWalletFailure, err, "Failed to protect wallet")
	}
	return Account{
		ID:             s.newID(),
		Email:          email,
		PasswordHash:   passwordHash,
		PublicKey:      keys.PublicKey(),
		SealedMnemonic: sealed,
		CreatedAt:      s.now().UTC(),
	}, mnemonic, keys, nil
}

// Authenticate 校验邮箱与密码。
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	account, err := s.accounts.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, xerrors.New(xerrors.CodeNotFound, "User not found")
	}
	if !auth.VerifyPassword(account.PasswordHash, password) {
		return nil, xerrors.New(xerrors.CodeUnauthenticated, "Invalid credentials")
	}
	return account, nil
}

// SendSOL 鉴权后从发送方钱包转出 SOL，并等待确认。
func (s *Service) SendSOL(ctx context.Context, req SendRequest) (Receipt, error) {
	account, err := s.Authenticate(ctx, req.SenderEmail, req.Password)
	if err != nil {
		return Receipt{}, err
	}

	to := strings.TrimSpace(req.ToAddress)
	if _, err := solana.ParsePublicKey(to); err != nil {
		return Receipt{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "Invalid recipient address")
	}
	lamports, err := ToLamports(req.Amount)
	if err != nil {
		return Receipt{}, err
	}

	mnemonic, err := s.sealer.Open(account.SealedMnemonic)
	if err != nil {
		return Receipt{}, xerrors.Wrap(CodeWalletFailure, err, "Wallet key is unavailable")
	}
	keys, err := DeriveKeypair(string(mnemonic))
	if err != nil {
		return Receipt{}, xerrors.Wrap(CodeWalletFailure, err, "Wallet key is unavailable")
	}
	if keys.PublicKey() != account.PublicKey {
		return Receipt{}, xerrors.New(CodeWalletFailure, "Wallet key is unavailable")
	}

	transfer, err := s.chain.Transfer(ctx, keys.Private, to, lamports)
	if err != nil {
		if errors.Is(err, solana.ErrConfirmTimeout) {
			return Receipt{}, xerrors.Wrap(xerrors.CodeTimeout, err, "Transaction was not confirmed in time")
		}
		return Receipt{}, xerrors.Wrap(CodeChainFailure, err, "Transaction failed on "+s.chain.Cluster(),
			xerrors.WithMetadata("cluster", s.chain.Cluster()))
	}

	amount := strconv.FormatFloat(req.Amount, 'f', -1, 64)
	s.log.Info("transfer confirmed",
		slog.String("user_id", account.ID),
		slog.String("to", to),
		slog.Uint64("lamports", lamports),
		slog.String("signature", transfer.Signature),
	)
	return Receipt{
		Message:  fmt.Sprintf("✅ Sent %s SOL to %s", amount, to),
		TxHash:   transfer.Signature,
		Explorer: transfer.Explorer,
	}, nil
}

// ToLamports 把 SOL 数量向下取整为 lamports，结果必须至少为 1。
func ToLamports(amount float64) (uint64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "Amount must be a positive number")
	}
	lamports := math.Floor(amount * web3.LamportsPerSOL)
	if lamports < 1 {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "Amount is smaller than one lamport")
	}
	if lamports >= math.MaxUint64 {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "Amount is too large")
	}
	return uint64(lamports), nil
}

// CredentialsByID 实现 auth.CredentialStore。
func (s *Service) CredentialsByID(ctx context.Context, userID string) (*auth.Credentials, error) {
	account, err := s.accounts.FindByID(ctx, userID)
	return toCredentials(account, err)
}

// CredentialsByEmail 实现 auth.CredentialStore。
func (s *Service) CredentialsByEmail(ctx context.Context, email string) (*auth.Credentials, error) {
	account, err := s.accounts.FindByEmail(ctx, NormalizeEmail(email))
	return toCredentials(account, err)
}

func toCredentials(account *Account, err error) (*auth.Credentials, error) {
	if err != nil || account == nil {
		return nil, err
	}
	return &auth.Credentials{
		UserID:       account.ID,
		Email:        account.Email,
		PasswordHash: account.PasswordHash,
	}, nil
}

var _ auth.CredentialStore = (*Service)(nil)
