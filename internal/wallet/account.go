package wallet

import (
	"context"
	"strings"
	"sync"
	"time"

	xerrors "github.com/SunilRudraKumar/Easy/internal/errors"
)

// Account 是一个托管钱包账户。Email 为空表示通过 /users/register 创建的匿名钱包。
type Account struct {
	ID             string
	Email          string
	PasswordHash   string
	PublicKey      string
	SealedMnemonic []byte
	CreatedAt      time.Time
}

// AccountRepository 抽象账户持久化。
type AccountRepository interface {
	Create(ctx context.Context, account Account) error
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
}

// NormalizeEmail 统一邮箱的比较形式。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MemoryAccountRepository 在进程内保存账户，供测试与单机部署使用。
type MemoryAccountRepository struct {
	mu      sync.RWMutex
	byID    map[string]Account
	byEmail map[string]string
}

// NewMemoryAccountRepository 创建内存账户仓库。
func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{
		byID:    make(map[string]Account),
		byEmail: make(map[string]string),
	}
}

// Create 保存账户，邮箱或 ID 重复时返回 CONFLICT。
func (r *MemoryAccountRepository) Create(_ context.Context, account Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[account.ID]; exists {
		return xerrors.New(xerrors.CodeConflict, "账户已存在")
	}
	email := NormalizeEmail(account.Email)
	if email != "" {
		if _, exists := r.byEmail[email]; exists {
			return xerrors.New(xerrors.CodeConflict, "邮箱已被注册")
		}
		r.byEmail[email] = account.ID
	}
	account.SealedMnemonic = append([]byte(nil), account.SealedMnemonic...)
	r.byID[account.ID] = account
	return nil
}

// FindByEmail 按邮箱查找账户，不存在时返回 nil。
func (r *MemoryAccountRepository) FindByEmail(_ context.Context, email string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	account := r.byID[id]
	return &account, nil
}

// FindByID 按 ID 查找账户，不存在时返回 nil。
func (r *MemoryAccountRepository) FindByID(_ context.Context, id string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return &account, nil
}

var _ AccountRepository = (*MemoryAccountRepository)(nil)
