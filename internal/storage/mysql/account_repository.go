package mysql

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	xerrors "github.com/SunilRudraKumar/Easy/internal/errors"
	"github.com/SunilRudraKumar/Easy/internal/wallet"
)

const duplicateEntry = 1062

const accountColumns = `id, email, password_hash, public_key, sealed_mnemonic, created_at`

// AccountRepository 使用 MySQL accounts 表保存钱包账户。
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository 建立连接池并执行迁移。
func NewAccountRepository(ctx context.Context, cfg Config) (*AccountRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "初始化 MySQL 失败")
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "执行 MySQL 迁移失败")
	}
	return &AccountRepository{db: db}, nil
}

// Migrate 打开连接执行迁移后关闭，供 migrate 子命令使用。
func Migrate(ctx context.Context, cfg Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return runMigrations(ctx, db)
}

// Close 释放连接池。
func (r *AccountRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Create 插入账户。唯一键冲突映射为 CONFLICT。
func (r *AccountRepository) Create(ctx context.Context, account wallet.Account) error {
	const stmt = `INSERT INTO accounts (` + accountColumns + `) VALUES (?, ?, ?, ?, ?, ?)`

	var email sql.NullString
	if normalized := wallet.NormalizeEmail(account.Email); normalized != "" {
		email = sql.NullString{String: normalized, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, stmt,
		account.ID,
		email,
		account.PasswordHash,
		account.PublicKey,
		account.SealedMnemonic,
		account.CreatedAt.UnixMilli(),
	)
	if err != nil {
		var mysqlErr *gomysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == duplicateEntry {
			return xerrors.New(xerrors.CodeConflict, "邮箱已被注册")
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入账户失败")
	}
	return nil
}

// FindByEmail 按邮箱查找账户，不存在时返回 nil。
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*wallet.Account, error) {
	normalized := wallet.NormalizeEmail(email)
	if normalized == "" {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = ?`, normalized)
	return scanAccount(row)
}

// FindByID 按 ID 查找账户，不存在时返回 nil。
func (r *AccountRepository) FindByID(ctx context.Context, id string) (*wallet.Account, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

func scanAccount(row *sql.Row) (*wallet.Account, error) {
	var (
		account   wallet.Account
		email     sql.NullString
		createdAt int64
	)
	if err := row.Scan(&account.ID, &email, &account.PasswordHash, &account.PublicKey, &account.SealedMnemonic, &createdAt); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询账户失败")
	}
	account.Email = email.String
	account.CreatedAt = time.UnixMilli(createdAt)
	return &account, nil
}

var _ wallet.AccountRepository = (*AccountRepository)(nil)
