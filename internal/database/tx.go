package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TransactionFunc 事务函数类型
type TransactionFunc func(tx *gorm.DB) error

// WithTransaction 在事务中执行 fn，fn 返回错误时回滚.
func (pm *PoolManager) WithTransaction(ctx context.Context, fn TransactionFunc) error {
	if err := pm.check(); err != nil {
		return err
	}
	return pm.db.WithContext(ctx).Transaction(fn)
}

// WithTransactionRetry 在可重试错误上指数退避重做整个事务，最多 maxRetries 次.
// 同一会话的并发追加会撞上 (session_id, seq) 唯一键，重做时重新读取序号即可.
func (pm *PoolManager) WithTransactionRetry(ctx context.Context, maxRetries int, fn TransactionFunc) error {
	maxRetries = max(maxRetries, 1)
	backoff := 50 * time.Millisecond

	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err = pm.WithTransaction(ctx, fn); err == nil || !IsRetryableError(err) {
			return err
		}
		pm.logger.Warn("transaction failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("transaction failed after %d retries: %w", maxRetries, err)
}

// postgres SQLSTATE
var retryablePgCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"23505": true, // unique_violation
	"55P03": true, // lock_not_available
}

// mysql 错误号
var retryableMySQLErrors = map[uint16]bool{
	1062: true, // ER_DUP_ENTRY
	1205: true, // ER_LOCK_WAIT_TIMEOUT
	1213: true, // ER_LOCK_DEADLOCK
}

// sqlite 与网络错误没有稳定的类型，按消息匹配
var retryableMessages = []string{
	"deadlock",
	"could not serialize", "40001",
	"connection reset", "connection refused", "broken pipe", "bad connection",
	"lock wait timeout", "database is locked",
	"duplicate key", "unique constraint", "duplicate entry",
}

// IsRetryableError 判断事务错误是否值得重做.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return retryablePgCodes[pgErr.Code]
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return retryableMySQLErrors[myErr.Number]
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range retryableMessages {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
