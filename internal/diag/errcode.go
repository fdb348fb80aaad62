package diag

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"time"

	"modernc.org/sqlite"

	"ctxdict/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志/指标汇总，与退出码解耦。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeInvariant Code = "invariant"
	CodeInput     Code = "input"
	CodeCancel    Code = "cancel"
	CodeIO        Code = "io"
	CodeStorage   Code = "storage"
)

// Classify 将错误归为最小分类。
// 仅依赖哨兵错误与错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// 取消/超时优先
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	// 输入数据格式
	if errors.Is(err, contract.ErrAlignmentSyntax) ||
		errors.Is(err, contract.ErrLinkOutOfRange) ||
		errors.Is(err, contract.ErrRecordSyntax) ||
		errors.Is(err, contract.ErrUnsorted) ||
		errors.Is(err, contract.ErrTokenMismatch) {
		return CodeInput
	}
	// 不变量
	if errors.Is(err, contract.ErrInvariantViolation) ||
		errors.Is(err, contract.ErrInvalidInput) {
		return CodeInvariant
	}
	// 存储
	var serr *sqlite.Error
	if errors.As(err, &serr) || errors.Is(err, sql.ErrTxDone) || errors.Is(err, sql.ErrConnDone) {
		return CodeStorage
	}
	// I/O
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	return CodeUnknown
}

// NowUTC 返回 RFC3339 UTC 时间字符串（用于结构化日志字段 ts）。
func NowUTC() string { return time.Now().UTC().Format(time.RFC3339) }
