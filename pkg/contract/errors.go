package contract

import "errors"

// 段级可恢复错误：调用方告警并跳过该段。
var (
	// ErrTokenMismatch: 分词结果无法与原始行逐字符对应。
	ErrTokenMismatch = errors.New("tokenization mismatch")
)

// 致命输入错误：终止运行，不做部分恢复。
var (
	// ErrAlignmentSyntax: 对齐行中存在非 "<非负整数>-<非负整数>" 形式的链接。
	ErrAlignmentSyntax = errors.New("alignment syntax")
	// ErrLinkOutOfRange: 链接下标越出对应词元序列。
	ErrLinkOutOfRange = errors.New("alignment link out of range")
	// ErrRecordSyntax: 短语对流/合并流中的行格式非法。
	ErrRecordSyntax = errors.New("record syntax")
	// ErrUnsorted: 要求有序的输入出现逆序。
	ErrUnsorted = errors.New("unsorted input")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrInvalidInput: 调用参数非法。
	ErrInvalidInput = errors.New("invalid input")
)

// ErrStreamsExhausted: 任一输入流读尽，同步读取到此为止。
// 属于定义内的边界行为（最短流截断），不是错误，调用方据此正常结束。
var ErrStreamsExhausted = errors.New("streams exhausted")
