package contract

import "context"

// PairSink: 短语对的持久化出口（TSV 文件 / SQLite 等）。
// 约束：
//  1. 单写者：仅由编排层的顺序门闩调用，按段序追加；
//  2. 不读取/修改短语对内容，不做去重；
//  3. ctx 取消需尽快返回；
//  4. 错误直接上抛（不做重试/回退）；
//  5. Close 负责刷新与提交；Abort 丢弃未提交的输出（原子文件不落盘、事务回滚）。
//     二者只调用其一，且只调用一次。
type PairSink interface {
	Put(ctx context.Context, p PhrasePair) error
	Close() error
	Abort() error
}
