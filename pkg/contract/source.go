package contract

import "context"

// SegmentSource: 五路行对齐输入的同步读取抽象。
// 约束：
//  1. 每次 Next 从五路各读一行，组成一个 Segment；
//  2. 任一路读尽即返回 ErrStreamsExhausted，此后重复调用结果不变；
//  3. 对齐行语法错误以 ErrAlignmentSyntax 包装返回（致命）；
//  4. 不在内部起并发。
type SegmentSource interface {
	Next(ctx context.Context) (Segment, error)
	// Truncated 在 Next 返回 ErrStreamsExhausted 后报告仍有剩余行的流名称；
	// 为空表示五路同时读尽。
	Truncated() []string
	Close() error
}

// Streams: 五路输入的位置（路径、"-" 表示 STDIN）。
type Streams struct {
	Src    string `json:"src"`
	Trg    string `json:"trg"`
	SrcTok string `json:"src_tok"`
	TrgTok string `json:"trg_tok"`
	Align  string `json:"align"`
}

// Named 以固定顺序返回 (名称, 路径)。
func (s Streams) Named() [5][2]string {
	return [5][2]string{
		{"src", s.Src},
		{"trg", s.Trg},
		{"src_tok", s.SrcTok},
		{"trg_tok", s.TrgTok},
		{"align", s.Align},
	}
}
