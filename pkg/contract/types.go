package contract

// SegIndex: 语料内稳定递增的段序号（0..n-1，等于原始语料行号减一）。
type SegIndex int64

// Line 返回 1 起的行号（用于诊断输出）。
func (i SegIndex) Line() int64 { return int64(i) + 1 }

// Segment: 原子处理单元（一行平行语料）。
// 约束：
// - 五路输入按行同步读取，每个 Segment 恰好来自各流的同一行；
// - Raw* 保留原始字节（去除行尾 LF/CRLF），不做业务性清洗；
// - Links 为解析后的对齐链接（若开启 reverse，已交换两端）；
// - 处理完毕即丢弃，不跨段保留状态。
type Segment struct {
	Index     SegIndex
	SrcRaw    string
	TrgRaw    string
	SrcTokens []string
	TrgTokens []string
	Links     []Link
}

// Span: 词元在原始行中的字节区间 [Start, End)。
type Span struct {
	Start int
	End   int
}

// Link: 一条词对齐链接（源词元下标, 目标词元下标），均自 0 起。
type Link struct {
	Src int
	Trg int
}

// Reverse 交换链接两端。
func (l Link) Reverse() Link { return Link{Src: l.Trg, Trg: l.Src} }

// Bound: 显式“可能未对齐”的下标值，替代极值哨兵。
// Aligned=false 时 Pos 无意义，调用方不得参与比较。
type Bound struct {
	Pos     int
	Aligned bool
}

// Unaligned 为零值：未对齐。
var Unaligned = Bound{}

// At 构造已对齐的下标。
func At(pos int) Bound { return Bound{Pos: pos, Aligned: true} }

// Min 返回两者中较小的已对齐值；未对齐一侧不参与。
func (b Bound) Min(o Bound) Bound {
	switch {
	case !b.Aligned:
		return o
	case !o.Aligned:
		return b
	case o.Pos < b.Pos:
		return o
	default:
		return b
	}
}

// Max 返回两者中较大的已对齐值；未对齐一侧不参与。
func (b Bound) Max(o Bound) Bound {
	switch {
	case !b.Aligned:
		return o
	case !o.Aligned:
		return b
	case o.Pos > b.Pos:
		return o
	default:
		return b
	}
}

// Index: 双向最小/最大对齐索引（每个词元一项）。
// 不变量：对至少有一条链接的词元，Min.Pos <= Max.Pos 且二者均 Aligned。
type Index struct {
	Src2TrgMin []Bound
	Src2TrgMax []Bound
	Trg2SrcMin []Bound
	Trg2SrcMax []Bound
}

// PhrasePair: 通过一致性检验的短语对（发出后不可变）。
// I/J 为源端闭区间，TrgMin/TrgMax 为目标端闭区间；
// SrcBytes/TrgBytes 为对应原始行内的字节区间。
type PhrasePair struct {
	Segment  SegIndex
	I, J     int
	TrgMin   int
	TrgMax   int
	Src      []string
	Trg      []string
	SrcBytes Span
	TrgBytes Span
}

// Example: 短语对在语料中的一次出现（边界描述符的结构化形式）。
// 文本形式 seg:srcStart:srcEnd:trgStart:trgEnd。
type Example struct {
	Segment  SegIndex
	SrcStart int
	SrcEnd   int
	TrgStart int
	TrgEnd   int
}

// Record: 短语对流中的一行（source phrase, target phrase, example）。
type Record struct {
	Src     string
	Trg     string
	Example Example
}
