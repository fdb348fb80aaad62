package extract

import (
	"iter"
	"unicode"

	"ctxdict/pkg/contract"
)

// DefaultMaxPhraseLen: 源/目标短语的最大词元数。
const DefaultMaxPhraseLen = 5

// Extractor 枚举与词对齐一致的短语对。
// 无状态，可被多个 goroutine 共享。
type Extractor struct {
	MaxPhraseLen int
}

// New 创建 Extractor；maxLen <= 0 时取默认值。
func New(maxLen int) *Extractor {
	if maxLen <= 0 {
		maxLen = DefaultMaxPhraseLen
	}
	return &Extractor{MaxPhraseLen: maxLen}
}

// IsPunctuation 报告 s 是否不含任何字母或数字字符（空串亦视为标点）。
func IsPunctuation(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return false
		}
	}
	return true
}

// Pairs 按 i 升序、j 升序惰性产出一段内的全部一致短语对。
// srcSpans/trgSpans 与词元一一对应；idx 由 align.Build 构建。
// 调用方提前终止（yield 返回 false）时立即停止枚举。
func (e *Extractor) Pairs(seg contract.Segment, srcSpans, trgSpans []contract.Span, idx *contract.Index) iter.Seq[contract.PhrasePair] {
	maxLen := e.MaxPhraseLen
	if maxLen <= 0 {
		maxLen = DefaultMaxPhraseLen
	}
	return func(yield func(contract.PhrasePair) bool) {
		n := len(seg.SrcTokens)
		srcPunct := punctMask(seg.SrcTokens)
		trgPunct := punctMask(seg.TrgTokens)
		for i := 0; i < n; i++ {
			if !idx.Src2TrgMin[i].Aligned {
				continue
			}
			for j := i; j < min(i+maxLen, n); j++ {
				p, ok := consistent(i, j, maxLen, idx, srcPunct, trgPunct)
				if !ok {
					continue
				}
				p.Segment = seg.Index
				p.Src = seg.SrcTokens[i : j+1]
				p.Trg = seg.TrgTokens[p.TrgMin : p.TrgMax+1]
				p.SrcBytes = contract.Span{Start: srcSpans[i].Start, End: srcSpans[j].End}
				p.TrgBytes = contract.Span{Start: trgSpans[p.TrgMin].Start, End: trgSpans[p.TrgMax].End}
				if !yield(p) {
					return
				}
			}
		}
	}
}

// consistent 对候选源区间 [i,j] 依次执行过滤；通过时返回带目标区间的 PhrasePair。
func consistent(i, j, maxLen int, idx *contract.Index, srcPunct, trgPunct []bool) (contract.PhrasePair, bool) {
	// 两端词元必须有对齐（内部词元不检查）
	if !idx.Src2TrgMin[i].Aligned || !idx.Src2TrgMin[j].Aligned {
		return contract.PhrasePair{}, false
	}
	if anyTrue(srcPunct[i : j+1]) {
		return contract.PhrasePair{}, false
	}
	lo, hi := contract.Unaligned, contract.Unaligned
	for k := i; k <= j; k++ {
		lo = lo.Min(idx.Src2TrgMin[k])
		hi = hi.Max(idx.Src2TrgMax[k])
	}
	mintrg, maxtrg := lo.Pos, hi.Pos
	if maxtrg-mintrg+1 > maxLen {
		return contract.PhrasePair{}, false
	}
	if anyTrue(trgPunct[mintrg : maxtrg+1]) {
		return contract.PhrasePair{}, false
	}
	// 反向投影不得越出源区间
	slo, shi := contract.Unaligned, contract.Unaligned
	for k := mintrg; k <= maxtrg; k++ {
		slo = slo.Min(idx.Trg2SrcMin[k])
		shi = shi.Max(idx.Trg2SrcMax[k])
	}
	if (slo.Aligned && slo.Pos < i) || (shi.Aligned && shi.Pos > j) {
		return contract.PhrasePair{}, false
	}
	return contract.PhrasePair{I: i, J: j, TrgMin: mintrg, TrgMax: maxtrg}, true
}

func punctMask(tokens []string) []bool {
	m := make([]bool, len(tokens))
	for k, t := range tokens {
		m[k] = IsPunctuation(t)
	}
	return m
}

func anyTrue(bs []bool) bool {
	for _, b := range bs {
		if b {
			return true
		}
	}
	return false
}
