package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"ctxdict/internal/align"
	"ctxdict/internal/boundary"
	"ctxdict/internal/charset"
	"ctxdict/internal/extract"
	"ctxdict/pkg/contract"
)

// Side: 语言侧（用于告警文本）。
type Side string

const (
	SideSource Side = "source"
	SideTarget Side = "target"
)

// Mismatch: 段级可恢复失败（分词与原文无法对应）。
type Mismatch struct {
	Line int64
	Side Side
	Raw  string
	Tok  string
}

// Block 返回写入诊断通道的告警块（含结尾空行）。
func (m Mismatch) Block() string {
	return fmt.Sprintf("WARNING: Tokenization mismatch in %s language (line %d)\n\t%s\n\t%s\n\n",
		m.Side, m.Line, strings.TrimSpace(m.Raw), strings.TrimSpace(m.Tok))
}

// prepared: 单段的前置计算结果。
type prepared struct {
	seg      contract.Segment
	srcSpans []contract.Span
	trgSpans []contract.Span
	idx      *contract.Index
}

// processor: 单段处理（边界映射 → 索引构建 → 一致性抽取）。无状态，可并发共享。
type processor struct {
	mapper *boundary.Mapper
	ext    *extract.Extractor
	mode   align.Mode
}

func newProcessor(set Settings) *processor {
	cs := set.Charset
	if cs.Name() == "" {
		cs = charset.UTF8
	}
	return &processor{
		mapper: boundary.New(cs),
		ext:    extract.New(set.MaxPhraseLen),
		mode:   set.IndexMode,
	}
}

// prepare 先映射源侧再映射目标侧；任一侧不匹配即返回 Mismatch（源侧优先，不再检查目标侧）。
// 对齐越界为致命错误，附带 1 起的行号。
func (p *processor) prepare(seg contract.Segment) (*prepared, *Mismatch, error) {
	srcSpans, err := p.mapper.Map(seg.SrcRaw, seg.SrcTokens)
	if err != nil {
		if errors.Is(err, contract.ErrTokenMismatch) {
			return nil, &Mismatch{Line: seg.Index.Line(), Side: SideSource, Raw: seg.SrcRaw, Tok: strings.Join(seg.SrcTokens, " ")}, nil
		}
		return nil, nil, err
	}
	trgSpans, err := p.mapper.Map(seg.TrgRaw, seg.TrgTokens)
	if err != nil {
		if errors.Is(err, contract.ErrTokenMismatch) {
			return nil, &Mismatch{Line: seg.Index.Line(), Side: SideTarget, Raw: seg.TrgRaw, Tok: strings.Join(seg.TrgTokens, " ")}, nil
		}
		return nil, nil, err
	}
	idx, err := align.Build(len(seg.SrcTokens), len(seg.TrgTokens), seg.Links, p.mode)
	if err != nil {
		return nil, nil, fmt.Errorf("line %d: %w", seg.Index.Line(), err)
	}
	return &prepared{seg: seg, srcSpans: srcSpans, trgSpans: trgSpans, idx: idx}, nil, nil
}

// segResult: 并行模式下单段的完整产出（待门闩按序提交）。
type segResult struct {
	mismatch *Mismatch
	pairs    []contract.PhrasePair
}

// collect 处理单段并物化全部短语对。
func (p *processor) collect(seg contract.Segment) (segResult, error) {
	pr, mm, err := p.prepare(seg)
	if err != nil || mm != nil {
		return segResult{mismatch: mm}, err
	}
	var out []contract.PhrasePair
	for pp := range p.ext.Pairs(pr.seg, pr.srcSpans, pr.trgSpans, pr.idx) {
		out = append(out, pp)
	}
	return segResult{pairs: out}, nil
}
