package align

import (
	"fmt"
	"strconv"
	"strings"

	"ctxdict/pkg/contract"
)

// Mode: 目标→源索引的构建方式。
type Mode string

const (
	// Symmetric: 目标→源为源→目标的镜像定义（默认）。
	Symmetric Mode = "symmetric"
	// Compat: 兼容旧版抽取结果的不对称更新：
	// Trg2SrcMax 记录最后一条链接的源下标，Trg2SrcMin 恒为未对齐。
	Compat Mode = "compat"
)

// ParseMode 解析模式名；空串视为 Symmetric。
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", Symmetric:
		return Symmetric, nil
	case Compat:
		return Compat, nil
	default:
		return "", fmt.Errorf("%w: index mode %q", contract.ErrInvalidInput, s)
	}
}

// ParseLine 解析一行 Pharaoh 格式对齐（"i-j" 以空白分隔，下标自 0 起）。
// 任何非 "<非负整数>-<非负整数>" 的链接返回 ErrAlignmentSyntax。
func ParseLine(line string) ([]contract.Link, error) {
	fields := strings.Fields(line)
	links := make([]contract.Link, 0, len(fields))
	for _, f := range fields {
		a, b, ok := strings.Cut(f, "-")
		if !ok {
			return nil, fmt.Errorf("%w: link %q", contract.ErrAlignmentSyntax, f)
		}
		src, err1 := parseIndex(a)
		trg, err2 := parseIndex(b)
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("%w: link %q", contract.ErrAlignmentSyntax, f)
		}
		links = append(links, contract.Link{Src: src, Trg: trg})
	}
	return links, nil
}

func parseIndex(s string) (int, error) {
	// 仅接受十进制数字（拒绝 "+1"、空串等）
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.Atoi(s)
}

// Reverse 原地交换每条链接的两端并返回同一切片。
func Reverse(links []contract.Link) []contract.Link {
	for i := range links {
		links[i] = links[i].Reverse()
	}
	return links
}

// InvertLine 对一行对齐文本做纯文本级的方向反转（"a-b" → "b-a"），不做校验。
// 每个字段按 '-' 拆分后倒序拼回，结果以单个空格连接。
func InvertLine(line string) string {
	fields := strings.Fields(line)
	for i, f := range fields {
		parts := strings.Split(f, "-")
		for l, r := 0, len(parts)-1; l < r; l, r = l+1, r-1 {
			parts[l], parts[r] = parts[r], parts[l]
		}
		fields[i] = strings.Join(parts, "-")
	}
	return strings.Join(fields, " ")
}

// Build 构建四向最小/最大对齐索引。
// 越界链接返回 ErrLinkOutOfRange（致命，不静默丢弃）。
func Build(nsrc, ntrg int, links []contract.Link, mode Mode) (*contract.Index, error) {
	idx := &contract.Index{
		Src2TrgMin: make([]contract.Bound, nsrc),
		Src2TrgMax: make([]contract.Bound, nsrc),
		Trg2SrcMin: make([]contract.Bound, ntrg),
		Trg2SrcMax: make([]contract.Bound, ntrg),
	}
	for _, l := range links {
		if l.Src < 0 || l.Src >= nsrc || l.Trg < 0 || l.Trg >= ntrg {
			return nil, fmt.Errorf("%w: %d-%d (src tokens %d, trg tokens %d)", contract.ErrLinkOutOfRange, l.Src, l.Trg, nsrc, ntrg)
		}
		s, t := contract.At(l.Src), contract.At(l.Trg)
		idx.Src2TrgMax[l.Src] = idx.Src2TrgMax[l.Src].Max(t)
		idx.Src2TrgMin[l.Src] = idx.Src2TrgMin[l.Src].Min(t)
		switch mode {
		case Compat:
			// max 之后立即被 min 覆盖：结果恒为本条链接的源下标
			idx.Trg2SrcMax[l.Trg] = idx.Trg2SrcMax[l.Trg].Max(s).Min(s)
		default:
			idx.Trg2SrcMax[l.Trg] = idx.Trg2SrcMax[l.Trg].Max(s)
			idx.Trg2SrcMin[l.Trg] = idx.Trg2SrcMin[l.Trg].Min(s)
		}
	}
	return idx, nil
}
