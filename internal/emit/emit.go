package emit

import (
	"fmt"
	"strconv"
	"strings"

	"ctxdict/pkg/contract"
)

// Format 生成一行短语对输出（不含换行）：
// <源词元空格连接>\t<目标词元空格连接>\t<seg>:<ss>:<se>:<ts>:<te>
func Format(p contract.PhrasePair) string {
	var b strings.Builder
	appendJoined(&b, p.Src)
	b.WriteByte('\t')
	appendJoined(&b, p.Trg)
	b.WriteByte('\t')
	b.WriteString(FormatExample(ExampleOf(p)))
	return b.String()
}

// ExampleOf 取短语对的边界描述符。
func ExampleOf(p contract.PhrasePair) contract.Example {
	return contract.Example{
		Segment:  p.Segment,
		SrcStart: p.SrcBytes.Start,
		SrcEnd:   p.SrcBytes.End,
		TrgStart: p.TrgBytes.Start,
		TrgEnd:   p.TrgBytes.End,
	}
}

// FormatExample 输出 seg:ss:se:ts:te。
func FormatExample(e contract.Example) string {
	buf := make([]byte, 0, 32)
	buf = strconv.AppendInt(buf, int64(e.Segment), 10)
	for _, v := range [...]int{e.SrcStart, e.SrcEnd, e.TrgStart, e.TrgEnd} {
		buf = append(buf, ':')
		buf = strconv.AppendInt(buf, int64(v), 10)
	}
	return string(buf)
}

// ParseExample 解析 seg:ss:se:ts:te；五个字段均须为非负整数且 start <= end。
func ParseExample(s string) (contract.Example, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 5 {
		return contract.Example{}, fmt.Errorf("%w: example %q", contract.ErrRecordSyntax, s)
	}
	var v [5]int64
	for k, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return contract.Example{}, fmt.Errorf("%w: example %q", contract.ErrRecordSyntax, s)
		}
		v[k] = n
	}
	e := contract.Example{
		Segment:  contract.SegIndex(v[0]),
		SrcStart: int(v[1]),
		SrcEnd:   int(v[2]),
		TrgStart: int(v[3]),
		TrgEnd:   int(v[4]),
	}
	if e.SrcStart > e.SrcEnd || e.TrgStart > e.TrgEnd {
		return contract.Example{}, fmt.Errorf("%w: example %q has inverted span", contract.ErrRecordSyntax, s)
	}
	return e, nil
}

// Parse 解析一行短语对记录（Format 的逆）；行尾换行/回车被忽略。
// 源、目标短语原样保留（不再拆分词元）。
func Parse(line string) (contract.Record, error) {
	line = strings.TrimRight(line, "\r\n")
	src, rest, ok1 := strings.Cut(line, "\t")
	trg, ex, ok2 := strings.Cut(rest, "\t")
	if !ok1 || !ok2 || strings.Contains(ex, "\t") {
		return contract.Record{}, fmt.Errorf("%w: want 3 tab-separated fields: %q", contract.ErrRecordSyntax, line)
	}
	e, err := ParseExample(strings.TrimSpace(ex))
	if err != nil {
		return contract.Record{}, err
	}
	return contract.Record{Src: src, Trg: trg, Example: e}, nil
}

func appendJoined(b *strings.Builder, toks []string) {
	for k, t := range toks {
		if k > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t)
	}
}
