package boundary

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"ctxdict/internal/charset"
	"ctxdict/pkg/contract"
)

// Mapper 将分词结果映射回原始行的字节区间。
// 无内部状态，可被多个 goroutine 共享。
type Mapper struct {
	cs charset.Charset
}

// New 创建按声明编码计算字节宽度的 Mapper。
func New(cs charset.Charset) *Mapper { return &Mapper{cs: cs} }

// Charset 返回计宽所用的编码。
func (m *Mapper) Charset() charset.Charset { return m.cs }

// Map 为每个词元返回其在 raw 中的字节区间 [Start, End)。
// 规则：
// - 词元前的空白逐字符跳过（两个游标同步推进）；
// - 词元逐字符与原文比较，两侧各自单字符转小写后相等即匹配（不做大小写折叠，
//   单独的 Σ 转为 σ，与 ς 不等）；非法 UTF-8 字节仅与相同字节匹配；
// - 任一字符不匹配或原文耗尽：整体失败，返回 ErrTokenMismatch（不返回部分结果）。
func (m *Mapper) Map(raw string, tokens []string) ([]contract.Span, error) {
	lower := cases.Lower(language.Und)
	spans := make([]contract.Span, 0, len(tokens))
	pos, bytePos := 0, 0
	for ti, tok := range tokens {
		for pos < len(raw) {
			r, size := utf8.DecodeRuneInString(raw[pos:])
			if !isSpace(r, size) {
				break
			}
			bytePos += m.cs.Width(r, size)
			pos += size
		}
		start := bytePos
		for k := 0; k < len(tok); {
			if pos >= len(raw) {
				return nil, fmt.Errorf("%w: token %d %q runs past end of line", contract.ErrTokenMismatch, ti, tok)
			}
			tr, tsize := utf8.DecodeRuneInString(tok[k:])
			rr, rsize := utf8.DecodeRuneInString(raw[pos:])
			if !sameChar(lower, tok[k:k+tsize], tr, raw[pos:pos+rsize], rr) {
				return nil, fmt.Errorf("%w: token %d %q at byte %d", contract.ErrTokenMismatch, ti, tok, bytePos)
			}
			bytePos += m.cs.Width(rr, rsize)
			pos += rsize
			k += tsize
		}
		spans = append(spans, contract.Span{Start: start, End: bytePos})
	}
	return spans, nil
}

// isSpace: 非法字节不视为空白。
func isSpace(r rune, size int) bool {
	if r == utf8.RuneError && size == 1 {
		return false
	}
	return unicode.IsSpace(r)
}

func sameChar(lower cases.Caser, a string, ar rune, b string, br rune) bool {
	if a == b {
		return true
	}
	// 非法字节只能逐字节相等（上面已比较）
	if (ar == utf8.RuneError && len(a) == 1) || (br == utf8.RuneError && len(b) == 1) {
		return false
	}
	return lower.String(a) == lower.String(b)
}
