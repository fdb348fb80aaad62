package boundary

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"ctxdict/internal/charset"
	"ctxdict/pkg/contract"
)

func spans(pairs ...int) []contract.Span {
	out := make([]contract.Span, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, contract.Span{Start: pairs[i], End: pairs[i+1]})
	}
	return out
}

// UT-BND-01: 逐词元字节区间
func TestMap(t *testing.T) {
	m := New(charset.UTF8)
	tests := []struct {
		name   string
		raw    string
		tokens []string
		want   []contract.Span
	}{
		{"基础", "a b", []string{"a", "b"}, spans(0, 1, 2, 3)},
		{"多字节", "café bar", []string{"café", "bar"}, spans(0, 5, 6, 9)},
		{"中文", "你好 世界", []string{"你好", "世界"}, spans(0, 6, 7, 13)},
		{"大小写不敏感", "Hello World", []string{"hello", "WORLD"}, spans(0, 5, 6, 11)},
		{"希腊大写逐字符小写", "ΟΔΟΣ", []string{"οδοσ"}, spans(0, 8)},
		{"标点拆分", "Hello, world!", []string{"Hello", ",", "world", "!"}, spans(0, 5, 5, 6, 7, 12, 12, 13)},
		{"前导与多余空白", "  a \t b\n", []string{"a", "b"}, spans(2, 3, 6, 7)},
		{"非法字节透传", "a\xffb c", []string{"a\xffb", "c"}, spans(0, 3, 4, 5)},
		{"空词元序列", "whatever", nil, spans()},
		{"尾部未消费文本", "a b c", []string{"a", "b"}, spans(0, 1, 2, 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Map(tt.raw, tt.tokens)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

// UT-BND-02: 不匹配整体失败
func TestMapMismatch(t *testing.T) {
	m := New(charset.UTF8)
	tests := []struct {
		name   string
		raw    string
		tokens []string
	}{
		{"拼写错误", "Hello world", []string{"Hello", "wrold"}},
		{"词元超出原文", "a b", []string{"a", "bc"}},
		{"词元多于原文", "a", []string{"a", "b"}},
		{"非法字节不同", "a\xffb", []string{"a\xfeb"}},
		{"非法字节对合法字符", "a\xffb", []string{"axb"}},
		{"词尾σ不等于大写Σ", "ΟΔΟΣ", []string{"οδος"}},
		{"带点大写I不等于i", "İstanbul", []string{"istanbul"}},
		{"ß不折叠为ss", "straße", []string{"strasse"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Map(tt.raw, tt.tokens)
			require.True(t, errors.Is(err, contract.ErrTokenMismatch), "err=%v", err)
			require.Nil(t, got)
		})
	}
}

// UT-BND-03: 非 UTF-8 编码按原编码计宽
func TestMapLatin1(t *testing.T) {
	cs, err := charset.Lookup("latin1")
	require.NoError(t, err)
	got, err := New(cs).Map("café x", []string{"café", "x"})
	require.NoError(t, err)
	require.Equal(t, spans(0, 4, 5, 6), got)
}

// 性质：映射成功时区间数等于词元数，且单调不重叠
func TestMapMonotonic(t *testing.T) {
	m := New(charset.UTF8)
	lines := []string{
		"The quick brown fox , jumps over the lazy dog .",
		"Ünïcödé  ẞtraße   über   alles",
		"x",
		"日本語 の テキスト です 。",
	}
	for _, raw := range lines {
		tokens := strings.Fields(raw)
		got, err := m.Map(raw, tokens)
		require.NoError(t, err, raw)
		require.Len(t, got, len(tokens))
		prevEnd := 0
		for i, sp := range got {
			require.GreaterOrEqual(t, sp.End, sp.Start)
			require.GreaterOrEqual(t, sp.Start, prevEnd)
			require.Equal(t, tokens[i], raw[sp.Start:sp.End])
			prevEnd = sp.End
		}
	}
}
