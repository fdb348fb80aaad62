package align

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctxdict/pkg/contract"
)

// UT-ALN-01: 解析 Pharaoh 格式
func TestParseLine(t *testing.T) {
	links, err := ParseLine(" 0-0  1-2\t10-3 \n")
	require.NoError(t, err)
	require.Equal(t, []contract.Link{{Src: 0, Trg: 0}, {Src: 1, Trg: 2}, {Src: 10, Trg: 3}}, links)

	links, err = ParseLine("")
	require.NoError(t, err)
	require.Empty(t, links)
}

// UT-ALN-02: 语法错误为致命错误
func TestParseLineSyntax(t *testing.T) {
	for _, line := range []string{"0-", "-1", "a-b", "0_1", "1-2-3", "0--1", "+1-2", "1-2x", "99999999999999999999999-1"} {
		_, err := ParseLine(line)
		require.True(t, errors.Is(err, contract.ErrAlignmentSyntax), "line %q err=%v", line, err)
	}
}

func TestReverse(t *testing.T) {
	links := []contract.Link{{Src: 0, Trg: 1}, {Src: 2, Trg: 3}}
	got := Reverse(links)
	require.Equal(t, []contract.Link{{Src: 1, Trg: 0}, {Src: 3, Trg: 2}}, got)
}

// UT-ALN-03: 文本级反转（不校验）
func TestInvertLine(t *testing.T) {
	tests := map[string]string{
		"0-1 2-3":      "1-0 3-2",
		"  5-7\t8-9\n": "7-5 9-8",
		"":             "",
		"x-y":          "y-x",
		"1-2-3":        "3-2-1",
		"abc":          "abc",
	}
	for in, want := range tests {
		assert.Equal(t, want, InvertLine(in), "in=%q", in)
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	require.Equal(t, Symmetric, m)
	m, err = ParseMode(" COMPAT ")
	require.NoError(t, err)
	require.Equal(t, Compat, m)
	_, err = ParseMode("other")
	require.True(t, errors.Is(err, contract.ErrInvalidInput))
}

// UT-ALN-04: 对称索引
func TestBuildSymmetric(t *testing.T) {
	links := []contract.Link{{Src: 0, Trg: 0}, {Src: 0, Trg: 1}, {Src: 1, Trg: 1}}
	idx, err := Build(3, 2, links, Symmetric)
	require.NoError(t, err)
	at := contract.At
	require.Equal(t, []contract.Bound{at(0), at(1), contract.Unaligned}, idx.Src2TrgMin)
	require.Equal(t, []contract.Bound{at(1), at(1), contract.Unaligned}, idx.Src2TrgMax)
	require.Equal(t, []contract.Bound{at(0), at(0)}, idx.Trg2SrcMin)
	require.Equal(t, []contract.Bound{at(0), at(1)}, idx.Trg2SrcMax)
}

// UT-ALN-05: 兼容模式复现不对称更新
func TestBuildCompat(t *testing.T) {
	links := []contract.Link{{Src: 1, Trg: 0}, {Src: 0, Trg: 0}, {Src: 0, Trg: 1}, {Src: 1, Trg: 1}}
	idx, err := Build(2, 2, links, Compat)
	require.NoError(t, err)
	at := contract.At
	// 源→目标不受影响
	require.Equal(t, []contract.Bound{at(0), at(0)}, idx.Src2TrgMin)
	require.Equal(t, []contract.Bound{at(1), at(1)}, idx.Src2TrgMax)
	// Trg2SrcMax = 最后一条链接的源下标；Trg2SrcMin 恒未对齐
	require.Equal(t, []contract.Bound{at(0), at(1)}, idx.Trg2SrcMax)
	require.Equal(t, []contract.Bound{contract.Unaligned, contract.Unaligned}, idx.Trg2SrcMin)
}

// 性质：有链接的词元 min <= max
func TestBuildInvariant(t *testing.T) {
	links := []contract.Link{{Src: 3, Trg: 1}, {Src: 0, Trg: 4}, {Src: 3, Trg: 0}, {Src: 2, Trg: 4}, {Src: 0, Trg: 2}}
	idx, err := Build(4, 5, links, Symmetric)
	require.NoError(t, err)
	for i := range idx.Src2TrgMin {
		lo, hi := idx.Src2TrgMin[i], idx.Src2TrgMax[i]
		require.Equal(t, lo.Aligned, hi.Aligned)
		if lo.Aligned {
			require.LessOrEqual(t, lo.Pos, hi.Pos)
		}
	}
	for i := range idx.Trg2SrcMin {
		lo, hi := idx.Trg2SrcMin[i], idx.Trg2SrcMax[i]
		require.Equal(t, lo.Aligned, hi.Aligned)
		if lo.Aligned {
			require.LessOrEqual(t, lo.Pos, hi.Pos)
		}
	}
}

// UT-ALN-06: 越界为致命错误
func TestBuildOutOfRange(t *testing.T) {
	for _, l := range []contract.Link{{Src: 2, Trg: 0}, {Src: 0, Trg: 2}, {Src: -1, Trg: 0}} {
		_, err := Build(2, 2, []contract.Link{l}, Symmetric)
		require.True(t, errors.Is(err, contract.ErrLinkOutOfRange), "link %+v", l)
	}
}
