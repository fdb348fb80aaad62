package extract

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctxdict/internal/align"
	"ctxdict/internal/boundary"
	"ctxdict/internal/charset"
	"ctxdict/pkg/contract"
)

type fixture struct {
	seg      contract.Segment
	srcSpans []contract.Span
	trgSpans []contract.Span
}

func newFixture(t *testing.T, src, trg, links string) fixture {
	t.Helper()
	seg := contract.Segment{
		SrcRaw:    src,
		TrgRaw:    trg,
		SrcTokens: strings.Fields(src),
		TrgTokens: strings.Fields(trg),
	}
	var err error
	seg.Links, err = align.ParseLine(links)
	require.NoError(t, err)
	m := boundary.New(charset.UTF8)
	f := fixture{seg: seg}
	f.srcSpans, err = m.Map(seg.SrcRaw, seg.SrcTokens)
	require.NoError(t, err)
	f.trgSpans, err = m.Map(seg.TrgRaw, seg.TrgTokens)
	require.NoError(t, err)
	return f
}

func (f fixture) run(t *testing.T, mode align.Mode, maxLen int) []contract.PhrasePair {
	t.Helper()
	idx, err := align.Build(len(f.seg.SrcTokens), len(f.seg.TrgTokens), f.seg.Links, mode)
	require.NoError(t, err)
	return slices.Collect(New(maxLen).Pairs(f.seg, f.srcSpans, f.trgSpans, idx))
}

// line 以与输出相同的形式描述短语对，便于断言。
func line(p contract.PhrasePair) string {
	return fmt.Sprintf("%s\t%s\t%d:%d:%d:%d:%d", strings.Join(p.Src, " "), strings.Join(p.Trg, " "),
		p.Segment, p.SrcBytes.Start, p.SrcBytes.End, p.TrgBytes.Start, p.TrgBytes.End)
}

func lines(ps []contract.PhrasePair) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, line(p))
	}
	return out
}

// UT-EXT-01: 一对一对齐
func TestPairsOneToOne(t *testing.T) {
	f := newFixture(t, "a b", "x y", "0-0 1-1")
	got := lines(f.run(t, align.Symmetric, 0))
	want := []string{"a\tx\t0:0:1:0:1", "b\ty\t0:2:3:2:3", "a b\tx y\t0:0:3:0:3"}
	require.ElementsMatch(t, want, got)
	// 枚举顺序：i 升序，其次 j 升序
	require.Equal(t, []string{"a\tx\t0:0:1:0:1", "a b\tx y\t0:0:3:0:3", "b\ty\t0:2:3:2:3"}, got)
}

// UT-EXT-02: 一对多对齐，反向投影越界的候选被拒绝
func TestPairsOneToMany(t *testing.T) {
	f := newFixture(t, "a b", "x y", "0-0 0-1 1-1")
	got := lines(f.run(t, align.Symmetric, 0))
	require.Equal(t, []string{"a b\tx y\t0:0:3:0:3"}, got)
	require.NotContains(t, got, "a\tx\t0:0:1:0:1")
}

// UT-EXT-03: 兼容模式下 Trg2SrcMin 失效，反向检验变弱
func TestPairsCompat(t *testing.T) {
	f := newFixture(t, "a b", "x y", "0-0 0-1 1-1")
	got := lines(f.run(t, align.Compat, 0))
	require.Equal(t, []string{"a b\tx y\t0:0:3:0:3", "b\ty\t0:2:3:2:3"}, got)
}

// UT-EXT-04: 端点未对齐被拒绝，内部未对齐允许
func TestPairsUnalignedEndpoints(t *testing.T) {
	f := newFixture(t, "a b c", "x y", "0-0 2-1")
	got := lines(f.run(t, align.Symmetric, 0))
	require.Equal(t, []string{"a\tx\t0:0:1:0:1", "a b c\tx y\t0:0:5:0:3", "c\ty\t0:4:5:2:3"}, got)
}

// UT-EXT-05: 标点词元不进入任何短语
func TestPairsPunctuation(t *testing.T) {
	f := newFixture(t, "a , b", "x ; y", "0-0 1-1 2-2")
	for _, p := range f.run(t, align.Symmetric, 0) {
		for _, tok := range append(slices.Clone(p.Src), p.Trg...) {
			require.False(t, IsPunctuation(tok), "leaked %q in %s", tok, line(p))
		}
	}
	// 目标侧标点被夹在中间同样拒绝
	f = newFixture(t, "a b", "x - y", "0-0 1-2")
	got := lines(f.run(t, align.Symmetric, 0))
	require.Equal(t, []string{"a\tx\t0:0:1:0:1", "b\ty\t0:2:3:4:5"}, got)
}

func TestIsPunctuation(t *testing.T) {
	tests := map[string]bool{
		",": true, "...": true, "": true, "«»": true, "—": true,
		"a": false, "7": false, "日本": false, "co-op": false, "½": false, "3.14": false,
	}
	for in, want := range tests {
		assert.Equal(t, want, IsPunctuation(in), "in=%q", in)
	}
}

// UT-EXT-06: 长度上限
func TestPairsLengthBound(t *testing.T) {
	src := "a b c d e f g"
	f := newFixture(t, src, src, "0-0 1-1 2-2 3-3 4-4 5-5 6-6")
	for _, L := range []int{1, 2, 3, 5} {
		ps := f.run(t, align.Symmetric, L)
		for _, p := range ps {
			require.LessOrEqual(t, p.J-p.I+1, L)
			require.LessOrEqual(t, p.TrgMax-p.TrgMin+1, L)
		}
		// 对角对齐：每个长度 <= L 的区间都恰好出现一次
		n := 7
		want := 0
		for k := 1; k <= L; k++ {
			want += n - k + 1
		}
		require.Len(t, ps, want, "L=%d", L)
	}
	// 目标跨度超限的源短语被拒绝
	f = newFixture(t, "a", "x y z", "0-0 0-2")
	require.Empty(t, f.run(t, align.Symmetric, 2))
	require.Len(t, f.run(t, align.Symmetric, 3), 1)
}

// 消费方提前终止时枚举立即停止
func TestPairsEarlyStop(t *testing.T) {
	f := newFixture(t, "a b c", "x y z", "0-0 1-1 2-2")
	idx, err := align.Build(3, 3, f.seg.Links, align.Symmetric)
	require.NoError(t, err)
	n := 0
	for range New(5).Pairs(f.seg, f.srcSpans, f.trgSpans, idx) {
		n++
		if n == 2 {
			break
		}
	}
	require.Equal(t, 2, n)
}

// 字节区间对应原文中的短语（含多字节字符与大小写差异）
func TestPairsByteSpans(t *testing.T) {
	seg := contract.Segment{
		Index:     4,
		SrcRaw:    "  Café Noir",
		TrgRaw:    "黑 咖啡",
		SrcTokens: []string{"café", "noir"},
		TrgTokens: []string{"黑", "咖啡"},
		Links:     []contract.Link{{Src: 0, Trg: 1}, {Src: 1, Trg: 0}},
	}
	m := boundary.New(charset.UTF8)
	ss, err := m.Map(seg.SrcRaw, seg.SrcTokens)
	require.NoError(t, err)
	ts, err := m.Map(seg.TrgRaw, seg.TrgTokens)
	require.NoError(t, err)
	idx, err := align.Build(2, 2, seg.Links, align.Symmetric)
	require.NoError(t, err)
	for p := range New(5).Pairs(seg, ss, ts, idx) {
		require.Equal(t, contract.SegIndex(4), p.Segment)
		require.True(t, strings.EqualFold(strings.Join(p.Src, " "), seg.SrcRaw[p.SrcBytes.Start:p.SrcBytes.End]), line(p))
		require.Equal(t, strings.Join(p.Trg, " "), seg.TrgRaw[p.TrgBytes.Start:p.TrgBytes.End], line(p))
	}
}

// bruteForce 直接按链接集合重新计算一致短语对（对称定义）。
func bruteForce(seg contract.Segment, L int) []string {
	var out []string
	n := len(seg.SrcTokens)
	aligned := func(s int) bool {
		for _, l := range seg.Links {
			if l.Src == s {
				return true
			}
		}
		return false
	}
	for i := 0; i < n; i++ {
		for j := i; j < min(i+L, n); j++ {
			if !aligned(i) || !aligned(j) {
				continue
			}
			if slices.ContainsFunc(seg.SrcTokens[i:j+1], IsPunctuation) {
				continue
			}
			lo, hi := -1, -1
			for _, l := range seg.Links {
				if l.Src >= i && l.Src <= j {
					if lo < 0 || l.Trg < lo {
						lo = l.Trg
					}
					if l.Trg > hi {
						hi = l.Trg
					}
				}
			}
			if hi-lo+1 > L || slices.ContainsFunc(seg.TrgTokens[lo:hi+1], IsPunctuation) {
				continue
			}
			ok := true
			for _, l := range seg.Links {
				if l.Trg >= lo && l.Trg <= hi && (l.Src < i || l.Src > j) {
					ok = false
				}
			}
			if ok {
				out = append(out, fmt.Sprintf("%d-%d:%d-%d", i, j, lo, hi))
			}
		}
	}
	return out
}

func randomSegment(r *rand.Rand) contract.Segment {
	vocab := []string{"a", "b", "c", "d", ",", "e", "f", "."}
	gen := func(n int) []string {
		out := make([]string, n)
		for k := range out {
			out[k] = vocab[r.IntN(len(vocab))]
		}
		return out
	}
	seg := contract.Segment{SrcTokens: gen(1 + r.IntN(9)), TrgTokens: gen(1 + r.IntN(9))}
	seg.SrcRaw = strings.Join(seg.SrcTokens, " ")
	seg.TrgRaw = strings.Join(seg.TrgTokens, " ")
	for k := r.IntN(12); k > 0; k-- {
		seg.Links = append(seg.Links, contract.Link{Src: r.IntN(len(seg.SrcTokens)), Trg: r.IntN(len(seg.TrgTokens))})
	}
	return seg
}

func spansOf(t *testing.T, seg contract.Segment) ([]contract.Span, []contract.Span) {
	t.Helper()
	m := boundary.New(charset.UTF8)
	ss, err := m.Map(seg.SrcRaw, seg.SrcTokens)
	require.NoError(t, err)
	ts, err := m.Map(seg.TrgRaw, seg.TrgTokens)
	require.NoError(t, err)
	return ss, ts
}

// 性质：对称模式下的产出与按定义独立计算的结果一致（顺序亦一致）
func TestPairsMatchDefinition(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for round := 0; round < 500; round++ {
		seg := randomSegment(r)
		ss, ts := spansOf(t, seg)
		idx, err := align.Build(len(seg.SrcTokens), len(seg.TrgTokens), seg.Links, align.Symmetric)
		require.NoError(t, err)
		L := 1 + r.IntN(5)
		var got []string
		for p := range New(L).Pairs(seg, ss, ts, idx) {
			got = append(got, fmt.Sprintf("%d-%d:%d-%d", p.I, p.J, p.TrgMin, p.TrgMax))
		}
		require.Equal(t, bruteForce(seg, L), got, "round %d seg %+v", round, seg)
	}
}

// 性质：交换两侧并反转链接后，短语对集合互为镜像（对称模式）
func TestPairsReverseSymmetry(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 5))
	for round := 0; round < 300; round++ {
		seg := randomSegment(r)
		ss, ts := spansOf(t, seg)
		idx, err := align.Build(len(seg.SrcTokens), len(seg.TrgTokens), seg.Links, align.Symmetric)
		require.NoError(t, err)
		var fwd []string
		for p := range New(5).Pairs(seg, ss, ts, idx) {
			fwd = append(fwd, fmt.Sprintf("%d-%d|%d-%d", p.I, p.J, p.TrgMin, p.TrgMax))
		}

		rev := contract.Segment{
			SrcRaw: seg.TrgRaw, TrgRaw: seg.SrcRaw,
			SrcTokens: seg.TrgTokens, TrgTokens: seg.SrcTokens,
			Links: align.Reverse(slices.Clone(seg.Links)),
		}
		ridx, err := align.Build(len(rev.SrcTokens), len(rev.TrgTokens), rev.Links, align.Symmetric)
		require.NoError(t, err)
		var back []string
		for p := range New(5).Pairs(rev, ts, ss, ridx) {
			back = append(back, fmt.Sprintf("%d-%d|%d-%d", p.TrgMin, p.TrgMax, p.I, p.J))
		}
		require.ElementsMatch(t, fwd, back, "round %d", round)
	}
}
