package testdata

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"testing"

	"ctxdict/internal/codec"
	cfgpkg "ctxdict/internal/config"
	"ctxdict/internal/dict"
	"ctxdict/internal/extract"
	"ctxdict/internal/merge"
	"ctxdict/internal/pipeline"
	"ctxdict/pkg/contract"
)

func corpusStreams() contract.Streams {
	return contract.Streams{
		Src:    filepath.Join("files", "corpus.en"),
		Trg:    filepath.Join("files", "corpus.fr"),
		SrcTok: filepath.Join("files", "corpus.en.tok"),
		TrgTok: filepath.Join("files", "corpus.fr.tok"),
		Align:  filepath.Join("files", "corpus.align"),
	}
}

// runExtract 装配并运行一次抽取，返回输出行与告警文本。
func runExtract(t *testing.T, cfg cfgpkg.Config, streams contract.Streams) ([]string, string, pipeline.Stats) {
	t.Helper()
	out := filepath.Join(t.TempDir(), "pairs.tsv")
	comp, set, err := cfgpkg.Assemble(context.Background(), cfg, streams, cfgpkg.Stdio{}, out)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	defer comp.Source.Close()
	var warn bytes.Buffer
	set.Warnings = &warn
	st, err := pipeline.Run(context.Background(), comp, set, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var lines []string
	for _, l := range strings.Split(string(b), "\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines, warn.String(), st
}

// E2E-01: 真实句子的短语对与字节区间
func TestExtractCorpus(t *testing.T) {
	lines, warn, st := runExtract(t, cfgpkg.Defaults(), corpusStreams())
	if warn != "" {
		t.Fatalf("不应有告警: %q", warn)
	}
	if st.Segments != 4 || st.Skipped != 0 || st.Pairs != int64(len(lines)) {
		t.Fatalf("统计错误: %+v (lines=%d)", st, len(lines))
	}
	for _, want := range []string{
		"The\tLe\t0:0:3:0:2",
		"black cat\tchat noir\t0:4:13:3:12",
		"black\tnoir\t0:4:9:8:12",
		"black\tnoir\t3:2:7:9:14",
		"world\tmonde\t1:7:12:12:17",
		"the cat sleeps\tle chat dort\t2:0:14:0:12",
	} {
		if !slices.Contains(lines, want) {
			t.Fatalf("缺少 %q\n%s", want, strings.Join(lines, "\n"))
		}
	}
	for _, l := range lines {
		f := strings.Split(l, "\t")
		for _, tok := range strings.Fields(f[0] + " " + f[1]) {
			if extract.IsPunctuation(tok) {
				t.Fatalf("短语不应含标点词元: %q", l)
			}
		}
	}
}

// E2E-02: 压缩输入与明文输入结果一致
func TestCompressedInputs(t *testing.T) {
	plain, _, _ := runExtract(t, cfgpkg.Defaults(), corpusStreams())
	dir := t.TempDir()
	s := corpusStreams()
	packed := contract.Streams{
		Src:    compress(t, s.Src, filepath.Join(dir, "corpus.en.gz")),
		Trg:    compress(t, s.Trg, filepath.Join(dir, "corpus.fr.xz")),
		SrcTok: compress(t, s.SrcTok, filepath.Join(dir, "corpus.en.tok.zst")),
		TrgTok: compress(t, s.TrgTok, filepath.Join(dir, "corpus.fr.tok.gz")),
		Align:  compress(t, s.Align, filepath.Join(dir, "corpus.align.xz")),
	}
	cfg := cfgpkg.Defaults()
	cfg.Workers = 3
	cfg.BatchSize = 1
	got, _, _ := runExtract(t, cfg, packed)
	if !slices.Equal(got, plain) {
		t.Fatalf("压缩输入结果不同:\n%v\n%v", got, plain)
	}
}

// E2E-03: 反向对齐 + 交换语料 = 交换字段（对称模式）
func TestReverseSymmetry(t *testing.T) {
	fwd, _, _ := runExtract(t, cfgpkg.Defaults(), corpusStreams())
	s := corpusStreams()
	cfg := cfgpkg.Defaults()
	cfg.Reverse = true
	rev, _, _ := runExtract(t, cfg, contract.Streams{Src: s.Trg, Trg: s.Src, SrcTok: s.TrgTok, TrgTok: s.SrcTok, Align: s.Align})

	swapped := make([]string, 0, len(rev))
	for _, l := range rev {
		f := strings.Split(l, "\t")
		p := strings.Split(f[2], ":")
		swapped = append(swapped, f[1]+"\t"+f[0]+"\t"+strings.Join([]string{p[0], p[3], p[4], p[1], p[2]}, ":"))
	}
	sort.Strings(swapped)
	want := slices.Clone(fwd)
	sort.Strings(want)
	if !slices.Equal(swapped, want) {
		t.Fatalf("反向结果不对称:\n%v\n%v", swapped, want)
	}
}

// E2E-04: 分词不一致的段被跳过，告警指向第 1 行
func TestMismatchScenario(t *testing.T) {
	streams := contract.Streams{
		Src:    filepath.Join("files", "mismatch.src"),
		Trg:    filepath.Join("files", "mismatch.trg"),
		SrcTok: filepath.Join("files", "mismatch.src.tok"),
		TrgTok: filepath.Join("files", "mismatch.trg.tok"),
		Align:  filepath.Join("files", "mismatch.align"),
	}
	lines, warn, st := runExtract(t, cfgpkg.Defaults(), streams)
	if len(lines) != 0 || st.Skipped != 1 {
		t.Fatalf("应跳过该段: lines=%v stats=%+v", lines, st)
	}
	want := "WARNING: Tokenization mismatch in source language (line 1)\n\tHello world\n\tHello wrold\n\n"
	if warn != want {
		t.Fatalf("告警块不符:\n%q\n%q", warn, want)
	}
}

// E2E-05: 抽取 → 排序 → 合并 → 词典检索
func TestDictionaryChain(t *testing.T) {
	lines, _, _ := runExtract(t, cfgpkg.Defaults(), corpusStreams())
	sort.Strings(lines)
	var merged bytes.Buffer
	opts := merge.DefaultOptions()
	opts.MinExamples = 1
	if _, err := merge.Run(context.Background(), strings.NewReader(strings.Join(lines, "\n")+"\n"), &merged, opts); err != nil {
		t.Fatalf("merge: %v", err)
	}

	ctx := context.Background()
	store, err := dict.Open(ctx, filepath.Join(t.TempDir(), "dict.db"))
	if err != nil {
		t.Fatalf("open dict: %v", err)
	}
	defer store.Close()
	src, _ := os.Open(filepath.Join("files", "corpus.en"))
	defer src.Close()
	trg, _ := os.Open(filepath.Join("files", "corpus.fr"))
	defer trg.Close()
	if _, err := store.Build(ctx, &merged, src, trg); err != nil {
		t.Fatalf("build: %v", err)
	}

	res, err := store.Search(ctx, "black")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 1 || res[0].Translation != "noir" || res[0].Count != 2 || res[0].Frequency != 1 {
		t.Fatalf("检索结果错误: %+v", res)
	}
	var lefts []string
	for _, ex := range res[0].Examples {
		if ex.SrcPhrase != "black" || ex.TrgPhrase != "noir" {
			t.Fatalf("例句短语错误: %+v", ex)
		}
		lefts = append(lefts, ex.SrcLeft+"|"+ex.TrgLeft)
	}
	sort.Strings(lefts)
	if !slices.Equal(lefts, []string{"A |Un chien ", "The |Le chat "}) {
		t.Fatalf("上下文错误: %v", lefts)
	}

	comp, err := store.Autocomplete(ctx, "bl", dict.DefaultAutocompleteLimit)
	if err != nil {
		t.Fatalf("autocomplete: %v", err)
	}
	if !slices.Contains(comp, "black") || !slices.Contains(comp, "black cat") {
		t.Fatalf("补全结果错误: %v", comp)
	}
}

// compress 按目标扩展名压缩 src 到 dst。
func compress(t *testing.T, src, dst string) string {
	t.Helper()
	in, err := os.Open(src)
	if err != nil {
		t.Fatalf("open %s: %v", src, err)
	}
	defer in.Close()
	f, err := os.Create(dst)
	if err != nil {
		t.Fatalf("create %s: %v", dst, err)
	}
	defer f.Close()
	w, err := codec.NewWriter(codec.Detect(dst), f)
	if err != nil {
		t.Fatalf("encoder %s: %v", dst, err)
	}
	if _, err := io.Copy(w, in); err != nil {
		t.Fatalf("copy %s: %v", dst, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close %s: %v", dst, err)
	}
	return dst
}
