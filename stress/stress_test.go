package stress

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	cfgpkg "ctxdict/internal/config"
	"ctxdict/internal/pipeline"
	"ctxdict/pkg/contract"
	rfs "ctxdict/plugins/reader/filesystem"
)

var vocab = []string{"the", "cat", "dog", "sat", "on", "mat", "a", "black", "white", "ran", "über", "naïve", "ça", "«", "!", "?"}

// genCorpus 写出 n 行随机五路语料，返回各流位置。
func genCorpus(t *testing.T, dir string, n int) contract.Streams {
	t.Helper()
	rng := rand.New(rand.NewPCG(1, 2))
	var src, trg, al strings.Builder
	sentence := func() []string {
		k := 1 + rng.IntN(12)
		out := make([]string, k)
		for i := range out {
			out[i] = vocab[rng.IntN(len(vocab))]
		}
		return out
	}
	for i := 0; i < n; i++ {
		s, g := sentence(), sentence()
		src.WriteString(strings.Join(s, " ") + "\n")
		trg.WriteString(strings.Join(g, " ") + "\n")
		var links []string
		for j := 0; j < len(s); j++ {
			if rng.IntN(4) == 0 {
				continue
			}
			links = append(links, fmt.Sprintf("%d-%d", j, rng.IntN(len(g))))
		}
		al.WriteString(strings.Join(links, " ") + "\n")
	}
	put := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return p
	}
	return contract.Streams{
		Src:    put("corpus.src", src.String()),
		Trg:    put("corpus.trg", trg.String()),
		SrcTok: put("corpus.src.tok", src.String()),
		TrgTok: put("corpus.trg.tok", trg.String()),
		Align:  put("corpus.align", al.String()),
	}
}

// runPipeline 经配置装配执行一次完整抽取。
func runPipeline(cfg cfgpkg.Config, streams contract.Streams, out string) (pipeline.Stats, error) {
	comp, set, err := cfgpkg.Assemble(context.Background(), cfg, streams, cfgpkg.Stdio{}, out)
	if err != nil {
		return pipeline.Stats{}, err
	}
	defer comp.Source.Close()
	return pipeline.Run(context.Background(), comp, set, nil)
}

// TestStress 在不同并发度下运行流水线，校验输出与顺序执行一致并记录延迟统计。
func TestStress(t *testing.T) {
	if testing.Short() {
		t.Skip("short 模式跳过压力测试")
	}
	dir := t.TempDir()
	streams := genCorpus(t, dir, 5000)

	baseOut := filepath.Join(dir, "base.tsv")
	base := cfgpkg.Defaults()
	base.Logging.Level = "error"
	if _, err := runPipeline(base, streams, baseOut); err != nil {
		t.Fatalf("顺序执行失败: %v", err)
	}
	want, err := os.ReadFile(baseOut)
	if err != nil {
		t.Fatalf("read base: %v", err)
	}

	levels := []int{2, 4, 8, 16}
	for _, workers := range levels {
		t.Run(fmt.Sprintf("workers_%d", workers), func(t *testing.T) {
			const runs = 3
			successes := 0
			latencies := make([]time.Duration, 0, runs)
			for i := 0; i < runs; i++ {
				cfg := base
				cfg.Workers = workers
				cfg.BatchSize = 64
				out := filepath.Join(dir, fmt.Sprintf("out-%d-%d.tsv.zst", workers, i))
				start := time.Now()
				st, err := runPipeline(cfg, streams, out)
				dur := time.Since(start)
				if err != nil {
					t.Errorf("run %d: %v", i, err)
					continue
				}
				if st.Segments != 5000 || st.Skipped != 0 {
					t.Errorf("run %d: 段计数错误 %+v", i, st)
				}
				got := readAll(t, out)
				if !bytes.Equal(got, want) {
					t.Errorf("run %d: 并行输出与顺序输出不一致", i)
					continue
				}
				successes++
				latencies = append(latencies, dur)
			}
			if successes == 0 {
				t.Fatalf("全部运行失败")
			}
			sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
			var total time.Duration
			for _, d := range latencies {
				total += d
			}
			avg := total / time.Duration(len(latencies))
			idx := int(math.Ceil(float64(len(latencies))*0.95)) - 1
			if idx < 0 {
				idx = 0
			}
			p95 := latencies[idx]
			t.Logf("并发%d 成功率%.2f 平均%v 95%%延迟%v", workers, float64(successes)/float64(runs), avg, p95)
		})
	}
}

// readAll 读取（按扩展名解压的）输出文件。
func readAll(t *testing.T, path string) []byte {
	t.Helper()
	s, err := rfs.New(nil).Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer s.Close()
	b, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return b
}
