package merge

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"

	"ctxdict/internal/emit"
	"ctxdict/pkg/contract"
)

// Others 为被排除样例的伪翻译标签。
const Others = "$OTHERS$"

// SortHint 附在乱序错误之后：输入须按字节序排序，本地化排序规则不满足要求。
const SortHint = "; sort the input bytewise, e.g. LC_ALL=C sort"

// Options: 分组/采样参数。
type Options struct {
	// MaxExamples: 每个翻译（含 $OTHERS$）保留的最多样例数。
	MaxExamples int
	// MinExamples: 翻译入选所需的最少样例数。
	MinExamples int
	// MaxTranslations: 每个短语最多入选的翻译数（不含 $OTHERS$）。
	MaxTranslations int
	// Seed: 采样种子；相同种子与输入产生相同输出。
	Seed uint64
}

// DefaultOptions 返回默认参数（10/3/10，种子 0）。
func DefaultOptions() Options {
	return Options{MaxExamples: 10, MinExamples: 3, MaxTranslations: 10}
}

// Translation: 入选翻译及其采样后的样例。
type Translation struct {
	Phrase   string
	Count    int
	Examples []contract.Example
}

// Entry: 一个源短语的合并结果。
type Entry struct {
	Phrase       string
	Total        int
	Translations []Translation
}

// Stats: 一次合并运行的计数。
type Stats struct {
	Records int64 // 读入的短语对行
	Phrases int64 // 不同源短语数
	Entries int64 // 写出的条目数
	Skipped int64 // 无入选翻译而跳过的短语数
}

type group struct {
	trg      string
	examples []contract.Example
}

// Grouper 对有序记录流做两级分组（源短语 → 目标短语）。
// 非并发安全；单个 goroutine 顺序调用 Add，最后调用 Flush。
type Grouper struct {
	opts    Options
	src     string
	started bool
	groups  []group
}

// NewGrouper 创建分组器。
func NewGrouper(opts Options) *Grouper { return &Grouper{opts: opts} }

// Add 追加一条记录。源短语切换时 closed 为 true，e 为上一短语的条目
// （无入选翻译时为 nil）。
// 记录须按 (源, 目标) 字节序非降序到达，否则返回 ErrUnsorted。
func (g *Grouper) Add(rec contract.Record) (e *Entry, closed bool, err error) {
	if !g.started {
		g.started = true
		g.src = rec.Src
		g.groups = []group{{trg: rec.Trg, examples: []contract.Example{rec.Example}}}
		return nil, false, nil
	}
	switch {
	case rec.Src < g.src:
		return nil, false, fmt.Errorf("%w: source phrase %q after %q%s", contract.ErrUnsorted, rec.Src, g.src, SortHint)
	case rec.Src > g.src:
		e = g.entry()
		g.src = rec.Src
		g.groups = []group{{trg: rec.Trg, examples: []contract.Example{rec.Example}}}
		return e, true, nil
	}
	last := &g.groups[len(g.groups)-1]
	switch {
	case rec.Trg < last.trg:
		return nil, false, fmt.Errorf("%w: target phrase %q after %q (source %q)%s", contract.ErrUnsorted, rec.Trg, last.trg, rec.Src, SortHint)
	case rec.Trg > last.trg:
		g.groups = append(g.groups, group{trg: rec.Trg, examples: []contract.Example{rec.Example}})
	default:
		last.examples = append(last.examples, rec.Example)
	}
	return nil, false, nil
}

// Flush 结束输入并返回最后一个短语的条目（可能为 nil）。
func (g *Grouper) Flush() *Entry {
	if !g.started {
		return nil
	}
	e := g.entry()
	g.started = false
	g.groups = nil
	return e
}

// entry 对当前源短语执行排序、筛选与采样。
func (g *Grouper) entry() *Entry {
	groups := g.groups
	// 样例数降序；并列时目标短语字节序降序
	slices.SortStableFunc(groups, func(a, b group) int {
		if c := len(b.examples) - len(a.examples); c != 0 {
			return c
		}
		return strings.Compare(b.trg, a.trg)
	})
	rng := g.rng(g.src)
	e := &Entry{Phrase: g.src}
	var others []contract.Example
	for _, gr := range groups {
		e.Total += len(gr.examples)
		if len(gr.examples) >= g.opts.MinExamples && len(e.Translations) < g.opts.MaxTranslations {
			e.Translations = append(e.Translations, Translation{
				Phrase:   gr.trg,
				Count:    len(gr.examples),
				Examples: sample(rng, gr.examples, g.opts.MaxExamples),
			})
			continue
		}
		others = append(others, gr.examples...)
	}
	if len(e.Translations) == 0 {
		return nil
	}
	if len(others) > 0 {
		e.Translations = append(e.Translations, Translation{
			Phrase:   Others,
			Count:    len(others),
			Examples: sample(rng, others, g.opts.MaxExamples),
		})
	}
	return e
}

// rng 为每个源短语派生独立的随机源：ChaCha8(blake3(seed ‖ src))。
func (g *Grouper) rng(src string) *rand.Rand {
	buf := make([]byte, 8, 8+len(src))
	binary.LittleEndian.PutUint64(buf, g.opts.Seed)
	buf = append(buf, src...)
	return rand.New(rand.NewChaCha8(blake3.Sum256(buf)))
}

// sample 原地洗牌后截断为 limit 个。
func sample(rng *rand.Rand, xs []contract.Example, limit int) []contract.Example {
	rng.Shuffle(len(xs), func(i, j int) { xs[i], xs[j] = xs[j], xs[i] })
	if limit >= 0 && len(xs) > limit {
		xs = xs[:limit]
	}
	return xs
}

// Format 输出一行合并条目（不含换行）：
// src \t total \t trg \t count \t ex ex ... [\t trg \t count \t ex ...]
func Format(e *Entry) string {
	var b strings.Builder
	b.WriteString(e.Phrase)
	b.WriteByte('\t')
	b.WriteString(strconv.Itoa(e.Total))
	for _, t := range e.Translations {
		b.WriteByte('\t')
		b.WriteString(t.Phrase)
		b.WriteByte('\t')
		b.WriteString(strconv.Itoa(t.Count))
		b.WriteByte('\t')
		for k, ex := range t.Examples {
			if k > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(emit.FormatExample(ex))
		}
	}
	return b.String()
}

// ParseEntry 解析 Format 的输出（词典构建的输入）。
func ParseEntry(line string) (*Entry, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, "\t")
	if len(fields) < 5 || (len(fields)-2)%3 != 0 {
		return nil, fmt.Errorf("%w: merged entry has %d fields", contract.ErrRecordSyntax, len(fields))
	}
	total, err := strconv.Atoi(fields[1])
	if err != nil || total < 0 {
		return nil, fmt.Errorf("%w: total %q", contract.ErrRecordSyntax, fields[1])
	}
	e := &Entry{Phrase: fields[0], Total: total}
	for k := 2; k < len(fields); k += 3 {
		count, err := strconv.Atoi(fields[k+1])
		if err != nil || count < 0 {
			return nil, fmt.Errorf("%w: count %q", contract.ErrRecordSyntax, fields[k+1])
		}
		t := Translation{Phrase: fields[k], Count: count}
		for _, s := range strings.Fields(fields[k+2]) {
			ex, err := emit.ParseExample(s)
			if err != nil {
				return nil, err
			}
			t.Examples = append(t.Examples, ex)
		}
		e.Translations = append(e.Translations, t)
	}
	return e, nil
}

// Run 从 in 读取有序短语对流，向 out 写出合并条目。
// 记录语法错误与乱序均为致命错误，错误信息附带 1 起的行号。
func Run(ctx context.Context, in io.Reader, out io.Writer, opts Options) (Stats, error) {
	var st Stats
	br := bufio.NewReaderSize(in, 1<<16)
	bw := bufio.NewWriterSize(out, 1<<16)
	g := NewGrouper(opts)
	write := func(e *Entry) error {
		st.Phrases++
		if e == nil {
			st.Skipped++
			return nil
		}
		st.Entries++
		if _, err := bw.WriteString(Format(e)); err != nil {
			return err
		}
		return bw.WriteByte('\n')
	}
	var lineNo int64
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			lineNo++
			if lineNo%4096 == 0 {
				if cerr := ctx.Err(); cerr != nil {
					return st, cerr
				}
			}
			rec, perr := emit.Parse(line)
			if perr != nil {
				return st, fmt.Errorf("line %d: %w", lineNo, perr)
			}
			st.Records++
			done, closed, aerr := g.Add(rec)
			if aerr != nil {
				return st, fmt.Errorf("line %d: %w", lineNo, aerr)
			}
			if closed {
				if werr := write(done); werr != nil {
					return st, werr
				}
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return st, err
		}
	}
	if g.started {
		if err := write(g.Flush()); err != nil {
			return st, err
		}
	}
	return st, bw.Flush()
}
