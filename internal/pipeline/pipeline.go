package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"ctxdict/internal/align"
	"ctxdict/internal/charset"
	"ctxdict/internal/diag"
	"ctxdict/pkg/contract"
)

// - 单点并发：仅此层管理并发与背压；Source/Sink 及算法组件均为同步、无内部并发。
// - 顺序门闩：批按 BatchIndex 严格递增提交；乱序结果暂存，连续冲刷。
// - 首错取消：任一阶段出现错误，记录首错并 cancel 整体；排空后返回该错误。
// - 段级失败（分词不匹配）只告警跳过，不影响后续段。

// Components 聚合运行所需的组件。
type Components struct {
	Source contract.SegmentSource
	Sink   contract.PairSink
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	// Workers<=1 时顺序执行；>1 时按批并行抽取，顺序门闩保证输出与顺序执行逐字节一致
	Workers   int
	BatchSize int
	// MaxPhraseLen<=0 取默认值
	MaxPhraseLen int
	IndexMode    align.Mode
	Charset      charset.Charset
	// Warnings: 分词不匹配告警块的输出（nil → os.Stderr）
	Warnings io.Writer
	// Unit: 日志与终端中显示的输入名称
	Unit string
}

// Stats: 运行汇总。
type Stats struct {
	Segments int64
	Skipped  int64
	Pairs    int64
	// Truncated: 最短流截断时仍有剩余行的流
	Truncated []string
}

const defaultBatchSize = 512

// Run 执行：Source → 边界映射 → 对齐索引 → 一致性抽取 → Sink。
// Sink 的所有权交给 Run：成功时 Close 提交，失败时 Abort 丢弃。Source 由调用方关闭。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (Stats, error) {
	if err := sanity(comp); err != nil {
		return Stats{}, fmt.Errorf("sanity: %w", err)
	}
	if set.Warnings == nil {
		set.Warnings = os.Stderr
	}
	if set.BatchSize <= 0 {
		set.BatchSize = defaultBatchSize
	}
	if set.IndexMode == "" {
		set.IndexMode = align.Symmetric
	}
	proc := newProcessor(set)

	timer := logger.StartWithKV("pipeline", "extract", set.Unit, "", map[string]string{
		"workers":        strconv.Itoa(set.Workers),
		"batch_size":     strconv.Itoa(set.BatchSize),
		"index_mode":     string(set.IndexMode),
		"max_phrase_len": strconv.Itoa(proc.ext.MaxPhraseLen),
		"encoding":       proc.mapper.Charset().Name(),
	})
	term := diag.GetTerminal()
	term.UnitStart(set.Unit)
	t0 := time.Now()

	r := &runner{proc: proc, sink: comp.Sink, set: set, logger: logger, term: term}
	var err error
	if set.Workers > 1 {
		err = r.parallel(ctx, comp.Source)
	} else {
		err = r.sequential(ctx, comp.Source)
	}
	if err == nil {
		err = comp.Sink.Close()
	} else if aerr := comp.Sink.Abort(); aerr != nil {
		logger.Warn("sink", string(diag.Classify(aerr)), "abort failed: "+aerr.Error(), nil)
	}

	r.stats.Truncated = comp.Source.Truncated()
	term.UnitFinish(err == nil, time.Since(t0))
	if err != nil {
		code := diag.Classify(err)
		logger.ErrorWithKV("pipeline", string(code), err.Error(), timer.Since(), set.Unit, "", nil)
		diag.IncOp("pipeline", "finish", "error")
		if code != diag.CodeUnknown {
			diag.IncError("pipeline", string(code))
		}
		return r.stats, err
	}
	if len(r.stats.Truncated) > 0 {
		logger.Info("source", "streams differ in length; extra lines ignored", map[string]string{
			"streams":  fmt.Sprint(r.stats.Truncated),
			"segments": strconv.FormatInt(r.stats.Segments, 10),
		})
	}
	timer.FinishKV("extract", r.stats.Pairs, map[string]string{
		"segments": strconv.FormatInt(r.stats.Segments, 10),
		"skipped":  strconv.FormatInt(r.stats.Skipped, 10),
	})
	diag.IncOp("pipeline", "finish", "success")
	return r.stats, nil
}

func sanity(c Components) error {
	if c.Source == nil {
		return fmt.Errorf("%w: source is nil", contract.ErrInvalidInput)
	}
	if c.Sink == nil {
		return fmt.Errorf("%w: sink is nil", contract.ErrInvalidInput)
	}
	return nil
}

// runner: 单次运行的提交端状态（仅由提交 goroutine 访问）。
type runner struct {
	proc   *processor
	sink   contract.PairSink
	set    Settings
	logger *diag.Logger
	term   *diag.Terminal
	stats  Stats
}

// warn 输出告警块并计数。
func (r *runner) warn(m *Mismatch) error {
	r.stats.Skipped++
	diag.IncOp("boundary", "segment", "skip")
	r.logger.Warn("boundary", string(diag.CodeInput), "tokenization mismatch", map[string]string{
		"line": strconv.FormatInt(m.Line, 10),
		"side": string(m.Side),
	})
	if _, err := io.WriteString(r.set.Warnings, m.Block()); err != nil {
		return fmt.Errorf("write warning: %w", err)
	}
	return nil
}

func (r *runner) put(ctx context.Context, p contract.PhrasePair) error {
	if err := r.sink.Put(ctx, p); err != nil {
		return fmt.Errorf("sink put (line %d): %w", p.Segment.Line(), err)
	}
	r.stats.Pairs++
	return nil
}

// sequential: 逐段读取、抽取、写出（短语对不物化）。
func (r *runner) sequential(ctx context.Context, src contract.SegmentSource) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		seg, err := src.Next(ctx)
		if errors.Is(err, contract.ErrStreamsExhausted) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("source: %w", err)
		}
		r.stats.Segments++
		pr, mm, err := r.proc.prepare(seg)
		if err != nil {
			return err
		}
		if mm != nil {
			if err := r.warn(mm); err != nil {
				return err
			}
			continue
		}
		for p := range r.proc.ext.Pairs(pr.seg, pr.srcSpans, pr.trgSpans, pr.idx) {
			if err := r.put(ctx, p); err != nil {
				return err
			}
		}
		diag.IncOp("extract", "segment", "success")
		r.term.Progress(r.stats.Segments, r.stats.Skipped, r.stats.Pairs)
	}
}

type batchJob struct {
	idx  int64
	segs []contract.Segment
}

type batchResult struct {
	idx     int64
	results []segResult
}

// parallel: 读取端切批 → workers 并发抽取 → 顺序门闩按批序提交。
func (r *runner) parallel(ctx context.Context, src contract.SegmentSource) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := r.set.Workers
	inCh := make(chan batchJob, 2*workers)
	outCh := make(chan batchResult, 2*workers)
	g, gctx := errgroup.WithContext(ctx)

	// 读取端：Source 单线程读取
	g.Go(func() error {
		defer close(inCh)
		var idx int64
		for {
			segs := make([]contract.Segment, 0, r.set.BatchSize)
			done := false
			for len(segs) < r.set.BatchSize {
				seg, err := src.Next(gctx)
				if errors.Is(err, contract.ErrStreamsExhausted) {
					done = true
					break
				}
				if err != nil {
					return fmt.Errorf("source: %w", err)
				}
				segs = append(segs, seg)
			}
			if len(segs) > 0 {
				select {
				case inCh <- batchJob{idx: idx, segs: segs}:
					idx++
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			if done {
				return nil
			}
		}
	})

	// 抽取端：批内逐段处理，致命错误终止整体
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for job := range inCh {
				r.logger.DebugStart("worker", "batch", r.set.Unit, strconv.FormatInt(job.idx, 10), map[string]string{
					"segments": strconv.Itoa(len(job.segs)),
				})
				res := batchResult{idx: job.idx, results: make([]segResult, 0, len(job.segs))}
				for _, seg := range job.segs {
					sr, err := r.proc.collect(seg)
					if err != nil {
						return err
					}
					res.results = append(res.results, sr)
				}
				select {
				case outCh <- res:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	var groupErr error
	waitDone := make(chan struct{})
	go func() {
		groupErr = g.Wait()
		close(outCh)
		close(waitDone)
	}()

	// 顺序门闩：乱序结果暂存，按批序连续冲刷
	var firstErr error
	buf := make(map[int64]batchResult)
	var expect int64
	for res := range outCh {
		if firstErr != nil {
			continue
		}
		buf[res.idx] = res
		for {
			next, ok := buf[expect]
			if !ok {
				break
			}
			delete(buf, expect)
			expect++
			if err := r.commit(ctx, next); err != nil {
				firstErr = err
				cancel()
				break
			}
		}
	}
	<-waitDone
	if firstErr != nil {
		return firstErr
	}
	if groupErr != nil {
		return groupErr
	}
	return ctx.Err()
}

func (r *runner) commit(ctx context.Context, res batchResult) error {
	for _, sr := range res.results {
		r.stats.Segments++
		if sr.mismatch != nil {
			if err := r.warn(sr.mismatch); err != nil {
				return err
			}
			continue
		}
		for _, p := range sr.pairs {
			if err := r.put(ctx, p); err != nil {
				return err
			}
		}
		diag.IncOp("extract", "segment", "success")
	}
	r.term.Progress(r.stats.Segments, r.stats.Skipped, r.stats.Pairs)
	return nil
}
