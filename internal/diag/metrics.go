package diag

import (
	"maps"
	"strconv"
	"strings"
	"sync"
)

// 进程内指标（无导出端点，运行结束时由调用方写入汇总日志）。
// - op_total{comp,stage,result}
// - error_total{comp,code}
// - op_duration_ms{comp,stage}
var reg = newRegistry()

type registry struct {
	mu     sync.Mutex
	ops    map[string]int64
	errs   map[string]int64
	durMS  map[string]int64
	durCnt map[string]int64
}

func newRegistry() *registry {
	return &registry{
		ops:    map[string]int64{},
		errs:   map[string]int64{},
		durMS:  map[string]int64{},
		durCnt: map[string]int64{},
	}
}

func key(parts ...string) string { return strings.Join(parts, ".") }

// IncOp 累加操作计数（result=success|error|skip）。
func IncOp(comp, stage, result string) {
	reg.mu.Lock()
	reg.ops[key(comp, stage, result)]++
	reg.mu.Unlock()
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	reg.mu.Lock()
	reg.errs[key(comp, code)]++
	reg.mu.Unlock()
}

// ObserveDuration 记录阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	k := key(comp, stage)
	reg.mu.Lock()
	reg.durMS[k] += durMS
	reg.durCnt[k]++
	reg.mu.Unlock()
}

// Metrics: 指标快照。
type Metrics struct {
	Ops        map[string]int64 `json:"ops"`
	Errors     map[string]int64 `json:"errors"`
	DurationMS map[string]int64 `json:"duration_ms"`
	Samples    map[string]int64 `json:"samples"`
}

// Snapshot 返回当前指标的副本。
func Snapshot() Metrics {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return Metrics{
		Ops:        maps.Clone(reg.ops),
		Errors:     maps.Clone(reg.errs),
		DurationMS: maps.Clone(reg.durMS),
		Samples:    maps.Clone(reg.durCnt),
	}
}

// ResetMetrics 清空指标（测试与多次运行之间使用）。
func ResetMetrics() {
	fresh := newRegistry()
	reg.mu.Lock()
	reg.ops, reg.errs, reg.durMS, reg.durCnt = fresh.ops, fresh.errs, fresh.durMS, fresh.durCnt
	reg.mu.Unlock()
}

// Flatten 将快照展平为日志 KV。
func (m Metrics) Flatten() map[string]string {
	out := make(map[string]string, len(m.Ops)+len(m.Errors)+len(m.DurationMS))
	put := func(prefix string, src map[string]int64) {
		for k, v := range src {
			out[prefix+k] = strconv.FormatInt(v, 10)
		}
	}
	put("op.", m.Ops)
	put("error.", m.Errors)
	put("dur_ms.", m.DurationMS)
	return out
}
