package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"ctxdict/internal/charset"
	"ctxdict/pkg/contract"
	psql "ctxdict/plugins/sink/sqlite"
	ptsv "ctxdict/plugins/sink/tsv"
	scorpus "ctxdict/plugins/source/corpus"
	wfs "ctxdict/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// SourceInput: 运行期输入（五路位置与读取语义），与 options 子树分离。
type SourceInput struct {
	Streams  contract.Streams
	Reverse  bool
	Encoding string
	Stdin    io.Reader
}

// NewSource 工厂签名：接收原样 JSON Options 与运行期输入。
type NewSource func(raw json.RawMessage, in SourceInput) (contract.SegmentSource, error)

// SinkInput: 运行期输出（位置、语料编码、STDOUT 替身）。
type SinkInput struct {
	Dest     string
	Encoding string
	// Stdout 非 nil 时 Dest 为 "-" 的输出写到此处，否则写进程 STDOUT。
	Stdout io.Writer
}

// NewSink 工厂签名：接收原样 JSON Options 与运行期输出。
type NewSink func(ctx context.Context, raw json.RawMessage, out SinkInput) (contract.PairSink, error)

// Source 工厂注册表（显式、零反射）。
var Source = map[string]NewSource{
	// corpus: 五路行对齐文件/STDIN
	"corpus": func(raw json.RawMessage, in SourceInput) (contract.SegmentSource, error) {
		var opts scorpus.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return scorpus.Open(scorpus.Input{
			Streams: in.Streams, Reverse: in.Reverse, Encoding: in.Encoding, Stdin: in.Stdin,
		}, &opts)
	},
}

// Sink 工厂注册表。
var Sink = map[string]NewSink{
	// tsv: 文本行输出（文件/STDOUT，按扩展名压缩，原子替换）
	"tsv": func(ctx context.Context, raw json.RawMessage, out SinkInput) (contract.PairSink, error) {
		var opts ptsv.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		cs, err := charset.Lookup(out.Encoding)
		if err != nil {
			return nil, err
		}
		if out.Dest == "-" && out.Stdout != nil {
			f, err := wfs.NewStream(out.Stdout, &opts)
			if err != nil {
				return nil, err
			}
			return ptsv.NewWithFile(f, cs), nil
		}
		return ptsv.New(out.Dest, &opts, cs)
	},
	// sqlite: phrase_pairs 表（单事务，Close 提交）；短语以 UTF-8 TEXT 入库
	"sqlite": func(ctx context.Context, raw json.RawMessage, out SinkInput) (contract.PairSink, error) {
		var opts psql.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return psql.New(ctx, out.Dest, &opts)
	},
}
