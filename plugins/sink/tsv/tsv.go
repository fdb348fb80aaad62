package tsv

import (
	"context"
	"io"

	"ctxdict/internal/charset"
	"ctxdict/internal/emit"
	"ctxdict/pkg/contract"
	wfs "ctxdict/plugins/writer/filesystem"
)

// Options: 输出文件选项（原子写、权限、压缩）。
type Options = wfs.Options

// Sink 将短语对按行写出：src \t trg \t seg:ss:se:ts:te。
// 短语按语料声明编码写出，与字节区间的计数单位一致。
type Sink struct {
	f *wfs.File
	w io.WriteCloser // 转码层，Close 只冲刷不关闭 f
}

var _ contract.PairSink = (*Sink)(nil)

// New 打开输出路径；"-" 为 STDOUT。cs 零值为 UTF-8。
func New(path string, opts *Options, cs charset.Charset) (*Sink, error) {
	f, err := wfs.Create(path, opts)
	if err != nil {
		return nil, err
	}
	return NewWithFile(f, cs), nil
}

// NewWithFile 使用已构造的输出（例如注入的 STDOUT）。
func NewWithFile(f *wfs.File, cs charset.Charset) *Sink {
	return &Sink{f: f, w: cs.NewWriter(f)}
}

func (s *Sink) Put(ctx context.Context, p contract.PhrasePair) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := io.WriteString(s.w, emit.Format(p)+"\n")
	return err
}

func (s *Sink) Close() error {
	if err := s.w.Close(); err != nil {
		_ = s.f.Abort()
		return err
	}
	return s.f.Commit()
}

func (s *Sink) Abort() error { return s.f.Abort() }
