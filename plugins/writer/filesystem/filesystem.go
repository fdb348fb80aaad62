package filesystem

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"ctxdict/internal/codec"
	"ctxdict/pkg/contract"
)

// Options: 最小必要选项。
type Options struct {
	// Atomic: 是否使用原子替换（同目录临时文件 + rename）。
	// 默认值：true。未提供该字段时采用原子写；显式 false 可关闭。
	Atomic *bool `json:"atomic,omitempty"`
	// PermFile/PermDir: 可选权限；为 0 表示使用实现/平台默认。
	PermFile os.FileMode `json:"perm_file,omitempty"`
	PermDir  os.FileMode `json:"perm_dir,omitempty"`
	// BufSize: 写缓冲区大小；<=0 使用实现默认。
	BufSize int `json:"buf_size,omitempty"`
	// Compress: 显式压缩格式（none|gz|xz|zst）；为空时按扩展名推断。
	Compress string `json:"compress,omitempty"`
}

// File: 单个输出工件（文件或 STDOUT）。
// 写入链：调用方 → bufio → 压缩器 → 临时文件/目标文件。
// Commit 冲刷并落盘（原子模式下 rename 到目标）；Abort 丢弃未提交内容。
type File struct {
	dest    string
	tmpPath string
	f       *os.File
	enc     io.WriteCloser
	bw      *bufio.Writer
	done    bool
}

const defaultBufSize = 64 * 1024

// Create 打开 path 用于写入；"-" 写到 STDOUT。
func Create(path string, opts *Options) (*File, error) {
	if opts == nil {
		opts = &Options{}
	}
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty output path", contract.ErrInvalidInput)
	}
	if path == "-" {
		return NewStream(os.Stdout, opts)
	}
	format, err := codec.Resolve(opts.Compress, path)
	if err != nil {
		return nil, err
	}
	pf := opts.PermFile
	if pf == 0 {
		pf = 0o644
	}
	pd := opts.PermDir
	if pd == 0 {
		pd = 0o755
	}
	atomic := true
	if opts.Atomic != nil {
		atomic = *opts.Atomic
	}
	if err := os.MkdirAll(filepath.Dir(path), pd); err != nil {
		return nil, err
	}

	out := &File{dest: path}
	if atomic {
		tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
		if err != nil {
			return nil, err
		}
		// 目标权限：尽量与期望一致
		_ = os.Chmod(tmp.Name(), pf)
		out.f, out.tmpPath = tmp, tmp.Name()
	} else {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, pf)
		if err != nil {
			return nil, err
		}
		out.f = f
	}
	if err := out.wire(out.f, format, opts.BufSize); err != nil {
		_ = out.Abort()
		return nil, err
	}
	return out, nil
}

// NewStream 在任意 io.Writer 上构造输出（不关闭 w；压缩格式仅取 opts.Compress）。
func NewStream(w io.Writer, opts *Options) (*File, error) {
	if opts == nil {
		opts = &Options{}
	}
	format, err := codec.Resolve(opts.Compress, "-")
	if err != nil {
		return nil, err
	}
	out := &File{dest: "-"}
	if err := out.wire(w, format, opts.BufSize); err != nil {
		return nil, err
	}
	return out, nil
}

func (o *File) wire(w io.Writer, format codec.Format, bufSize int) error {
	if bufSize <= 0 {
		bufSize = defaultBufSize
	}
	enc, err := codec.NewWriter(format, w)
	if err != nil {
		return err
	}
	o.enc = enc
	o.bw = bufio.NewWriterSize(enc, bufSize)
	return nil
}

// Name 返回目标路径（STDOUT 为 "-"）。
func (o *File) Name() string { return o.dest }

func (o *File) Write(p []byte) (int, error) {
	if o.done {
		return 0, os.ErrClosed
	}
	return o.bw.Write(p)
}

func (o *File) WriteString(s string) (int, error) {
	if o.done {
		return 0, os.ErrClosed
	}
	return o.bw.WriteString(s)
}

// Commit 冲刷缓冲与压缩尾部并落盘；重复调用返回 os.ErrClosed。
func (o *File) Commit() error {
	if o.done {
		return os.ErrClosed
	}
	o.done = true
	if err := o.bw.Flush(); err != nil {
		o.cleanup()
		return err
	}
	if err := o.enc.Close(); err != nil {
		o.cleanup()
		return err
	}
	if o.f == nil {
		return nil
	}
	if err := o.f.Sync(); err != nil {
		o.cleanup()
		return err
	}
	if err := o.f.Close(); err != nil {
		if o.tmpPath != "" {
			_ = os.Remove(o.tmpPath)
		}
		return err
	}
	if o.tmpPath == "" {
		return nil
	}
	// os.Rename 在各平台均替换已存在的目标
	if err := os.Rename(o.tmpPath, o.dest); err != nil {
		_ = os.Remove(o.tmpPath)
		return err
	}
	// 最佳努力：同步父目录，提升崩溃安全性
	_ = syncDir(filepath.Dir(o.dest))
	return nil
}

// Abort 丢弃输出：原子模式删除临时文件，目标保持原状；已 Commit 时为 no-op。
func (o *File) Abort() error {
	if o.done {
		return nil
	}
	o.done = true
	o.cleanup()
	return nil
}

func (o *File) cleanup() {
	if o.f == nil {
		return
	}
	_ = o.f.Close()
	if o.tmpPath != "" {
		_ = os.Remove(o.tmpPath)
	}
}

// syncDir 在支持的平台上 fsync 目录元数据；不支持时返回错误由调用方忽略。
func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
