package filesystem

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"ctxdict/internal/codec"
	"ctxdict/pkg/contract"
)

// Options 为文件打开器的可选配置（最小必要）。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size"`
	// Compress: 显式解压格式（none|gz|xz|zst）；为空时按扩展名推断，STDIN 视为不压缩。
	Compress string `json:"compress"`
}

// Opener 打开单个输入流：常规文件（含指向常规文件的符号链接）或 "-"（STDIN）。
// 按扩展名或显式格式透明解压，统一以 bufio.Reader 缓冲。
type Opener struct {
	bufSize  int
	compress string
	stdin    io.Reader
}

// New 创建 Opener。
func New(opts *Options) *Opener {
	const defaultBuf = 64 * 1024
	o := &Opener{bufSize: defaultBuf, stdin: os.Stdin}
	if opts != nil {
		if opts.BufSize > 0 {
			o.bufSize = opts.BufSize
		}
		o.compress = opts.Compress
	}
	return o
}

// WithStdin 替换 "-" 对应的输入（测试与嵌入调用使用）。
func (o *Opener) WithStdin(r io.Reader) *Opener {
	if r != nil {
		o.stdin = r
	}
	return o
}

// Open 打开 path；"-" 表示 STDIN（Close 不关闭 STDIN 本身）。
func (o *Opener) Open(path string) (*Stream, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty input path", contract.ErrInvalidInput)
	}
	format, err := codec.Resolve(o.compress, path)
	if err != nil {
		return nil, err
	}
	var raw io.Reader
	var c io.Closer
	if path == "-" {
		raw = o.stdin
	} else {
		// 目标须为常规文件；符号链接跟随到目标判断
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("%w: %s is not a regular file", contract.ErrInvalidInput, path)
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		raw, c = f, f
	}
	dec, err := codec.NewReader(format, bufio.NewReaderSize(raw, o.bufSize))
	if err != nil {
		if c != nil {
			_ = c.Close()
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Stream{Reader: bufio.NewReaderSize(dec, o.bufSize), dec: dec, c: c, Name: path}, nil
}

// Stream 组合缓冲读取与底层关闭（解压器 → 文件）。
type Stream struct {
	*bufio.Reader
	Name string
	dec  io.Closer
	c    io.Closer
}

// ReadLine 读取一行并去除行尾 LF/CRLF；读尽返回 ok=false。
// 最后一行缺少换行符时仍作为一行返回。
func (s *Stream) ReadLine() (line string, ok bool, err error) {
	line, err = s.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false, err
	}
	if line == "" && err != nil {
		return "", false, nil
	}
	n := len(line)
	if n > 0 && line[n-1] == '\n' {
		n--
		if n > 0 && line[n-1] == '\r' {
			n--
		}
	}
	return line[:n], true, nil
}

// Close 先释放解压器再关闭文件。
func (s *Stream) Close() error {
	err := s.dec.Close()
	if s.c != nil {
		err = errors.Join(err, s.c.Close())
	}
	return err
}
