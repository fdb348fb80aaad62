package codec

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"ctxdict/pkg/contract"
)

// Format: 流压缩格式。
type Format string

const (
	None Format = "none"
	Gzip Format = "gz"
	XZ   Format = "xz"
	Zstd Format = "zst"
)

// Detect 按扩展名推断压缩格式（大小写不敏感）；"-" 与未知扩展名为 None。
func Detect(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		return Gzip
	case ".xz":
		return XZ
	case ".zst", ".zstd":
		return Zstd
	default:
		return None
	}
}

// Parse 解析显式指定的格式名；空串返回 ok=false（由调用方回退到 Detect）。
func Parse(name string) (f Format, ok bool, err error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return None, false, nil
	case "none":
		return None, true, nil
	case "gz", "gzip":
		return Gzip, true, nil
	case "xz":
		return XZ, true, nil
	case "zst", "zstd":
		return Zstd, true, nil
	}
	return None, false, fmt.Errorf("%w: unknown compression %q", contract.ErrInvalidInput, name)
}

// Resolve: 显式格式优先，否则按路径推断。
func Resolve(name, path string) (Format, error) {
	f, ok, err := Parse(name)
	if err != nil {
		return None, err
	}
	if ok {
		return f, nil
	}
	return Detect(path), nil
}

// NewReader 包装解压流；Close 只释放解压器，不关闭 r。
func NewReader(f Format, r io.Reader) (io.ReadCloser, error) {
	switch f {
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, nil
	case XZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("xz: %w", err)
		}
		return io.NopCloser(xr), nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return zr.IOReadCloser(), nil
	default:
		return io.NopCloser(r), nil
	}
}

// NewWriter 包装压缩流；Close 写出尾部并冲刷，不关闭 w。
func NewWriter(f Format, w io.Writer) (io.WriteCloser, error) {
	switch f {
	case Gzip:
		return gzip.NewWriter(w), nil
	case XZ:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("xz: %w", err)
		}
		return xw, nil
	case Zstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return zw, nil
	default:
		return nopWriteCloser{w}, nil
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
