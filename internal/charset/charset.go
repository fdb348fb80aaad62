package charset

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"ctxdict/pkg/contract"
)

// Charset: 语料声明编码。
// - UTF-8（默认）：不转码，非法字节原样透传，按 1 字节计宽；
// - 其他编码：读取时解码为 UTF-8（非法序列替换，不失败），
//   字节宽度按原编码重新编码后的长度计算。
type Charset struct {
	name  string
	enc   encoding.Encoding // nil 表示 UTF-8 原生
	width *sync.Map         // rune -> int（仅非 UTF-8）
}

// UTF8 为默认编码。
var UTF8 = Charset{name: "utf-8"}

// Lookup 按名称解析编码（WHATWG 名称与别名，大小写不敏感）。
func Lookup(name string) (Charset, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" || n == "utf-8" || n == "utf8" {
		return UTF8, nil
	}
	enc, err := htmlindex.Get(n)
	if err != nil {
		return Charset{}, fmt.Errorf("%w: unknown encoding %q", contract.ErrInvalidInput, name)
	}
	canon, _ := htmlindex.Name(enc)
	if canon == "utf-8" {
		return UTF8, nil
	}
	return Charset{name: canon, enc: enc, width: &sync.Map{}}, nil
}

// Name 返回规范名称。
func (c Charset) Name() string {
	if c.name == "" {
		return UTF8.name
	}
	return c.name
}

// IsUTF8 报告是否为原生 UTF-8（不转码）。
func (c Charset) IsUTF8() bool { return c.enc == nil }

// NewReader 将 r 包装为 UTF-8 流；UTF-8 时原样返回。
func (c Charset) NewReader(r io.Reader) io.Reader {
	if c.enc == nil {
		return r
	}
	return transform.NewReader(r, c.enc.NewDecoder())
}

// NewWriter 将 UTF-8 文本按声明编码写出；Close 仅冲刷转码缓冲，不关闭 w。
// 无法表示的字符按编码的替换字符写出，不失败。
func (c Charset) NewWriter(w io.Writer) io.WriteCloser {
	if c.enc == nil {
		return nopCloser{w}
	}
	return transform.NewWriter(w, encoding.ReplaceUnsupported(c.enc.NewEncoder()))
}

// Decode 将声明编码的字节解码为 UTF-8 文本；UTF-8 时原样转换。
func (c Charset) Decode(b []byte) string {
	if c.enc == nil {
		return string(b)
	}
	out, err := c.enc.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// Width 返回一个 rune 在声明编码下的字节数。
// size 为该 rune 在内存 UTF-8 文本中占用的字节数（非法字节时为 1）。
func (c Charset) Width(r rune, size int) int {
	if c.enc == nil {
		return size
	}
	if r == utf8.RuneError && size == 1 {
		return 1
	}
	if v, ok := c.width.Load(r); ok {
		return v.(int)
	}
	w := 1
	if s, err := c.enc.NewEncoder().String(string(r)); err == nil && len(s) > 0 {
		w = len(s)
	}
	c.width.Store(r, w)
	return w
}
