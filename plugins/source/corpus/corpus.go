package corpus

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"ctxdict/internal/align"
	"ctxdict/internal/charset"
	"ctxdict/pkg/contract"
	rfs "ctxdict/plugins/reader/filesystem"
)

// Options: 读取选项（原样透传给文件打开器）。
type Options struct {
	BufSize  int    `json:"buf_size"`
	Compress string `json:"compress"`
}

// Input: 运行期输入（来自 CLI/配置，而非 options 子树）。
type Input struct {
	Streams contract.Streams
	// Reverse: 交换每条对齐链接的两端
	Reverse bool
	// Encoding: 四路文本流的声明编码（空为 UTF-8）
	Encoding string
	// Stdin: "-" 对应的输入；nil 使用 os.Stdin
	Stdin io.Reader
}

// Corpus 以严格同步的方式逐行读取五路输入。
// 不在内部起并发；任一路读尽即结束并记录仍有剩余行的流。
type Corpus struct {
	names     [5]string
	streams   [5]*rfs.Stream
	text      [5]*bufio.Reader // 文本流经编码解码后的读取器（对齐流直接读取）
	reverse   bool
	next      contract.SegIndex
	done      bool
	truncated []string
}

var _ contract.SegmentSource = (*Corpus)(nil)

const alignSlot = 4

// Open 打开五路输入；"-" 至多出现一次。
func Open(in Input, opts *Options) (*Corpus, error) {
	if opts == nil {
		opts = &Options{}
	}
	cs, err := charset.Lookup(in.Encoding)
	if err != nil {
		return nil, err
	}
	named := in.Streams.Named()
	dash := 0
	for _, kv := range named {
		if strings.TrimSpace(kv[1]) == "" {
			return nil, fmt.Errorf("%w: %s stream path empty", contract.ErrInvalidInput, kv[0])
		}
		if kv[1] == "-" {
			dash++
		}
	}
	if dash > 1 {
		return nil, fmt.Errorf("%w: stdin '-' may back at most one stream", contract.ErrInvalidInput)
	}

	opener := rfs.New(&rfs.Options{BufSize: opts.BufSize, Compress: opts.Compress}).WithStdin(in.Stdin)
	c := &Corpus{reverse: in.Reverse}
	for k, kv := range named {
		s, err := opener.Open(kv[1])
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("open %s: %w", kv[0], err)
		}
		c.names[k], c.streams[k] = kv[0], s
		if k != alignSlot && !cs.IsUTF8() {
			c.text[k] = bufio.NewReader(cs.NewReader(s))
		}
	}
	return c, nil
}

func (c *Corpus) readLine(k int) (string, bool, error) {
	if c.text[k] == nil {
		return c.streams[k].ReadLine()
	}
	// 经解码后的行读取，规则与 Stream.ReadLine 一致
	line, err := c.text[k].ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false, err
	}
	if line == "" && err != nil {
		return "", false, nil
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, true, nil
}

// Next 从五路各读一行组成 Segment。
func (c *Corpus) Next(ctx context.Context) (contract.Segment, error) {
	if c.done {
		return contract.Segment{}, contract.ErrStreamsExhausted
	}
	if err := ctx.Err(); err != nil {
		return contract.Segment{}, err
	}
	var lines [5]string
	var got [5]bool
	for k := range c.streams {
		line, ok, err := c.readLine(k)
		if err != nil {
			return contract.Segment{}, fmt.Errorf("read %s (line %d): %w", c.names[k], c.next.Line(), err)
		}
		lines[k], got[k] = line, ok
	}
	for k := range got {
		if !got[k] {
			c.done = true
			for j := range got {
				if got[j] {
					c.truncated = append(c.truncated, c.names[j])
				}
			}
			return contract.Segment{}, contract.ErrStreamsExhausted
		}
	}

	links, err := align.ParseLine(lines[alignSlot])
	if err != nil {
		return contract.Segment{}, fmt.Errorf("line %d: %w", c.next.Line(), err)
	}
	if c.reverse {
		links = align.Reverse(links)
	}
	seg := contract.Segment{
		Index:     c.next,
		SrcRaw:    lines[0],
		TrgRaw:    lines[1],
		SrcTokens: strings.Fields(lines[2]),
		TrgTokens: strings.Fields(lines[3]),
		Links:     links,
	}
	c.next++
	return seg, nil
}

// Truncated 返回最短流截断时仍有剩余行的流名称。
func (c *Corpus) Truncated() []string { return c.truncated }

// Close 关闭全部已打开的流。
func (c *Corpus) Close() error {
	var errs []error
	for k, s := range c.streams {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.names[k], err))
		}
		c.streams[k] = nil
	}
	return errors.Join(errs...)
}
