package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"ctxdict/internal/align"
	"ctxdict/internal/charset"
	"ctxdict/internal/diag"
	"ctxdict/internal/pipeline"
	"ctxdict/pkg/contract"
	"ctxdict/pkg/registry"
)

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if cfg.MaxPhraseLen < 1 {
		return errors.New("config: max_phrase_len must be >= 1")
	}
	if _, err := align.ParseMode(cfg.IndexMode); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := charset.Lookup(cfg.Encoding); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.Workers < 1 {
		return errors.New("config: workers must be >= 1")
	}
	if cfg.BatchSize < 1 {
		return errors.New("config: batch_size must be >= 1")
	}
	if lv := strings.ToLower(strings.TrimSpace(cfg.Logging.Level)); lv != "" && diag.ParseLevel(lv).String() != lv {
		return fmt.Errorf("config: logging.level %q not one of debug|info|warn|error", lv)
	}
	if cfg.Merge.MaxExamples < 1 {
		return errors.New("config: merge.max_examples must be >= 1")
	}
	if cfg.Merge.MinExamples < 0 {
		return errors.New("config: merge.min_examples must be >= 0")
	}
	if cfg.Merge.MaxTranslations < 1 {
		return errors.New("config: merge.max_translations must be >= 1")
	}
	if cfg.Dict.AutocompleteLimit < 1 {
		return errors.New("config: dict.autocomplete_limit must be >= 1")
	}
	if _, err := charset.Lookup(cfg.Dict.Encoding); err != nil {
		return fmt.Errorf("config: dict.encoding: %w", err)
	}
	// 组件名若为空，使用默认名（由 Defaults() 提供）。此处只要最终有值即可。
	if name := effName(cfg.Components.Source, Defaults().Components.Source); registry.Source[name] == nil {
		return fmt.Errorf("config: source %q not registered", name)
	}
	if name := effName(cfg.Components.Sink, Defaults().Components.Sink); registry.Sink[name] == nil {
		return fmt.Errorf("config: sink %q not registered", name)
	}
	return nil
}

// Stdio: "-" 位置对应的标准流；为 nil 时使用进程自身的 STDIN/STDOUT。
type Stdio struct {
	In  io.Reader
	Out io.Writer
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry （工厂）层进行；此处只传 raw JSON。
// 成功返回后 Source 由调用方关闭，Sink 交由 pipeline.Run 提交或丢弃。
func Assemble(ctx context.Context, cfg Config, streams contract.Streams, stdio Stdio, out string) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	mode, _ := align.ParseMode(cfg.IndexMode)
	cs, _ := charset.Lookup(cfg.Encoding)

	// 有效名称
	d := Defaults()
	sn := effName(cfg.Components.Source, d.Components.Source)
	kn := effName(cfg.Components.Sink, d.Components.Sink)

	// 构造实例
	src, err := registry.Source[sn](cfg.Options.Source, registry.SourceInput{
		Streams:  streams,
		Reverse:  cfg.Reverse,
		Encoding: cfg.Encoding,
		Stdin:    stdio.In,
	})
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	sink, err := registry.Sink[kn](ctx, cfg.Options.Sink, registry.SinkInput{
		Dest:     out,
		Encoding: cfg.Encoding,
		Stdout:   stdio.Out,
	})
	if err != nil {
		_ = src.Close()
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	set := pipeline.Settings{
		Workers:      cfg.Workers,
		BatchSize:    cfg.BatchSize,
		MaxPhraseLen: cfg.MaxPhraseLen,
		IndexMode:    mode,
		Charset:      cs,
		Unit:         streams.Src,
	}
	return pipeline.Components{Source: src, Sink: sink}, set, nil
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
