package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"

	"ctxdict/internal/dict"
	"ctxdict/internal/extract"
	"ctxdict/internal/merge"
)

// DefaultFile: 未指定 --config 时尝试加载的文件名（不存在则跳过）。
const DefaultFile = "ctxdict.json"

// Defaults 返回带有安全默认值的 Config 雏形。
func Defaults() Config {
	mo := merge.DefaultOptions()
	return Config{
		MaxPhraseLen: extract.DefaultMaxPhraseLen,
		IndexMode:    "symmetric",
		Encoding:     "utf-8",
		Workers:      1,
		BatchSize:    512,
		Logging:      Logging{Level: "info"},
		Merge: MergeConfig{
			MaxExamples:     mo.MaxExamples,
			MinExamples:     mo.MinExamples,
			MaxTranslations: mo.MaxTranslations,
			Seed:            mo.Seed,
		},
		Dict: DictConfig{AutocompleteLimit: dict.DefaultAutocompleteLimit, Addr: "127.0.0.1:8080"},
		Components: Components{
			Source: "corpus",
			Sink:   "tsv",
		},
	}
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	cfg := Config{Merge: MergeConfig{MinExamples: -1}}
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。零值视为未覆盖。
func Merge(base, over Config) Config {
	out := base
	if over.MaxPhraseLen != 0 {
		out.MaxPhraseLen = over.MaxPhraseLen
	}
	if s := strings.TrimSpace(over.IndexMode); s != "" {
		out.IndexMode = s
	}
	if s := strings.TrimSpace(over.Encoding); s != "" {
		out.Encoding = s
	}
	if over.Reverse {
		out.Reverse = true
	}
	if over.Workers != 0 {
		out.Workers = over.Workers
	}
	if over.BatchSize != 0 {
		out.BatchSize = over.BatchSize
	}
	// Logging（仅 level）
	if s := strings.TrimSpace(over.Logging.Level); s != "" {
		out.Logging.Level = s
	}

	if over.Merge.MaxExamples != 0 {
		out.Merge.MaxExamples = over.Merge.MaxExamples
	}
	// 特殊：MinExamples 的 0 具有语义，需要显式可覆盖。
	// 约定：当 over.Merge.MinExamples >= 0 时认为“存在”，否则（例如 -1）视为未覆盖。
	if over.Merge.MinExamples >= 0 {
		out.Merge.MinExamples = over.Merge.MinExamples
	}
	if over.Merge.MaxTranslations != 0 {
		out.Merge.MaxTranslations = over.Merge.MaxTranslations
	}
	if over.Merge.Seed != 0 {
		out.Merge.Seed = over.Merge.Seed
	}

	if s := strings.TrimSpace(over.Dict.DB); s != "" {
		out.Dict.DB = s
	}
	if over.Dict.AutocompleteLimit != 0 {
		out.Dict.AutocompleteLimit = over.Dict.AutocompleteLimit
	}
	if s := strings.TrimSpace(over.Dict.Encoding); s != "" {
		out.Dict.Encoding = s
	}
	if s := strings.TrimSpace(over.Dict.Models); s != "" {
		out.Dict.Models = s
	}
	if s := strings.TrimSpace(over.Dict.Addr); s != "" {
		out.Dict.Addr = s
	}

	// 组件名（空不覆盖）
	if over.Components.Source != "" {
		out.Components.Source = over.Components.Source
	}
	if over.Components.Sink != "" {
		out.Components.Sink = over.Components.Sink
	}

	// Options（完整替换对应键）
	if len(over.Options.Source) > 0 {
		out.Options.Source = cloneRaw(over.Options.Source)
	}
	if len(over.Options.Sink) > 0 {
		out.Options.Sink = cloneRaw(over.Options.Sink)
	}
	return out
}

// EnvOverlay 从进程环境构建一个 Config 覆盖（键见结构体 env 标签）。
// 未设置的键保持零值（MinExamples 为 -1），以便 Merge 区分“未覆盖”。
func EnvOverlay() (Config, error) {
	over := Config{Merge: MergeConfig{MinExamples: -1}}
	if err := cleanenv.ReadEnv(&over); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	return over, nil
}

// Load 组合默认值、JSON 文件与环境变量：ENV > JSON > defaults。
// path 为空时尝试 DefaultFile；显式给出但不存在则报错。
func Load(path string) (Config, error) {
	cfg := Defaults()
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if _, err := os.Stat(path); err == nil {
		fileCfg, err := LoadJSON(path, nil)
		if err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
		cfg = Merge(cfg, fileCfg)
	} else if explicit {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	over, err := EnvOverlay()
	if err != nil {
		return Config{}, err
	}
	return Merge(cfg, over), nil
}

// MergeOptions 转换为分组/采样参数。
func (c Config) MergeOptions() merge.Options {
	return merge.Options{
		MaxExamples:     c.Merge.MaxExamples,
		MinExamples:     c.Merge.MinExamples,
		MaxTranslations: c.Merge.MaxTranslations,
		Seed:            c.Merge.Seed,
	}
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}
