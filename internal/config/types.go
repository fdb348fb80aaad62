package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON 使用 snake_case；未知字段在解析期失败。ENV 键统一前缀 CTXDICT_。
type Config struct {
	MaxPhraseLen int    `json:"max_phrase_len" env:"CTXDICT_MAX_PHRASE_LEN" env-description:"最大源短语长度（词元数）"`
	IndexMode    string `json:"index_mode" env:"CTXDICT_INDEX_MODE" env-description:"对齐索引模式 symmetric|compat"`
	Encoding     string `json:"encoding" env:"CTXDICT_ENCODING" env-description:"语料编码（WHATWG 名称）"`
	// Reverse: 仅 true 具有覆盖语义（false 视为未设置）
	Reverse   bool    `json:"reverse" env:"CTXDICT_REVERSE" env-description:"交换对齐链接两端"`
	Workers   int     `json:"workers" env:"CTXDICT_WORKERS" env-description:"抽取并发数（1 为顺序执行）"`
	BatchSize int     `json:"batch_size" env:"CTXDICT_BATCH_SIZE" env-description:"并行模式下每批段数"`
	Logging   Logging `json:"logging"`

	Merge MergeConfig `json:"merge"`
	Dict  DictConfig  `json:"dict"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`
	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Logging: 仅保留日志等级可配置；输出路径与轮转策略为固定默认。
type Logging struct {
	Level string `json:"level" env:"CTXDICT_LOG_LEVEL" env-description:"日志级别 debug|info|warn|error"`
}

// MergeConfig: 分组/采样参数。
// MinExamples 的 0 有语义（保留所有译文），以 -1 表示“未覆盖”。
type MergeConfig struct {
	MaxExamples     int    `json:"max_examples" env:"CTXDICT_MERGE_MAX_EXAMPLES" env-description:"每个译文保留的最多例句数"`
	MinExamples     int    `json:"min_examples" env:"CTXDICT_MERGE_MIN_EXAMPLES" env-description:"译文被保留所需的最少例句数"`
	MaxTranslations int    `json:"max_translations" env:"CTXDICT_MERGE_MAX_TRANSLATIONS" env-description:"每个短语保留的最多译文数"`
	Seed            uint64 `json:"seed" env:"CTXDICT_MERGE_SEED" env-description:"采样随机种子"`
}

// DictConfig: 词典库位置、语料编码与查询服务参数。
type DictConfig struct {
	DB                string `json:"db" env:"CTXDICT_DICT_DB" env-description:"词典 SQLite 文件"`
	AutocompleteLimit int    `json:"autocomplete_limit" env:"CTXDICT_DICT_AUTOCOMPLETE_LIMIT" env-description:"自动补全返回条数"`
	// Encoding: 构建词典时原始语料与合并结果的编码；空则沿用顶层 encoding。
	Encoding string `json:"encoding" env:"CTXDICT_DICT_ENCODING" env-description:"词典语料编码（空则同 encoding）"`
	Models   string `json:"models" env:"CTXDICT_DICT_MODELS" env-description:"查询服务加载的词典目录（*.db）"`
	Addr     string `json:"addr" env:"CTXDICT_DICT_ADDR" env-description:"查询服务监听地址"`
}

// DictEncoding 返回构建词典所用的编码名。
func (c Config) DictEncoding() string {
	if c.Dict.Encoding != "" {
		return c.Dict.Encoding
	}
	return c.Encoding
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Source string `json:"source" env:"CTXDICT_COMPONENTS_SOURCE" env-description:"输入组件名"`
	Sink   string `json:"sink" env:"CTXDICT_COMPONENTS_SINK" env-description:"输出组件名 tsv|sqlite"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Source json.RawMessage `json:"source"`
	Sink   json.RawMessage `json:"sink"`
}
