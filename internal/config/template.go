package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 顺序执行、对称索引、UTF-8；
// - 输出为 tsv（原子替换，按扩展名压缩）；
// - 选项给出全部键与中性默认值。
func DefaultTemplateConfig() Config {
	cfg := Defaults()
	cfg.Dict.DB = "dict.db"
	// Options：包含所有键（值可为空/默认），确保键存在。
	cfg.Options.Source = json.RawMessage(`{
  "buf_size": 65536,
  "compress": ""
}`)
	cfg.Options.Sink = json.RawMessage(`{
  "atomic": true,
  "perm_file": 0,
  "perm_dir": 0,
  "buf_size": 65536,
  "compress": ""
}`)
	return cfg
}

// EnvTemplate 生成 .env 模板：每个键注释掉并附说明与当前默认值。
func EnvTemplate() (string, error) {
	cfg := DefaultTemplateConfig()
	desc, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return "", fmt.Errorf("describe env: %w", err)
	}
	var b strings.Builder
	b.WriteString("# ctxdict 环境变量（优先级：CLI > ENV > ctxdict.json > 默认值）\n")
	for _, line := range strings.Split(strings.TrimRight(desc, "\n"), "\n") {
		b.WriteString("# ")
		b.WriteString(strings.TrimSpace(line))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	for _, kv := range envDefaults(cfg) {
		fmt.Fprintf(&b, "# %s=%s\n", kv[0], kv[1])
	}
	return b.String(), nil
}

// envDefaults 列出模板中的键及其默认值（顺序固定）。
func envDefaults(c Config) [][2]string {
	return [][2]string{
		{"CTXDICT_MAX_PHRASE_LEN", fmt.Sprint(c.MaxPhraseLen)},
		{"CTXDICT_INDEX_MODE", c.IndexMode},
		{"CTXDICT_ENCODING", c.Encoding},
		{"CTXDICT_REVERSE", fmt.Sprint(c.Reverse)},
		{"CTXDICT_WORKERS", fmt.Sprint(c.Workers)},
		{"CTXDICT_BATCH_SIZE", fmt.Sprint(c.BatchSize)},
		{"CTXDICT_LOG_LEVEL", c.Logging.Level},
		{"CTXDICT_MERGE_MAX_EXAMPLES", fmt.Sprint(c.Merge.MaxExamples)},
		{"CTXDICT_MERGE_MIN_EXAMPLES", fmt.Sprint(c.Merge.MinExamples)},
		{"CTXDICT_MERGE_MAX_TRANSLATIONS", fmt.Sprint(c.Merge.MaxTranslations)},
		{"CTXDICT_MERGE_SEED", fmt.Sprint(c.Merge.Seed)},
		{"CTXDICT_DICT_DB", c.Dict.DB},
		{"CTXDICT_DICT_AUTOCOMPLETE_LIMIT", fmt.Sprint(c.Dict.AutocompleteLimit)},
		{"CTXDICT_DICT_ENCODING", c.Dict.Encoding},
		{"CTXDICT_DICT_MODELS", c.Dict.Models},
		{"CTXDICT_DICT_ADDR", c.Dict.Addr},
		{"CTXDICT_COMPONENTS_SOURCE", c.Components.Source},
		{"CTXDICT_COMPONENTS_SINK", c.Components.Sink},
	}
}
