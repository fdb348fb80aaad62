// Command ctxdict 从词对齐平行语料抽取短语对，合并采样后构建上下文词典。
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"ctxdict/internal/align"
	cfgpkg "ctxdict/internal/config"
	"ctxdict/internal/diag"
	"ctxdict/internal/dict"
	"ctxdict/internal/merge"
	"ctxdict/internal/pipeline"
	"ctxdict/internal/server"
	"ctxdict/pkg/contract"
	rfs "ctxdict/plugins/reader/filesystem"
	wfs "ctxdict/plugins/writer/filesystem"
)

var pipelineRun = pipeline.Run

// CLI 定义命令行结构（子命令 + 全局旗标）。
type CLI struct {
	Config   string `name:"config" short:"c" help:"配置文件路径（JSON）；缺省读取 ./ctxdict.json（若存在）" type:"path"`
	LogLevel string `name:"log-level" help:"日志级别 debug|info|warn|error（覆盖配置）"`
	NoStatus bool   `name:"no-status" help:"关闭 stderr 上的终端状态提示"`

	Extract    ExtractCmd    `cmd:"" help:"从五路平行语料抽取短语对"`
	Invert     InvertCmd     `cmd:"" help:"交换对齐文件中每个链接的两端"`
	Merge      MergeCmd      `cmd:"" help:"合并已排序的短语对并采样例句"`
	Dict       DictGroup     `cmd:"" help:"上下文词典操作"`
	InitConfig InitConfigCmd `cmd:"" name:"init-config" help:"在目录下生成 ctxdict.json 与 .env 模板（不覆盖）"`
}

// DictGroup: 词典子命令。
type DictGroup struct {
	Build    DictBuildCmd    `cmd:"" help:"由合并结果与原始语料构建词典"`
	Search   DictSearchCmd   `cmd:"" help:"精确检索源短语"`
	Complete DictCompleteCmd `cmd:"" help:"按前缀补全源短语"`
	Serve    DictServeCmd    `cmd:"" help:"以 HTTP JSON 接口提供目录下全部词典的检索与补全"`
}

// app: 一次运行的共享环境，作为 kong 绑定传入各子命令。
type app struct {
	ctx     context.Context
	start   time.Time
	corrID  string
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	logSink io.Writer // nil 时写轮转文件

	config   string
	logLevel string
	status   bool
	logger   *diag.Logger
}

// exitError 携带退出码（3 配置失败，1 运行失败）。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configErr(format string, err error) error {
	return &exitError{code: 3, err: fmt.Errorf(format+": %w", err)}
}

type exitSignal int

func main() {
	// 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr, nil)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, logSink io.Writer) (code int) {
	a := &app{
		ctx:     ctx,
		start:   time.Now(),
		corrID:  uuid.NewString(),
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
		logSink: logSink,
	}
	defer func() {
		if r := recover(); r != nil {
			if c, ok := r.(exitSignal); ok {
				code = int(c)
				return
			}
			panic(r)
		}
	}()

	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("ctxdict"),
		kong.Description("平行语料短语对抽取与上下文词典"),
		kong.Writers(stdout, stderr),
		kong.Exit(func(c int) { panic(exitSignal(c)) }),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	if err != nil {
		fmt.Fprintf(stderr, "命令行定义错误: %v\n", err)
		return 3
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "参数错误: %v\n", err)
		return 3
	}
	a.config = cli.Config
	a.logLevel = strings.TrimSpace(cli.LogLevel)
	a.status = !cli.NoStatus
	a.logger = a.newLogger("info")

	term := diag.NewTerminal(stderr, a.status)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)

	err = kctx.Run(a)
	a.logger.Info("cli", "metrics", diag.Snapshot().Flatten())
	if err == nil {
		return 0
	}
	code = 1
	var xe *exitError
	if errors.As(err, &xe) {
		code = xe.code
	}
	a.logger.Error("cli", string(diag.Classify(err)), "first error", &a.start)
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintf(stderr, "运行失败: %v\n", err)
	}
	return code
}

func (a *app) newLogger(level string) *diag.Logger {
	if a.logSink != nil {
		return diag.NewLoggerTo(a.corrID, level, a.logSink)
	}
	return diag.NewLogger(a.corrID, level)
}

// loadConfig: 默认值 < JSON < ENV < CLI；校验失败按配置错误返回。
func (a *app) loadConfig(over cfgpkg.Config) (cfgpkg.Config, error) {
	cfg, err := cfgpkg.Load(a.config)
	if err != nil {
		return cfg, configErr("配置加载失败", err)
	}
	if a.logLevel != "" {
		over.Logging.Level = a.logLevel
	}
	cfg = cfgpkg.Merge(cfg, over)
	if err := cfgpkg.Validate(cfg); err != nil {
		a.dumpConfig(cfg)
		return cfg, configErr("配置校验失败", err)
	}
	// 使用最终配置中的日志级别重建 logger
	a.logger = a.newLogger(cfg.Logging.Level)
	return cfg, nil
}

func (a *app) dumpConfig(c cfgpkg.Config) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintf(a.stderr, "有效配置:\n%s\n", b)
}

// unset 返回“全部未覆盖”的 Config（MinExamples 以 -1 表示未设置）。
func unset() cfgpkg.Config {
	return cfgpkg.Config{Merge: cfgpkg.MergeConfig{MinExamples: -1}}
}

// openInput 打开输入（"-" 为 STDIN，按扩展名透明解压）。
func (a *app) openInput(path string) (*rfs.Stream, error) {
	return rfs.New(nil).WithStdin(a.stdin).Open(path)
}

// createOutput 创建输出（"-" 为 STDOUT，文件按扩展名压缩并原子替换）。
func (a *app) createOutput(path string) (*wfs.File, error) {
	if path == "-" || path == "" {
		return wfs.NewStream(a.stdout, nil)
	}
	return wfs.Create(path, nil)
}

// ExtractCmd: 短语对抽取。
type ExtractCmd struct {
	Src    string `arg:"" help:"原始源语料（- 为 STDIN）"`
	Trg    string `arg:"" help:"原始目标语料"`
	SrcTok string `arg:"" name:"src-tok" help:"分词后的源语料"`
	TrgTok string `arg:"" name:"trg-tok" help:"分词后的目标语料"`
	Align  string `arg:"" help:"对齐文件（每行 i-j 链接）"`

	Out          string `short:"o" default:"-" help:"输出位置（- 为 STDOUT）"`
	Reverse      bool   `short:"r" help:"交换对齐链接两端"`
	MaxPhraseLen int    `short:"L" name:"max-phrase-len" help:"最大源短语长度（覆盖配置）"`
	Workers      int    `help:"抽取并发数（覆盖配置）"`
	IndexMode    string `name:"index-mode" help:"对齐索引模式 symmetric|compat（覆盖配置）"`
	Encoding     string `help:"语料编码（覆盖配置）"`
	Sink         string `help:"输出组件 tsv|sqlite（覆盖配置）"`
}

func (c *ExtractCmd) Run(a *app) error {
	over := unset()
	over.MaxPhraseLen = c.MaxPhraseLen
	over.Workers = c.Workers
	over.IndexMode = c.IndexMode
	over.Encoding = c.Encoding
	over.Reverse = c.Reverse
	over.Components.Sink = c.Sink
	cfg, err := a.loadConfig(over)
	if err != nil {
		return err
	}
	streams := contract.Streams{Src: c.Src, Trg: c.Trg, SrcTok: c.SrcTok, TrgTok: c.TrgTok, Align: c.Align}
	comp, set, err := cfgpkg.Assemble(a.ctx, cfg, streams, cfgpkg.Stdio{In: a.stdin, Out: a.stdout}, c.Out)
	if err != nil {
		return configErr("装配失败", err)
	}
	defer comp.Source.Close()
	set.Warnings = a.stderr

	a.logger.DebugStart("config", "effective", "", "", map[string]string{
		"max_phrase_len": fmt.Sprint(cfg.MaxPhraseLen),
		"index_mode":     cfg.IndexMode,
		"encoding":       cfg.Encoding,
		"reverse":        fmt.Sprint(cfg.Reverse),
		"workers":        fmt.Sprint(cfg.Workers),
		"batch_size":     fmt.Sprint(cfg.BatchSize),
		"source":         cfg.Components.Source,
		"sink":           cfg.Components.Sink,
		"out":            c.Out,
	})

	term := diag.GetTerminal()
	term.RunStart("extract", cfg.Workers)
	st, err := pipelineRun(a.ctx, comp, set, a.logger)
	term.RunFinish(err == nil, time.Since(a.start))
	if err != nil {
		return err
	}
	a.logger.Info("cli", "extract done", map[string]string{
		"segments": fmt.Sprint(st.Segments),
		"skipped":  fmt.Sprint(st.Skipped),
		"pairs":    fmt.Sprint(st.Pairs),
	})
	return nil
}

// InvertCmd: 对齐文件逐行取反。
type InvertCmd struct {
	In  string `short:"i" default:"-" help:"输入对齐文件（- 为 STDIN）"`
	Out string `short:"o" default:"-" help:"输出位置（- 为 STDOUT）"`
}

func (c *InvertCmd) Run(a *app) error {
	if _, err := a.loadConfig(unset()); err != nil {
		return err
	}
	t := a.logger.StartWithKV("align", "invert", c.In, "", nil)
	in, err := a.openInput(c.In)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := a.createOutput(c.Out)
	if err != nil {
		return err
	}
	var n int64
	for {
		line, ok, err := in.ReadLine()
		if err != nil {
			_ = out.Abort()
			return err
		}
		if !ok {
			break
		}
		n++
		if n%4096 == 0 {
			if cerr := a.ctx.Err(); cerr != nil {
				_ = out.Abort()
				return cerr
			}
		}
		if _, err := out.WriteString(align.InvertLine(line) + "\n"); err != nil {
			_ = out.Abort()
			return err
		}
	}
	if err := out.Commit(); err != nil {
		return err
	}
	t.Finish("invert", n)
	return nil
}

// MergeCmd: 分组与采样。
type MergeCmd struct {
	In              string `short:"i" default:"-" help:"已排序的短语对（- 为 STDIN）"`
	Out             string `short:"o" default:"-" help:"输出位置（- 为 STDOUT）"`
	Seed            int64  `default:"-1" help:"采样随机种子（覆盖配置；<0 表示未设置）"`
	MaxExamples     int    `name:"max-examples" help:"每个译文保留的最多例句数"`
	MinExamples     int    `name:"min-examples" default:"-1" help:"译文入选所需的最少例句数（<0 表示未设置）"`
	MaxTranslations int    `name:"max-translations" help:"每个短语保留的最多译文数"`
}

func (c *MergeCmd) Run(a *app) error {
	over := unset()
	if c.Seed >= 0 {
		over.Merge.Seed = uint64(c.Seed)
	}
	over.Merge.MaxExamples = c.MaxExamples
	over.Merge.MinExamples = c.MinExamples
	over.Merge.MaxTranslations = c.MaxTranslations
	cfg, err := a.loadConfig(over)
	if err != nil {
		return err
	}
	opts := cfg.MergeOptions()
	if c.Seed >= 0 {
		opts.Seed = uint64(c.Seed)
	}
	term := diag.GetTerminal()
	term.RunStart("merge", 1)
	t := a.logger.StartWithKV("merge", "run", c.In, "", map[string]string{"seed": fmt.Sprint(opts.Seed)})
	in, err := a.openInput(c.In)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := a.createOutput(c.Out)
	if err != nil {
		return err
	}
	st, err := merge.Run(a.ctx, in, out, opts)
	if err != nil {
		_ = out.Abort()
		term.RunFinish(false, time.Since(a.start))
		return err
	}
	if err := out.Commit(); err != nil {
		term.RunFinish(false, time.Since(a.start))
		return err
	}
	t.FinishKV("merge", st.Entries, map[string]string{
		"records": fmt.Sprint(st.Records),
		"phrases": fmt.Sprint(st.Phrases),
		"skipped": fmt.Sprint(st.Skipped),
	})
	term.RunFinish(true, time.Since(a.start))
	return nil
}

// openDict 解析词典路径（CLI 优先，其次配置 dict.db）。
func (a *app) openDict(db string, over cfgpkg.Config) (*dict.Store, cfgpkg.Config, error) {
	cfg, err := a.loadConfig(over)
	if err != nil {
		return nil, cfg, err
	}
	if db == "" {
		db = cfg.Dict.DB
	}
	if db == "" {
		return nil, cfg, configErr("词典路径缺失", fmt.Errorf("%w: --db or dict.db required", contract.ErrInvalidInput))
	}
	s, err := dict.Open(a.ctx, db)
	return s, cfg, err
}

// DictBuildCmd: 构建词典。
type DictBuildCmd struct {
	DB       string `name:"db" help:"词典 SQLite 文件（覆盖配置 dict.db）"`
	Src      string `required:"" help:"原始源语料"`
	Trg      string `required:"" help:"原始目标语料"`
	In       string `short:"i" default:"-" help:"合并结果（- 为 STDIN）"`
	Encoding string `help:"语料与合并结果的编码（覆盖配置 dict.encoding）"`
}

func (c *DictBuildCmd) Run(a *app) error {
	over := unset()
	over.Dict.Encoding = c.Encoding
	s, cfg, err := a.openDict(c.DB, over)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.SetEncoding(cfg.DictEncoding()); err != nil {
		return configErr("词典编码无效", err)
	}
	t := a.logger.StartWithKV("dict", "build", c.In, "", map[string]string{"encoding": s.Encoding()})
	var files []*rfs.Stream
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()
	for _, p := range []string{c.In, c.Src, c.Trg} {
		f, err := a.openInput(p)
		if err != nil {
			return err
		}
		files = append(files, f)
	}
	st, err := s.Build(a.ctx, files[0], files[1], files[2])
	if err != nil {
		return err
	}
	t.FinishKV("build", st.Phrases, map[string]string{
		"src_sentences": fmt.Sprint(st.SrcSentences),
		"trg_sentences": fmt.Sprint(st.TrgSentences),
		"translations":  fmt.Sprint(st.Translations),
		"examples":      fmt.Sprint(st.Examples),
	})
	return nil
}

// DictSearchCmd: 精确检索。
type DictSearchCmd struct {
	DB    string `name:"db" help:"词典 SQLite 文件（覆盖配置 dict.db）"`
	Query string `arg:"" help:"源短语"`
}

func (c *DictSearchCmd) Run(a *app) error {
	s, _, err := a.openDict(c.DB, unset())
	if err != nil {
		return err
	}
	defer s.Close()
	res, err := s.Search(a.ctx, c.Query)
	if err != nil {
		return err
	}
	if res == nil {
		res = []dict.Translation{}
	}
	return a.printJSON(res)
}

// DictCompleteCmd: 前缀补全。
type DictCompleteCmd struct {
	DB     string `name:"db" help:"词典 SQLite 文件（覆盖配置 dict.db）"`
	Limit  int    `help:"返回条数（覆盖配置 dict.autocomplete_limit）"`
	Prefix string `arg:"" help:"短语前缀"`
}

func (c *DictCompleteCmd) Run(a *app) error {
	s, cfg, err := a.openDict(c.DB, unset())
	if err != nil {
		return err
	}
	defer s.Close()
	limit := c.Limit
	if limit <= 0 {
		limit = cfg.Dict.AutocompleteLimit
	}
	res, err := s.Autocomplete(a.ctx, c.Prefix, limit)
	if err != nil {
		return err
	}
	if res == nil {
		res = []string{}
	}
	return a.printJSON(res)
}

// DictServeCmd: 词典查询服务（/rest/list_dictionaries, /rest/search, /rest/autocomplete）。
type DictServeCmd struct {
	Models string `help:"词典目录，加载其中全部 *.db（覆盖配置 dict.models）" type:"path"`
	Addr   string `help:"监听地址（覆盖配置 dict.addr）"`
	Limit  int    `help:"补全返回条数（覆盖配置 dict.autocomplete_limit）"`
}

func (c *DictServeCmd) Run(a *app) error {
	over := unset()
	over.Dict.Models = c.Models
	over.Dict.Addr = c.Addr
	over.Dict.AutocompleteLimit = c.Limit
	cfg, err := a.loadConfig(over)
	if err != nil {
		return err
	}
	if cfg.Dict.Models == "" {
		return configErr("词典目录缺失", fmt.Errorf("%w: --models or dict.models required", contract.ErrInvalidInput))
	}
	dicts, err := server.OpenDir(a.ctx, cfg.Dict.Models)
	if err != nil {
		return configErr("词典目录加载失败", err)
	}
	srv := server.New(dicts, cfg.Dict.AutocompleteLimit, a.logger)
	defer srv.Close()
	return srv.Serve(a.ctx, cfg.Dict.Addr)
}

func (a *app) printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.stdout, "%s\n", b)
	return err
}

// InitConfigCmd: 生成默认配置与 .env 模板。
type InitConfigCmd struct {
	Dir string `arg:"" optional:"" default:"." help:"目标目录" type:"path"`
}

func (c *InitConfigCmd) Run(a *app) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return configErr("生成默认配置失败", err)
	}
	cfgPath := filepath.Join(c.Dir, cfgpkg.DefaultFile)
	b, err := json.MarshalIndent(cfgpkg.DefaultTemplateConfig(), "", "  ")
	if err != nil {
		return configErr("生成默认配置失败", err)
	}
	if err := writeNew(cfgPath, append(b, '\n')); err != nil {
		return configErr("生成默认配置失败", err)
	}
	env, err := cfgpkg.EnvTemplate()
	if err != nil {
		return configErr("生成 .env 模板失败", err)
	}
	if err := writeNew(filepath.Join(c.Dir, ".env"), []byte(env)); err != nil {
		fmt.Fprintf(a.stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
	}
	return nil
}

// writeNew 仅创建新文件；已存在时跳过（不覆盖，不合并）。
func writeNew(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
