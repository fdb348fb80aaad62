package dict

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	_ "modernc.org/sqlite"

	"ctxdict/internal/charset"
	"ctxdict/internal/merge"
	"ctxdict/pkg/contract"
)

// DefaultAutocompleteLimit: 自动补全默认返回条数。
const DefaultAutocompleteLimit = 10

const (
	sideSrc = 0
	sideTrg = 1
)

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS sentences (
	side INTEGER NOT NULL,
	id   INTEGER NOT NULL,
	text BLOB    NOT NULL,
	PRIMARY KEY (side, id)
);
CREATE TABLE IF NOT EXISTS phrases (
	phrase TEXT PRIMARY KEY,
	weight INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS phrases_weight ON phrases (weight DESC, phrase);
CREATE TABLE IF NOT EXISTS translations (
	phrase      TEXT    NOT NULL,
	rank        INTEGER NOT NULL,
	translation TEXT    NOT NULL,
	count       INTEGER NOT NULL,
	PRIMARY KEY (phrase, rank)
);
CREATE TABLE IF NOT EXISTS examples (
	phrase    TEXT    NOT NULL,
	rank      INTEGER NOT NULL,
	seq       INTEGER NOT NULL,
	segment   INTEGER NOT NULL,
	src_start INTEGER NOT NULL,
	src_end   INTEGER NOT NULL,
	trg_start INTEGER NOT NULL,
	trg_end   INTEGER NOT NULL,
	PRIMARY KEY (phrase, rank, seq)
);
`

// Store: 上下文词典（SQLite 单文件）。
// 原句按语料原编码的字节入库（字节区间以此计数）；短语与译文解码为 UTF-8 入库，
// 检索时按构建时记录的编码解码上下文。
type Store struct {
	db *sql.DB
	cs charset.Charset
}

// Open 打开（必要时创建）词典文件并确保表结构存在。
// 已构建的词典沿用其记录的编码；新库默认 UTF-8。
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open dictionary %s: %w", path, err)
	}
	// 单连接：保证事务与查询串行，避免 SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init dictionary schema %s: %w", path, err)
	}
	s := &Store{db: db, cs: charset.UTF8}
	var name string
	err = db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = 'encoding'").Scan(&name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		_ = db.Close()
		return nil, fmt.Errorf("read dictionary meta %s: %w", path, err)
	default:
		if err := s.SetEncoding(name); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("dictionary %s: %w", path, err)
		}
	}
	return s, nil
}

// SetEncoding 设置下一次 Build 所用的语料编码。
func (s *Store) SetEncoding(name string) error {
	cs, err := charset.Lookup(name)
	if err != nil {
		return err
	}
	s.cs = cs
	return nil
}

// Encoding 返回词典的语料编码名。
func (s *Store) Encoding() string { return s.cs.Name() }

// Close 关闭底层连接。
func (s *Store) Close() error { return s.db.Close() }

// BuildStats: 构建计数。
type BuildStats struct {
	SrcSentences int64
	TrgSentences int64
	Phrases      int64
	Translations int64
	Examples     int64
}

// Build 以单个事务重建词典：两侧原始语料逐行入库，合并条目逐行入库。
// 合并条目须按源短语严格递增（字节序），否则返回 ErrUnsorted。
func (s *Store) Build(ctx context.Context, merged, src, trg io.Reader) (BuildStats, error) {
	var st BuildStats
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return st, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range []string{"meta", "sentences", "phrases", "translations", "examples"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return st, err
		}
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO meta (key, value) VALUES ('encoding', ?)", s.cs.Name()); err != nil {
		return st, err
	}
	if st.SrcSentences, err = loadSentences(ctx, tx, sideSrc, src); err != nil {
		return st, fmt.Errorf("load source corpus: %w", err)
	}
	if st.TrgSentences, err = loadSentences(ctx, tx, sideTrg, trg); err != nil {
		return st, fmt.Errorf("load target corpus: %w", err)
	}
	if err := loadEntries(ctx, tx, s.cs, merged, &st); err != nil {
		return st, err
	}
	if err := tx.Commit(); err != nil {
		return st, err
	}
	return st, nil
}

func loadSentences(ctx context.Context, tx *sql.Tx, side int, r io.Reader) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO sentences (side, id, text) VALUES (?, ?, ?)")
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	var id int64
	err = eachLine(r, func(line string) error {
		if _, err := stmt.ExecContext(ctx, side, id, []byte(line)); err != nil {
			return err
		}
		id++
		return nil
	})
	return id, err
}

// loadEntries: 有序性按原编码字节检查，入库前解码为 UTF-8。
func loadEntries(ctx context.Context, tx *sql.Tx, cs charset.Charset, r io.Reader, st *BuildStats) error {
	insPhrase, err := tx.PrepareContext(ctx, "INSERT INTO phrases (phrase, weight) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer insPhrase.Close()
	insTrans, err := tx.PrepareContext(ctx, "INSERT INTO translations (phrase, rank, translation, count) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer insTrans.Close()
	insEx, err := tx.PrepareContext(ctx, `INSERT INTO examples
		(phrase, rank, seq, segment, src_start, src_end, trg_start, trg_end)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insEx.Close()

	var prev string
	var lineNo int64
	return eachLine(r, func(line string) error {
		lineNo++
		e, err := merge.ParseEntry(line)
		if err != nil {
			return fmt.Errorf("merged line %d: %w", lineNo, err)
		}
		if lineNo > 1 && e.Phrase <= prev {
			return fmt.Errorf("merged line %d: %w: phrase %q after %q%s", lineNo, contract.ErrUnsorted, e.Phrase, prev, merge.SortHint)
		}
		prev = e.Phrase
		phrase := cs.Decode([]byte(e.Phrase))
		if _, err := insPhrase.ExecContext(ctx, phrase, e.Total); err != nil {
			return err
		}
		st.Phrases++
		for rank, t := range e.Translations {
			if _, err := insTrans.ExecContext(ctx, phrase, rank, cs.Decode([]byte(t.Phrase)), t.Count); err != nil {
				return err
			}
			st.Translations++
			for seq, ex := range t.Examples {
				if _, err := insEx.ExecContext(ctx, phrase, rank, seq, int64(ex.Segment),
					ex.SrcStart, ex.SrcEnd, ex.TrgStart, ex.TrgEnd); err != nil {
					return err
				}
				st.Examples++
			}
		}
		return nil
	})
}

// eachLine 逐行回调（去除行尾 LF/CRLF）；不受行长限制。
func eachLine(r io.Reader, fn func(string) error) error {
	br := bufio.NewReaderSize(r, 1<<16)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
			if ferr := fn(line); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Example: 一次出现的上下文（左侧、短语、右侧），按字节区间从原句切出。
type Example struct {
	SrcLeft   string `json:"src_left"`
	SrcPhrase string `json:"src_phrase"`
	SrcRight  string `json:"src_right"`
	TrgLeft   string `json:"trg_left"`
	TrgPhrase string `json:"trg_phrase"`
	TrgRight  string `json:"trg_right"`
}

// Translation: 检索结果中的一个翻译。
type Translation struct {
	Translation string    `json:"translation"`
	Count       int       `json:"count"`
	Frequency   float64   `json:"frequency"`
	Examples    []Example `json:"examples"`
}

// Search 精确检索源短语；未收录返回空切片。
// Frequency = 该翻译计数 / 全部翻译计数之和（含 $OTHERS$）。
func (s *Store) Search(ctx context.Context, query string) ([]Translation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT rank, translation, count FROM translations WHERE phrase = ? ORDER BY rank", query)
	if err != nil {
		return nil, err
	}
	type ranked struct {
		rank int
		t    Translation
	}
	var list []ranked
	total := 0
	for rows.Next() {
		var r ranked
		if err := rows.Scan(&r.rank, &r.t.Translation, &r.t.Count); err != nil {
			rows.Close()
			return nil, err
		}
		total += r.t.Count
		list = append(list, r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Translation, 0, len(list))
	for _, r := range list {
		if total > 0 {
			r.t.Frequency = float64(r.t.Count) / float64(total)
		}
		r.t.Examples, err = s.examples(ctx, query, r.rank)
		if err != nil {
			return nil, err
		}
		out = append(out, r.t)
	}
	return out, nil
}

func (s *Store) examples(ctx context.Context, phrase string, rank int) ([]Example, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT segment, src_start, src_end, trg_start, trg_end
		FROM examples WHERE phrase = ? AND rank = ? ORDER BY seq`, phrase, rank)
	if err != nil {
		return nil, err
	}
	var raw []contract.Example
	for rows.Next() {
		var e contract.Example
		var seg int64
		if err := rows.Scan(&seg, &e.SrcStart, &e.SrcEnd, &e.TrgStart, &e.TrgEnd); err != nil {
			rows.Close()
			return nil, err
		}
		e.Segment = contract.SegIndex(seg)
		raw = append(raw, e)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Example, 0, len(raw))
	for _, e := range raw {
		src, err := s.sentence(ctx, sideSrc, e.Segment)
		if err != nil {
			return nil, err
		}
		trg, err := s.sentence(ctx, sideTrg, e.Segment)
		if err != nil {
			return nil, err
		}
		var x Example
		if x.SrcLeft, x.SrcPhrase, x.SrcRight, err = slice3(s.cs, src, e.SrcStart, e.SrcEnd); err != nil {
			return nil, fmt.Errorf("source segment %d: %w", e.Segment, err)
		}
		if x.TrgLeft, x.TrgPhrase, x.TrgRight, err = slice3(s.cs, trg, e.TrgStart, e.TrgEnd); err != nil {
			return nil, fmt.Errorf("target segment %d: %w", e.Segment, err)
		}
		out = append(out, x)
	}
	return out, nil
}

func (s *Store) sentence(ctx context.Context, side int, id contract.SegIndex) ([]byte, error) {
	var text []byte
	err := s.db.QueryRowContext(ctx, "SELECT text FROM sentences WHERE side = ? AND id = ?", side, int64(id)).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no sentence for segment %d", contract.ErrInvariantViolation, id)
	}
	return text, err
}

// slice3 将句子按 [start, end) 切为左上下文、短语、右上下文，并各自解码为 UTF-8。
func slice3(cs charset.Charset, b []byte, start, end int) (string, string, string, error) {
	if start < 0 || start > end || end > len(b) {
		return "", "", "", fmt.Errorf("%w: span %d:%d outside sentence of %d bytes", contract.ErrInvariantViolation, start, end, len(b))
	}
	return cs.Decode(b[:start]), cs.Decode(b[start:end]), cs.Decode(b[end:]), nil
}

// Autocomplete 返回以 prefix 开头的短语，按权重降序、短语升序，最多 limit 个。
// limit <= 0 时取默认值。
func (s *Store) Autocomplete(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultAutocompleteLimit
	}
	var (
		rows *sql.Rows
		err  error
	)
	if upper, ok := prefixUpperBound(prefix); ok {
		rows, err = s.db.QueryContext(ctx, `SELECT phrase FROM phrases
			WHERE phrase >= ? AND phrase < ? ORDER BY weight DESC, phrase LIMIT ?`, prefix, upper, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT phrase FROM phrases
			WHERE phrase >= ? ORDER BY weight DESC, phrase LIMIT ?`, prefix, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// prefixUpperBound 返回字节序下大于所有以 prefix 开头的串的最小串。
// prefix 为空或全为 0xFF 时无上界。
func prefixUpperBound(prefix string) (string, bool) {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xFF {
			b[i]++
			return string(b[:i+1]), true
		}
	}
	return "", false
}
