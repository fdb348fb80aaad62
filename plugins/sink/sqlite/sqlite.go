package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"ctxdict/pkg/contract"
)

// Options: SQLite 短语对出口选项。
type Options struct {
	// Truncate: 写入前清空既有短语对（默认追加）
	Truncate bool `json:"truncate"`
}

const schema = `
CREATE TABLE IF NOT EXISTS phrase_pairs (
	segment   INTEGER NOT NULL,
	src       TEXT    NOT NULL,
	trg       TEXT    NOT NULL,
	src_start INTEGER NOT NULL,
	src_end   INTEGER NOT NULL,
	trg_start INTEGER NOT NULL,
	trg_end   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS phrase_pairs_src ON phrase_pairs (src, trg);
`

const insertPair = `INSERT INTO phrase_pairs
	(segment, src, trg, src_start, src_end, trg_start, trg_end)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

// Sink 在单个事务内追加短语对；Close 提交，Abort 回滚。
type Sink struct {
	db   *sql.DB
	tx   *sql.Tx
	stmt *sql.Stmt
	done bool
}

var _ contract.PairSink = (*Sink)(nil)

// New 打开（必要时创建）数据库文件并开启写事务。
func New(ctx context.Context, path string, opts *Options) (*Sink, error) {
	if strings.TrimSpace(path) == "" || path == "-" {
		return nil, fmt.Errorf("%w: sqlite sink needs a database file path", contract.ErrInvalidInput)
	}
	if opts == nil {
		opts = &Options{}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init phrase_pairs schema: %w", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	fail := func(err error) (*Sink, error) {
		_ = tx.Rollback()
		_ = db.Close()
		return nil, err
	}
	if opts.Truncate {
		if _, err := tx.ExecContext(ctx, "DELETE FROM phrase_pairs"); err != nil {
			return fail(err)
		}
	}
	stmt, err := tx.PrepareContext(ctx, insertPair)
	if err != nil {
		return fail(err)
	}
	return &Sink{db: db, tx: tx, stmt: stmt}, nil
}

func (s *Sink) Put(ctx context.Context, p contract.PhrasePair) error {
	if s.done {
		return sql.ErrTxDone
	}
	_, err := s.stmt.ExecContext(ctx, int64(p.Segment),
		strings.Join(p.Src, " "), strings.Join(p.Trg, " "),
		p.SrcBytes.Start, p.SrcBytes.End, p.TrgBytes.Start, p.TrgBytes.End)
	return err
}

// Close 提交事务并关闭连接。
func (s *Sink) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	err := s.stmt.Close()
	if cerr := s.tx.Commit(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return errors.Join(err, s.db.Close())
}

// Abort 回滚事务并关闭连接。
func (s *Sink) Abort() error {
	if s.done {
		return nil
	}
	s.done = true
	_ = s.stmt.Close()
	err := s.tx.Rollback()
	return errors.Join(err, s.db.Close())
}
