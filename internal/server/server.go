// Package server 以 HTTP JSON 接口提供一个目录下全部词典的检索与补全。
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"ctxdict/internal/diag"
	"ctxdict/internal/dict"
	"ctxdict/pkg/contract"
)

// Ext: 词典文件扩展名；词典 ID 为去掉扩展名的文件名。
const Ext = ".db"

const shutdownTimeout = 5 * time.Second

// Server 持有按 ID 索引的词典，只读共享。
type Server struct {
	dicts  map[string]*dict.Store
	limit  int
	logger *diag.Logger
}

// OpenDir 打开 dir 下全部 *.db 词典；目录中没有词典时返回 ErrInvalidInput。
func OpenDir(ctx context.Context, dir string) (map[string]*dict.Store, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: models directory: %v", contract.ErrInvalidInput, err)
	}
	dicts := map[string]*dict.Store{}
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, Ext) || len(name) == len(Ext) {
			continue
		}
		s, err := dict.Open(ctx, filepath.Join(dir, name))
		if err != nil {
			closeAll(dicts)
			return nil, err
		}
		dicts[strings.TrimSuffix(name, Ext)] = s
	}
	if len(dicts) == 0 {
		return nil, fmt.Errorf("%w: no *%s dictionaries in %s", contract.ErrInvalidInput, Ext, dir)
	}
	return dicts, nil
}

func closeAll(dicts map[string]*dict.Store) {
	for _, s := range dicts {
		_ = s.Close()
	}
}

// New 构造服务；limit <= 0 时补全取默认条数。logger 可为 nil。
func New(dicts map[string]*dict.Store, limit int, logger *diag.Logger) *Server {
	if limit <= 0 {
		limit = dict.DefaultAutocompleteLimit
	}
	return &Server{dicts: dicts, limit: limit, logger: logger}
}

// Close 关闭全部词典。
func (s *Server) Close() error {
	var errs []error
	for _, d := range s.dicts {
		errs = append(errs, d.Close())
	}
	return errors.Join(errs...)
}

// IDs 返回按字典序排列的词典 ID。
func (s *Server) IDs() []string {
	ids := make([]string, 0, len(s.dicts))
	for id := range s.dicts {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Handler 返回路由：
//
//	GET /rest/list_dictionaries
//	GET /rest/search?q=&dict=
//	GET /rest/autocomplete?q=&dict=
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rest/list_dictionaries", s.list)
	mux.HandleFunc("GET /rest/search", s.search)
	mux.HandleFunc("GET /rest/autocomplete", s.autocomplete)
	return s.withCorrID(mux)
}

// withCorrID 在每个响应上附带本次运行的关联 ID，便于与日志对照。
func (s *Server) withCorrID(next http.Handler) http.Handler {
	id := s.logger.CorrID()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id != "" {
			w.Header().Set("X-Correlation-ID", id)
		}
		next.ServeHTTP(w, r)
	})
}

// Serve 在 addr 上监听，直到 ctx 取消后优雅关闭；正常关闭返回 nil。
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.logger.Info("server", "listening", map[string]string{
		"addr":         ln.Addr().String(),
		"dictionaries": strings.Join(s.IDs(), ","),
	})
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListResponse: list_dictionaries 的响应体。
type ListResponse struct {
	Dictionaries []string `json:"dictionaries"`
}

// SearchResponse: search 的响应体。
type SearchResponse struct {
	Translations []dict.Translation `json:"translations"`
}

// AutocompleteResponse: autocomplete 的响应体。
type AutocompleteResponse struct {
	Suggestions []string `json:"suggestions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	diag.IncOp("server", "list", "success")
	writeJSON(w, http.StatusOK, ListResponse{Dictionaries: s.IDs()})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	d, id, q, ok := s.resolve(w, r, "search")
	if !ok {
		return
	}
	res, err := d.Search(r.Context(), q)
	if err != nil {
		s.fail(w, "search", id, err)
		return
	}
	if res == nil {
		res = []dict.Translation{}
	}
	diag.IncOp("server", "search", "success")
	writeJSON(w, http.StatusOK, SearchResponse{Translations: res})
}

func (s *Server) autocomplete(w http.ResponseWriter, r *http.Request) {
	d, id, q, ok := s.resolve(w, r, "autocomplete")
	if !ok {
		return
	}
	res, err := d.Autocomplete(r.Context(), q, s.limit)
	if err != nil {
		s.fail(w, "autocomplete", id, err)
		return
	}
	diag.IncOp("server", "autocomplete", "success")
	writeJSON(w, http.StatusOK, AutocompleteResponse{Suggestions: res})
}

// resolve 取出 q 与 dict 参数；缺 q 为 400，未知词典为 404。
func (s *Server) resolve(w http.ResponseWriter, r *http.Request, op string) (*dict.Store, string, string, bool) {
	params := r.URL.Query()
	id := params.Get("dict")
	if !params.Has("q") {
		diag.IncOp("server", op, "error")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing query parameter q"})
		return nil, id, "", false
	}
	q := params.Get("q")
	d, found := s.dicts[id]
	if !found {
		diag.IncOp("server", op, "error")
		writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("unknown dictionary %q", id)})
		return nil, id, q, false
	}
	s.logger.Info("server", op, map[string]string{"dict": id, "q": q})
	return d, id, q, true
}

func (s *Server) fail(w http.ResponseWriter, op, id string, err error) {
	diag.IncOp("server", op, "error")
	s.logger.ErrorWithKV("server", string(diag.Classify(err)), err.Error(), nil, "", "", map[string]string{"dict": id})
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
