// Package sheetfake is an in-memory stand-in for the Apps Script web app.
// It speaks the same query-string protocol so the client, the CLI and tests
// can run without a spreadsheet.
package sheetfake

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"course-workbench/internal/domain"
	"course-workbench/internal/providers/sheet"
)

// Path is where the fake mounts the script, mirroring a deployment URL.
const Path = "/exec"

type Server struct {
	mu     sync.Mutex
	rows   map[domain.Stage][]map[string]any
	tools  any
	down   bool
	calls  map[string]int
	logger *zap.Logger
	newID  func() string
	now    func() time.Time
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIDs replaces the id generator used for inserts.
func WithIDs(next func() string) Option {
	return func(s *Server) { s.newID = next }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func New(opts ...Option) *Server {
	s := &Server{
		rows:   make(map[domain.Stage][]map[string]any, len(domain.Stages)),
		calls:  map[string]int{},
		logger: zap.NewNop(),
		newID: func() string {
			return "C" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
		},
		now: time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetTools sets the body served for format=tools. Strings and byte slices are
// written as-is; anything else is JSON encoded.
func (s *Server) SetTools(payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools = payload
}

// SetDown makes every request fail with 503 until cleared.
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// Calls reports how many requests a mode has received.
func (s *Server) Calls(mode string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[mode]
}

// Seed stores a record directly, bypassing the protocol.
func (s *Server) Seed(stage domain.Stage, rec domain.CourseRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(stage, toRow(sheet.FromRecord(rec)))
}

// Handler returns the router serving Path.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))
	r.Use(s.logRequests)
	r.Get(Path, s.serve)
	r.Post(Path, s.serve)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("sheet request",
			zap.String("method", r.Method),
			zap.String("mode", r.URL.Query().Get("mode")),
			zap.String("state", r.URL.Query().Get("state")),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
		)
	})
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("mode")
	if mode == "" && q.Get("format") == "tools" {
		mode = "tools"
	}

	s.mu.Lock()
	s.calls[mode]++
	down := s.down
	s.mu.Unlock()
	if down {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	switch mode {
	case "ping":
		writeJSON(w, map[string]any{"ok": true, "time": s.now().UTC().Format(time.RFC3339)})
	case "tools":
		s.serveTools(w)
	case "list":
		s.list(w, q)
	case "get":
		s.get(w, q)
	case "upsert":
		s.upsert(w, r)
	case "promote":
		s.promote(w, q)
	case "delete":
		s.delete(w, q)
	default:
		fail(w, "unknown mode: "+mode)
	}
}

func (s *Server) serveTools(w http.ResponseWriter) {
	s.mu.Lock()
	payload := s.tools
	s.mu.Unlock()

	switch p := payload.(type) {
	case nil:
		writeJSON(w, []any{})
	case string:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, p)
	case []byte:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write(p)
	default:
		writeJSON(w, p)
	}
}

func stageParam(w http.ResponseWriter, raw string) (domain.Stage, bool) {
	st, err := domain.ParseStage(raw)
	if err != nil {
		fail(w, "unknown state: "+raw)
		return "", false
	}
	return st, true
}

func (s *Server) list(w http.ResponseWriter, q map[string][]string) {
	st, ok := stageParam(w, first(q, "state"))
	if !ok {
		return
	}
	needle := strings.ToLower(strings.TrimSpace(first(q, "q")))
	limit, _ := strconv.Atoi(first(q, "limit"))

	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]map[string]any, 0, len(s.rows[st]))
	// newest first, like the sheet script
	rows := s.rows[st]
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if needle != "" && !matches(row, needle) {
			continue
		}
		items = append(items, row)
		if limit > 0 && len(items) >= limit {
			break
		}
	}
	writeJSON(w, map[string]any{"ok": true, "items": items})
}

func matches(row map[string]any, needle string) bool {
	for _, k := range []string{"id", "title", "tags", "summary"} {
		if v, _ := row[k].(string); strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}

func (s *Server) get(w http.ResponseWriter, q map[string][]string) {
	st, ok := stageParam(w, first(q, "state"))
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, _ := s.find(st, first(q, "id"))
	if row == nil {
		fail(w, "not found")
		return
	}
	writeJSON(w, map[string]any{"ok": true, "item": row})
}

func (s *Server) upsert(w http.ResponseWriter, r *http.Request) {
	st, ok := stageParam(w, r.URL.Query().Get("state"))
	if !ok {
		return
	}
	var body struct {
		Item map[string]any `json:"item"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil || body.Item == nil {
		fail(w, "invalid body")
		return
	}

	row := make(map[string]any, len(sheet.Headers))
	for _, h := range sheet.Headers {
		row[h] = cell(body.Item[h])
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	action := "update"
	id, _ := row["id"].(string)
	if id == "" {
		id = s.newID()
		row["id"] = id
		action = "insert"
	}
	if prev, _ := s.find(st, id); prev == nil {
		action = "insert"
	} else if row["created_at"] == "" {
		row["created_at"] = prev["created_at"]
	}
	now := s.now().UTC().Format(time.RFC3339Nano)
	if row["created_at"] == "" {
		row["created_at"] = now
	}
	if row["updated_at"] == "" {
		row["updated_at"] = now
	}
	s.put(st, row)
	writeJSON(w, map[string]any{"ok": true, "item": row, "action": action, "id": id})
}

func (s *Server) promote(w http.ResponseWriter, q map[string][]string) {
	from, ok := stageParam(w, first(q, "from"))
	if !ok {
		return
	}
	to, ok := stageParam(w, first(q, "to"))
	if !ok {
		return
	}
	id := first(q, "id")

	s.mu.Lock()
	defer s.mu.Unlock()
	row, _ := s.find(from, id)
	if row == nil {
		fail(w, "not found")
		return
	}
	if prev, _ := s.find(to, id); prev != nil && first(q, "overwrite") != "1" {
		fail(w, "exists in "+string(to))
		return
	}
	cp := make(map[string]any, len(row))
	for k, v := range row {
		cp[k] = v
	}
	s.put(to, cp)
	writeJSON(w, map[string]any{"ok": true, "id": id, "action": "promote"})
}

func (s *Server) delete(w http.ResponseWriter, q map[string][]string) {
	st, ok := stageParam(w, first(q, "state"))
	if !ok {
		return
	}
	id := first(q, "id")

	s.mu.Lock()
	defer s.mu.Unlock()
	_, i := s.find(st, id)
	if i < 0 {
		fail(w, "not found")
		return
	}
	s.rows[st] = append(s.rows[st][:i], s.rows[st][i+1:]...)
	writeJSON(w, map[string]any{"ok": true, "id": id, "action": "delete"})
}

// find must be called with mu held.
func (s *Server) find(st domain.Stage, id string) (map[string]any, int) {
	if id == "" {
		return nil, -1
	}
	for i, row := range s.rows[st] {
		if row["id"] == id {
			return row, i
		}
	}
	return nil, -1
}

// put replaces a row with the same id in place or appends. Caller holds mu.
func (s *Server) put(st domain.Stage, row map[string]any) {
	if _, i := s.find(st, row["id"].(string)); i >= 0 {
		s.rows[st][i] = row
		return
	}
	s.rows[st] = append(s.rows[st], row)
}

func toRow(it sheet.Item) map[string]any {
	vals := it.Values()
	row := make(map[string]any, len(vals))
	for i, h := range sheet.Headers {
		row[h] = vals[i]
	}
	return row
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func first(q map[string][]string, key string) string {
	if vs := q[key]; len(vs) > 0 {
		return strings.TrimSpace(vs[0])
	}
	return ""
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, msg string) {
	writeJSON(w, map[string]any{"ok": false, "error": msg})
}
