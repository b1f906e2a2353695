// Package bridge exposes the programmatic interface (open/get_row/search/
// set_cell/.../save) as newline-delimited JSON request/response frames over
// a Unix domain socket, for a native add-on or UI process to dial instead
// of linking the engine directly.
package bridge

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/csvview/csvview/internal/editor"
	"github.com/csvview/csvview/internal/engineerr"
	"github.com/csvview/csvview/internal/search"
)

// Config configures a Server.
type Config struct {
	SocketPath     string
	MaxConcurrency int
	IdleTimeout    time.Duration
}

// Server is the Unix domain socket bridge. One Server serves exactly one
// open file for its lifetime, mirroring the Editor's single-owner rule:
// connections are served concurrently, but every request, read or
// mutating, runs under one mutex, so requests are processed one at a time.
type Server struct {
	config   Config
	listener net.Listener
	sem      chan struct{}
	shutdown chan struct{}
	wg       sync.WaitGroup

	mu sync.Mutex
	e  *editor.Editor
}

// request is one line of the wire protocol.
type request struct {
	Action string   `json:"action"`
	Row    int64    `json:"row,omitempty"`
	Col    string   `json:"col,omitempty"`
	Value  string   `json:"value,omitempty"`
	Fields []string `json:"fields,omitempty"`
	Start  int64    `json:"start,omitempty"`
	End    int64    `json:"end,omitempty"`
	Query  string   `json:"query,omitempty"`
	Column string   `json:"column,omitempty"`
	CaseOn bool     `json:"case_sensitive,omitempty"`
	Limit  int      `json:"limit,omitempty"`
}

// New creates a Server wrapping an already-open Editor.
func New(cfg Config, e *editor.Editor) *Server {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 50
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Second
	}
	if cfg.SocketPath == "" {
		cfg.SocketPath = os.Getenv("CSVVIEW_SOCKET")
		if cfg.SocketPath == "" {
			cfg.SocketPath = "/tmp/csvview.sock"
		}
	}
	return &Server{
		config:   cfg,
		sem:      make(chan struct{}, cfg.MaxConcurrency),
		shutdown: make(chan struct{}),
		e:        e,
	}
}

// Serve removes any stale socket, binds, and accepts connections until
// Shutdown is called. It blocks until the listener stops.
func (s *Server) Serve() error {
	if _, err := os.Stat(s.config.SocketPath); err == nil {
		if err := os.Remove(s.config.SocketPath); err != nil {
			return fmt.Errorf("removing stale socket: %w", err)
		}
	}

	listener, err := net.Listen("unix", s.config.SocketPath)
	if err != nil {
		return fmt.Errorf("binding socket %s: %w", s.config.SocketPath, err)
	}
	s.listener = listener

	for {
		select {
		case <-s.shutdown:
			return nil
		default:
		}

		if ul, ok := listener.(*net.UnixListener); ok {
			_ = ul.SetDeadline(time.Now().Add(time.Second))
		}

		conn, err := listener.Accept()
		if err != nil {
			if opErr, ok := err.(*net.OpError); ok && opErr.Timeout() {
				continue
			}
			select {
			case <-s.shutdown:
				return nil
			default:
				fmt.Fprintf(os.Stderr, "bridge: accept error: %v\n", err)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// Shutdown stops accepting new connections, waits for in-flight ones to
// drain, and removes the socket file.
func (s *Server) Shutdown() {
	close(s.shutdown)
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	_ = os.Remove(s.config.SocketPath)
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-s.shutdown:
		return
	}

	r := bufio.NewReader(conn)
	for {
		select {
		case <-s.shutdown:
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(s.config.IdleTimeout))
		line, err := r.ReadBytes('\n')
		if err != nil {
			return
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		resp := s.processRequest(line)
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		_, _ = conn.Write(resp)
		_, _ = conn.Write([]byte("\n"))
	}
}

func (s *Server) processRequest(data []byte) []byte {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		return errorResponse("invalid JSON: " + err.Error())
	}

	switch req.Action {
	case "ping":
		return successResponse(map[string]any{"pong": true})
	case "get_info":
		return s.handleGetInfo()
	case "get_row":
		return s.handleGetRow(req)
	case "get_rows":
		return s.handleGetRows(req)
	case "search":
		return s.handleSearch(req)
	case "set_cell":
		return s.handleSetCell(req)
	case "set_row":
		return s.handleSetRow(req)
	case "revert_row":
		return s.handleRevertRow(req)
	case "revert_all":
		return s.handleRevertAll()
	case "save":
		return s.handleSave()
	case "edit_count":
		return s.handleEditCount()
	case "has_changes":
		return s.handleHasChanges()
	default:
		return errorResponse("unknown action: " + req.Action)
	}
}

func (s *Server) handleGetInfo() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.e.Reader()
	return successResponse(map[string]any{
		"path":       r.Path(),
		"row_count":  r.RowCount(),
		"headers":    r.Headers(),
		"delimiter":  string(r.Delimiter()),
		"size_bytes": r.Size(),
	})
}

func (s *Server) handleGetRow(req request) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields, err := s.e.DecodeRow(req.Row)
	if err != nil {
		return errorResponseFromEngine(err)
	}
	for _, f := range fields {
		if !utf8.ValidString(f) {
			return errorResponseFromEngine(engineerr.New(engineerr.Utf8, "row contains invalid UTF-8"))
		}
	}
	return successResponse(map[string]any{"fields": fields})
}

func (s *Server) handleGetRows(req request) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := s.e.RowCount()
	start, end := req.Start, req.End
	if start < 0 {
		start = 0
	}
	if end > count {
		end = count
	}
	if end < start {
		return errorResponse("end < start")
	}
	rows := make([][]string, 0, end-start)
	for n := start; n < end; n++ {
		fields, err := s.e.DecodeRow(n)
		if err != nil {
			return errorResponseFromEngine(err)
		}
		rows = append(rows, fields)
	}
	return successResponse(map[string]any{"rows": rows})
}

func (s *Server) handleSearch(req request) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	hits, err := search.Search(s.e, req.Query, search.Options{
		Column:        req.Column,
		CaseSensitive: req.CaseOn,
		MaxResults:    req.Limit,
	})
	if err != nil {
		return errorResponseFromEngine(err)
	}
	type hit struct {
		Row    int64    `json:"row"`
		Fields []string `json:"fields"`
	}
	out := make([]hit, len(hits))
	for i, h := range hits {
		out[i] = hit{Row: h.RowNum, Fields: h.Fields}
	}
	return successResponse(map[string]any{"hits": out})
}

func (s *Server) handleSetCell(req request) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.e.SetCell(req.Row, req.Col, req.Value); err != nil {
		return errorResponseFromEngine(err)
	}
	return successResponse(map[string]any{"ok": true})
}

func (s *Server) handleSetRow(req request) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.e.SetRow(req.Row, req.Fields); err != nil {
		return errorResponseFromEngine(err)
	}
	return successResponse(map[string]any{"ok": true})
}

func (s *Server) handleRevertRow(req request) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.e.RevertRow(req.Row)
	return successResponse(map[string]any{"ok": true})
}

func (s *Server) handleRevertAll() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.e.RevertAll()
	return successResponse(map[string]any{"ok": true})
}

func (s *Server) handleSave() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.e.Save(); err != nil {
		return errorResponseFromEngine(err)
	}
	return successResponse(map[string]any{"ok": true})
}

func (s *Server) handleEditCount() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return successResponse(map[string]any{"edit_count": s.e.EditCount()})
}

func (s *Server) handleHasChanges() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return successResponse(map[string]any{"has_changes": s.e.HasChanges()})
}

// successResponse marshals data with an explicit "error": null field, so
// every response frame on the wire carries the same error key whether or
// not the call succeeded.
func successResponse(data map[string]any) []byte {
	data["error"] = nil
	b, err := json.Marshal(data)
	if err != nil {
		return errorResponse("marshaling response: " + err.Error())
	}
	return b
}

func errorResponse(msg string) []byte {
	b, _ := json.Marshal(map[string]any{"error": msg})
	return b
}

func errorResponseFromEngine(err error) []byte {
	kind := "unknown"
	var ee *engineerr.Error
	if as, ok := err.(*engineerr.Error); ok {
		ee = as
		kind = ee.Kind.String()
	}
	return errorResponse(fmt.Sprintf("%s: %s", kind, err.Error()))
}
