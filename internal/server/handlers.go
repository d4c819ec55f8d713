package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/obviews/pkg/cache"
	"github.com/l3aro/obviews/pkg/layout"
	"github.com/l3aro/obviews/pkg/program"
	"github.com/l3aro/obviews/pkg/record"
	"github.com/l3aro/obviews/pkg/render"
	"github.com/l3aro/obviews/pkg/source"
	"github.com/l3aro/obviews/pkg/stat"
	"github.com/l3aro/obviews/pkg/task"
	"github.com/l3aro/obviews/pkg/view"
)

// CFGInfo describes one CFG of the task.
type CFGInfo struct {
	Index   int    `json:"index" msgpack:"index"`
	ID      string `json:"id" msgpack:"id"`
	Label   string `json:"label" msgpack:"label"`
	Context string `json:"context,omitempty" msgpack:"context,omitempty"`
	Address uint64 `json:"address" msgpack:"address"`
	Name    string `json:"name" msgpack:"name"`
}

// StatDetail is a loaded statistic.
type StatDetail struct {
	ID     string      `json:"id" msgpack:"id"`
	Header stat.Header `json:"header" msgpack:"header"`
	Extent [2]int64    `json:"extent" msgpack:"extent"`
	Total  int64       `json:"total" msgpack:"total"`
}

type errorResponse struct {
	Error string `json:"error" msgpack:"error"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	headers, err := s.task.Headers()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sources, err := s.task.ReferencedSources()
	if err != nil {
		s.fail(w, r, err)
		return
	}

	data := struct {
		Application string
		Task        string
		Host        string
		Colors      []string
		Stats       []task.StatInfo
		Functions   []CFGInfo
		Sources     []string
	}{
		Application: s.app,
		Task:        s.task.Name,
		Host:        r.Host,
		Colors:      s.palette.Colors,
		Stats:       headers,
		Functions:   s.cfgs(),
		Sources:     sources,
	}

	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, data); err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) cfgs() []CFGInfo {
	out := make([]CFGInfo, 0, len(s.task.Program.CFGs))
	for _, g := range s.task.Program.CFGs {
		out = append(out, CFGInfo{
			Index:   g.Index,
			ID:      g.ID,
			Label:   g.Label,
			Context: g.Context,
			Address: g.Address,
			Name:    g.Name(),
		})
	}
	return out
}

func (s *Server) handleCFGs(w http.ResponseWriter, r *http.Request) {
	s.encode(w, r, s.cfgs())
}

// functionQuery is the parsed query of a CFG rendering.
type functionQuery struct {
	views  []*view.View
	stats  []*stat.Statistic
	color  *stat.Statistic
	format string
}

// key identifies the rendering in the cache.
func (q functionQuery) key(g *program.CFG) string {
	var names []string
	for _, v := range q.views {
		names = append(names, v.Name)
	}
	var ids []string
	for _, st := range q.stats {
		ids = append(ids, st.ID)
	}
	color := ""
	if q.color != nil {
		color = q.color.ID
	}
	return cache.Key("function", g.ID, strings.Join(names, ","), strings.Join(ids, ","), color, q.format)
}

// parseFunctionQuery reads:
//
//	views   comma separated view names
//	vset    view selector bitmask, used when views is absent
//	stat    statistic used to color the blocks
//	stats   comma separated statistics listed in the blocks
//	format  svg (default), png, jpg or dot
func (s *Server) parseFunctionQuery(r *http.Request) (functionQuery, error) {
	q := r.URL.Query()
	var fq functionQuery

	switch {
	case q.Has("views"):
		set, err := s.task.ViewSet(splitList(q.Get("views")))
		if err != nil {
			return fq, err
		}
		fq.views = view.Select(s.task.Views(), set)
	case q.Has("vset"):
		set, err := view.ParseSet(q.Get("vset"))
		if err != nil {
			return fq, badRequest(err)
		}
		fq.views = view.Select(s.task.Views(), set)
	default:
		set, err := s.task.ViewSet(s.task.KnownViews(s.defaultViews))
		if err != nil {
			return fq, err
		}
		fq.views = view.Select(s.task.Views(), set)
	}

	if id := q.Get("stat"); id != "" {
		st, err := s.task.Statistic(id)
		if err != nil {
			return fq, err
		}
		fq.color = st
		fq.stats = append(fq.stats, st)
	}
	for _, id := range splitList(q.Get("stats")) {
		if fq.color != nil && id == fq.color.ID {
			continue
		}
		st, err := s.task.Statistic(id)
		if err != nil {
			return fq, err
		}
		fq.stats = append(fq.stats, st)
	}

	fq.format = strings.ToLower(q.Get("format"))
	if fq.format == "" {
		fq.format = string(layout.SVG)
	}
	if fq.format != "dot" {
		if _, err := layout.ParseFormat(fq.format); err != nil {
			return fq, badRequest(err)
		}
	}
	return fq, nil
}

func (s *Server) handleFunction(w http.ResponseWriter, r *http.Request) {
	g, err := s.task.CFG(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	fq, err := s.parseFunctionQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	a, err := s.cache.GetOrCreate(fq.key(g), func() (cache.Artifact, error) {
		var dot string
		err := s.task.Do(fq.stats, fq.views, func() error {
			dot = render.NewEmitter(s.task.Program, render.Options{
				Views:     fq.views,
				Stats:     fq.stats,
				Color:     fq.color,
				Sources:   s.task.Sources,
				Palette:   s.palette,
				Signature: s.app,
			}).CFG(g)
			return nil
		})
		if err != nil {
			return cache.Artifact{}, err
		}
		return s.layoutArtifact(ctx, dot, fq.format)
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeArtifact(w, a)
}

func (s *Server) layoutArtifact(ctx context.Context, dot, format string) (cache.Artifact, error) {
	if format == "dot" {
		return cache.Artifact{ContentType: contentDOT, Body: []byte(dot)}, nil
	}
	f, err := layout.ParseFormat(format)
	if err != nil {
		return cache.Artifact{}, badRequest(err)
	}
	out, err := s.layout.Render(ctx, []byte(dot), f)
	if err != nil {
		return cache.Artifact{}, err
	}
	return cache.Artifact{ContentType: f.ContentType(), Body: out}, nil
}

func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("path")
	src, err := s.task.Source(name)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var st *stat.Statistic
	var stats []*stat.Statistic
	if id := r.URL.Query().Get("stat"); id != "" {
		if st, err = s.task.Statistic(id); err != nil {
			s.fail(w, r, err)
			return
		}
		stats = append(stats, st)
	}

	a, err := s.cache.GetOrCreate(cache.Key("source", name, r.URL.Query().Get("stat")), func() (cache.Artifact, error) {
		var html string
		err := s.task.Do(stats, nil, func() error {
			html = render.SourceTable(src, st, s.palette)
			return nil
		})
		return cache.Artifact{ContentType: "text/html; charset=utf-8", Body: []byte(html)}, err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeArtifact(w, a)
}

func (s *Server) handleSourceStat(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("stat") == "" || q.Get("src") == "" {
		s.fail(w, r, badRequest(errors.New("stat and src are required")))
		return
	}
	st, err := s.task.Statistic(q.Get("stat"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var text string
	err = s.task.Do([]*stat.Statistic{st}, nil, func() error {
		text = render.SourceStat(st, q.Get("src"))
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(text))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	headers, err := s.task.Headers()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.encode(w, r, headers)
}

func (s *Server) handleStat(w http.ResponseWriter, r *http.Request) {
	st, err := s.task.Statistic(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var detail StatDetail
	err = s.task.Do([]*stat.Statistic{st}, nil, func() error {
		lo, hi := st.Extent(s.task.Program)
		detail = StatDetail{
			ID:     st.ID,
			Header: st.Header(),
			Extent: [2]int64{lo, hi},
			Total:  st.Total(s.task.Program),
		}
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.encode(w, r, detail)
}

func (s *Server) handleCallGraph(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = string(layout.SVG)
	}
	ctx := context.WithoutCancel(r.Context())
	a, err := s.cache.GetOrCreate(cache.Key("callgraph", format), func() (cache.Artifact, error) {
		return s.layoutArtifact(ctx, render.CallGraph(s.task.Program, s.task.Name), format)
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeArtifact(w, a)
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	s.encode(w, r, s.cache.Stats())
}

// handleCacheReset drops every rendering and zeroes the counters.
func (s *Server) handleCacheReset(w http.ResponseWriter, r *http.Request) {
	n := s.cache.Len()
	s.cache.Clear()
	s.cache.ResetStats()
	s.logger.Info("cache cleared", "entries", n)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
	s.logger.Info("stop requested", "remote", r.RemoteAddr)
	s.Stop()
}

func writeArtifact(w http.ResponseWriter, a cache.Artifact) {
	w.Header().Set("Content-Type", a.ContentType)
	_, _ = w.Write(a.Body)
}

// encode writes v as msgpack when the client accepts it, as JSON
// otherwise.
func (s *Server) encode(w http.ResponseWriter, r *http.Request, v interface{}) {
	s.encodeStatus(w, r, http.StatusOK, v)
}

func (s *Server) encodeStatus(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	if strings.Contains(r.Header.Get("Accept"), contentMsgpack) {
		data, err := msgpack.Marshal(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", contentMsgpack)
		w.WriteHeader(status)
		_, _ = w.Write(data)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", "error", err)
	}
}

type badRequestError struct {
	err error
}

func (e *badRequestError) Error() string { return e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &badRequestError{err: err}
}

// statusOf maps an error to an HTTP status.
func statusOf(err error) int {
	var br *badRequestError
	var te *layout.ExternalToolError
	var me *record.MissingFileError
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest
	case errors.Is(err, task.ErrUnknownCFG),
		errors.Is(err, task.ErrUnknownStatistic),
		errors.Is(err, task.ErrUnknownView),
		errors.Is(err, source.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &te):
		return http.StatusBadGateway
	case errors.As(err, &me):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		s.logger.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	s.encodeStatus(w, r, status, errorResponse{Error: fmt.Sprint(err)})
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
