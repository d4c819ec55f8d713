package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/obviews/pkg/cache"
	"github.com/l3aro/obviews/pkg/layout"
	"github.com/l3aro/obviews/pkg/task"
)

// fakeLayout wraps the DOT text instead of laying it out.
type fakeLayout struct {
	calls int32
	err   error
}

func (f *fakeLayout) Render(_ context.Context, dot []byte, format layout.Format) ([]byte, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return []byte("<svg format=\"" + string(format) + "\">" + string(dot) + "</svg>"), nil
}

func newTestServer(t *testing.T, l layout.Layout) *Server {
	t.Helper()
	exe := filepath.Join("..", "..", "testdata", "demo", "main.elf")
	tk, err := task.OpenExecutable(exe, "", task.Options{ValidateOverlap: true})
	require.NoError(t, err)
	return New(Options{
		Task:         tk,
		Layout:       l,
		DefaultViews: []string{"disassembly"},
		CacheSize:    16,
	})
}

func get(t *testing.T, h http.Handler, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIndex(t *testing.T) {
	s := newTestServer(t, &fakeLayout{})
	rec := get(t, s.Handler(), "/")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	body := rec.Body.String()
	assert.Contains(t, body, `<a href="/api/function/1" target="view">sum [main:0x8004]</a>`)
	assert.Contains(t, body, `<a href="/api/source/main.c" target="view">main.c</a>`)
	assert.Contains(t, body, `<option value="ipet-total_time">Execution time</option>`)
	assert.Contains(t, body, `"#eae7ff"`)

	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/nothing").Code)
}

func TestCFGs(t *testing.T) {
	s := newTestServer(t, &fakeLayout{})
	rec := get(t, s.Handler(), "/api/cfgs")
	require.Equal(t, http.StatusOK, rec.Code)

	var cfgs []CFGInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfgs))
	require.Len(t, cfgs, 2)
	assert.Equal(t, "main", cfgs[0].Label)
	assert.Equal(t, uint64(0x8100), cfgs[1].Address)
	assert.Equal(t, "[main:0x8004]", cfgs[1].Context)
}

func TestFunction(t *testing.T) {
	fl := &fakeLayout{}
	s := newTestServer(t, fl)
	h := s.Handler()

	rec := get(t, h, "/api/function/0?views=source&stat=ipet-total_time")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, `<svg format="svg">digraph cfg_0 {`))
	assert.Contains(t, body, `label="call sum (1)"`)
	assert.Contains(t, body, "main.c:10:")
	assert.Contains(t, body, "Execution&nbsp;time=20")
	assert.Contains(t, body, `fillcolor="#9b8ef5"`)
	assert.NotContains(t, body, "push")

	// served from the cache
	rec = get(t, h, "/api/function/0?views=source&stat=ipet-total_time")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fl.calls))
	assert.Equal(t, int64(1), s.cache.Stats().HitCount)
}

func TestFunctionViews(t *testing.T) {
	fl := &fakeLayout{}
	s := newTestServer(t, fl)
	h := s.Handler()

	// default views
	body := get(t, h, "/api/function/0").Body.String()
	assert.Contains(t, body, "push")
	assert.NotContains(t, body, "main.c:10:")

	// disassembly is the first declared view
	body = get(t, h, "/api/function/0?vset=1").Body.String()
	assert.Contains(t, body, "push")
	assert.NotContains(t, body, "main.c:10:")

	body = get(t, h, "/api/function/0?vset=3").Body.String()
	assert.Contains(t, body, "push")
	assert.Contains(t, body, "main.c:10:")

	body = get(t, h, "/api/function/0?views=").Body.String()
	assert.NotContains(t, body, "push")
}

func TestFunctionDOT(t *testing.T) {
	fl := &fakeLayout{}
	s := newTestServer(t, fl)

	rec := get(t, s.Handler(), "/api/function/1?format=dot&stats=ipet-total_count")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/vnd.graphviz", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "digraph cfg_1 {"))
	assert.Contains(t, rec.Body.String(), "Execution&nbsp;count=5")
	assert.Equal(t, int32(0), atomic.LoadInt32(&fl.calls))
}

func TestFunctionErrors(t *testing.T) {
	s := newTestServer(t, &fakeLayout{})
	h := s.Handler()

	tests := []struct {
		target string
		status int
	}{
		{"/api/function/9", http.StatusNotFound},
		{"/api/function/0?views=pipeline", http.StatusNotFound},
		{"/api/function/0?stat=energy", http.StatusNotFound},
		{"/api/function/0?stats=energy", http.StatusNotFound},
		{"/api/function/0?vset=x", http.StatusBadRequest},
		{"/api/function/0?format=pdf", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := get(t, h, tt.target)
		assert.Equal(t, tt.status, rec.Code, tt.target)
		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), tt.target)
		assert.NotEmpty(t, resp.Error, tt.target)
	}
}

func TestFunctionLayoutFailure(t *testing.T) {
	fl := &fakeLayout{err: &layout.ExternalToolError{Tool: "dot", ExitCode: 1, Stderr: "syntax error"}}
	s := newTestServer(t, fl)
	h := s.Handler()

	rec := get(t, h, "/api/function/0")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "syntax error")

	// failures are not cached and the server keeps serving
	fl.err = nil
	rec = get(t, h, "/api/function/0")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(2), atomic.LoadInt32(&fl.calls))
}

func TestSource(t *testing.T) {
	s := newTestServer(t, &fakeLayout{})
	h := s.Handler()

	rec := get(t, h, "/api/source/main.c")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `<table id="stats">`)
	assert.NotContains(t, rec.Body.String(), "<td>53</td>")

	rec = get(t, h, "/api/source/main.c?stat=ipet-total_time")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<td>53</td>")

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/source/nope.c").Code)

	// only sources the program references are served
	for _, target := range []string{
		"/api/source/..%2F..%2Fgo.mod",
		"/api/source/%2Fetc%2Fpasswd",
		"/api/source/..%2F..%2Ftestdata%2Fdemo%2Fmain.c",
	} {
		rec := get(t, h, target)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.NotContains(t, rec.Body.String(), "<table", target)
	}
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/source/main.c?stat=energy").Code)
}

func TestSourceStat(t *testing.T) {
	s := newTestServer(t, &fakeLayout{})
	h := s.Handler()

	rec := get(t, h, "/api/source-stat?stat=ipet-total_time&src=main.c")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0 53 4 5 5 53 6 32 7 4 10 20 11 20 12 26 13 6", rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/source-stat?src=main.c").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/source-stat?stat=x&src=main.c").Code)
}

func TestStats(t *testing.T) {
	s := newTestServer(t, &fakeLayout{})
	h := s.Handler()

	rec := get(t, h, "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var infos []task.StatInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "ipet-total_count", infos[0].ID)
	assert.Equal(t, "cycles", infos[1].Header.Unit)

	rec = get(t, h, "/api/stats", "Accept", "application/msgpack")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get("Content-Type"))
	var packed []map[string]interface{}
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &packed))
	require.Len(t, packed, 2)
	assert.Equal(t, "ipet-total_time", packed[1]["id"])
}

func TestStatDetail(t *testing.T) {
	s := newTestServer(t, &fakeLayout{})
	rec := get(t, s.Handler(), "/api/stats/ipet-total_time")
	require.Equal(t, http.StatusOK, rec.Code)

	var detail StatDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, [2]int64{0, 32}, detail.Extent)
	assert.Equal(t, int64(83), detail.Total)
	assert.Equal(t, "Execution time", detail.Header.Label)

	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/api/stats/energy").Code)
}

func TestCallGraph(t *testing.T) {
	fl := &fakeLayout{}
	s := newTestServer(t, fl)

	rec := get(t, s.Handler(), "/api/callgraph?format=dot")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sum")

	rec = get(t, s.Handler(), "/api/callgraph")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fl.calls))
}

func TestCacheStats(t *testing.T) {
	s := newTestServer(t, &fakeLayout{})
	h := s.Handler()
	get(t, h, "/api/function/0")
	get(t, h, "/api/function/0")

	rec := get(t, h, "/api/cache")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"length":1`)
	assert.Contains(t, rec.Body.String(), `"hit_count":1`)
}

func TestCacheReset(t *testing.T) {
	l := &fakeLayout{}
	s := newTestServer(t, l)
	h := s.Handler()
	require.Equal(t, http.StatusOK, get(t, h, "/api/function/0").Code)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/cache", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	var st cache.Stats
	require.NoError(t, json.Unmarshal(get(t, h, "/api/cache").Body.Bytes(), &st))
	assert.Equal(t, cache.Stats{}, st)

	// the next request renders again
	require.Equal(t, http.StatusOK, get(t, h, "/api/function/0").Code)
	assert.Equal(t, int32(2), atomic.LoadInt32(&l.calls))
}

func TestStop(t *testing.T) {
	s := newTestServer(t, &fakeLayout{})
	rec := get(t, s.Handler(), "/api/stop")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	select {
	case <-s.Stopped():
	default:
		t.Fatal("stop was not requested")
	}
	// stopping twice is harmless
	s.Stop()
}

func TestServe(t *testing.T) {
	s := newTestServer(t, &fakeLayout{})
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Serve(context.Background(), l) }()

	base := "http://" + l.Addr().String()
	resp, err := http.Get(base + "/api/cfgs")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(base+"/api/stop", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServeContext(t *testing.T) {
	s := newTestServer(t, &fakeLayout{})
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, l) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not stop")
	}
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusOf(errors.New("x")))
	assert.Equal(t, http.StatusBadRequest, statusOf(badRequest(errors.New("x"))))
	assert.Equal(t, http.StatusNotFound, statusOf(task.ErrUnknownCFG))
}
