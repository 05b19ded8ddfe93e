package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tobgu/qcache-go/internal/cache"
)

func newTestServer(t *testing.T) (*Server, *http.ServeMux) {
	t.Helper()
	c, err := cache.New(cache.Config{ShardCount: 2, ShardSize: 1 << 20, L2Size: 1 << 20})
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	t.Cleanup(c.Stop)

	s := NewServer(c, Options{Addr: ":0"})
	mux := http.NewServeMux()
	mux.HandleFunc("/qcache/dataset/", s.withAuth(s.handleDataset))
	mux.HandleFunc("/qcache/status", s.withAuth(s.handleStatus))
	mux.HandleFunc("/qcache/statistics", s.withAuth(s.handleStatistics))
	return s, mux
}

// S1: insert CSV with a type hint and a stand-in, query with limit and its
// own stand-in, expect a JSON body carrying both stand-ins and the
// unsliced-length header reflecting the pre-limit row count.
func TestS1InsertAndQueryWithStandInsAndLimit(t *testing.T) {
	_, mux := newTestServer(t)

	body := "index,foo,bar\n1,bbb,1.25\n2,aaa,3.25\n3,ccc,\n"
	req := httptest.NewRequest(http.MethodPost, "/qcache/dataset/ds1", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("X-QCache-types", "index=string")
	req.Header.Set("X-QCache-stand-in-columns", "extra_insert=42")
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusCreated {
		t.Fatalf("insert: expected 201, got %d: %s", rw.Code, rw.Body.String())
	}

	q := `{"limit":2}`
	req = httptest.NewRequest(http.MethodGet, "/qcache/dataset/ds1?q="+q, nil)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-QCache-stand-in-columns", "extra_query=24")
	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("query: expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	if got := rw.Header().Get("X-QCache-unsliced-length"); got != "3" {
		t.Errorf("expected X-QCache-unsliced-length 3, got %q", got)
	}

	var rows []map[string]any
	if err := json.Unmarshal(rw.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0]["extra_insert"].(float64) != 42 {
		t.Errorf("expected extra_insert stand-in to survive, got %v", rows[0]["extra_insert"])
	}
	if rows[0]["extra_query"].(float64) != 24 {
		t.Errorf("expected extra_query stand-in applied at query time, got %v", rows[0]["extra_query"])
	}
}

// S2/S3-style: query a stored dataset with a where clause and check the
// right row comes back.
func TestQueryWithWhereClause(t *testing.T) {
	_, mux := newTestServer(t)

	body := "foo,bar,baz,qux\naaa,1.1,7,qqq\nbbb,2.2,5,rrr\n"
	req := httptest.NewRequest(http.MethodPost, "/qcache/dataset/ds1", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/csv")
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusCreated {
		t.Fatalf("insert: expected 201, got %d", rw.Code)
	}

	q := `{"where":["&",["==","qux","'qqq'"],[">","baz",6]]}`
	req = httptest.NewRequest(http.MethodGet, "/qcache/dataset/ds1?q="+q, nil)
	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("query: expected 200, got %d: %s", rw.Code, rw.Body.String())
	}

	var rows []map[string]any
	if err := json.Unmarshal(rw.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(rows) != 1 || rows[0]["foo"] != "aaa" {
		t.Fatalf("expected exactly the aaa row, got %v", rows)
	}
}

func TestQueryMissingKeyReturns404(t *testing.T) {
	_, mux := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/qcache/dataset/nope?q={}", nil)
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rw.Code)
	}
}

func TestInsertWithUnsupportedContentTypeReturns415(t *testing.T) {
	_, mux := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/qcache/dataset/ds1", strings.NewReader("<xml/>"))
	req.Header.Set("Content-Type", "application/xml")
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusUnsupportedMediaType {
		t.Errorf("expected 415, got %d", rw.Code)
	}
}

func TestQueryMalformedReturns400WithErrorBody(t *testing.T) {
	_, mux := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/qcache/dataset/ds1", strings.NewReader("a\n1\n"))
	req.Header.Set("Content-Type", "text/csv")
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusCreated {
		t.Fatalf("insert: expected 201, got %d", rw.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/qcache/dataset/ds1?q="+`{"bogus_clause":1}`, nil)
	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rw.Code, rw.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rw.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if body["error"] == "" {
		t.Errorf("expected non-empty error reason")
	}
}

// S4: an UPDATE-path query mutates the stored frame via insert-then-query
// by POST, matching the /q body form used for large queries.
func TestPostQueryWithUpdate(t *testing.T) {
	_, mux := newTestServer(t)

	body := "foo,bar,baz,qux\naaa,1.1,7,qqq\nbbb,1.25,5,rrr\n"
	req := httptest.NewRequest(http.MethodPost, "/qcache/dataset/ds1", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/csv")
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusCreated {
		t.Fatalf("insert: expected 201, got %d", rw.Code)
	}

	q := `{"update":[["+","bar",2.0]],"where":["==","foo","'bbb'"]}`
	req = httptest.NewRequest(http.MethodPost, "/qcache/dataset/ds1/q", strings.NewReader(q))
	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("update-query: expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
}

func TestDeleteThenQueryIs404(t *testing.T) {
	_, mux := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/qcache/dataset/ds1", strings.NewReader("a\n1\n"))
	req.Header.Set("Content-Type", "text/csv")
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req)

	req = httptest.NewRequest(http.MethodDelete, "/qcache/dataset/ds1", nil)
	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rw.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/qcache/dataset/ds1?q={}", nil)
	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rw.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	_, mux := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/qcache/status", nil)
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK || rw.Body.String() != "OK" {
		t.Errorf("expected 200 OK, got %d %q", rw.Code, rw.Body.String())
	}
}

func TestStatisticsEndpointReturnsJSON(t *testing.T) {
	_, mux := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/qcache/dataset/ds1", strings.NewReader("a\n1\n"))
	req.Header.Set("Content-Type", "text/csv")
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req)

	req = httptest.NewRequest(http.MethodGet, "/qcache/statistics", nil)
	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	var stats map[string]any
	if err := json.Unmarshal(rw.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decoding statistics: %v", err)
	}
	if _, ok := stats["store_count"]; !ok {
		t.Errorf("expected store_count in merged statistics")
	}
}

// S6: TTL expiry surfaces as 404.
func TestTTLExpiryReturns404(t *testing.T) {
	c, err := cache.New(cache.Config{ShardCount: 1, ShardSize: 1 << 20, ShardMaxAge: time.Nanosecond})
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	defer c.Stop()

	s := NewServer(c, Options{Addr: ":0"})
	mux := http.NewServeMux()
	mux.HandleFunc("/qcache/dataset/", s.withAuth(s.handleDataset))

	req := httptest.NewRequest(http.MethodPost, "/qcache/dataset/ds1", strings.NewReader("a\n1\n"))
	req.Header.Set("Content-Type", "text/csv")
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusCreated {
		t.Fatalf("insert: expected 201, got %d", rw.Code)
	}
	time.Sleep(time.Millisecond)

	req = httptest.NewRequest(http.MethodGet, "/qcache/dataset/ds1?q={}", nil)
	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusNotFound {
		t.Errorf("expected 404 after TTL expiry, got %d", rw.Code)
	}
}

func TestBasicAuthRejectsMissingCredentials(t *testing.T) {
	c, err := cache.New(cache.Config{ShardCount: 1, ShardSize: 1 << 20})
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	defer c.Stop()

	s := NewServer(c, Options{Addr: ":0", BasicAuthUser: "alice", BasicAuthPass: "secret"})
	mux := http.NewServeMux()
	mux.HandleFunc("/qcache/status", s.withAuth(s.handleStatus))

	req := httptest.NewRequest(http.MethodGet, "/qcache/status", nil)
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rw.Code)
	}
	if rw.Header().Get("WWW-Authenticate") == "" {
		t.Errorf("expected WWW-Authenticate header")
	}
}

func TestBasicAuthAcceptsValidCredentials(t *testing.T) {
	c, err := cache.New(cache.Config{ShardCount: 1, ShardSize: 1 << 20})
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	defer c.Stop()

	s := NewServer(c, Options{Addr: ":0", BasicAuthUser: "alice", BasicAuthPass: "secret"})
	mux := http.NewServeMux()
	mux.HandleFunc("/qcache/status", s.withAuth(s.handleStatus))

	req := httptest.NewRequest(http.MethodGet, "/qcache/status", nil)
	req.SetBasicAuth("alice", "secret")
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rw.Code)
	}
}
