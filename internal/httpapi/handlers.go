package httpapi

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/pierrec/lz4/v4"

	"github.com/tobgu/qcache-go/internal/apperr"
	"github.com/tobgu/qcache-go/internal/qframe"
)

// handleDataset dispatches every verb on /qcache/dataset/{key}[/q], per
// spec.md §6.
func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/qcache/dataset/")
	if path == "" {
		http.NotFound(w, r)
		return
	}

	if key, ok := strings.CutSuffix(path, "/q"); ok && r.Method == http.MethodPost {
		s.handleQueryByPost(w, r, key)
		return
	}

	key := path
	switch r.Method {
	case http.MethodPost:
		s.handleInsert(w, r, key)
	case http.MethodGet:
		s.handleQueryByGet(w, r, key)
	case http.MethodDelete:
		s.handleDelete(w, r, key)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleInsert implements POST /qcache/dataset/{key}.
func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request, key string) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(w, apperr.BadRequest)
		return
	}

	contentType := baseMediaType(r.Header.Get("Content-Type"))
	if contentType != "text/csv" && contentType != "application/json" {
		writeError(w, apperr.UnsupportedMedia)
		return
	}

	hints, err := parseTypeHints(r.Header.Get("X-QCache-types"))
	if err != nil {
		writeError(w, apperr.BadRequest)
		return
	}

	standIns, err := parseStandIns(r.Header.Get("X-QCache-stand-in-columns"))
	if err != nil {
		writeError(w, apperr.BadRequest)
		return
	}

	stats, err := s.cache.Insert(key, body, contentType, hints, standIns)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("X-QCache-stats", statsHeader(stats))
	w.WriteHeader(http.StatusCreated)
}

// handleQueryByGet implements GET /qcache/dataset/{key}?q=<json>.
func (s *Server) handleQueryByGet(w http.ResponseWriter, r *http.Request, key string) {
	var q map[string]any
	if raw := r.URL.Query().Get("q"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			writeError(w, apperr.MalformedQuery)
			return
		}
	} else {
		q = map[string]any{}
	}
	s.runQuery(w, r, key, q)
}

// handleQueryByPost implements POST /qcache/dataset/{key}/q, for queries
// too large for a URL.
func (s *Server) handleQueryByPost(w http.ResponseWriter, r *http.Request, key string) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(w, apperr.BadRequest)
		return
	}
	var q map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &q); err != nil {
			writeError(w, apperr.MalformedQuery)
			return
		}
	} else {
		q = map[string]any{}
	}
	s.runQuery(w, r, key, q)
}

func (s *Server) runQuery(w http.ResponseWriter, r *http.Request, key string, q map[string]any) {
	standIns, err := parseStandIns(r.Header.Get("X-QCache-stand-in-columns"))
	if err != nil {
		writeError(w, apperr.BadRequest)
		return
	}

	accept := negotiateAccept(r.Header.Get("Accept"))
	if accept == "" {
		writeError(w, apperr.NotAcceptable)
		return
	}

	res, stats, err := s.cache.Query(key, q, standIns, nil, accept)
	if err != nil {
		writeError(w, err)
		return
	}

	var body []byte
	switch accept {
	case "text/csv":
		body, err = res.Frame.ToCSV()
	default:
		body, err = res.Frame.ToJSON()
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", accept)
	w.Header().Set("X-QCache-unsliced-length", strconv.Itoa(res.UnslicedLength))
	w.Header().Set("X-QCache-stats", statsHeader(stats))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// handleDelete implements DELETE /qcache/dataset/{key}.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, key string) {
	stats := s.cache.Delete(key)
	w.Header().Set("X-QCache-stats", statsHeader(stats))
	w.WriteHeader(http.StatusOK)
}

// handleStatus implements GET /qcache/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.cache.Status() != "OK" {
		http.Error(w, "NOT OK", http.StatusInternalServerError)
		return
	}
	w.Write([]byte("OK"))
}

// handleStatistics implements GET /qcache/statistics.
func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.cache.Statistics())
}

// decodeBody reads the request body, transparently undoing
// Content-Encoding: gzip|lz4 (spec.md §6).
func decodeBody(r *http.Request) ([]byte, error) {
	switch strings.ToLower(r.Header.Get("Content-Encoding")) {
	case "", "identity":
		return io.ReadAll(r.Body)
	case "gzip":
		gr, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		return io.ReadAll(gr)
	case "lz4":
		return io.ReadAll(lz4.NewReader(r.Body))
	default:
		return nil, errors.New("unsupported content-encoding")
	}
}

// baseMediaType strips parameters (e.g. ";charset=utf-8") from a
// Content-Type header.
func baseMediaType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.TrimSpace(contentType)
}

// negotiateAccept picks "application/json" (default) or "text/csv" from an
// Accept header; returns "" if neither can be satisfied.
func negotiateAccept(accept string) string {
	if accept == "" || strings.Contains(accept, "*/*") || strings.Contains(accept, "application/json") {
		return "application/json"
	}
	if strings.Contains(accept, "text/csv") {
		return "text/csv"
	}
	return ""
}

// parseTypeHints parses "col=string|enum,col2=string" into a hint map.
func parseTypeHints(header string) (map[string]string, error) {
	if header == "" {
		return nil, nil
	}
	hints := map[string]string{}
	for _, pair := range strings.Split(header, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, errors.New("invalid X-QCache-types entry: " + pair)
		}
		typ := parts[1]
		if typ != "string" && typ != "enum" {
			return nil, errors.New("invalid X-QCache-types type: " + typ)
		}
		hints[parts[0]] = typ
	}
	return hints, nil
}

// parseStandIns parses "target=source[,target=source]" into StandIns.
func parseStandIns(header string) ([]qframe.StandIn, error) {
	if header == "" {
		return nil, nil
	}
	var out []qframe.StandIn
	for _, pair := range strings.Split(header, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, errors.New("invalid X-QCache-stand-in-columns entry: " + pair)
		}
		out = append(out, qframe.StandIn{Target: parts[0], Source: parts[1]})
	}
	return out, nil
}

// statsHeader serializes a per-request statistics bag for X-QCache-stats.
func statsHeader(stats map[string]any) string {
	b, err := json.Marshal(stats)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// writeError maps an apperr sentinel (or a qframe.MalformedQueryError
// wrapping one) to the HTTP response shape spec.md §7 requires.
func writeError(w http.ResponseWriter, err error) {
	var reason string
	var mqErr *qframe.MalformedQueryError
	if errors.As(err, &mqErr) {
		reason = mqErr.Reason
	} else {
		reason = err.Error()
	}

	switch {
	case errors.Is(err, apperr.NotFound):
		http.Error(w, reason, http.StatusNotFound)
	case errors.Is(err, apperr.MalformedQuery):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": reason})
	case errors.Is(err, apperr.UnsupportedMedia):
		http.Error(w, reason, http.StatusUnsupportedMediaType)
	case errors.Is(err, apperr.NotAcceptable):
		http.Error(w, reason, http.StatusNotAcceptable)
	case errors.Is(err, apperr.Unauthorized):
		w.Header().Set("WWW-Authenticate", `Basic realm="qcache"`)
		http.Error(w, reason, http.StatusUnauthorized)
	case errors.Is(err, apperr.BadRequest):
		http.Error(w, reason, http.StatusBadRequest)
	case errors.Is(err, apperr.CapacityExceeded):
		http.Error(w, reason, http.StatusInternalServerError)
	case errors.Is(err, apperr.ShardUnavailable):
		http.Error(w, reason, http.StatusInternalServerError)
	default:
		http.Error(w, reason, http.StatusInternalServerError)
	}
}
