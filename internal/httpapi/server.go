// Package httpapi implements the external HTTP boundary described in
// spec.md §6, translating requests into internal/cache.Cache calls and
// internal/apperr sentinels into HTTP status codes. Grounded on the
// teacher's pkg/api/server.go shape: http.NewServeMux, one handler method
// per route, and an http.Server with fixed read/write timeouts.
package httpapi

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/tobgu/qcache-go/internal/cache"
)

// Server is the qcache HTTP front door.
type Server struct {
	cache *cache.Cache
	addr  string
	debug bool

	basicAuthUser string
	basicAuthPass string
	certFile      string
	caFile        string

	server *http.Server
}

// Options configures a new Server.
type Options struct {
	Addr          string
	Debug         bool
	BasicAuthUser string
	BasicAuthPass string
	CertFile      string
	CAFile        string
}

// NewServer builds a Server bound to c.
func NewServer(c *cache.Cache, opts Options) *Server {
	return &Server{
		cache:         c,
		addr:          opts.Addr,
		debug:         opts.Debug,
		basicAuthUser: opts.BasicAuthUser,
		basicAuthPass: opts.BasicAuthPass,
		certFile:      opts.CertFile,
		caFile:        opts.CAFile,
	}
}

// Start builds the route table and begins serving. It blocks until the
// server stops, per the teacher's Start()/Stop(ctx) lifecycle.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/qcache/dataset/", s.withAuth(s.handleDataset))
	mux.HandleFunc("/qcache/status", s.withAuth(s.handleStatus))
	mux.HandleFunc("/qcache/statistics", s.withAuth(s.handleStatistics))

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	if s.certFile != "" {
		if s.caFile != "" {
			caPEM, err := os.ReadFile(s.caFile)
			if err != nil {
				return err
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caPEM) {
				return fmt.Errorf("no certificates found in CA file %q", s.caFile)
			}
			s.server.TLSConfig = &tls.Config{ClientAuth: tls.RequireAndVerifyClientCert, ClientCAs: pool}
		}
		// The cert file holds both the certificate and its private key.
		return s.server.ListenAndServeTLS(s.certFile, s.certFile)
	}
	return s.server.ListenAndServe()
}

// Stop gracefully shuts the server down, honoring the in-flight-command
// policy of spec.md §5: shards still finish whatever they were doing, the
// front-end just stops accepting new connections and discards replies
// that don't arrive in time.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// withAuth wraps handler with basic-auth enforcement when configured, per
// spec.md §7's Unauthorized -> 401 + WWW-Authenticate mapping.
func (s *Server) withAuth(handler http.HandlerFunc) http.HandlerFunc {
	if s.basicAuthUser == "" {
		return handler
	}
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(s.basicAuthUser)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(s.basicAuthPass)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="qcache"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		handler(w, r)
	}
}
