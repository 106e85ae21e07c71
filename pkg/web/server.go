// Package web serves the read-only status API over the master's snapshot
// surface. It only ever reads copies of dispatcher state.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"chorus/pkg/protocol"
)

// Source is the snapshot surface the API reads. The master satisfies it.
type Source interface {
	BotNames() []string
	BotData(name string) (protocol.BotData, bool)
	BotDatas() []protocol.BotData
}

// Server is the status HTTP server.
type Server struct {
	src  Source
	http *http.Server
}

// New creates a Server bound to addr.
func New(addr string, src Source) *Server {
	s := &Server{src: src}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/names", s.handleNames)
	mux.HandleFunc("GET /api/bots", s.handleBots)
	mux.HandleFunc("GET /api/bots/{name}", s.handleBot)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shut down status server: %w", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed { //nolint:errorlint // net/http returns the sentinel unwrapped
			return nil
		}
		return fmt.Errorf("status server: %w", err)
	}
}

func (s *Server) handleNames(w http.ResponseWriter, _ *http.Request) {
	names := s.src.BotNames()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, names)
}

func (s *Server) handleBots(w http.ResponseWriter, _ *http.Request) {
	datas := s.src.BotDatas()
	if datas == nil {
		datas = []protocol.BotData{}
	}
	writeJSON(w, datas)
}

func (s *Server) handleBot(w http.ResponseWriter, r *http.Request) {
	data, ok := s.src.BotData(r.PathValue("name"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, data)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
