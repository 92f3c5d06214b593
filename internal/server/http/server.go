package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rzbill/sift/internal/indexer"
	"github.com/rzbill/sift/internal/operation"
	"github.com/rzbill/sift/internal/query"
	"github.com/rzbill/sift/internal/runtime"
	"github.com/rzbill/sift/internal/segment"
	logpkg "github.com/rzbill/sift/pkg/log"
)

type Server struct {
	rt     *runtime.Runtime
	srv    *http.Server
	lis    net.Listener
	logger logpkg.Logger
}

func New(rt *runtime.Runtime, logger logpkg.Logger) *Server {
	if logger == nil {
		logger = logpkg.NewNop()
	}
	r := mux.NewRouter()
	s := &Server{
		rt:     rt,
		logger: logger.WithComponent("http"),
		srv:    &http.Server{Handler: cors(r), ReadHeaderTimeout: 10 * time.Second},
	}
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	v1.HandleFunc("/documents", s.handleAdd).Methods(http.MethodPost)
	v1.HandleFunc("/deletes", s.handleDelete).Methods(http.MethodPost)
	v1.HandleFunc("/commit", s.handleCommit).Methods(http.MethodPost)
	v1.HandleFunc("/segments", s.handleSegments).Methods(http.MethodGet)
	r.Handle("/metrics", rt.Metrics().Handler()).Methods(http.MethodGet)
	return s
}

// Handler returns the root handler, for embedding and tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", logpkg.Err(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type healthResp struct {
	Status string `json:"status"`
	// Opstamp is the next stamp the writer hands out.
	Opstamp        uint64 `json:"opstamp"`
	PendingDeletes int    `json:"pendingDeletes"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.CheckHealth(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_serving"})
		return
	}
	writeJSON(w, http.StatusOK, healthResp{
		Status:         "ok",
		Opstamp:        uint64(s.rt.Writer().Opstamp()),
		PendingDeletes: s.rt.Queue().Pending(),
	})
}

type addReq struct {
	Documents []operation.Document `json:"documents"`
}

type stampResp struct {
	Opstamps []uint64 `json:"opstamps"`
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	resp := stampResp{Opstamps: make([]uint64, 0, len(req.Documents))}
	for _, d := range req.Documents {
		stamp, err := s.rt.Writer().AddDocument(d)
		if err != nil {
			s.writeError(w, statusFor(err), err)
			return
		}
		resp.Opstamps = append(resp.Opstamps, uint64(stamp))
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// deleteReq selects documents either by CEL query or by a single term.
type deleteReq struct {
	Query string `json:"query"`
	Field string `json:"field"`
	Value any    `json:"value"`
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var target operation.Predicate
	switch {
	case req.Query != "" && req.Field != "":
		s.writeError(w, http.StatusBadRequest, errors.New("set either query or field, not both"))
		return
	case req.Query != "":
		p, err := query.Compile(req.Query)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		target = p
	case req.Field != "":
		target = query.Term(req.Field, req.Value)
	default:
		s.writeError(w, http.StatusBadRequest, errors.New("query or field is required"))
		return
	}
	stamp, err := s.rt.Writer().Delete(target)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, stampResp{Opstamps: []uint64{uint64(stamp)}})
}

type commitResp struct {
	Opstamp uint64   `json:"opstamp"`
	Touched []string `json:"touched"`
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	res, err := s.rt.Writer().Commit(r.Context())
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	resp := commitResp{Opstamp: uint64(res.Opstamp), Touched: []string{}}
	for _, id := range res.Touched.ToSlice() {
		resp.Touched = append(resp.Touched, id.String())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	metas, err := s.rt.Segments().List()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if metas == nil {
		metas = []segment.Meta{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"segments": metas})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, indexer.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
