package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/iov-one/drugchain/contract"
	"github.com/iov-one/weave"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendermint/tendermint/libs/log"
)

// Server exposes a ledger over HTTP.
//
// Callers authenticate with an API key sent as a bearer token. Keys maps each
// accepted key to the principal it acts for. Requests without a key are
// served anonymously and can only read.
type Server struct {
	Ledger   *contract.Ledger
	Logger   log.Logger
	Gatherer prometheus.Gatherer
	Keys     map[string]string
}

type ctxKey int

const principalKey ctxKey = iota

// Principal returns the authenticated principal of the request, or an empty
// string for an anonymous request.
func Principal(ctx context.Context) string {
	p, _ := ctx.Value(principalKey).(string)
	return p
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		key := strings.TrimPrefix(header, "Bearer ")
		principal, ok := s.Keys[key]
		if key == header || !ok || principal == "" {
			JSONErr(w, http.StatusUnauthorized, "Invalid API key.")
			return
		}
		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Routes returns the HTTP handler serving all endpoints.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(s.authenticate)

	r.Get("/info", s.handleInfo)
	r.Get("/operations", s.handleOperations)
	r.Post("/call/{operation}", s.handleCall)
	r.Get("/drugs/{drugID}", s.handleDrug)
	r.Get("/participants/{principal}", s.handleParticipant)
	if s.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		JSONErr(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.Logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start))
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	JSONResp(w, http.StatusOK, struct {
		Version  string `json:"version"`
		ChainID  string `json:"chain_id"`
		Height   int64  `json:"height"`
		Deployer string `json:"deployer"`
	}{
		Version:  weave.Version,
		ChainID:  s.Ledger.ChainID(),
		Height:   s.Ledger.Height(),
		Deployer: s.Ledger.Deployer(),
	})
}

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	JSONResp(w, http.StatusOK, struct {
		Operations []contract.OperationInfo `json:"operations"`
	}{
		Operations: contract.Operations(),
	})
}

// CallRequest is the body of a call request. The caller is always the
// authenticated principal.
type CallRequest struct {
	Args []interface{} `json:"args"`
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		JSONErr(w, http.StatusBadRequest, "Request body must be a JSON encoded call.")
		return
	}
	caller := Principal(r.Context())
	res := s.Ledger.Call(caller, chi.URLParam(r, "operation"), req.Args...)
	if caller == "" && res.Error == contract.CodeUnauthorized {
		JSONResp(w, http.StatusUnauthorized, res)
		return
	}
	s.respond(w, res)
}

func (s *Server) handleDrug(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "drugID"), 10, 64)
	if err != nil {
		JSONErr(w, http.StatusBadRequest, "Drug ID must be an integer.")
		return
	}
	s.respond(w, s.Ledger.Call(Principal(r.Context()), "get-drug-info", id))
}

func (s *Server) handleParticipant(w http.ResponseWriter, r *http.Request) {
	principal := chi.URLParam(r, "principal")
	s.respond(w, s.Ledger.Call(Principal(r.Context()), "get-participant-info", principal))
}

func (s *Server) respond(w http.ResponseWriter, res contract.Result) {
	JSONResp(w, StatusCode(res), res)
}

// StatusCode returns the HTTP status that represents given call result.
func StatusCode(res contract.Result) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.Error {
	case contract.CodeNotFound, contract.CodeUnknownOperation:
		return http.StatusNotFound
	case contract.CodeUnauthorized:
		return http.StatusForbidden
	case contract.CodeAlreadyRegistered:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// JSONResp write content as JSON encoded response.
func JSONResp(w http.ResponseWriter, code int, content interface{}) {
	b, err := json.MarshalIndent(content, "", "\t")
	if err != nil {
		code = http.StatusInternalServerError
		b = []byte(`{"errors":["Internal Server Error"]}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

// JSONErr write single error as JSON encoded response.
func JSONErr(w http.ResponseWriter, code int, errText string) {
	JSONResp(w, code, struct {
		Errors []string `json:"errors"`
	}{
		Errors: []string{errText},
	})
}
