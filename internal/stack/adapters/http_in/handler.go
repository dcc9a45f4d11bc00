// Package httpin exposes the stack and helmsman use cases over a JSON REST
// API.
package httpin

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/nathantilsley/chart-stack/internal/stack/domain"
	"github.com/nathantilsley/chart-stack/internal/stack/ports"
)

const maxBodyBytes = 1 << 20

// UseCases groups the driving ports served by the handler.
type UseCases struct {
	Stack      ports.StackUseCase
	Repos      ports.RepositoryUseCase
	Charts     ports.ChartUseCase
	Namespaces ports.NamespaceUseCase
}

// Handler serves the REST API.
type Handler struct {
	uc     UseCases
	token  []byte
	logger *slog.Logger
}

// NewHandler creates a Handler. An empty token disables authentication.
func NewHandler(uc UseCases, token string, logger *slog.Logger) *Handler {
	return &Handler{uc: uc, token: []byte(token), logger: logger}
}

// Routes returns the instrumented router. /health is never authenticated.
func (h *Handler) Routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/v1/stack", h.getStack)
	api.HandleFunc("POST /api/v1/stack/apply", h.applyStack)

	api.HandleFunc("GET /api/v1/repositories", h.listRepositories)
	api.HandleFunc("POST /api/v1/repositories", h.addRepository)

	api.HandleFunc("GET /api/v1/charts", h.listCharts)
	api.HandleFunc("POST /api/v1/charts", h.createChart)
	api.HandleFunc("GET /api/v1/charts/{id}", h.getChart)
	api.HandleFunc("PUT /api/v1/charts/{id}", h.updateChart)
	api.HandleFunc("DELETE /api/v1/charts/{id}", h.deleteChart)
	api.HandleFunc("POST /api/v1/charts/{id}/rollback", h.rollbackChart)

	api.HandleFunc("GET /api/v1/namespaces", h.listNamespaces)
	api.HandleFunc("POST /api/v1/namespaces", h.createNamespace)
	api.HandleFunc("GET /api/v1/namespaces/{name}", h.getNamespace)
	api.HandleFunc("DELETE /api/v1/namespaces/{name}", h.deleteNamespace)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok\n")
	})
	mux.Handle("/api/", h.authenticate(api))

	return otelhttp.NewHandler(mux, "chart-stack",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func (h *Handler) authenticate(next http.Handler) http.Handler {
	if len(h.token) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), h.token) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- stack ---

func (h *Handler) getStack(w http.ResponseWriter, r *http.Request) {
	report, err := h.uc.Stack.Validate(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stackBody{
		Descriptor: toDescriptorBody(report.Descriptor),
		Valid:      report.Valid(),
		Errors:     nonNil(report.Errors),
	})
}

func (h *Handler) applyStack(w http.ResponseWriter, r *http.Request) {
	opts := domain.ApplyOptions{Only: r.URL.Query().Get("only")}
	if v := r.URL.Query().Get("dryRun"); v != "" {
		dry, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "dryRun must be a boolean"})
			return
		}
		opts.DryRun = dry
	}

	results, err := h.uc.Stack.Apply(r.Context(), opts)
	if err != nil {
		h.writeError(w, err)
		return
	}

	body := applyBody{DryRun: opts.DryRun, Results: make([]applyResultBody, 0, len(results))}
	body.Unchanged, body.Changed, body.Errors = domain.CountByStatus(results)
	for _, res := range results {
		body.Results = append(body.Results, applyResultBody{
			Chart:     res.ChartKey,
			Release:   res.Release,
			Namespace: res.Namespace,
			Status:    res.Status.String(),
			Installed: res.Installed,
			Diff:      res.Diff,
			Summary:   res.Summary,
		})
	}
	writeJSON(w, http.StatusOK, body)
}

// --- repositories ---

func (h *Handler) listRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := h.uc.Repos.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]repositoryBody, 0, len(repos))
	for _, repo := range repos {
		out = append(out, repositoryBody(repo))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) addRepository(w http.ResponseWriter, r *http.Request) {
	var req repositoryBody
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.uc.Repos.Add(r.Context(), req.Name, req.URL); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// --- charts ---

func (h *Handler) listCharts(w http.ResponseWriter, r *http.Request) {
	releases, err := h.uc.Charts.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]chartBody, 0, len(releases))
	for _, rel := range releases {
		out = append(out, toChartBody(rel))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) createChart(w http.ResponseWriter, r *http.Request) {
	var req createChartBody
	if !h.decode(w, r, &req) {
		return
	}
	if req.RepoName == "" || req.ChartName == "" {
		h.writeError(w, &domain.ValidationError{
			Subject: "chart request",
			Err:     errors.New("repo_name and chart_name are required"),
		})
		return
	}
	rel, err := h.uc.Charts.Create(r.Context(), domain.InstallRequest{
		ReleaseName: req.ReleaseName,
		Chart:       req.RepoName + "/" + req.ChartName,
		Namespace:   req.Namespace,
		Version:     req.Version,
		Values:      req.Values,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toChartBody(rel))
}

func (h *Handler) getChart(w http.ResponseWriter, r *http.Request) {
	rel, err := h.uc.Charts.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChartBody(rel))
}

func (h *Handler) updateChart(w http.ResponseWriter, r *http.Request) {
	var req updateChartBody
	if !h.decode(w, r, &req) {
		return
	}
	rel, err := h.uc.Charts.Update(r.Context(), r.PathValue("id"), req.Values)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChartBody(rel))
}

func (h *Handler) deleteChart(w http.ResponseWriter, r *http.Request) {
	if err := h.uc.Charts.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rollbackChart(w http.ResponseWriter, r *http.Request) {
	var req rollbackBody
	if !h.decodeOptional(w, r, &req) {
		return
	}
	rel, err := h.uc.Charts.Rollback(r.Context(), r.PathValue("id"), req.Revision)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChartBody(rel))
}

// --- namespaces ---

func (h *Handler) listNamespaces(w http.ResponseWriter, r *http.Request) {
	nss, err := h.uc.Namespaces.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]namespaceBody, 0, len(nss))
	for _, ns := range nss {
		out = append(out, namespaceBody(ns))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) createNamespace(w http.ResponseWriter, r *http.Request) {
	var req namespaceBody
	if !h.decode(w, r, &req) {
		return
	}
	ns, err := h.uc.Namespaces.Create(r.Context(), req.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, namespaceBody(ns))
}

func (h *Handler) getNamespace(w http.ResponseWriter, r *http.Request) {
	ns, err := h.uc.Namespaces.Get(r.Context(), r.PathValue("name"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, namespaceBody(ns))
}

func (h *Handler) deleteNamespace(w http.ResponseWriter, r *http.Request) {
	if err := h.uc.Namespaces.Delete(r.Context(), r.PathValue("name")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	return h.decodeJSON(w, r, v, false)
}

// decodeOptional leaves v untouched when the body is empty, whether or not
// the client sent a Content-Length.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	return h.decodeJSON(w, r, v, true)
}

func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
	return false
}

// writeError maps domain errors to status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case domain.IsNotFound(err):
		status = http.StatusNotFound
	case domain.IsExists(err):
		status = http.StatusConflict
	case domain.IsValidation(err):
		status = http.StatusUnprocessableEntity
	default:
		h.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
