package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"hotelqa/internal/agent"
	"hotelqa/internal/chart"
	"hotelqa/internal/sqlfix"
	"hotelqa/internal/store"
)

const defaultHistoryLimit = 20

// APIHandler handles JSON API requests
type APIHandler struct {
	DB        *store.DB
	Assistant *agent.Assistant
	Logger    *slog.Logger
}

// AskRequest is the body of POST /api/ask.
type AskRequest struct {
	Question string `json:"question"`
}

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	SQL string `json:"sql"`
}

// Schema returns every table with its columns and the prompt rendering.
func (h *APIHandler) Schema(w http.ResponseWriter, r *http.Request) {
	tables, err := h.DB.Schema(r.Context())
	if err != nil {
		h.Logger.Error("Schema error", "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "Failed to read schema",
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"tables": tables,
		"prompt": store.RenderSchema(tables),
	})
}

// Tables lists table names.
func (h *APIHandler) Tables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.DB.Tables(r.Context())
	if err != nil {
		h.Logger.Error("Tables error", "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "Failed to list tables",
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"tables": tables,
		"count":  len(tables),
	})
}

// Ask answers a natural-language question.
func (h *APIHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"error": "Invalid JSON body",
		})
		return
	}

	ans, err := h.Assistant.Ask(r.Context(), req.Question)
	if err != nil {
		status, body := askError(ans, err)
		if status >= http.StatusInternalServerError {
			h.Logger.Error("Ask error", "error", err, "question", req.Question)
		}
		respondJSON(w, status, body)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"answer": ans,
		"chart":  chart.JSConfig(ans.Chart),
	})
}

// askError maps an Assistant.Ask failure to a status and body. A failed
// statement still reports the SQL that was generated.
func askError(ans *agent.Answer, err error) (int, map[string]any) {
	body := map[string]any{"error": err.Error()}

	var qerr *agent.QueryError
	switch {
	case errors.Is(err, agent.ErrEmptyQuestion):
		return http.StatusBadRequest, body
	case errors.As(err, &qerr):
		body["sql"] = qerr.SQL
		if ans != nil {
			body["raw_output"] = ans.Raw
		}
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, agent.ErrNoGenerator):
		return http.StatusServiceUnavailable, body
	default:
		return http.StatusBadGateway, body
	}
}

// Query runs SQL supplied by the caller after dialect rewriting.
func (h *APIHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SQL == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"error": "Body must be JSON with a non-empty sql field",
		})
		return
	}

	sql := sqlfix.Normalize(req.SQL)
	res, err := h.DB.Query(r.Context(), sql)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, store.ErrWriteStatement) {
			status = http.StatusForbidden
		}
		respondJSON(w, status, map[string]string{
			"error": err.Error(),
			"sql":   sql,
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"sql":    sql,
		"result": res,
		"chart":  chart.JSConfig(chart.Pick(res)),
	})
}

// History returns the most recent questions, newest first.
func (h *APIHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}

	entries, err := h.DB.History(r.Context(), limit)
	if err != nil {
		h.Logger.Error("History error", "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "Failed to load history",
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"history": entries,
		"count":   len(entries),
	})
}

// respondJSON is a helper function to send JSON responses
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("JSON encoding error", "error", err)
	}
}
