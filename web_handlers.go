package main

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"hotelqa/internal/agent"
	"hotelqa/internal/chart"
	"hotelqa/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

// WebHandler handles HTMX HTML requests
type WebHandler struct {
	DB        *store.DB
	Assistant *agent.Assistant
	Logger    *slog.Logger
	templates *template.Template
}

// NewWebHandler creates a new WebHandler with parsed templates
func NewWebHandler(db *store.DB, assistant *agent.Assistant, logger *slog.Logger) *WebHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	tmpl := template.Must(template.ParseFS(templateFS, "templates/*.html"))
	return &WebHandler{
		DB:        db,
		Assistant: assistant,
		Logger:    logger,
		templates: tmpl,
	}
}

// IndexPage renders the question page with the schema alongside.
func (h *WebHandler) IndexPage(w http.ResponseWriter, r *http.Request) {
	tables, err := h.DB.Schema(r.Context())
	if err != nil {
		h.Logger.Error("Schema error", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	data := map[string]any{
		"Title":  "hotelqa",
		"Tables": tables,
	}

	if err := h.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		h.Logger.Error("Template error", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// AskPartial answers the submitted question and returns the answer partial.
// Failures render in the partial too, so the page shows them in place.
func (h *WebHandler) AskPartial(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	ans, err := h.Assistant.Ask(r.Context(), r.FormValue("question"))
	data := map[string]any{"Answer": ans}
	if err != nil {
		var qerr *agent.QueryError
		if !errors.As(err, &qerr) && !errors.Is(err, agent.ErrEmptyQuestion) {
			h.Logger.Error("Ask error", "error", err)
		}
		data["Error"] = err.Error()
	}
	if ans != nil && ans.Result != nil {
		data["Rows"] = ans.Result.Strings()
	}
	if ans != nil && ans.Chart != nil {
		encoded, jsonErr := json.Marshal(chart.JSConfig(ans.Chart))
		if jsonErr == nil {
			data["ChartJSON"] = string(encoded)
		}
	}

	if err := h.templates.ExecuteTemplate(w, "answer.html", data); err != nil {
		h.Logger.Error("Template error", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
