package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"hotelqa/internal/agent"
)

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

// TestAPITables tests the table listing endpoint
func TestAPITables(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	defer cleanup()
	srv := httptest.NewServer(NewRouter(ServerConfig{DB: db, Assistant: StubAssistant(db, perPropertySQL)}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/tables")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	body := decodeBody(t, resp)
	if body["count"] != float64(2) {
		t.Errorf("Expected 2 tables, got %v", body["count"])
	}
	tables, _ := body["tables"].([]any)
	if len(tables) != 2 || tables[0] != "cleaning_orders" || tables[1] != "staff" {
		t.Errorf("Unexpected tables: %v", body["tables"])
	}
}

// TestAPISchema tests the schema endpoint
func TestAPISchema(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	defer cleanup()
	srv := httptest.NewServer(NewRouter(ServerConfig{DB: db, Assistant: StubAssistant(db, perPropertySQL)}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/schema")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body := decodeBody(t, resp)

	prompt, _ := body["prompt"].(string)
	if !strings.Contains(prompt, "Table `staff`: stf_id, stf_name, prop_id") {
		t.Errorf("Expected prompt schema, got %q", prompt)
	}
}

// TestAPIAsk tests question answering over HTTP
func TestAPIAsk(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	defer cleanup()

	testCases := []struct {
		name           string
		assistant      *agent.Assistant
		body           string
		expectedStatus int
		expectedSQL    string
	}{
		{
			name:           "Answered question with chart",
			assistant:      StubAssistant(db, perPropertySQL),
			body:           `{"question": "How many staff per property?"}`,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Empty question",
			assistant:      StubAssistant(db, perPropertySQL),
			body:           `{"question": "  "}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Invalid body",
			assistant:      StubAssistant(db, perPropertySQL),
			body:           `not json`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Generated SQL fails",
			assistant:      StubAssistant(db, "SELECT nope FROM staff;"),
			body:           `{"question": "broken"}`,
			expectedStatus: http.StatusUnprocessableEntity,
			expectedSQL:    "SELECT nope FROM staff;",
		},
		{
			name:           "No backend configured",
			assistant:      FailingAssistant(db, agent.ErrNoGenerator),
			body:           `{"question": "anything"}`,
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name:           "Backend error",
			assistant:      FailingAssistant(db, errors.New("503 from inference endpoint")),
			body:           `{"question": "anything"}`,
			expectedStatus: http.StatusBadGateway,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(NewRouter(ServerConfig{DB: db, Assistant: tc.assistant}))
			defer srv.Close()

			resp, err := http.Post(srv.URL+"/api/ask", "application/json", strings.NewReader(tc.body))
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != tc.expectedStatus {
				t.Fatalf("Expected %d, got %d", tc.expectedStatus, resp.StatusCode)
			}
			body := decodeBody(t, resp)

			if tc.expectedSQL != "" && body["sql"] != tc.expectedSQL {
				t.Errorf("Expected sql %q, got %v", tc.expectedSQL, body["sql"])
			}
			if tc.expectedStatus == http.StatusOK {
				if body["chart"] == nil {
					t.Error("Expected a chart for a numeric result")
				}
				answer, _ := body["answer"].(map[string]any)
				result, _ := answer["result"].(map[string]any)
				rows, _ := result["rows"].([]any)
				if len(rows) != 2 {
					t.Errorf("Expected 2 rows, got %v", result["rows"])
				}
			}
		})
	}
}

// TestAPIQuery tests ad hoc SQL execution
func TestAPIQuery(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	defer cleanup()
	srv := httptest.NewServer(NewRouter(ServerConfig{DB: db, Assistant: StubAssistant(db, perPropertySQL)}))
	defer srv.Close()

	testCases := []struct {
		name           string
		body           string
		expectedStatus int
		expectedSQL    string
	}{
		{
			name:           "Postgres style query is rewritten",
			body:           `{"sql": "SELECT s.stf_name FROM staff s WHERE s.stf_name ILIKE 'cn'"}`,
			expectedStatus: http.StatusOK,
			expectedSQL:    "SELECT s.stf_name FROM staff s WHERE LOWER(s.stf_name) LIKE LOWER('%cn%')",
		},
		{
			name:           "Write is refused",
			body:           `{"sql": "DELETE FROM staff"}`,
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "Write behind a CTE is refused",
			body:           `{"sql": "WITH x AS (SELECT 1) DELETE FROM staff"}`,
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "Second statement is refused",
			body:           `{"sql": "SELECT 1; DROP TABLE staff"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Bad SQL",
			body:           `{"sql": "SELECT FROM"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Missing sql",
			body:           `{}`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/query", "application/json", strings.NewReader(tc.body))
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != tc.expectedStatus {
				t.Fatalf("Expected %d, got %d", tc.expectedStatus, resp.StatusCode)
			}
			body := decodeBody(t, resp)
			if tc.expectedSQL != "" && body["sql"] != tc.expectedSQL {
				t.Errorf("Expected sql %q, got %v", tc.expectedSQL, body["sql"])
			}
		})
	}

	tables, err := db.Tables(context.Background())
	if err != nil {
		t.Fatalf("Failed to list tables: %v", err)
	}
	if len(tables) != 2 {
		t.Errorf("Expected staff and cleaning_orders to survive, got %v", tables)
	}
}

// TestAPIHistory tests that answered questions show up in history
func TestAPIHistory(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	defer cleanup()
	srv := httptest.NewServer(NewRouter(ServerConfig{DB: db, Assistant: StubAssistant(db, perPropertySQL)}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/ask", "application/json", strings.NewReader(`{"question": "staff per property"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/api/history?limit=5")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body := decodeBody(t, resp)
	if body["count"] != float64(1) {
		t.Fatalf("Expected 1 history entry, got %v", body["count"])
	}
	entry := body["history"].([]any)[0].(map[string]any)
	if entry["question"] != "staff per property" {
		t.Errorf("Unexpected question %v", entry["question"])
	}

	resp, err = http.Get(srv.URL + "/api/history?limit=zero")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for a bad limit, got %d", resp.StatusCode)
	}
}

// TestAPICORS tests that the API answers cross-origin requests
func TestAPICORS(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	defer cleanup()
	srv := httptest.NewServer(NewRouter(ServerConfig{
		DB:             db,
		Assistant:      StubAssistant(db, perPropertySQL),
		AllowedOrigins: []string{"https://ops.example.com"},
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/tables", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://ops.example.com" {
		t.Errorf("Expected allowed origin header, got %q", got)
	}
}

// TestIndexPage tests the HTML page
func TestIndexPage(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	defer cleanup()
	srv := httptest.NewServer(NewRouter(ServerConfig{DB: db, Assistant: StubAssistant(db, perPropertySQL)}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var b bytes.Buffer
	if _, err := b.ReadFrom(resp.Body); err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	for _, want := range []string{"<summary>cleaning_orders</summary>", "<summary>staff</summary>", `hx-post="/ask"`} {
		if !strings.Contains(b.String(), want) {
			t.Errorf("Expected page to contain %q", want)
		}
	}
}

// TestAskPartial tests the HTMX answer partial
func TestAskPartial(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	defer cleanup()

	testCases := []struct {
		name      string
		assistant *agent.Assistant
		contains  []string
	}{
		{
			name:      "Answer with table and chart",
			assistant: StubAssistant(db, perPropertySQL),
			contains:  []string{"GROUP BY prop_id", "<th>staff_count</th>", "<td>P2</td>", `id="chart"`},
		},
		{
			name:      "Failed SQL shows the error",
			assistant: StubAssistant(db, "SELECT nope FROM staff;"),
			contains:  []string{"SELECT nope FROM staff;", `class="error"`},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(NewRouter(ServerConfig{DB: db, Assistant: tc.assistant}))
			defer srv.Close()

			resp, err := http.PostForm(srv.URL+"/ask", url.Values{"question": {"staff per property"}})
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()

			var b bytes.Buffer
			if _, err := b.ReadFrom(resp.Body); err != nil {
				t.Fatalf("failed to read body: %v", err)
			}
			for _, want := range tc.contains {
				if !strings.Contains(b.String(), want) {
					t.Errorf("Expected partial to contain %q, got:\n%s", want, b.String())
				}
			}
		})
	}
}
