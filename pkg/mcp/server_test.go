package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tommybebe/novel-to-toon/pkg/budget"
	"github.com/tommybebe/novel-to-toon/pkg/ledger"
	"github.com/tommybebe/novel-to-toon/pkg/models"
	"github.com/tommybebe/novel-to-toon/pkg/pricing"
	"github.com/tommybebe/novel-to-toon/pkg/report"
)

// fakeArchive implements ArchiveStore for testing.
type fakeArchive struct {
	sessions []models.ArchiveSession
	byModel  []models.ArchiveTotal
	byPhase  []models.ArchiveTotal
	byDay    []models.ArchiveTotal
	grand    models.ArchiveTotal
}

func (f *fakeArchive) Sessions(_ context.Context) ([]models.ArchiveSession, error) {
	return f.sessions, nil
}
func (f *fakeArchive) TotalsByModel(_ context.Context) ([]models.ArchiveTotal, error) {
	return f.byModel, nil
}
func (f *fakeArchive) TotalsByPhase(_ context.Context) ([]models.ArchiveTotal, error) {
	return f.byPhase, nil
}
func (f *fakeArchive) TotalsByDay(_ context.Context) ([]models.ArchiveTotal, error) {
	return f.byDay, nil
}
func (f *fakeArchive) GrandTotal(_ context.Context) (models.ArchiveTotal, error) {
	return f.grand, nil
}

func sendAndReceive(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	line, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	line = append(line, '\n')

	var out bytes.Buffer
	if err := srv.Run(context.Background(), bytes.NewReader(line), &out); err != nil {
		t.Fatal(err)
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, out.String())
	}
	return resp
}

func callTool(t *testing.T, srv *Server, name string, args string) ToolCallResult {
	t.Helper()
	params, err := json.Marshal(ToolCallParams{Name: name, Arguments: json.RawMessage(args)})
	if err != nil {
		t.Fatal(err)
	}
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "tools/call",
		Params:  params,
	})
	if resp.Error != nil {
		t.Fatalf("unexpected rpc error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result ToolCallResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Content) == 0 {
		t.Fatal("expected content")
	}
	return result
}

// writeTestReport exports a one-call session report and returns its path.
func writeTestReport(t *testing.T) string {
	t.Helper()
	led := ledger.New("session-mcp-test", pricing.Default())
	_, err := led.Record(models.CallInput{
		Model:            "gemini-2.5-flash-image",
		OperationTag:     "panel_s1_p01",
		Phase:            "panel_generation",
		Resolution:       models.Resolution1K,
		PromptTokens:     80,
		OutputTokens:     900,
		GenerationTimeMS: 2000,
		Status:           models.StatusSuccess,
	})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "report.json")
	if err := report.Write(path, led, models.BudgetConfig{TotalUSD: 5}); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestInitialize(t *testing.T) {
	srv := New(nil, nil, nil, "", "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "initialize",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result InitializeResult
	json.Unmarshal(data, &result)

	if result.ProtocolVersion != "2024-11-05" {
		t.Errorf("protocol version = %s, want 2024-11-05", result.ProtocolVersion)
	}
	if result.ServerInfo.Name != "tooncost" {
		t.Errorf("server name = %s, want tooncost", result.ServerInfo.Name)
	}
}

func TestToolsList(t *testing.T) {
	srv := New(nil, nil, nil, "", "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`2`),
		Method:  "tools/list",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result ToolsListResult
	json.Unmarshal(data, &result)

	if len(result.Tools) != 5 {
		t.Errorf("got %d tools, want 5", len(result.Tools))
	}

	names := make(map[string]bool)
	for _, tool := range result.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"tooncost_report", "tooncost_budget", "tooncost_summary", "tooncost_sessions", "tooncost_price"} {
		if !names[want] {
			t.Errorf("missing tool: %s", want)
		}
	}
}

func TestToolCallPrice(t *testing.T) {
	srv := New(nil, pricing.Default(), nil, "", "test")

	result := callTool(t, srv, "tooncost_price", `{"model":"gemini-2.5-flash-image","resolution":"1k","count":5}`)
	text := result.Content[0].Text
	if !strings.Contains(text, "$0.0390") {
		t.Errorf("expected unit price in output, got: %s", text)
	}
	if !strings.Contains(text, "$0.1950") {
		t.Errorf("expected 5-image total in output, got: %s", text)
	}

	result = callTool(t, srv, "tooncost_price", `{"model":"gemini-3-pro-image-preview","resolution":"2K","batch":true}`)
	text = result.Content[0].Text
	if !strings.Contains(text, "$0.0670") || !strings.Contains(text, "(batch)") {
		t.Errorf("expected discounted batch price, got: %s", text)
	}
}

func TestToolCallPriceUnknownModel(t *testing.T) {
	srv := New(nil, pricing.Default(), nil, "", "test")

	result := callTool(t, srv, "tooncost_price", `{"model":"mystery-model-v9"}`)
	text := result.Content[0].Text
	if result.IsError {
		t.Fatalf("fallback pricing is not an error: %s", text)
	}
	if !strings.Contains(text, "$0.0500") || !strings.Contains(text, "fallback") {
		t.Errorf("expected flagged fallback rate, got: %s", text)
	}
}

func TestToolCallPriceMissingModel(t *testing.T) {
	srv := New(nil, pricing.Default(), nil, "", "test")

	result := callTool(t, srv, "tooncost_price", `{}`)
	if !result.IsError {
		t.Error("expected isError=true for missing model")
	}
}

func TestToolCallSummary(t *testing.T) {
	archive := &fakeArchive{
		byModel: []models.ArchiveTotal{
			{Key: "gemini-3-pro-image-preview", Calls: 2, CostUSD: 0.268},
			{Key: "gemini-2.5-flash-image", Calls: 5, CostUSD: 0.195},
		},
		grand: models.ArchiveTotal{Key: "all sessions", Calls: 7, CostUSD: 0.463},
	}
	srv := New(archive, nil, nil, "", "test")

	result := callTool(t, srv, "tooncost_summary", `{}`)
	text := result.Content[0].Text
	if !strings.Contains(text, "gemini-3-pro-image-preview") {
		t.Errorf("expected model rows, got: %s", text)
	}
	if !strings.Contains(text, "all sessions") || !strings.Contains(text, "$0.4630") {
		t.Errorf("expected grand total row, got: %s", text)
	}
}

func TestToolCallSummaryUnknownGrouping(t *testing.T) {
	srv := New(&fakeArchive{}, nil, nil, "", "test")

	result := callTool(t, srv, "tooncost_summary", `{"by":"operator"}`)
	if !result.IsError {
		t.Error("expected isError=true for unknown grouping")
	}
}

func TestToolCallArchiveNotConfigured(t *testing.T) {
	srv := New(nil, nil, nil, "", "test")

	for _, name := range []string{"tooncost_summary", "tooncost_sessions"} {
		result := callTool(t, srv, name, `{}`)
		if !strings.Contains(result.Content[0].Text, "not configured") {
			t.Errorf("%s: expected 'not configured', got: %s", name, result.Content[0].Text)
		}
	}
}

func TestToolCallBudgetNotConfigured(t *testing.T) {
	srv := New(nil, nil, nil, "", "test")

	result := callTool(t, srv, "tooncost_budget", `{}`)
	if !strings.Contains(result.Content[0].Text, "not configured") {
		t.Errorf("expected 'not configured', got: %s", result.Content[0].Text)
	}
}

func TestToolCallReport(t *testing.T) {
	path := writeTestReport(t)
	srv := New(nil, pricing.Default(), nil, path, "test")

	result := callTool(t, srv, "tooncost_report", `{}`)
	text := result.Content[0].Text
	if !strings.Contains(text, "session-mcp-test") {
		t.Errorf("expected session id in output, got: %s", text)
	}
	if !strings.Contains(text, "$0.0390") {
		t.Errorf("expected total cost in output, got: %s", text)
	}
	if !strings.Contains(text, "panel_generation") {
		t.Errorf("expected phase breakdown in output, got: %s", text)
	}
}

func TestToolCallReportMissingFile(t *testing.T) {
	srv := New(nil, nil, nil, filepath.Join(t.TempDir(), "absent.json"), "test")

	result := callTool(t, srv, "tooncost_report", `{}`)
	if !result.IsError {
		t.Error("expected isError=true for unreadable report")
	}
}

func TestToolCallBudget(t *testing.T) {
	path := writeTestReport(t)
	mon := budget.New(models.BudgetConfig{
		TotalUSD: 5,
		Phases:   map[string]float64{"panel_generation": 2.5},
	})
	srv := New(nil, pricing.Default(), mon, path, "test")

	result := callTool(t, srv, "tooncost_budget", `{}`)
	text := result.Content[0].Text
	if !strings.Contains(text, "session") || !strings.Contains(text, "panel_generation") {
		t.Errorf("expected session and phase scopes, got: %s", text)
	}
	if !strings.Contains(text, "OK") {
		t.Errorf("expected OK classification, got: %s", text)
	}
}

func TestNotificationNoResponse(t *testing.T) {
	srv := New(nil, nil, nil, "", "test")

	line, _ := json.Marshal(Request{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
	})
	line = append(line, '\n')

	var out bytes.Buffer
	_ = srv.Run(context.Background(), bytes.NewReader(line), &out)

	if out.Len() != 0 {
		t.Errorf("expected no output for notification, got: %s", out.String())
	}
}

func TestUnknownMethod(t *testing.T) {
	srv := New(nil, nil, nil, "", "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`9`),
		Method:  "unknown/method",
	})

	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	if resp.Error.Code != CodeMethodNotFound {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeMethodNotFound)
	}
}
