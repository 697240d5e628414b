package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/tommybebe/novel-to-toon/pkg/models"
	"github.com/tommybebe/novel-to-toon/pkg/report"
)

// Tool argument structs.

type reportArgs struct {
	Path string `json:"path"`
}

type summaryArgs struct {
	By string `json:"by"`
}

type priceArgs struct {
	Model      string  `json:"model"`
	Resolution string  `json:"resolution"`
	Batch      bool    `json:"batch"`
	Count      int     `json:"count"`
	Megapixels float64 `json:"megapixels"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"tooncost_report":   handleReport,
	"tooncost_budget":   handleBudget,
	"tooncost_summary":  handleSummary,
	"tooncost_sessions": handleSessions,
	"tooncost_price":    handlePrice,
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "tooncost_report",
		Description: "Show the spend summary of an exported session report: totals, per-model and per-phase breakdowns, call outcomes.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Report file to read (optional, defaults to the configured report path)",
				},
			},
		},
	},
	{
		Name:        "tooncost_budget",
		Description: "Classify a session report against the configured session and per-phase budget ceilings (ok, warning, critical).",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Report file to classify (optional, defaults to the configured report path)",
				},
			},
		},
	},
	{
		Name:        "tooncost_summary",
		Description: "Show archived spend totals across imported sessions, grouped by model, phase, or day.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"by": map[string]any{
					"type":        "string",
					"description": "Grouping key: model, phase, or day (optional, defaults to model)",
				},
			},
		},
	},
	{
		Name:        "tooncost_sessions",
		Description: "List sessions imported into the report archive.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "tooncost_price",
		Description: "Quote the price of image generations for a model, resolution tier, and batch mode before running them.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"model"},
			"properties": map[string]any{
				"model": map[string]any{
					"type":        "string",
					"description": "Model name to price",
				},
				"resolution": map[string]any{
					"type":        "string",
					"description": "Resolution tier: 1K, 2K, or 4K (optional, defaults to 1K)",
				},
				"batch": map[string]any{
					"type":        "boolean",
					"description": "Price at the batch-mode discount (optional)",
				},
				"count": map[string]any{
					"type":        "integer",
					"description": "Number of generations to price (optional, defaults to 1)",
				},
				"megapixels": map[string]any{
					"type":        "number",
					"description": "Output size in megapixels for per-megapixel models (optional)",
				},
			},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func (s *Server) loadReport(rawArgs json.RawMessage) (*report.Report, string, error) {
	var args reportArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	path := args.Path
	if path == "" {
		path = s.reportPath
	}
	if path == "" {
		return nil, "", errNoReportPath
	}
	rep, err := report.Load(path)
	return rep, path, err
}

var errNoReportPath = errors.New("no report path configured and none given")

func handleReport(_ context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	rep, path, err := s.loadReport(rawArgs)
	if err != nil {
		return errorResult("Error reading report: " + err.Error())
	}
	return textResult("Report: " + path + "\n\n" + formatSpendSummary(rep.Summary))
}

func handleBudget(_ context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.monitor == nil {
		return textResult("Budget monitoring is not configured.")
	}
	rep, _, err := s.loadReport(rawArgs)
	if err != nil {
		return errorResult("Error reading report: " + err.Error())
	}
	led := report.Restore(rep, s.table)

	// Scopes without a ceiling are not watched and add no information.
	var watched []models.BudgetStatus
	for _, st := range s.monitor.Statuses(led) {
		if st.CeilingUSD > 0 {
			watched = append(watched, st)
		}
	}
	return textResult(formatBudgetStatuses(watched))
}

func handleSummary(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.archive == nil {
		return textResult("Report archive is not configured.")
	}
	var args summaryArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}

	var (
		rows   []models.ArchiveTotal
		header string
		err    error
	)
	switch args.By {
	case "", "model":
		header = "Model"
		rows, err = s.archive.TotalsByModel(ctx)
	case "phase":
		header = "Phase"
		rows, err = s.archive.TotalsByPhase(ctx)
	case "day":
		header = "Day"
		rows, err = s.archive.TotalsByDay(ctx)
	default:
		return errorResult("Unknown grouping (use model, phase, or day): " + args.By)
	}
	if err != nil {
		return errorResult("Error fetching archive totals: " + err.Error())
	}

	grand, err := s.archive.GrandTotal(ctx)
	if err != nil {
		return errorResult("Error fetching archive totals: " + err.Error())
	}
	return textResult(formatTotals(header, rows, grand))
}

func handleSessions(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.archive == nil {
		return textResult("Report archive is not configured.")
	}
	sessions, err := s.archive.Sessions(ctx)
	if err != nil {
		return errorResult("Error fetching sessions: " + err.Error())
	}
	return textResult(formatSessions(sessions))
}

func handlePrice(_ context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args priceArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.Model == "" {
		return errorResult("model is required")
	}

	tier := models.ResolutionTier(strings.ToUpper(args.Resolution))
	if tier == "" {
		tier = models.Resolution1K
	}
	count := args.Count
	if count < 1 {
		count = 1
	}

	q := s.table.Quote(args.Model, tier, args.Batch, args.Megapixels)
	return textResult(formatQuote(args.Model, tier, args.Batch, count, q))
}
