// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Loopgrid habit tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/loopgrid/internal/apperr"
	"github.com/starford/loopgrid/internal/dashboard"
	"github.com/starford/loopgrid/internal/habitservice"
	"github.com/starford/loopgrid/internal/models"
	"github.com/starford/loopgrid/internal/retention"
)

const contractURI = "loopgrid://value-contract"

// Server wraps the MCP server with Loopgrid tools.
type Server struct {
	mcp       *server.MCPServer
	svc       *habitservice.Service
	rangeDays int
	now       func() time.Time
}

// New creates a new MCP server with all Loopgrid tools registered. rangeDays is the
// default retention window when get_retention is called without dates.
func New(svc *habitservice.Service, rangeDays int) *Server {
	s := &Server{svc: svc, rangeDays: rangeDays, now: time.Now}

	s.mcp = server.NewMCPServer(
		"Loopgrid",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_habits",
		mcp.WithDescription("List all habits in display order, including archived ones."),
	), s.listHabits)

	s.mcp.AddTool(mcp.NewTool("get_retention",
		mcp.WithDescription("Per-habit, per-day status (done, partial, missed) over a date range. "+
			"Days with nothing recorded are omitted and read as missed. "+
			"Defaults to the current dashboard window."),
		mcp.WithString("from", mcp.Description("First day, YYYY-MM-DD (UTC)")),
		mcp.WithString("to", mcp.Description("Last day, YYYY-MM-DD (UTC), inclusive")),
	), s.getRetention)

	s.mcp.AddTool(mcp.NewTool("set_day",
		mcp.WithDescription("Record a habit's value for one day, replacing any previous value. "+
			"Yes/no habits take done; numeric habits take amount. See "+contractURI+"."),
		mcp.WithNumber("habit_id", mcp.Required(), mcp.Description("Habit id from list_habits")),
		mcp.WithString("date", mcp.Required(), mcp.Description("Day, YYYY-MM-DD (UTC)")),
		mcp.WithBoolean("done", mcp.Description("Yes/no habits: true marks done, false clears (default true)")),
		mcp.WithNumber("amount", mcp.Description("Numeric habits: amount in the habit's unit; 0 clears")),
	), s.setDay)

	s.mcp.AddTool(mcp.NewTool("clear_day",
		mcp.WithDescription("Remove a habit's value for one day."),
		mcp.WithNumber("habit_id", mcp.Required(), mcp.Description("Habit id from list_habits")),
		mcp.WithString("date", mcp.Required(), mcp.Description("Day, YYYY-MM-DD (UTC)")),
	), s.clearDay)

	s.mcp.AddTool(mcp.NewTool("habit_stats",
		mcp.WithDescription("Done/partial/missed counts, total and streaks for one habit. "+
			"Defaults to the 30 days up to today."),
		mcp.WithNumber("habit_id", mcp.Required(), mcp.Description("Habit id from list_habits")),
		mcp.WithString("from", mcp.Description("First day, YYYY-MM-DD (UTC)")),
		mcp.WithString("to", mcp.Description("Last day, YYYY-MM-DD (UTC), inclusive")),
	), s.habitStats)

	s.mcp.AddTool(mcp.NewTool("get_value_contract",
		mcp.WithDescription("Returns how day values are recorded and classified. "+
			"Call this before set_day if unsure how to encode a value."),
	), s.getValueContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Value Contract",
			mcp.WithResourceDescription("How habit day values are recorded and classified."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readValueContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listHabits(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	habits, err := s.svc.ListHabits(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(habits)
}

func (s *Server) getRetention(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, to := dashboard.Window(s.now(), s.rangeDays)
	from, to, err := dateRange(req, from, to)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m, err := s.svc.Retention(ctx, from, to)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(m)
}

func (s *Server) setDay(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	habitID, day, err := habitDay(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	h, err := s.svc.GetHabit(ctx, habitID)
	if err != nil {
		return toolError(err), nil
	}

	var raw int64
	if h.Type.Normalize() == models.HabitNumeric {
		amount, err := req.RequireFloat("amount")
		if err != nil {
			return mcp.NewToolResultError("amount is required for numeric habits"), nil
		}
		if amount < 0 {
			return mcp.NewToolResultError("amount must not be negative"), nil
		}
		if raw, err = retention.EncodeAmount(amount); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	} else if req.GetBool("done", true) {
		raw = retention.DoneRaw
	}

	if raw == 0 {
		return s.clear(ctx, habitID, day)
	}
	rep, err := s.svc.SetDay(ctx, habitID, day, raw, "")
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(rep)
}

func (s *Server) clearDay(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	habitID, day, err := habitDay(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.clear(ctx, habitID, day)
}

func (s *Server) clear(ctx context.Context, habitID, day int64) (*mcp.CallToolResult, error) {
	n, err := s.svc.ClearDay(ctx, habitID, day)
	if err != nil {
		return toolError(err), nil
	}
	key := retention.DayKey(day)
	if n == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("nothing recorded on %s", key)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("cleared: %s", key)), nil
}

func (s *Server) habitStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireFloat("habit_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	from, to, err := dateRange(req, 0, 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := s.svc.Stats(ctx, int64(id), from, to)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(st)
}

func (s *Server) getValueContract(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ValueContract), nil
}

func (s *Server) readValueContractResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     ValueContract,
		},
	}, nil
}

// habitDay reads the habit_id and date arguments.
func habitDay(req mcp.CallToolRequest) (int64, int64, error) {
	id, err := req.RequireFloat("habit_id")
	if err != nil {
		return 0, 0, err
	}
	date, err := req.RequireString("date")
	if err != nil {
		return 0, 0, err
	}
	day, err := retention.ParseDayKey(date)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid date %q, want YYYY-MM-DD", date)
	}
	return int64(id), day, nil
}

// dateRange reads optional from/to day arguments; to is inclusive and becomes the
// exclusive end of that day. Missing arguments keep the defaults.
func dateRange(req mcp.CallToolRequest, from, to int64) (int64, int64, error) {
	if v := req.GetString("from", ""); v != "" {
		day, err := retention.ParseDayKey(v)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid from %q, want YYYY-MM-DD", v)
		}
		from = day
	}
	if v := req.GetString("to", ""); v != "" {
		day, err := retention.ParseDayKey(v)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid to %q, want YYYY-MM-DD", v)
		}
		to = day + int64(24*time.Hour/time.Millisecond)
	}
	if from > 0 && to > 0 && from >= to {
		return 0, 0, errors.New("from must be before to")
	}
	return from, to, nil
}

func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("habit not found")
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
