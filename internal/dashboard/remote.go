package dashboard

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/starford/loopgrid/internal/habitservice"
	"github.com/starford/loopgrid/internal/models"
	"github.com/starford/loopgrid/internal/parser"
)

// Remote is the authoritative store a Board reads from and writes to.
type Remote interface {
	Habits(ctx context.Context) ([]models.Habit, error)
	Repetitions(ctx context.Context, from, to int64) ([]models.Repetition, error)
	SetDay(ctx context.Context, habitID, dayTs, raw int64) error
	ClearDay(ctx context.Context, habitID, dayTs int64) error
}

// HTTPRemote talks to the Loopgrid REST API. Payloads are decoded through the
// parser package, so older servers with different field names still work.
type HTTPRemote struct {
	base   string
	token  string
	client *http.Client
}

// NewHTTPRemote returns a remote for the server at base (e.g. http://localhost:8080).
// A nil client means http.DefaultClient.
func NewHTTPRemote(base, token string, client *http.Client) *HTTPRemote {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRemote{base: strings.TrimRight(base, "/"), token: token, client: client}
}

// Habits fetches every habit.
func (r *HTTPRemote) Habits(ctx context.Context) ([]models.Habit, error) {
	body, err := r.do(ctx, http.MethodGet, "/api/habits", nil)
	if err != nil {
		return nil, err
	}
	return parser.ParseHabits(body)
}

// Repetitions fetches the repetitions in [from, to).
func (r *HTTPRemote) Repetitions(ctx context.Context, from, to int64) ([]models.Repetition, error) {
	q := url.Values{}
	q.Set("from", strconv.FormatInt(from, 10))
	q.Set("to", strconv.FormatInt(to, 10))
	body, err := r.do(ctx, http.MethodGet, "/api/repetitions?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return parser.ParseRepetitions(body)
}

// SetDay replaces the habit's value on the day containing dayTs.
func (r *HTTPRemote) SetDay(ctx context.Context, habitID, dayTs, raw int64) error {
	payload, err := json.Marshal(map[string]int64{"habitId": habitID, "timestamp": dayTs, "value": raw})
	if err != nil {
		return err
	}
	_, err = r.do(ctx, http.MethodPost, "/api/repetitions", payload)
	return err
}

// ClearDay removes the habit's value on the day containing dayTs.
func (r *HTTPRemote) ClearDay(ctx context.Context, habitID, dayTs int64) error {
	q := url.Values{}
	q.Set("habitId", strconv.FormatInt(habitID, 10))
	q.Set("timestamp", strconv.FormatInt(dayTs, 10))
	_, err := r.do(ctx, http.MethodDelete, "/api/repetitions?"+q.Encode(), nil)
	return err
}

// Subscribe reads the server's event stream and calls fn with the type of every
// event until ctx is cancelled or the stream ends.
func (r *HTTPRemote) Subscribe(ctx context.Context, fn func(kind string)) error {
	req, err := r.request(ctx, http.MethodGet, "/api/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("dashboard: events: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dashboard: events: %s", resp.Status)
	}

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if kind, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
			fn(strings.TrimSpace(kind))
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return sc.Err()
}

func (r *HTTPRemote) request(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.base+path, rd)
	if err != nil {
		return nil, fmt.Errorf("dashboard: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	return req, nil
}

func (r *HTTPRemote) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := r.request(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dashboard: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dashboard: read %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return data, nil
}

// StatusError is returned for non-2xx API responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("dashboard: %s %s: %d %s %s", e.Method, e.Path, e.Code, http.StatusText(e.Code), e.Body)
}

// ServiceRemote adapts a local habit service, so a board can run directly on the
// database file without a server.
type ServiceRemote struct {
	Svc *habitservice.Service
}

func (r ServiceRemote) Habits(ctx context.Context) ([]models.Habit, error) {
	return r.Svc.ListHabits(ctx)
}

func (r ServiceRemote) Repetitions(ctx context.Context, from, to int64) ([]models.Repetition, error) {
	return r.Svc.ListRepetitions(ctx, from, to)
}

func (r ServiceRemote) SetDay(ctx context.Context, habitID, dayTs, raw int64) error {
	_, err := r.Svc.SetDay(ctx, habitID, dayTs, raw, "")
	return err
}

func (r ServiceRemote) ClearDay(ctx context.Context, habitID, dayTs int64) error {
	_, err := r.Svc.ClearDay(ctx, habitID, dayTs)
	return err
}
