package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/loopgrid/internal/habitservice"
	"github.com/starford/loopgrid/internal/retention"
	"github.com/starford/loopgrid/internal/testutil"
)

var june1 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

// testEnv sets up a temp SQLite DB, service, and router for testing.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*habitservice.Service, http.Handler) {
	t.Helper()
	svc := habitservice.NewService(testutil.TestStore(t))
	return svc, NewRouter(svc, authToken != "", authToken, nil)
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createHabit(t *testing.T, router http.Handler, body map[string]any) Habit {
	t.Helper()
	w := do(t, router, http.MethodPost, "/habits", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var h Habit
	if err := json.Unmarshal(w.Body.Bytes(), &h); err != nil {
		t.Fatal(err)
	}
	return h
}

func TestCreateAndListHabits(t *testing.T) {
	_, router := testEnv(t, "")

	run := createHabit(t, router, map[string]any{"name": "Run"})
	water := createHabit(t, router, map[string]any{"name": "Water", "type": 1, "targetValue": 2, "unit": "l"})

	w := do(t, router, http.MethodGet, "/habits", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var habits []Habit
	_ = json.Unmarshal(w.Body.Bytes(), &habits)
	if len(habits) != 2 || habits[0].ID != run.ID || habits[1].ID != water.ID {
		t.Fatalf("habits = %+v", habits)
	}
	if habits[1].TargetValue != 2 || habits[1].Unit != "l" {
		t.Errorf("water = %+v", habits[1])
	}
}

func TestListHabits_EmptyIsArray(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/habits", nil)
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("empty list body = %q", w.Body.String())
	}
}

func TestCreateHabit_Invalid(t *testing.T) {
	_, router := testEnv(t, "")

	for _, body := range []map[string]any{
		{"name": ""},
		{"name": "Water", "targetValue": -3},
		{"name": "Odd", "type": 9},
	} {
		w := do(t, router, http.MethodPost, "/habits", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("create %v = %d, want 400", body, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/habits", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad JSON = %d, want 400", w.Code)
	}
}

func TestUpdateHabit(t *testing.T) {
	_, router := testEnv(t, "")
	h := createHabit(t, router, map[string]any{"name": "Run", "description": "5k"})

	w := do(t, router, http.MethodPatch, "/habits/"+itoa(h.ID), map[string]any{"name": "Jog", "archived": true})
	if w.Code != http.StatusOK {
		t.Fatalf("patch = %d, body = %s", w.Code, w.Body.String())
	}
	var got Habit
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Name != "Jog" || !got.Archived || got.Description != "5k" {
		t.Errorf("patched = %+v", got)
	}

	if w := do(t, router, http.MethodPatch, "/habits/999", map[string]any{"name": "x"}); w.Code != http.StatusNotFound {
		t.Errorf("patch missing = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodPatch, "/habits/abc", map[string]any{"name": "x"}); w.Code != http.StatusBadRequest {
		t.Errorf("patch bad id = %d, want 400", w.Code)
	}
}

func TestDeleteHabit(t *testing.T) {
	_, router := testEnv(t, "")
	h := createHabit(t, router, map[string]any{"name": "Run"})

	if w := do(t, router, http.MethodDelete, "/habits/"+itoa(h.ID), nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/habits/"+itoa(h.ID), nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestReorderHabits(t *testing.T) {
	_, router := testEnv(t, "")
	a := createHabit(t, router, map[string]any{"name": "A"})
	b := createHabit(t, router, map[string]any{"name": "B"})

	if w := do(t, router, http.MethodPut, "/habits/order", ReorderRequest{IDs: []int64{b.ID, a.ID}}); w.Code != http.StatusNoContent {
		t.Fatalf("reorder = %d, body = %s", w.Code, w.Body.String())
	}
	var habits []Habit
	_ = json.Unmarshal(do(t, router, http.MethodGet, "/habits", nil).Body.Bytes(), &habits)
	if habits[0].Name != "B" || habits[1].Name != "A" {
		t.Errorf("order = %s, %s", habits[0].Name, habits[1].Name)
	}

	if w := do(t, router, http.MethodPut, "/habits/order", ReorderRequest{IDs: []int64{a.ID}}); w.Code != http.StatusBadRequest {
		t.Errorf("partial reorder = %d, want 400", w.Code)
	}
}

func TestSetDayAndRetention(t *testing.T) {
	_, router := testEnv(t, "")
	run := createHabit(t, router, map[string]any{"name": "Run"})
	water := createHabit(t, router, map[string]any{"name": "Water", "type": 1, "targetValue": 2})

	for _, body := range []map[string]any{
		{"habitId": run.ID, "timestamp": june1 / 1000, "value": 2},
		{"habitId": water.ID, "timestamp": june1 + 3_600_000, "value": 1500},
		{"habitId": water.ID, "timestamp": june1 + 86_400_000, "value": 2000, "notes": "two bottles"},
	} {
		if w := do(t, router, http.MethodPost, "/repetitions", body); w.Code != http.StatusNoContent {
			t.Fatalf("set day %v = %d, body = %s", body, w.Code, w.Body.String())
		}
	}

	w := do(t, router, http.MethodGet, "/retention?from="+itoa(june1)+"&to="+itoa(june1+2*86_400_000), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("retention = %d", w.Code)
	}
	var got map[string]map[string]retention.DayRecord
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]map[string]retention.DayRecord{
		itoa(run.ID): {"2024-06-01": {Status: retention.StatusDone, RawValue: 2}},
		itoa(water.ID): {
			"2024-06-01": {Status: retention.StatusPartial, RawValue: 1500},
			"2024-06-02": {Status: retention.StatusDone, RawValue: 2000},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("retention (-want +got):\n%s", diff)
	}

	var reps []Repetition
	_ = json.Unmarshal(do(t, router, http.MethodGet, "/repetitions?from="+itoa(june1), nil).Body.Bytes(), &reps)
	if len(reps) != 3 || reps[0].Timestamp != june1 {
		t.Errorf("repetitions = %+v", reps)
	}
}

func TestSetDay_BadRequests(t *testing.T) {
	_, router := testEnv(t, "")
	h := createHabit(t, router, map[string]any{"name": "Run"})

	cases := []struct {
		name string
		body any
		want int
	}{
		{"missing value", map[string]any{"habitId": h.ID, "timestamp": june1}, http.StatusBadRequest},
		{"missing timestamp", map[string]any{"habitId": h.ID, "value": 2}, http.StatusBadRequest},
		{"string value", map[string]any{"habitId": h.ID, "timestamp": june1, "value": "NaN"}, http.StatusBadRequest},
		{"negative value", map[string]any{"habitId": h.ID, "timestamp": june1, "value": -2}, http.StatusBadRequest},
		{"unknown habit", map[string]any{"habitId": 404, "timestamp": june1, "value": 2}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if w := do(t, router, http.MethodPost, "/repetitions", tc.body); w.Code != tc.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestClearDay(t *testing.T) {
	_, router := testEnv(t, "")
	h := createHabit(t, router, map[string]any{"name": "Run"})
	_ = do(t, router, http.MethodPost, "/repetitions", map[string]any{"habitId": h.ID, "timestamp": june1, "value": 2})

	target := "/repetitions?habitId=" + itoa(h.ID) + "&timestamp=" + itoa(june1+5_000)
	if w := do(t, router, http.MethodDelete, target, nil); w.Code != http.StatusNoContent {
		t.Fatalf("clear = %d, body = %s", w.Code, w.Body.String())
	}
	var reps []Repetition
	_ = json.Unmarshal(do(t, router, http.MethodGet, "/repetitions", nil).Body.Bytes(), &reps)
	if len(reps) != 0 {
		t.Errorf("repetitions after clear = %+v", reps)
	}

	if w := do(t, router, http.MethodDelete, "/repetitions?habitId=x", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad clear = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/repetitions?habitId=404&timestamp=1", nil); w.Code != http.StatusNotFound {
		t.Errorf("clear unknown = %d, want 404", w.Code)
	}
}

func TestHabitStats(t *testing.T) {
	_, router := testEnv(t, "")
	h := createHabit(t, router, map[string]any{"name": "Run"})
	for i := int64(0); i < 3; i++ {
		_ = do(t, router, http.MethodPost, "/repetitions", map[string]any{"habitId": h.ID, "timestamp": june1 + i*86_400_000, "value": 2})
	}

	target := "/habits/" + itoa(h.ID) + "/stats?from=" + itoa(june1) + "&to=" + itoa(june1+7*86_400_000)
	w := do(t, router, http.MethodGet, target, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats = %d, body = %s", w.Code, w.Body.String())
	}
	var st HabitStats
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if st.Days != 7 || st.Done != 3 || st.Missed != 4 || st.BestStreak != 3 {
		t.Errorf("stats = %+v", st)
	}

	if w := do(t, router, http.MethodGet, "/habits/404/stats", nil); w.Code != http.StatusNotFound {
		t.Errorf("stats unknown = %d, want 404", w.Code)
	}
}

func uploadDB(t *testing.T, router http.Handler, field string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, "upload.db")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write(content)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/import-db", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestExportImportRoundTrip(t *testing.T) {
	_, router := testEnv(t, "")
	h := createHabit(t, router, map[string]any{"name": "Run"})
	_ = do(t, router, http.MethodPost, "/repetitions", map[string]any{"habitId": h.ID, "timestamp": june1, "value": 2})

	w := do(t, router, http.MethodGet, "/export-db", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export = %d, body = %s", w.Code, w.Body.String())
	}
	if etag := w.Header().Get("ETag"); len(etag) != 66 {
		t.Errorf("etag = %q", etag)
	}
	cd := w.Header().Get("Content-Disposition")
	if !strings.Contains(cd, `filename="Loop_Export_`) || !strings.HasSuffix(cd, `.db"`) {
		t.Errorf("content-disposition = %q", cd)
	}
	exported := w.Body.Bytes()
	if !bytes.HasPrefix(exported, []byte("SQLite format 3")) {
		t.Fatalf("export is not a SQLite file")
	}

	createHabit(t, router, map[string]any{"name": "Extra"})

	w = uploadDB(t, router, "file", exported)
	if w.Code != http.StatusOK {
		t.Fatalf("import = %d, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "1 habits, 1 repetitions") {
		t.Errorf("import summary = %q", w.Body.String())
	}

	var habits []Habit
	_ = json.Unmarshal(do(t, router, http.MethodGet, "/habits", nil).Body.Bytes(), &habits)
	if len(habits) != 1 || habits[0].Name != "Run" {
		t.Errorf("habits after import = %+v", habits)
	}
}

func TestImport_Rejects(t *testing.T) {
	_, router := testEnv(t, "")

	if w := uploadDB(t, router, "file", []byte("definitely not sqlite")); w.Code != http.StatusBadRequest {
		t.Errorf("garbage import = %d, want 400 (body %s)", w.Code, w.Body.String())
	}
	if w := uploadDB(t, router, "wrong", []byte("x")); w.Code != http.StatusBadRequest {
		t.Errorf("missing field = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	raw, _ := json.Marshal(map[string]any{"name": "Run"})
	req := httptest.NewRequest(http.MethodPost, "/habits", bytes.NewReader(raw))
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("authed create = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingOrWrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	for _, header := range []string{"", "Bearer wrong", "secret123"} {
		req := httptest.NewRequest(http.MethodGet, "/habits", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("header %q = %d, want 401", header, w.Code)
		}
	}
}

func TestAuthMiddleware_QueryToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	if w := do(t, router, http.MethodGet, "/habits?access_token=secret123", nil); w.Code != http.StatusOK {
		t.Errorf("GET with query token = %d, want 200", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/habits?access_token=secret123", map[string]any{"name": "x"}); w.Code != http.StatusUnauthorized {
		t.Errorf("POST with query token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/habits", nil); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

// testEnvWithSSE creates a router with a dummy SSE handler to test auth on /events.
func testEnvWithSSE(t *testing.T, authEnabled bool, token string) http.Handler {
	t.Helper()
	svc := habitservice.NewService(testutil.TestStore(t))

	// Minimal SSE handler stub: writes headers and blocks until context done.
	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
	return NewRouter(svc, authEnabled, token, sseHandler)
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testEnvWithSSE(t, true, "secret")

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testEnvWithSSE(t, true, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events?access_token=tok", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
