package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"example.com/swimrun/internal/auth"
	"example.com/swimrun/internal/domain"
)

type mockRepo struct {
	records []domain.SessionRecord
	keys    map[string]string
}

func (m *mockRepo) FindByIdempotency(_ context.Context, _, _, key string) (*domain.SessionRecord, error) {
	id, ok := m.keys[key]
	if !ok {
		return nil, nil
	}
	for _, r := range m.records {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, nil
}

func (m *mockRepo) Create(_ context.Context, record domain.SessionRecord, key string) error {
	m.records = append(m.records, record)
	if key != "" {
		if m.keys == nil {
			m.keys = make(map[string]string)
		}
		m.keys[key] = record.ID
	}
	return nil
}

func (m *mockRepo) Get(_ context.Context, tenantID, id string) (*domain.SessionRecord, error) {
	for _, r := range m.records {
		if r.TenantID == tenantID && r.ID == id {
			return &r, nil
		}
	}
	return nil, nil
}

func (m *mockRepo) ListByUser(ctx context.Context, tenantID, userID string, _ *domain.Cursor, limit int) ([]domain.SessionRecord, *domain.Cursor, error) {
	all, _ := m.ListAllByUser(ctx, tenantID, userID)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Date.After(all[j].Date) })
	if len(all) > limit {
		last := all[limit-1]
		return all[:limit], &domain.Cursor{Date: last.Date, ID: last.ID}, nil
	}
	return all, nil, nil
}

func (m *mockRepo) ListAllByUser(_ context.Context, tenantID, userID string) ([]domain.SessionRecord, error) {
	var out []domain.SessionRecord
	for _, r := range m.records {
		if r.TenantID == tenantID && r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func date(raw string) time.Time {
	t, _ := time.Parse("2006-01-02", raw)
	return t
}

func fixtureRepo() *mockRepo {
	rec := func(id, day string, distance float64, typ string) domain.SessionRecord {
		return domain.SessionRecord{ID: id, TenantID: "tenant-1", UserID: "user-1", Date: date(day), Distance: distance, Type: typ, Source: "api"}
	}
	return &mockRepo{records: []domain.SessionRecord{
		rec("s1", "2024-05-12", 1000, "swim"),
		rec("s2", "2024-05-20", 10000, "run"),
		rec("s3", "2024-06-10", 1500, "swim"),
		rec("s4", "2024-06-10", 400, "run"),
		rec("s5", "2024-06-11", 2000, "swim"),
	}}
}

func newTestHandler(repo domain.SessionRepository) *Handler {
	logger, _ := test.NewNullLogger()
	clock := func() time.Time { return time.Date(2024, time.June, 20, 15, 0, 0, 0, time.UTC) }
	return NewHandler(domain.NewService(repo), WithClock(clock), WithLogger(logger))
}

func withScopes(req *http.Request, scopes ...string) *http.Request {
	set := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		set[s] = struct{}{}
	}
	return req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{
		Subject:   "tester",
		TenantID:  "tenant-1",
		Scopes:    set,
		ExpiresAt: time.Now().Add(time.Hour),
	}))
}

func serve(h *Handler, req *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestLogSessionCreatesAndReplays(t *testing.T) {
	repo := &mockRepo{}
	h := newTestHandler(repo)
	body := `{"user_id":"user-1","date":"2024-06-12","distance_m":1800,"type":"Swim"}`

	req := withScopes(httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(body)), auth.ScopeSessionsWrite)
	req.Header.Set("Idempotency-Key", "abc")
	rr := serve(h, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[LogSessionResponse](t, rr)
	require.Equal(t, "2024-06-12", created.Session.Date)
	require.Equal(t, "swim", created.Session.Type)
	require.Equal(t, "api", created.Session.Source)
	require.False(t, created.Replay)

	req = withScopes(httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(body)), auth.ScopeSessionsWrite)
	req.Header.Set("Idempotency-Key", "abc")
	rr = serve(h, req)
	require.Equal(t, http.StatusOK, rr.Code)
	replayed := decode[LogSessionResponse](t, rr)
	require.True(t, replayed.Replay)
	require.Equal(t, created.Session.SessionID, replayed.Session.SessionID)
	require.Len(t, repo.records, 1)
}

func TestLogSessionValidation(t *testing.T) {
	h := newTestHandler(&mockRepo{})

	cases := map[string]string{
		"missing user": `{"date":"2024-06-12","distance_m":100}`,
		"negative":     `{"user_id":"u","date":"2024-06-12","distance_m":-1}`,
		"bad date":     `{"user_id":"u","date":"yesterday","distance_m":100}`,
		"not json":     `{`,
		"missing date": `{"user_id":"u","distance_m":100}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			req := withScopes(httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(body)), auth.ScopeSessionsWrite)
			rr := serve(h, req)
			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
		})
	}
}

func TestScopesAreEnforced(t *testing.T) {
	h := newTestHandler(fixtureRepo())

	rr := serve(h, withScopes(httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(`{}`)), auth.ScopeSessionsRead))
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = serve(h, withScopes(httptest.NewRequest(http.MethodGet, "/v1/analytics/records?user_id=user-1", nil)))
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = serve(h, httptest.NewRequest(http.MethodGet, "/v1/analytics/records?user_id=user-1", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = serve(h, withScopes(httptest.NewRequest(http.MethodGet, "/v1/analytics/records?user_id=user-1", nil), auth.ScopeSessionsWrite))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestGetAndListSessions(t *testing.T) {
	h := newTestHandler(fixtureRepo())

	rr := serve(h, withScopes(httptest.NewRequest(http.MethodGet, "/v1/sessions/s3", nil), auth.ScopeSessionsRead))
	require.Equal(t, http.StatusOK, rr.Code)
	view := decode[SessionView](t, rr)
	require.Equal(t, "2024-06-10", view.Date)
	require.Equal(t, 1500.0, view.Distance)

	rr = serve(h, withScopes(httptest.NewRequest(http.MethodGet, "/v1/sessions/missing", nil), auth.ScopeSessionsRead))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = serve(h, withScopes(httptest.NewRequest(http.MethodGet, "/v1/sessions?user_id=user-1&limit=2", nil), auth.ScopeSessionsRead))
	require.Equal(t, http.StatusOK, rr.Code)
	page := decode[ListSessionsResponse](t, rr)
	require.Len(t, page.Items, 2)
	require.Equal(t, "2024-06-11", page.Items[0].Date)
	require.NotEmpty(t, page.NextCursor)

	rr = serve(h, withScopes(httptest.NewRequest(http.MethodGet, "/v1/sessions?user_id=user-1&cursor=***", nil), auth.ScopeSessionsRead))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(h, withScopes(httptest.NewRequest(http.MethodGet, "/v1/sessions", nil), auth.ScopeSessionsRead))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHeatmapEndpoint(t *testing.T) {
	h := newTestHandler(fixtureRepo())

	rr := serve(h, withScopes(httptest.NewRequest(http.MethodGet, "/v1/analytics/heatmap?user_id=user-1", nil), auth.ScopeSessionsRead))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	view := decode[HeatmapView](t, rr)
	require.Equal(t, RangeView{Start: "2024-06-01", End: "2024-06-20"}, view.Range)
	require.Equal(t, 2, view.ActiveDays)
	require.Equal(t, 20, view.TotalDays)
	require.Equal(t, 2, view.MaxCount)
	require.Equal(t, []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}, view.WeekdayLabels)
	require.Len(t, view.Weeks, 4)

	// 2024-06-10 is the Monday of the third week.
	cell := view.Weeks[2][0]
	require.Equal(t, "2024-06-10", cell.Date)
	require.Equal(t, "mixed", cell.Kind)
	require.Equal(t, 4, cell.Level)
	require.Equal(t, "swim", view.Weeks[2][1].Kind)
	require.Equal(t, 2, view.Weeks[2][1].Level)

	rr = serve(h, withScopes(httptest.NewRequest(http.MethodGet, "/v1/analytics/heatmap?user_id=user-1&range=2024&as_of=2024-12-31", nil), auth.ScopeSessionsRead))
	require.Equal(t, http.StatusOK, rr.Code)
	year := decode[HeatmapView](t, rr)
	require.Equal(t, 366, year.TotalDays)
	require.Equal(t, 4, year.ActiveDays)

	rr = serve(h, withScopes(httptest.NewRequest(http.MethodGet, "/v1/analytics/heatmap?user_id=user-1&as_of=June", nil), auth.ScopeSessionsRead))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMonthsAndRecordsEndpoints(t *testing.T) {
	h := newTestHandler(fixtureRepo())

	rr := serve(h, withScopes(httptest.NewRequest(http.MethodGet, "/v1/analytics/months?user_id=user-1", nil), auth.ScopeSessionsRead))
	require.Equal(t, http.StatusOK, rr.Code)
	months := decode[MonthsResponse](t, rr)
	require.Len(t, months.Items, 2)
	require.Equal(t, "2024-05", months.Items[0].Key)
	require.Equal(t, 11000.0, months.Items[0].TotalDistance)
	require.Equal(t, 3900.0, months.Items[1].TotalDistance)

	rr = serve(h, withScopes(httptest.NewRequest(http.MethodGet, "/v1/analytics/records?user_id=user-1", nil), auth.ScopeSessionsRead))
	require.Equal(t, http.StatusOK, rr.Code)
	records := decode[RecordsView](t, rr)
	require.Equal(t, "s5", records.BestSwim.SessionID)
	require.Equal(t, "s2", records.BestRun.SessionID)
	require.Equal(t, "2024-05-20", records.BestWeek.WeekStart)
	require.Equal(t, "run", records.BestWeek.Dominant)
	require.Equal(t, 2, records.BestStreak.LengthDays)
	require.Equal(t, "2024-06-10", records.BestStreak.Start)

	rr = serve(h, withScopes(httptest.NewRequest(http.MethodGet, "/v1/analytics/records?user_id=nobody", nil), auth.ScopeSessionsRead))
	require.Equal(t, http.StatusOK, rr.Code)
	empty := decode[RecordsView](t, rr)
	require.Nil(t, empty.BestSwim)
	require.Nil(t, empty.BestStreak)
}

func TestCompareEndpoint(t *testing.T) {
	h := newTestHandler(fixtureRepo())

	rr := serve(h, withScopes(httptest.NewRequest(http.MethodGet, "/v1/analytics/compare?user_id=user-1&mode=swim", nil), auth.ScopeSessionsRead))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	cmp := decode[CompareView](t, rr)
	require.Equal(t, "June 2024", cmp.CurrentLabel)
	require.Equal(t, "May 2024", cmp.LastLabel)
	require.Equal(t, 3500.0, cmp.CurrentTotal)
	require.Equal(t, 1000.0, cmp.LastTotal)
	require.Equal(t, 20, cmp.CurrentDay)
	require.Equal(t, "current", cmp.TotalWinner)

	rr = serve(h, withScopes(httptest.NewRequest(http.MethodGet, "/v1/analytics/compare?user_id=user-1&mode=bike", nil), auth.ScopeSessionsRead))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(h, withScopes(httptest.NewRequest(http.MethodPost, "/v1/analytics/compare?user_id=user-1", nil), auth.ScopeSessionsRead))
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHealthz(t *testing.T) {
	rr := serve(newTestHandler(&mockRepo{}), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}
