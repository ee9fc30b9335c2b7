package dashboard

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halpertj/perp_sentry/internal/heartbeat"
	"github.com/halpertj/perp_sentry/internal/journal"
	"github.com/halpertj/perp_sentry/internal/mock"
	"github.com/halpertj/perp_sentry/internal/models"
)

type fakeStatus struct {
	statuses []heartbeat.WatcherStatus
}

func (f *fakeStatus) Statuses() []heartbeat.WatcherStatus { return f.statuses }
func (f *fakeStatus) OpenPositionCount() int {
	n := 0
	for _, s := range f.statuses {
		if s.State == heartbeat.StateActive {
			n++
		}
	}
	return n
}

type fakeBudget struct{ remaining int }

func (f fakeBudget) Remaining() int { return f.remaining }

func newTestServer(t *testing.T, authToken string) (*httptest.Server, *journal.MockJournal) {
	t.Helper()

	jrnl := journal.NewMockJournal()
	status := &fakeStatus{statuses: []heartbeat.WatcherStatus{
		{Symbol: "BTC-PERP", State: heartbeat.StateActive},
		{Symbol: "ETH-PERP", State: heartbeat.StateIdle},
	}}
	paper := mock.NewPaperExchange(10000, 7)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	srv := NewServer(Config{Addr: "127.0.0.1:0", AuthToken: authToken},
		status, fakeBudget{remaining: 12}, jrnl, paper, logger)

	ts := httptest.NewServer(srv.router)
	t.Cleanup(ts.Close)
	return ts, jrnl
}

func TestOverview(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp, err := http.Get(ts.URL + "/api/overview")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got overview
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Len(t, got.Watchers, 2)
	assert.Equal(t, 1, got.OpenPositions)
	assert.Equal(t, 10000.0, got.Equity)
	assert.Equal(t, 12, got.AdvisorBudget)
	require.NotNil(t, got.Stats)
}

func TestDecisionsFiltersBySymbol(t *testing.T) {
	ts, jrnl := newTestServer(t, "")
	require.NoError(t, jrnl.Record(&models.AdvisoryDecision{
		Kind:      models.KindPositionHeartbeat,
		Symbol:    "BTC-PERP",
		Timestamp: 1700000000000,
		Triggers:  []string{"pnl_shift"},
		Decision:  models.Decision{Action: "hold", Reason: "no edge"},
		Outcome:   models.OutcomeOK,
	}))
	require.NoError(t, jrnl.Record(&models.AdvisoryDecision{
		Kind:      models.KindPositionHeartbeat,
		Symbol:    "ETH-PERP",
		Timestamp: 1700000000000,
		Outcome:   models.OutcomeSkipped,
	}))

	resp, err := http.Get(ts.URL + "/api/decisions/BTC-PERP")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var records []models.AdvisoryDecision
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	require.Len(t, records, 1)
	assert.Equal(t, "BTC-PERP", records[0].Symbol)
	assert.Equal(t, models.OutcomeOK, records[0].Outcome)
}

func TestStats(t *testing.T) {
	ts, jrnl := newTestServer(t, "")
	require.NoError(t, jrnl.NoteClose("BTC-PERP", 150, 1700000000000))

	resp, err := http.Get(ts.URL + "/api/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats journal.Statistics
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.TotalClosed)
	assert.Equal(t, 150.0, stats.TotalPnL)
}

func TestAuthMiddleware(t *testing.T) {
	ts, _ := newTestServer(t, "sekrit")

	resp, err := http.Get(ts.URL + "/api/overview")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/overview", nil)
	require.NoError(t, err)
	req.Header.Set("X-Auth-Token", "sekrit")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Query-parameter tokens work too.
	resp, err = http.Get(ts.URL + "/api/watchers?token=sekrit")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Health stays open for probes.
	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
