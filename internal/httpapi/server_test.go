package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/observability"
	"strategy-lab/internal/progress"
	"strategy-lab/internal/storage/memory"
	"strategy-lab/internal/strategy"
)

func ptr[T any](v T) *T { return &v }

type testEnv struct {
	srv      *httptest.Server
	trials   *memory.TrialStore
	launcher *Launcher
	hub      *progress.Hub
}

func setupServer(t *testing.T) *testEnv {
	t.Helper()

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("strategy_lab", reg)
	trialStore := memory.NewTrialStore()
	hub := progress.NewHub(metrics, nil)

	ctx, cancel := context.WithCancel(context.Background())
	launcher := NewLauncher(ctx, LauncherOptions{
		Trials:  trialStore,
		Events:  memory.NewEventStore(),
		Hub:     hub,
		Metrics: metrics,
	})

	s := NewServer(Options{
		Trials:   trialStore,
		Launcher: launcher,
		Hub:      hub,
		Metrics:  metrics,
		Gatherer: reg,
	})
	srv := httptest.NewServer(s.Handler())

	t.Cleanup(func() {
		cancel()
		launcher.Wait()
		hub.Close()
		srv.Close()
	})

	return &testEnv{srv: srv, trials: trialStore, launcher: launcher, hub: hub}
}

func seedStudy(t *testing.T, store *memory.TrialStore) {
	t.Helper()
	records := []*domain.TrialRecord{
		{
			StudyID: "s1", TrialIndex: 0, Status: domain.TrialCompleted,
			Parameters:            domain.Assignment{strategy.ParamSMAPeriod: domain.IntValue(10)},
			InitialPortfolioValue: 10000, FinalPortfolioValue: 10003, AbsoluteReturn: 3,
			SharpeRatio: ptr(0.5), MaxDrawdown: 2, Objective: 3,
		},
		{
			StudyID: "s1", TrialIndex: 1, Status: domain.TrialCompleted,
			Parameters:            domain.Assignment{strategy.ParamSMAPeriod: domain.IntValue(30)},
			InitialPortfolioValue: 10000, FinalPortfolioValue: 10009, AbsoluteReturn: 9,
			MaxDrawdown: 4, Objective: 9,
		},
	}
	failed := domain.FailedTrial("s1", 2, domain.Assignment{strategy.ParamSMAPeriod: domain.IntValue(2)}, errors.New("boom"))
	records = append(records, &failed)
	require.NoError(t, store.InsertBulk(context.Background(), records))
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	env := setupServer(t)

	var body map[string]string
	code := getJSON(t, env.srv.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestStudyTrials(t *testing.T) {
	env := setupServer(t)
	seedStudy(t, env.trials)

	var resp TrialsResponse
	code := getJSON(t, env.srv.URL+"/studies/s1/trials", &resp)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, resp.Trials, 3)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, []int{0, 1, 2}, trialIndexes(resp.Trials))
	assert.Nil(t, resp.Trials[2].Objective)
	assert.Equal(t, "boom", resp.Trials[2].Error)

	code = getJSON(t, env.srv.URL+"/studies/s1/trials?rank=absolute_return", &resp)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []int{1, 0, 2}, trialIndexes(resp.Trials))

	code = getJSON(t, env.srv.URL+"/studies/s1/trials?rank=max_drawdown", &resp)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []int{0, 1, 2}, trialIndexes(resp.Trials))

	var errResp ErrorResponse
	code = getJSON(t, env.srv.URL+"/studies/s1/trials?rank=luck", &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, errResp.Error, "luck")

	code = getJSON(t, env.srv.URL+"/studies/nope/trials", &errResp)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStudyBest(t *testing.T) {
	env := setupServer(t)
	seedStudy(t, env.trials)

	var best TrialDTO
	code := getJSON(t, env.srv.URL+"/studies/s1/best", &best)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, best.TrialIndex)
	require.NotNil(t, best.Objective)
	assert.Equal(t, 9.0, *best.Objective)
	assert.EqualValues(t, 30, best.Parameters[strategy.ParamSMAPeriod])

	failed := domain.FailedTrial("s2", 0, nil, errors.New("boom"))
	require.NoError(t, env.trials.Insert(context.Background(), &failed))
	code = getJSON(t, env.srv.URL+"/studies/s2/best", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStartStudy(t *testing.T) {
	env := setupServer(t)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(env.srv.URL, "http")+"/ws/progress", nil)
	require.NoError(t, err)
	defer ws.Close()
	require.Eventually(t, func() bool { return env.hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	body := `{
		"strategy": "sma_cross",
		"trials": 3,
		"seed": 7,
		"data": {"source": "synthetic", "ticker": "TEST", "start": "2024-01-01T00:00:00", "end": "2024-04-01T00:00:00", "interval": "1d"}
	}`
	resp, err := http.Post(env.srv.URL+"/studies", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var status StudyStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.NotEmpty(t, status.StudyID)
	assert.Equal(t, "/studies/"+status.StudyID, resp.Header.Get("Location"))

	env.launcher.Wait()

	var final StudyStatus
	code := getJSON(t, env.srv.URL+"/studies/"+status.StudyID, &final)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, StudyCompleted, final.State)

	var trialsResp TrialsResponse
	code = getJSON(t, env.srv.URL+"/studies/"+status.StudyID+"/trials", &trialsResp)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, trialsResp.Trials, 3)

	for i := 1; i <= 3; i++ {
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg progress.Message
		require.NoError(t, ws.ReadJSON(&msg))
		assert.Equal(t, status.StudyID, msg.StudyID)
		assert.Equal(t, i, msg.Trial)
		assert.Equal(t, 3, msg.Total)
	}
}

func TestStartStudy_BadRequests(t *testing.T) {
	env := setupServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"strategy":`},
		{"unknown field", `{"strategy":"flat","trials":1,"colour":"red"}`},
		{"unknown strategy", `{"strategy":"moon","trials":1,"data":{"source":"synthetic","start":"2024-01-01T00:00:00","end":"2024-02-01T00:00:00","interval":"1d"}}`},
		{"zero trials", `{"strategy":"flat","trials":0,"data":{"source":"synthetic","start":"2024-01-01T00:00:00","end":"2024-02-01T00:00:00","interval":"1d"}}`},
		{"bad interval", `{"strategy":"flat","trials":1,"data":{"source":"synthetic","start":"2024-01-01T00:00:00","end":"2024-02-01T00:00:00","interval":"7h"}}`},
		{"too many grid steps", `{"strategy":"flat","trials":1,"sampler":"grid","grid_steps":1000000,"data":{"source":"synthetic","start":"2024-01-01T00:00:00","end":"2024-02-01T00:00:00","interval":"1d"}}`},
		{"bad sampler", `{"strategy":"flat","trials":1,"sampler":"bayes","data":{"source":"synthetic","start":"2024-01-01T00:00:00","end":"2024-02-01T00:00:00","interval":"1d"}}`},
		{"bad broker", `{"strategy":"flat","trials":1,"backtest":{"cash":0,"stake":1},"data":{"source":"synthetic","start":"2024-01-01T00:00:00","end":"2024-02-01T00:00:00","interval":"1d"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(env.srv.URL+"/studies", "application/json", bytes.NewBufferString(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupServer(t)

	_ = getJSON(t, env.srv.URL+"/health", nil)

	resp, err := http.Get(env.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "strategy_lab_http_requests_total")
}

func TestUnknownStudyStatus(t *testing.T) {
	env := setupServer(t)
	code := getJSON(t, env.srv.URL+"/studies/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func trialIndexes(dtos []TrialDTO) []int {
	out := make([]int, len(dtos))
	for i, d := range dtos {
		out[i] = d.TrialIndex
	}
	return out
}
