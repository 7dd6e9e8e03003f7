package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/core/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu       sync.Mutex
	payloads []map[string]any
	status   int
}

func (r *recorder) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		data, _ := io.ReadAll(req.Body)
		var payload map[string]any
		_ = json.Unmarshal(data, &payload)
		r.mu.Lock()
		r.payloads = append(r.payloads, payload)
		r.mu.Unlock()
		if r.status != 0 {
			w.WriteHeader(r.status)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func failedResult() *runner.ScenarioResult {
	return &runner.ScenarioResult{
		Name: "checkout",
		File: "checkout.yaml",
		Results: []*runner.StepResult{
			{Path: "steps/login", State: runner.StatePassed},
			{Path: "steps/pay", State: runner.StateFailed, Reason: "assertion failed: status_code == 201"},
		},
		Counts: runner.Counts{Passed: 1, Failed: 1, Total: 2},
	}
}

func passedResult() *runner.ScenarioResult {
	return &runner.ScenarioResult{
		Name:   "health",
		Passed: true,
		Counts: runner.Counts{Passed: 1, Total: 1},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]*runner.ScenarioResult{failedResult(), passedResult()}, time.Second)

	assert.Equal(t, 2, s.Scenarios)
	assert.Equal(t, 1, s.Failed)
	assert.False(t, s.Passed())
	assert.Equal(t, 3, s.Steps.Total)
	assert.Equal(t, 2, s.Steps.Passed)
	require.Len(t, s.Failures, 1)
	assert.Equal(t, "checkout", s.Failures[0].Scenario)
	assert.Equal(t, []string{"steps/pay: assertion failed: status_code == 201"}, s.Failures[0].Steps)
}

func TestManagerPolicies(t *testing.T) {
	tests := []struct {
		name   string
		policy NotifyOn
		runs   []bool
		sent   int
	}{
		{"always", NotifyAlways, []bool{true, false}, 2},
		{"failure", NotifyFailure, []bool{true, false, true}, 1},
		{"success", NotifySuccess, []bool{true, false, true}, 2},
		{"recovery", NotifyRecovery, []bool{true, false, true, true}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			srv := rec.server(t)
			m := NewManager(tt.policy, NewSlackNotifier(srv.URL))

			for _, passed := range tt.runs {
				if passed {
					require.NoError(t, m.Report(passedResult()))
				} else {
					require.NoError(t, m.Report(failedResult()))
				}
				require.NoError(t, m.Flush(time.Second))
			}
			assert.Len(t, rec.payloads, tt.sent)
		})
	}
}

func TestRecoveryIsFlagged(t *testing.T) {
	m := NewManager(NotifyRecovery)
	require.NoError(t, m.Notify(context.Background(), Summarize([]*runner.ScenarioResult{failedResult()}, 0)))

	s := Summarize([]*runner.ScenarioResult{passedResult()}, 0)
	require.NoError(t, m.Notify(context.Background(), s))
	assert.True(t, s.IsRecovery)
	assert.Equal(t, "Scenarios recovered", headline(s))
}

func TestSlackPayload(t *testing.T) {
	rec := &recorder{}
	srv := rec.server(t)
	n := NewSlackNotifier(srv.URL, WithSlackChannel("#api"))

	err := n.Notify(context.Background(), Summarize([]*runner.ScenarioResult{failedResult()}, time.Second))
	require.NoError(t, err)

	require.Len(t, rec.payloads, 1)
	payload := rec.payloads[0]
	assert.Equal(t, "#api", payload["channel"])
	assert.Equal(t, "flowspec", payload["username"])
	attachments := payload["attachments"].([]any)
	require.Len(t, attachments, 1)
	first := attachments[0].(map[string]any)
	assert.Equal(t, "danger", first["color"])
	assert.Contains(t, first["title"], "1 of 1 scenario(s) failed")
	assert.Contains(t, first["text"], "steps/pay")
}

func TestTeamsPayload(t *testing.T) {
	rec := &recorder{status: http.StatusAccepted}
	srv := rec.server(t)

	err := NewTeamsNotifier(srv.URL).Notify(context.Background(), Summarize([]*runner.ScenarioResult{passedResult()}, 0))
	require.NoError(t, err)

	require.Len(t, rec.payloads, 1)
	assert.Equal(t, "message", rec.payloads[0]["type"])
}

func TestNotifierErrorsAreCollected(t *testing.T) {
	rec := &recorder{status: http.StatusInternalServerError}
	srv := rec.server(t)
	m := NewManager(NotifyAlways, NewSlackNotifier(srv.URL), NewTeamsNotifier(srv.URL))

	err := m.Notify(context.Background(), Summarize(nil, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack")
	assert.Contains(t, err.Error(), "teams")
}

func TestParseNotifyOn(t *testing.T) {
	p, err := ParseNotifyOn("")
	require.NoError(t, err)
	assert.Equal(t, NotifyFailure, p)

	_, err = ParseNotifyOn("sometimes")
	assert.Error(t, err)
}
