package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/scenario"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// api is a scripted test server that records every request it receives.
type api struct {
	mu       sync.Mutex
	hits     []string
	requests map[string]*http.Request
	bodies   map[string]map[string]any
	raw      map[string]string
	routes   map[string]http.HandlerFunc
}

func newAPI(t *testing.T) (*api, *httptest.Server) {
	t.Helper()
	a := &api{
		requests: make(map[string]*http.Request),
		bodies:   make(map[string]map[string]any),
		raw:      make(map[string]string),
		routes:   make(map[string]http.HandlerFunc),
	}
	srv := httptest.NewServer(http.HandlerFunc(a.serve))
	t.Cleanup(srv.Close)
	return a, srv
}

func (a *api) handle(route string, h http.HandlerFunc) {
	a.routes[route] = h
}

func (a *api) serve(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path
	data, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(data, &body)

	a.mu.Lock()
	a.hits = append(a.hits, key)
	a.requests[key] = r
	a.bodies[key] = body
	a.raw[key] = string(data)
	h, ok := a.routes[key]
	a.mu.Unlock()

	if !ok {
		reply(200, `{"ok":true}`)(w, r)
		return
	}
	h(w, r)
}

func (a *api) count(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, h := range a.hits {
		if h == key {
			n++
		}
	}
	return n
}

func (a *api) header(key, name string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if r, ok := a.requests[key]; ok {
		return r.Header.Get(name)
	}
	return ""
}

func (a *api) body(key string) map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bodies[key]
}

func (a *api) query(key, name string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if r, ok := a.requests[key]; ok {
		return r.URL.Query().Get(name)
	}
	return ""
}

func (a *api) rawBody(key string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.raw[key]
}

func (a *api) sequence() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.hits...)
}

func reply(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func testConfig(baseURL string) *Config {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	return cfg
}

func runDoc(t *testing.T, cfg *Config, doc string, opts ...Option) *ScenarioResult {
	t.Helper()
	s, err := scenario.ParseBytes([]byte(doc))
	require.NoError(t, err)
	res, err := NewRunner(cfg, opts...).Run(context.Background(), s)
	require.NoError(t, err)
	return res
}

func TestRun_ExtractedTokenIsInjected(t *testing.T) {
	a, srv := newAPI(t)
	a.handle("POST /login", reply(200, `{"data":{"token":"abc","count":7}}`))

	res := runDoc(t, testConfig(srv.URL), `
scenario:
  name: login flow
  steps:
    - name: login
      api: POST /login
      extract:
        - name: token
          path: $.data.token
        - name: count
          path: $.data.count
      assert:
        - status_code == 200
    - name: profile
      api: POST /me
      request:
        headers:
          Authorization: Bearer ${token}
        body:
          n: ${count}
`)

	require.True(t, res.Passed, "%+v", res.Results)
	assert.Equal(t, "Bearer abc", a.header("POST /me", "Authorization"))
	// whole placeholders keep the JSON number type
	assert.Equal(t, float64(7), a.body("POST /me")["n"])
	assert.Equal(t, "abc", res.Snapshot.Scenario["token"])
	assert.Equal(t, int64(2), res.Latency.Overall.Count)

	login := res.Find("steps/login")
	require.NotNil(t, login)
	assert.Equal(t, StatePassed, login.State)
	assert.Equal(t, 1, login.Attempts)
	assert.Equal(t, 200, login.StatusCode)
}

func TestRun_LargeIntegerRoundTrip(t *testing.T) {
	a, srv := newAPI(t)
	a.handle("POST /orders", reply(201, `{"id":1234567890123456789}`))

	res := runDoc(t, testConfig(srv.URL), `
scenario:
  name: big ids
  steps:
    - name: create
      api: POST /orders
      extract:
        - name: id
          path: $.id
    - name: pay
      api: POST /payments
      request:
        body:
          order: ${id}
          ref: order-${id}
        query:
          order: ${id}
      assert:
        - id == 1234567890123456789
`)

	require.True(t, res.Passed, "%+v", res.Results)
	assert.Equal(t, int64(1234567890123456789), res.Snapshot.Scenario["id"])
	assert.JSONEq(t, `{"order":1234567890123456789,"ref":"order-1234567890123456789"}`, a.rawBody("POST /payments"))
	assert.Equal(t, "1234567890123456789", a.query("POST /payments", "order"))
}

func TestRun_DottedIndexInAssertions(t *testing.T) {
	a, srv := newAPI(t)
	a.handle("GET /items", reply(200, `{"items":[{"id":1},{"id":2,"tags":["x","y"]}]}`))

	res := runDoc(t, testConfig(srv.URL), `
scenario:
  name: dotted indexes
  steps:
    - name: list
      api: GET /items
      extract:
        - name: items
          path: $.items
      assert:
        - response.items.0.id == 1
        - response.items.1.tags.1 == "y"
    - name: guarded
      condition:
        if: items.0.id == 1 and ${items.1.id} == 2
        then:
          - name: follow
            api: GET /follow
`)

	require.True(t, res.Passed, "%+v", res.Results)
	list := res.Find("steps/list")
	require.NotNil(t, list)
	require.Len(t, list.Assertions, 2)
	for _, ar := range list.Assertions {
		assert.True(t, ar.Passed, ar.Reason)
	}
	assert.Equal(t, 1, a.count("GET /follow"))
}

func TestRun_ConditionSelectsElse(t *testing.T) {
	a, srv := newAPI(t)
	cfg := testConfig(srv.URL)
	cfg.Globals = map[string]any{"balance": 50, "amount": 100}

	res := runDoc(t, cfg, `
scenario:
  name: payment
  steps:
    - name: check
      condition:
        if: ${balance} >= ${amount}
        then:
          - name: pay
            api: POST /pay
        else:
          - name: top_up
            api: POST /top-up
`)

	require.True(t, res.Passed)
	assert.Zero(t, a.count("POST /pay"))
	assert.Equal(t, 1, a.count("POST /top-up"))

	check := res.Find("steps/check")
	require.NotNil(t, check)
	assert.Equal(t, StatePassed, check.State)
	assert.Equal(t, "condition", check.Kind)

	pay := res.Find("steps/check/then/pay")
	require.NotNil(t, pay)
	assert.Equal(t, StateSkipped, pay.State)
	assert.Equal(t, ReasonBranchNotTaken, pay.Reason)
	assert.Equal(t, 1, pay.Depth)

	topUp := res.Find("steps/check/else/top_up")
	require.NotNil(t, topUp)
	assert.Equal(t, StatePassed, topUp.State)
}

func TestRun_ConditionWithoutElse(t *testing.T) {
	_, srv := newAPI(t)

	res := runDoc(t, testConfig(srv.URL), `
scenario:
  name: guard
  steps:
    - name: maybe
      condition:
        if: ${undefined_flag} == true
        then:
          - name: act
            api: POST /act
`)

	maybe := res.Find("steps/maybe")
	require.NotNil(t, maybe)
	assert.Equal(t, StateSkipped, maybe.State)
	assert.Contains(t, maybe.Reason, "treated as false")
	assert.True(t, res.Passed)
}

func TestRun_LoopFlattensInOrder(t *testing.T) {
	a, srv := newAPI(t)

	res := runDoc(t, testConfig(srv.URL), `
scenario:
  name: cart
  steps:
    - name: each
      loop:
        items: [1, 2, 3]
        variable: item
        steps:
          - name: add
            api: POST /cart/${item}
`)

	require.True(t, res.Passed)
	assert.Equal(t, []string{"POST /cart/1", "POST /cart/2", "POST /cart/3"}, a.sequence())

	var paths []string
	for _, r := range res.Results {
		if strings.HasSuffix(r.Path, "/add") {
			paths = append(paths, r.Path)
		}
	}
	assert.Equal(t, []string{"steps/each/0/add", "steps/each/1/add", "steps/each/2/add"}, paths)
	// the loop variable lives in the iteration scope only
	assert.NotContains(t, res.Snapshot.Scenario, "item")
}

func TestRun_LoopEmptyItems(t *testing.T) {
	_, srv := newAPI(t)
	cfg := testConfig(srv.URL)
	cfg.Globals = map[string]any{"orders": []any{}}

	res := runDoc(t, cfg, `
scenario:
  name: empty
  steps:
    - name: each
      loop:
        items: ${orders}
        variable: order
        steps:
          - name: ship
            api: POST /ship/${order}
`)

	each := res.Find("steps/each")
	require.NotNil(t, each)
	assert.Equal(t, StateSkipped, each.State)
	assert.Equal(t, "no items", each.Reason)
}

func TestRun_LoopFailFast(t *testing.T) {
	a, srv := newAPI(t)
	a.handle("POST /cart/2", reply(500, `{}`))

	doc := `
scenario:
  name: cart
  steps:
    - name: each
      loop:
        items: [1, 2, 3]
        variable: item
        steps:
          - name: add
            api: POST /cart/${item}
`
	res := runDoc(t, testConfig(srv.URL), doc)
	assert.Equal(t, 1, a.count("POST /cart/3"))
	assert.Equal(t, StateFailed, res.Find("steps/each").State)
	assert.False(t, res.Passed)

	cfg := testConfig(srv.URL)
	cfg.LoopFailFast = true
	res = runDoc(t, cfg, doc)
	assert.Equal(t, 1, a.count("POST /cart/3"), "third iteration must not run again")
	assert.Contains(t, res.Find("steps/each").Reason, "stopped after iteration 2")
}

func TestRun_ParallelSourceOrder(t *testing.T) {
	a, srv := newAPI(t)

	var inflight, peak int32
	for i, sku := range []string{"a", "b", "c", "d", "e", "f"} {
		delay := time.Duration(6-i) * 10 * time.Millisecond
		sku := sku
		a.handle("PUT /stock/"+sku, func(w http.ResponseWriter, r *http.Request) {
			n := atomic.AddInt32(&inflight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(delay)
			atomic.AddInt32(&inflight, -1)
			reply(200, fmt.Sprintf(`{"sku":%q}`, sku))(w, r)
		})
	}

	res := runDoc(t, testConfig(srv.URL), `
scenario:
  name: fan out
  steps:
    - name: fan
      parallel:
        items: [a, b, c, d, e, f]
        variable: sku
        max_workers: 2
        steps:
          - name: reserve
            api: PUT /stock/${sku}
            extract:
              - name: last
                path: $.sku
            assert:
              - response.sku == sku
`)

	require.True(t, res.Passed, "%+v", res.Results)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))

	var urls []string
	for _, r := range res.Results {
		if strings.HasSuffix(r.Path, "/reserve") {
			urls = append(urls, r.Request.URL)
		}
	}
	require.Len(t, urls, 6)
	for i, sku := range []string{"a", "b", "c", "d", "e", "f"} {
		assert.True(t, strings.HasSuffix(urls[i], "/stock/"+sku), urls[i])
	}
	// forks merge back in source order
	assert.Equal(t, "f", res.Snapshot.Scenario["last"])
}

func TestRun_SetupFailureSkipsMainRunsTeardown(t *testing.T) {
	a, srv := newAPI(t)

	res := runDoc(t, testConfig(srv.URL), `
scenario:
  name: broken setup
  setup:
    - name: seed
      api: POST /seed/${missing}
  steps:
    - name: work
      api: POST /work
  teardown:
    - name: cleanup
      api: POST /cleanup
`)

	assert.False(t, res.Passed)
	assert.Zero(t, a.count("POST /work"))
	assert.Equal(t, 1, a.count("POST /cleanup"))

	seed := res.Find("setup/seed")
	require.NotNil(t, seed)
	assert.Equal(t, StateError, seed.State)
	assert.Contains(t, seed.Reason, "missing")

	work := res.Find("steps/work")
	require.NotNil(t, work)
	assert.Equal(t, StateSkipped, work.State)
	assert.Equal(t, ReasonSetupFailed, work.Reason)

	assert.Equal(t, StatePassed, res.Find("teardown/cleanup").State)
	assert.Len(t, res.Phase(scenario.PhaseTeardown), 1)
}

func TestRun_AssertionListRecordsEachResult(t *testing.T) {
	a, srv := newAPI(t)
	a.handle("GET /item", reply(200, `{"data":{}}`))

	res := runDoc(t, testConfig(srv.URL), `
scenario:
  name: item
  steps:
    - name: fetch
      api: GET /item
      assert:
        - status_code == 200
        - response.data.id != null
`)

	fetch := res.Find("steps/fetch")
	require.NotNil(t, fetch)
	require.Len(t, fetch.Assertions, 2)
	assert.True(t, fetch.Assertions[0].Passed)
	assert.False(t, fetch.Assertions[1].Passed)
	assert.Equal(t, StateFailed, fetch.State)
	assert.Contains(t, fetch.Reason, "response.data.id != null")
	assert.False(t, res.Passed)
}

func TestRun_Extraction(t *testing.T) {
	const doc = `
scenario:
  name: extraction
  steps:
    - name: fetch
      api: GET /user
      extract:
        - name: nick
          path: $.nick
          required: %t
`
	tests := []struct {
		name     string
		required bool
		policy   MissPolicy
		want     State
	}{
		{name: "required miss is an error", required: true, policy: MissPass, want: StateError},
		{name: "optional miss passes", required: false, policy: MissPass, want: StatePassed},
		{name: "optional miss can skip", required: false, policy: MissSkip, want: StateSkipped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, srv := newAPI(t)
			a.handle("GET /user", reply(200, `{"name":"ada"}`))
			cfg := testConfig(srv.URL)
			cfg.OptionalMissPolicy = tt.policy

			res := runDoc(t, cfg, fmt.Sprintf(doc, tt.required))
			fetch := res.Find("steps/fetch")
			require.NotNil(t, fetch)
			assert.Equal(t, tt.want, fetch.State)
			assert.NotContains(t, res.Snapshot.Scenario, "nick")
			if !tt.required {
				assert.Equal(t, []string{"nick"}, fetch.Missed)
			}
		})
	}
}

func TestRun_ExtractionFromErrorResponses(t *testing.T) {
	for _, status := range []int{422, 500} {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			a, srv := newAPI(t)
			a.handle("POST /charge", reply(status, `{"error":{"code":"card_declined","trace":"tr-9"}}`))

			res := runDoc(t, testConfig(srv.URL), fmt.Sprintf(`
scenario:
  name: declined
  steps:
    - name: charge
      api: POST /charge
      extract:
        - name: code
          path: $.error.code
        - name: trace
          path: $.error.trace
      assert:
        - status_code == %d
    - name: report
      api: POST /reports
      request:
        headers:
          X-Trace: ${trace}
        body:
          reason: ${code}
`, status))

			require.True(t, res.Passed, "%+v", res.Results)
			charge := res.Find("steps/charge")
			require.NotNil(t, charge)
			assert.Equal(t, status, charge.StatusCode)
			extracted := make(map[string]any)
			for _, pair := range charge.Extracted {
				extracted[pair.Name] = pair.Value
			}
			assert.Equal(t, map[string]any{"code": "card_declined", "trace": "tr-9"}, extracted)
			assert.Equal(t, "tr-9", a.header("POST /reports", "X-Trace"))
			assert.Equal(t, "card_declined", a.body("POST /reports")["reason"])
		})
	}
}

func TestRun_StepScopedExtraction(t *testing.T) {
	a, srv := newAPI(t)
	a.handle("GET /trace", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Trace", "t-1")
		reply(200, `{}`)(w, r)
	})

	res := runDoc(t, testConfig(srv.URL), `
scenario:
  name: scoped
  steps:
    - name: traced
      api: GET /trace
      extract:
        - name: trace
          header: x-trace
          scope: step
      assert:
        - trace == "t-1"
    - name: after
      api: GET /after
      assert:
        - trace == null
`)

	require.True(t, res.Passed, "%+v", res.Results)
	assert.NotContains(t, res.Snapshot.Scenario, "trace")
}

func TestRun_AbortPolicies(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		runs    bool
		reason  string
		failing string
	}{
		{
			name:    "error aborts by default",
			mutate:  func(*Config) {},
			failing: "GET /a/${nope}",
			runs:    false,
			reason:  "not run: steps/a ended in error",
		},
		{
			name:    "continue on error",
			mutate:  func(c *Config) { c.ContinueOnError = true },
			failing: "GET /a/${nope}",
			runs:    true,
		},
		{
			name:    "failure continues by default",
			mutate:  func(*Config) {},
			failing: "GET /missing",
			runs:    true,
		},
		{
			name:    "fail fast",
			mutate:  func(c *Config) { c.FailFast = true },
			failing: "GET /missing",
			runs:    false,
			reason:  "not run: steps/a ended in failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, srv := newAPI(t)
			a.handle("GET /missing", reply(404, `{}`))
			cfg := testConfig(srv.URL)
			tt.mutate(cfg)

			res := runDoc(t, cfg, fmt.Sprintf(`
scenario:
  name: policies
  steps:
    - name: a
      api: %s
    - name: b
      api: GET /b
`, tt.failing))

			b := res.Find("steps/b")
			require.NotNil(t, b)
			assert.False(t, res.Passed)
			if tt.runs {
				assert.Equal(t, StatePassed, b.State)
				assert.Equal(t, 1, a.count("GET /b"))
			} else {
				assert.Equal(t, StateSkipped, b.State)
				assert.Equal(t, tt.reason, b.Reason)
				assert.Zero(t, a.count("GET /b"))
			}
		})
	}
}

func TestRun_Retry(t *testing.T) {
	a, srv := newAPI(t)
	var calls int32
	a.handle("GET /flaky", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			reply(503, `{}`)(w, r)
			return
		}
		reply(200, `{}`)(w, r)
	})

	res := runDoc(t, testConfig(srv.URL), `
scenario:
  name: flaky
  steps:
    - name: flaky
      api: GET /flaky
      retry: 2
      retry_delay: 1ms
`)

	flaky := res.Find("steps/flaky")
	require.NotNil(t, flaky)
	assert.Equal(t, StatePassed, flaky.State)
	assert.Equal(t, 3, flaky.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRun_StatusWithoutAssertions(t *testing.T) {
	a, srv := newAPI(t)
	a.handle("GET /gone", reply(410, `{}`))

	doc := `
scenario:
  name: gone
  steps:
    - name: gone
      api: GET /gone
`
	res := runDoc(t, testConfig(srv.URL), doc)
	gone := res.Find("steps/gone")
	assert.Equal(t, StateFailed, gone.State)
	assert.Equal(t, "status 410 not in 2xx", gone.Reason)

	cfg := testConfig(srv.URL)
	cfg.RequireSuccessStatus = false
	res = runDoc(t, cfg, doc)
	assert.Equal(t, StatePassed, res.Find("steps/gone").State)
}

func TestRun_ConfigHeadersAndAuth(t *testing.T) {
	a, srv := newAPI(t)
	cfg := testConfig(srv.URL)
	cfg.Globals = map[string]any{"admin": "s3cret"}

	res := runDoc(t, cfg, `
scenario:
  name: headers
  config:
    headers:
      X-Tenant: acme
    auth:
      type: bearer
      token: ${admin}
  steps:
    - name: first
      api: GET /first
    - name: second
      api: GET /second
      request:
        headers:
          X-Tenant: other
`)

	require.True(t, res.Passed)
	assert.Equal(t, "acme", a.header("GET /first", "X-Tenant"))
	assert.Equal(t, "Bearer s3cret", a.header("GET /first", "Authorization"))
	assert.Equal(t, "other", a.header("GET /second", "X-Tenant"))
}

func TestRun_RunnerGlobalsOverrideConfigKeys(t *testing.T) {
	a, srv := newAPI(t)
	cfg := testConfig(srv.URL)
	cfg.Globals = map[string]any{"tenant": "from-cli"}

	res := runDoc(t, cfg, `
scenario:
  name: globals
  config:
    tenant: from-doc
    region: eu
  steps:
    - name: tenant
      api: GET /t/{tenant}/{region}
      request:
        path:
          tenant: ${tenant}
          region: ${region}
`)

	require.True(t, res.Passed)
	assert.Equal(t, 1, a.count("GET /t/from-cli/eu"))
	assert.Equal(t, "from-cli", res.Snapshot.Global["tenant"])
}

func TestRun_TimeoutStillRunsTeardown(t *testing.T) {
	a, srv := newAPI(t)
	a.handle("GET /slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	cfg := testConfig(srv.URL)
	cfg.ScenarioTimeout = 50 * time.Millisecond

	res := runDoc(t, cfg, `
scenario:
  name: slow
  steps:
    - name: slow
      api: GET /slow
    - name: next
      api: GET /next
  teardown:
    - name: cleanup
      api: POST /cleanup
`)

	assert.False(t, res.Passed)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "run aborted")
	assert.Equal(t, StateError, res.Find("steps/slow").State)
	assert.Equal(t, StateSkipped, res.Find("steps/next").State)
	assert.Zero(t, a.count("GET /next"))
	assert.Equal(t, StatePassed, res.Find("teardown/cleanup").State)
}

func TestRun_CancelledContext(t *testing.T) {
	a, srv := newAPI(t)
	s, err := scenario.ParseBytes([]byte(`
scenario:
  name: cancelled
  steps:
    - name: never
      api: GET /never
  teardown:
    - name: cleanup
      api: POST /cleanup
`))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewRunner(testConfig(srv.URL)).Run(ctx, s)
	require.NoError(t, err)

	never := res.Find("steps/never")
	assert.Equal(t, StateSkipped, never.State)
	assert.Equal(t, ReasonCancelled, never.Reason)
	assert.Zero(t, a.count("GET /never"))
	assert.Equal(t, 1, a.count("POST /cleanup"))
	assert.False(t, res.Passed)
}

type sinkFunc func(*ScenarioResult) error

func (f sinkFunc) Report(r *ScenarioResult) error { return f(r) }

func TestRun_Sinks(t *testing.T) {
	_, srv := newAPI(t)
	var got []*ScenarioResult
	collect := sinkFunc(func(r *ScenarioResult) error {
		got = append(got, r)
		return nil
	})
	broken := sinkFunc(func(*ScenarioResult) error { return errors.New("disk full") })

	res := runDoc(t, testConfig(srv.URL), `
scenario:
  name: sinks
  steps:
    - name: ping
      api: GET /ping
`, WithSink(collect, broken))

	require.Len(t, got, 1)
	assert.Same(t, res, got[0])
	assert.Contains(t, res.Errors, "sink: disk full")
}

func TestRun_InvalidScenario(t *testing.T) {
	s, err := scenario.ParseBytes([]byte(`
scenario:
  steps:
    - name: a
      api: FETCH /x
`))
	require.NoError(t, err)

	_, err = NewRunner(nil).Run(context.Background(), s)
	var verr *scenario.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.GreaterOrEqual(t, len(verr.Defects()), 2)
}

func TestRun_WaitFor(t *testing.T) {
	a, srv := newAPI(t)
	var polls int32
	a.handle("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&polls, 1) < 3 {
			reply(503, `{}`)(w, r)
			return
		}
		reply(200, `{}`)(w, r)
	})

	cfg := testConfig(srv.URL)
	cfg.WaitFor = &WaitFor{URL: "/health", Interval: time.Millisecond, Timeout: time.Second}

	res := runDoc(t, cfg, `
scenario:
  name: wait
  steps:
    - name: ping
      api: GET /ping
`)
	assert.True(t, res.Passed)
	assert.Equal(t, int32(3), atomic.LoadInt32(&polls))

	cfg.WaitFor = &WaitFor{URL: "/never-ready", Status: 204, Interval: time.Millisecond, Timeout: 20 * time.Millisecond}
	s, err := scenario.ParseBytes([]byte(`
scenario:
  name: wait
  steps:
    - name: ping
      api: GET /ping
`))
	require.NoError(t, err)
	_, err = NewRunner(cfg).Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")
}

func TestRunner_RunFile(t *testing.T) {
	_, srv := newAPI(t)
	path := filepath.Join(t.TempDir(), "ping.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scenario:
  name: from file
  steps:
    - name: ping
      api: GET /ping
      assert: status_code == 200
`), 0o644))

	res, err := NewRunner(testConfig(srv.URL)).RunFile(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, path, res.File)
	assert.Equal(t, Counts{Passed: 1, Total: 1}, res.Counts)

	_, err = NewRunner(nil).RunFile(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
