package contracttests

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/thermal-monitor/internal/config"
	"github.com/thermal-monitor/internal/jsonrpc"
	"github.com/thermal-monitor/internal/logging"
)

// TestHTTPServer wraps the HTTP gateway for contract testing
type TestHTTPServer struct {
	server *httptest.Server
	client *resty.Client
}

// NewTestHTTPServer starts the gateway on an httptest server
func NewTestHTTPServer(t *testing.T) *TestHTTPServer {
	t.Helper()
	cfg := config.HTTPConfig{
		Enabled:        true,
		AllowedOrigins: []string{"*"},
	}
	executor, svc := newTestExecutor(10)
	gateway := jsonrpc.NewServer(cfg, executor, svc, nil, logging.Discard())

	ts := httptest.NewServer(gateway.Handler())
	t.Cleanup(ts.Close)

	return &TestHTTPServer{
		server: ts,
		client: resty.New().SetBaseURL(ts.URL).SetTimeout(5 * time.Second),
	}
}

func (ts *TestHTTPServer) post(t *testing.T, body []byte) *resty.Response {
	t.Helper()
	resp, err := ts.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post("/rpc")
	if err != nil {
		t.Fatalf("POST /rpc failed: %v", err)
	}
	return resp
}

func TestHTTPGoldenEnvelopes(t *testing.T) {
	ts := NewTestHTTPServer(t)
	fixtures := loadGoldenFixtures(t, "envelopes.json")

	for _, name := range sortedKeys(fixtures) {
		fixture := fixtures[name]
		t.Run(name, func(t *testing.T) {
			resp := ts.post(t, fixture.Request)

			if ct := resp.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Expected application/json, got %q", ct)
			}
			if err := ValidateEnvelope(resp.Body()); err != nil {
				t.Fatalf("Invalid envelope %s: %v", resp.Body(), err)
			}
			if err := CompareEnvelopes(fixture.Response, resp.Body()); err != nil {
				t.Errorf("Response %s does not match golden: %v", resp.Body(), err)
			}

			var env JSONRPCEnvelope
			json.Unmarshal(resp.Body(), &env)
			if len(env.Error) > 0 {
				if err := ValidateErrorResponse(env.Error); err != nil {
					t.Errorf("Invalid error object: %v", err)
				}
				return
			}
			var req JSONRPCEnvelope
			json.Unmarshal(fixture.Request, &req)
			if err := validateResultFor(req.Method, env.Result); err != nil {
				t.Errorf("Invalid %s result: %v", req.Method, err)
			}
		})
	}
}

func TestHTTPMethodPOSTOnly(t *testing.T) {
	ts := NewTestHTTPServer(t)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		resp, err := ts.client.R().Execute(method, "/rpc")
		if err != nil {
			t.Fatalf("%s /rpc failed: %v", method, err)
		}
		if resp.StatusCode() != http.StatusMethodNotAllowed {
			t.Errorf("%s /rpc: expected 405, got %d", method, resp.StatusCode())
		}
	}
}

func TestHTTPPathExactMatch(t *testing.T) {
	ts := NewTestHTTPServer(t)

	for _, path := range []string{"/rpc/", "/rpc/extra", "/RPC"} {
		resp, err := ts.client.R().
			SetBody(`{"jsonrpc":"2.0","method":"current_temperature","id":1}`).
			Post(path)
		if err != nil {
			t.Fatalf("POST %s failed: %v", path, err)
		}
		if resp.StatusCode() != http.StatusNotFound {
			t.Errorf("POST %s: expected 404, got %d", path, resp.StatusCode())
		}
	}
}

func TestHTTPTemperatureStreamContract(t *testing.T) {
	ts := NewTestHTTPServer(t)

	resp, err := ts.client.R().
		SetDoNotParseResponse(true).
		SetQueryParam("seconds", "0").
		Get("/temperatures")
	if err != nil {
		t.Fatalf("GET /temperatures failed: %v", err)
	}
	body := resp.RawBody()
	defer body.Close()

	scanner := bufio.NewScanner(body)
	events := 0
	lastID := ""
	for events < 3 && scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "id: "):
			id := strings.TrimPrefix(line, "id: ")
			if id == lastID {
				t.Errorf("Event id %s repeated", id)
			}
			lastID = id
		case strings.HasPrefix(line, "event: "):
			if ev := strings.TrimPrefix(line, "event: "); ev != "temperature" {
				t.Errorf("Expected temperature event, got %q", ev)
			}
		case strings.HasPrefix(line, "data: "):
			if err := ValidateTemperatureResult(json.RawMessage(strings.TrimPrefix(line, "data: "))); err != nil {
				t.Errorf("Invalid event payload: %v", err)
			}
			events++
		}
	}
	if events != 3 {
		t.Errorf("Expected 3 events, got %d (%v)", events, scanner.Err())
	}
}
