package contracttests

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/thermal-monitor/internal/bounds"
	"github.com/thermal-monitor/internal/commands"
	"github.com/thermal-monitor/internal/logging"
	"github.com/thermal-monitor/internal/monitor"
	"github.com/thermal-monitor/internal/sensor"
)

// goldenFixture is one request and the response every transport must give.
type goldenFixture struct {
	Request  json.RawMessage `json:"request"`
	Response json.RawMessage `json:"response"`
}

// loadGoldenFixtures loads the JSON fixtures from the fixtures directory
func loadGoldenFixtures(t *testing.T, filename string) map[string]goldenFixture {
	t.Helper()
	path := filepath.Join("fixtures", filename)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read fixture %s: %v", path, err)
	}

	var fixtures map[string]goldenFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		t.Fatalf("Failed to unmarshal fixture %s: %v", path, err)
	}
	return fixtures
}

func sortedKeys(fixtures map[string]goldenFixture) []string {
	keys := make([]string, 0, len(fixtures))
	for k := range fixtures {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// newTestExecutor wires the command stack over a fallback sensor pinned at
// 40.0, so every golden response is deterministic.
func newTestExecutor(maxWorkers int) (*commands.Executor, *monitor.Service) {
	log := logging.Discard()
	svc := monitor.NewService(sensor.NewFallbackReader(sensor.DefaultFallbackCelsius), bounds.New(sensor.DefaultFallbackCelsius), monitor.WithLogger(log))
	registry := commands.NewCommandRegistry()
	commands.RegisterTemperatureCommands(registry, svc)
	return commands.NewExecutor(registry, maxWorkers, nil, log), svc
}

func TestGoldenFixturesAreValid(t *testing.T) {
	fixtures := loadGoldenFixtures(t, "envelopes.json")
	if len(fixtures) == 0 {
		t.Fatal("Expected fixtures")
	}
	for _, name := range sortedKeys(fixtures) {
		t.Run(name, func(t *testing.T) {
			if err := ValidateEnvelope(fixtures[name].Response); err != nil {
				t.Errorf("Golden response invalid: %v", err)
			}
		})
	}
}

func TestJSONRPCEnvelopeValidation(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr bool
	}{
		{
			name:    "valid_response",
			json:    `{"jsonrpc":"2.0","id":"test","result":{"celsius":40.0}}`,
			wantErr: false,
		},
		{
			name:    "valid_empty_result",
			json:    `{"jsonrpc":"2.0","id":1,"result":{}}`,
			wantErr: false,
		},
		{
			name:    "valid_error",
			json:    `{"jsonrpc":"2.0","id":"test","error":{"code":-32601,"message":"Method not found"}}`,
			wantErr: false,
		},
		{
			name:    "valid_parse_error_null_id",
			json:    `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`,
			wantErr: false,
		},
		{
			name:    "null_id_on_result",
			json:    `{"jsonrpc":"2.0","id":null,"result":{}}`,
			wantErr: true,
		},
		{
			name:    "invalid_version",
			json:    `{"jsonrpc":"1.0","id":"test","result":{"celsius":40.0}}`,
			wantErr: true,
		},
		{
			name:    "missing_id",
			json:    `{"jsonrpc":"2.0","result":{"celsius":40.0}}`,
			wantErr: true,
		},
		{
			name:    "both_result_and_error",
			json:    `{"jsonrpc":"2.0","id":"test","result":{},"error":{"code":-1,"message":"test"}}`,
			wantErr: true,
		},
		{
			name:    "neither_result_nor_error",
			json:    `{"jsonrpc":"2.0","id":"test"}`,
			wantErr: true,
		},
		{
			name:    "not_json",
			json:    `celsius=40`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEnvelope([]byte(tt.json))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEnvelope() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPayloadValidation(t *testing.T) {
	tests := []struct {
		name     string
		validate func(json.RawMessage) error
		json     string
		wantErr  bool
	}{
		{"temperature", ValidateTemperatureResult, `{"celsius":52.1}`, false},
		{"temperature_negative", ValidateTemperatureResult, `{"celsius":-4}`, false},
		{"temperature_string", ValidateTemperatureResult, `{"celsius":"52.1"}`, true},
		{"temperature_extra_field", ValidateTemperatureResult, `{"celsius":52.1,"unit":"C"}`, true},
		{"temperature_array", ValidateTemperatureResult, `[52.1]`, true},
		{"minmax", ValidateMinMaxResult, `{"min":38,"max":61.5}`, false},
		{"minmax_equal", ValidateMinMaxResult, `{"min":40,"max":40}`, false},
		{"minmax_inverted", ValidateMinMaxResult, `{"min":61.5,"max":38}`, true},
		{"minmax_missing_max", ValidateMinMaxResult, `{"min":38}`, true},
		{"empty", ValidateEmptyResult, `{}`, false},
		{"empty_not_empty", ValidateEmptyResult, `{"ok":true}`, true},
		{"empty_null", ValidateEmptyResult, `null`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.validate(json.RawMessage(tt.json))
			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestErrorResponseValidation(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr bool
	}{
		{
			name:    "valid_error",
			json:    `{"code":-32601,"message":"Method not found"}`,
			wantErr: false,
		},
		{
			name:    "valid_error_with_data",
			json:    `{"code":-32602,"message":"seconds must not be negative","data":"INVALID_PARAMS"}`,
			wantErr: false,
		},
		{
			name:    "missing_code",
			json:    `{"message":"Method not found"}`,
			wantErr: true,
		},
		{
			name:    "missing_message",
			json:    `{"code":-32601}`,
			wantErr: true,
		},
		{
			name:    "invalid_code_type",
			json:    `{"code":"invalid","message":"Method not found"}`,
			wantErr: true,
		},
		{
			name:    "invalid_message_type",
			json:    `{"code":-32601,"message":123}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateErrorResponse([]byte(tt.json))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateErrorResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCompareEnvelopes(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		actual   string
		wantErr  bool
	}{
		{
			name:     "same_result",
			expected: `{"jsonrpc":"2.0","id":1,"result":{"celsius":40}}`,
			actual:   `{"jsonrpc":"2.0","id":1,"result":{"celsius":41}}`,
			wantErr:  false,
		},
		{
			name:     "id_mismatch",
			expected: `{"jsonrpc":"2.0","id":1,"result":{}}`,
			actual:   `{"jsonrpc":"2.0","id":2,"result":{}}`,
			wantErr:  true,
		},
		{
			name:     "error_code_mismatch",
			expected: `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"bad"}}`,
			actual:   `{"jsonrpc":"2.0","id":1,"error":{"code":-32603,"message":"bad"}}`,
			wantErr:  true,
		},
		{
			name:     "error_instead_of_result",
			expected: `{"jsonrpc":"2.0","id":1,"result":{}}`,
			actual:   `{"jsonrpc":"2.0","id":1,"error":{"code":-32603,"message":"bad"}}`,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CompareEnvelopes([]byte(tt.expected), []byte(tt.actual))
			if (err != nil) != tt.wantErr {
				t.Errorf("CompareEnvelopes() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// validateResultFor applies the payload validator for method.
func validateResultFor(method string, result json.RawMessage) error {
	switch method {
	case "current_temperature", "temperatures":
		return ValidateTemperatureResult(result)
	case "min_max_temperature":
		return ValidateMinMaxResult(result)
	case "stress_test":
		return ValidateEmptyResult(result)
	}
	return nil
}
