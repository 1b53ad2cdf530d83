// Package contracttests pins the wire contract of both transports: the
// JSON-RPC 2.0 envelope and the payload shape of every method.
package contracttests

import (
	"encoding/json"
	"fmt"
	"math"
)

// JSONRPCEnvelope validates JSON-RPC 2.0 envelope structure
type JSONRPCEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// ValidateEnvelope validates JSON-RPC 2.0 response envelope compliance. The
// id member must be present; it may be null only on error responses.
func ValidateEnvelope(data []byte) error {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	var envelope JSONRPCEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if envelope.JSONRPC != "2.0" {
		return fmt.Errorf("jsonrpc must be '2.0', got '%s'", envelope.JSONRPC)
	}

	rawID, hasID := members["id"]
	if !hasID {
		return fmt.Errorf("id field is required")
	}

	// Check mutual exclusivity of result and error
	_, hasResult := members["result"]
	_, hasError := members["error"]

	if hasResult && hasError {
		return fmt.Errorf("both result and error cannot be present")
	}

	if !hasResult && !hasError {
		return fmt.Errorf("either result or error must be present")
	}

	if string(rawID) == "null" && !hasError {
		return fmt.Errorf("id may only be null on error responses")
	}

	return nil
}

// ValidateTemperatureResult validates a {"celsius": <number>} result
func ValidateTemperatureResult(result json.RawMessage) error {
	var obj map[string]interface{}
	if err := json.Unmarshal(result, &obj); err != nil {
		return fmt.Errorf("result must be an object: %w", err)
	}
	if len(obj) != 1 {
		return fmt.Errorf("temperature result must have exactly one field, got %d", len(obj))
	}
	celsius, ok := obj["celsius"].(float64)
	if !ok {
		return fmt.Errorf("celsius field must be a number")
	}
	if math.IsNaN(celsius) || math.IsInf(celsius, 0) {
		return fmt.Errorf("celsius must be finite")
	}
	return nil
}

// ValidateMinMaxResult validates a {"min": <number>, "max": <number>} result
// with min not above max.
func ValidateMinMaxResult(result json.RawMessage) error {
	var obj map[string]interface{}
	if err := json.Unmarshal(result, &obj); err != nil {
		return fmt.Errorf("result must be an object: %w", err)
	}
	if len(obj) != 2 {
		return fmt.Errorf("min/max result must have exactly two fields, got %d", len(obj))
	}
	lo, ok := obj["min"].(float64)
	if !ok {
		return fmt.Errorf("min field must be a number")
	}
	hi, ok := obj["max"].(float64)
	if !ok {
		return fmt.Errorf("max field must be a number")
	}
	if lo > hi {
		return fmt.Errorf("min %v is above max %v", lo, hi)
	}
	return nil
}

// ValidateEmptyResult validates that a result is the empty object
func ValidateEmptyResult(result json.RawMessage) error {
	var obj map[string]interface{}
	if err := json.Unmarshal(result, &obj); err != nil {
		return fmt.Errorf("result must be an object: %w", err)
	}
	if obj == nil || len(obj) != 0 {
		return fmt.Errorf("result must be {}, got %s", result)
	}
	return nil
}

// ValidateErrorResponse validates JSON-RPC error structure
func ValidateErrorResponse(errorData json.RawMessage) error {
	var errorObj map[string]interface{}
	if err := json.Unmarshal(errorData, &errorObj); err != nil {
		return fmt.Errorf("error must be an object: %w", err)
	}

	code, hasCode := errorObj["code"]
	if !hasCode {
		return fmt.Errorf("error object must have 'code' field")
	}

	message, hasMessage := errorObj["message"]
	if !hasMessage {
		return fmt.Errorf("error object must have 'message' field")
	}

	if _, ok := code.(float64); !ok {
		return fmt.Errorf("error code must be numeric")
	}

	if _, ok := message.(string); !ok {
		return fmt.Errorf("error message must be string")
	}

	return nil
}

// ErrorCode extracts the numeric code of an error envelope.
func ErrorCode(data []byte) (int, error) {
	var envelope struct {
		Error *struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return 0, fmt.Errorf("invalid JSON: %w", err)
	}
	if envelope.Error == nil {
		return 0, fmt.Errorf("not an error response")
	}
	return envelope.Error.Code, nil
}

// CompareEnvelopes compares two JSON-RPC envelopes for structural equality
func CompareEnvelopes(expected, actual []byte) error {
	if err := ValidateEnvelope(expected); err != nil {
		return fmt.Errorf("expected envelope invalid: %w", err)
	}
	if err := ValidateEnvelope(actual); err != nil {
		return fmt.Errorf("actual envelope invalid: %w", err)
	}

	var expEnv, actEnv JSONRPCEnvelope
	if err := json.Unmarshal(expected, &expEnv); err != nil {
		return fmt.Errorf("failed to unmarshal expected: %w", err)
	}
	if err := json.Unmarshal(actual, &actEnv); err != nil {
		return fmt.Errorf("failed to unmarshal actual: %w", err)
	}

	if expEnv.JSONRPC != actEnv.JSONRPC {
		return fmt.Errorf("jsonrpc version mismatch: expected '%s', got '%s'", expEnv.JSONRPC, actEnv.JSONRPC)
	}

	// ids compare by value, not JSON type
	if fmt.Sprintf("%v", expEnv.ID) != fmt.Sprintf("%v", actEnv.ID) {
		return fmt.Errorf("id mismatch: expected '%v', got '%v'", expEnv.ID, actEnv.ID)
	}

	if len(expEnv.Result) > 0 && len(actEnv.Result) == 0 {
		return fmt.Errorf("expected result but got none")
	}
	if len(expEnv.Error) > 0 {
		if len(actEnv.Error) == 0 {
			return fmt.Errorf("expected error but got none")
		}
		expCode, _ := ErrorCode(expected)
		actCode, _ := ErrorCode(actual)
		if expCode != actCode {
			return fmt.Errorf("error code mismatch: expected %d, got %d", expCode, actCode)
		}
	}

	return nil
}
