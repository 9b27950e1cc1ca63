package protocol

import (
	"encoding/json"
	"fmt"
	"io"
)

// EncodeRequest serializes a Request to JSON and writes it to w.
// Returns an error if marshaling or writing fails.
func EncodeRequest(w io.Writer, req *Request) error {
	if req.Protocol != Version {
		return fmt.Errorf("unsupported protocol version: %d", req.Protocol)
	}
	if req.Method != MethodProcessText && req.Method != MethodHealth {
		return fmt.Errorf("unsupported method: %q", req.Method)
	}

	encoder := json.NewEncoder(w)
	if err := encoder.Encode(req); err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	return nil
}

// DecodeResponse reads and deserializes a Response from JSON in r.
// Unknown fields are rejected.
func DecodeResponse(r io.Reader) (*Response, error) {
	var resp Response

	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if err := validate(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DecodeResponseLenient is like DecodeResponse but tolerates unknown fields and returns the
// raw stdout so protocol errors can be logged.
func DecodeResponseLenient(r io.Reader) (*Response, []byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}

	if len(data) == 0 {
		return nil, data, fmt.Errorf("plugin produced no output on stdout")
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, data, fmt.Errorf("plugin output is not valid JSON: %w", err)
	}
	if err := validate(&resp); err != nil {
		return nil, data, err
	}
	return &resp, data, nil
}

func validate(resp *Response) error {
	switch resp.Status {
	case "":
		return fmt.Errorf("response missing required field: status")
	case StatusOK, StatusNotImplemented:
		return nil
	case StatusError:
		if resp.Error == nil || resp.Error.Code == "" {
			return fmt.Errorf("response has status=error but no error code")
		}
		return nil
	default:
		return fmt.Errorf("invalid status value: %q (must be 'ok', 'error' or 'not_implemented')", resp.Status)
	}
}
