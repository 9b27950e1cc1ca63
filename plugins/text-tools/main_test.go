package main

import (
	"strings"
	"testing"
	"time"

	"github.com/bekaIva/instant-ai-translator/internal/protocol"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func request(method, op, text string) string {
	return `{"protocol":1,"request_id":"r1","method":"` + method + `","operation":"` + op +
		`","text":` + quote(text) + `,"deadline_at":"2026-05-01T12:01:00Z"}`
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\t", `\t`)
	return `"` + r.Replace(s) + `"`
}

func TestProcessTextOperations(t *testing.T) {
	tests := []struct {
		op   string
		text string
		want string
	}{
		{"echo", "Hello", "Hello"},
		{"uppercase", "héllo", "HÉLLO"},
		{"lowercase", "HeLLo", "hello"},
		{"title", "the QUICK  brown\tfox", "The Quick  Brown\tFox"},
		{"trim", "  padded \n", "padded"},
		{"reverse", "añb", "bña"},
		{"collapse_whitespace", " a \n\n b\t c ", "a b c"},
		{"word_count", "one two  three\nfour", "4"},
		{"sort_lines", "b\na\nc", "a\nb\nc"},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			resp := handle(strings.NewReader(request(protocol.MethodProcessText, tt.op, tt.text)), now, false)
			if resp.Status != protocol.StatusOK {
				t.Fatalf("status = %q, want ok (error=%+v)", resp.Status, resp.Error)
			}
			if got := resp.ResultText(); got != tt.want {
				t.Fatalf("result = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnknownOperation(t *testing.T) {
	resp := handle(strings.NewReader(request(protocol.MethodProcessText, "translate", "x")), now, false)
	if resp.Status != protocol.StatusError || resp.Error == nil {
		t.Fatalf("resp = %+v, want error", resp)
	}
	if resp.Error.Code != "unknown_operation" {
		t.Fatalf("code = %q, want unknown_operation", resp.Error.Code)
	}
	if !strings.Contains(resp.Error.Message, "uppercase") {
		t.Fatalf("message should list supported operations: %q", resp.Error.Message)
	}
}

func TestHealth(t *testing.T) {
	resp := handle(strings.NewReader(request(protocol.MethodHealth, "", "")), now, false)
	if resp.Status != protocol.StatusOK {
		t.Fatalf("status = %q, want ok", resp.Status)
	}
	if resp.Result != nil {
		t.Fatalf("health should not carry a result, got %q", resp.ResultText())
	}
}

func TestNotReady(t *testing.T) {
	for _, method := range []string{protocol.MethodHealth, protocol.MethodProcessText} {
		resp := handle(strings.NewReader(request(method, "echo", "x")), now, true)
		if resp.Status != protocol.StatusNotImplemented {
			t.Fatalf("%s: status = %q, want not_implemented", method, resp.Status)
		}
	}
}

func TestDeadlinePassed(t *testing.T) {
	resp := handle(strings.NewReader(request(protocol.MethodProcessText, "echo", "x")), now.Add(time.Hour), false)
	if resp.Status != protocol.StatusError || resp.Error.Code != "deadline_exceeded" {
		t.Fatalf("resp = %+v, want deadline_exceeded", resp)
	}
}

func TestBadRequests(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  string
	}{
		{"not json", "garbage", "bad_request"},
		{"wrong protocol", `{"protocol":2,"method":"health"}`, "bad_request"},
		{"unknown method", `{"protocol":1,"method":"poll"}`, "unknown_method"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := handle(strings.NewReader(tt.input), now, false)
			if resp.Status != protocol.StatusError || resp.Error == nil || resp.Error.Code != tt.code {
				t.Fatalf("resp = %+v, want error %s", resp, tt.code)
			}
		})
	}
}
