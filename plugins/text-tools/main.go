// Command text-tools is a processor plugin for the instant-ai plugin backend. It answers
// one protocol request per run with deterministic, offline text operations.
//
// Point backend.entrypoint at the built binary:
//
//	backend:
//	  kind: plugin
//	  entrypoint: ./plugins/text-tools/text-tools
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/bekaIva/instant-ai-translator/internal/protocol"
)

// notReadyEnv makes every request answer not_implemented, mimicking a handler that has not
// registered yet. Useful for exercising the bridge's retry path by hand.
const notReadyEnv = "TEXT_TOOLS_NOT_READY"

var whitespaceRun = regexp.MustCompile(`\s+`)

var operations = map[string]func(string) string{
	"echo":                func(s string) string { return s },
	"uppercase":           strings.ToUpper,
	"lowercase":           strings.ToLower,
	"title":               titleCase,
	"trim":                strings.TrimSpace,
	"reverse":             reverse,
	"collapse_whitespace": func(s string) string { return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " ")) },
	"word_count":          func(s string) string { return strconv.Itoa(len(strings.Fields(s))) },
	"sort_lines":          sortLines,
}

func main() {
	resp := handle(os.Stdin, time.Now(), os.Getenv(notReadyEnv) != "")
	_ = json.NewEncoder(os.Stdout).Encode(resp)
}

func handle(r io.Reader, now time.Time, notReady bool) protocol.Response {
	var req protocol.Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return errResp("bad_request", fmt.Sprintf("invalid request JSON: %v", err))
	}
	if req.Protocol != protocol.Version {
		return errResp("bad_request", fmt.Sprintf("unsupported protocol version %d", req.Protocol))
	}
	if notReady {
		return protocol.Response{Status: protocol.StatusNotImplemented}
	}

	switch req.Method {
	case protocol.MethodHealth:
		return protocol.Response{
			Status: protocol.StatusOK,
			Logs:   []protocol.LogEntry{debug(fmt.Sprintf("healthy; operations=%d", len(operations)))},
		}
	case protocol.MethodProcessText:
		return processText(req, now)
	default:
		return errResp("unknown_method", fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func processText(req protocol.Request, now time.Time) protocol.Response {
	if !req.DeadlineAt.IsZero() && now.After(req.DeadlineAt) {
		return errResp("deadline_exceeded", "request deadline already passed")
	}
	op, ok := operations[req.Operation]
	if !ok {
		return errResp("unknown_operation", fmt.Sprintf("operation %q is not supported (have: %s)", req.Operation, strings.Join(operationNames(), ", ")))
	}

	result := op(req.Text)
	return protocol.Response{
		Status: protocol.StatusOK,
		Result: &result,
		Logs:   []protocol.LogEntry{debug(fmt.Sprintf("%s: %d -> %d bytes", req.Operation, len(req.Text), len(result)))},
	}
}

func operationNames() []string {
	names := make([]string, 0, len(operations))
	for name := range operations {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func titleCase(s string) string {
	rs := []rune(s)
	start := true
	for i, r := range rs {
		switch {
		case unicode.IsSpace(r):
			start = true
		case start:
			rs[i] = unicode.ToUpper(r)
			start = false
		default:
			rs[i] = unicode.ToLower(r)
		}
	}
	return string(rs)
}

func reverse(s string) string {
	rs := []rune(s)
	slices.Reverse(rs)
	return string(rs)
}

func sortLines(s string) string {
	lines := strings.Split(s, "\n")
	slices.Sort(lines)
	return strings.Join(lines, "\n")
}

func debug(msg string) protocol.LogEntry {
	return protocol.LogEntry{Level: "debug", Message: msg}
}

func errResp(code, message string) protocol.Response {
	return protocol.Response{
		Status: protocol.StatusError,
		Error:  &protocol.ErrorBody{Code: code, Message: message},
		Logs:   []protocol.LogEntry{{Level: "error", Message: message}},
	}
}
