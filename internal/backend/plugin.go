package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/bekaIva/instant-ai-translator/internal/log"
	"github.com/bekaIva/instant-ai-translator/internal/protocol"
)

const (
	// maxStderrBytes caps the amount of stderr captured from a plugin run.
	maxStderrBytes = 64 * 1024

	// terminationGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	terminationGracePeriod = 5 * time.Second

	defaultPluginTimeout = 60 * time.Second
	healthTimeout        = 10 * time.Second
)

// PluginRuntime runs an external executable per call, speaking the JSON protocol over
// stdin/stdout.
type PluginRuntime struct {
	entrypoint string
	timeout    time.Duration
	grace      time.Duration
	logger     *slog.Logger
}

func NewPluginRuntime(entrypoint string, timeout time.Duration) *PluginRuntime {
	if timeout <= 0 {
		timeout = defaultPluginTimeout
	}
	return &PluginRuntime{
		entrypoint: entrypoint,
		timeout:    timeout,
		grace:      terminationGracePeriod,
		logger:     log.WithComponent("plugin-runtime").With("entrypoint", entrypoint),
	}
}

func (r *PluginRuntime) Name() string { return "plugin" }

// Start checks the entrypoint and performs a health round-trip. A plugin that answers
// not_implemented for health is still considered started.
func (r *PluginRuntime) Start(ctx context.Context) (Channel, error) {
	info, err := os.Stat(r.entrypoint)
	if err != nil {
		return nil, fmt.Errorf("stat plugin entrypoint: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("plugin entrypoint %s is a directory", r.entrypoint)
	}
	if info.Mode().Perm()&0o111 == 0 {
		return nil, fmt.Errorf("plugin entrypoint %s is not executable", r.entrypoint)
	}

	timeout := min(r.timeout, healthTimeout)
	resp, stderr, err := r.spawn(ctx, &protocol.Request{Method: protocol.MethodHealth}, timeout)
	if err != nil {
		if stderr != "" {
			r.logger.Debug("health check stderr", "stderr", stderr)
		}
		return nil, fmt.Errorf("plugin health check: %w", err)
	}
	if resp.Status == protocol.StatusError {
		return nil, fmt.Errorf("plugin health check: %w", errorFromBody(resp.Error))
	}
	return &pluginChannel{runtime: r}, nil
}

type pluginChannel struct {
	runtime *PluginRuntime
}

func (c *pluginChannel) Invoke(ctx context.Context, req Request) (string, error) {
	r := c.runtime
	preq := &protocol.Request{
		Method:    protocol.MethodProcessText,
		Text:      req.Text,
		Operation: req.Operation,
	}
	resp, stderr, err := r.spawn(ctx, preq, r.timeout)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &Error{Code: "timeout", Message: fmt.Sprintf("plugin did not respond within %s", r.timeout)}
		}
		if stderr != "" {
			r.logger.Warn("plugin failed", "error", err, "stderr", stderr)
		}
		return "", err
	}

	switch resp.Status {
	case protocol.StatusOK:
		return resp.ResultText(), nil
	case protocol.StatusNotImplemented:
		return "", ErrNotImplemented
	default:
		return "", errorFromBody(resp.Error)
	}
}

func errorFromBody(body *protocol.ErrorBody) *Error {
	if body == nil {
		return &Error{Code: "plugin_error"}
	}
	return &Error{Code: body.Code, Message: body.Message, Retryable: body.Retryable}
}

// spawn runs the plugin once, writes req to stdin and decodes the response from stdout.
// Returns the response, captured stderr and any error. A timeout is reported as
// context.DeadlineExceeded.
func (r *PluginRuntime) spawn(ctx context.Context, req *protocol.Request, timeout time.Duration) (*protocol.Response, string, error) {
	req.Protocol = protocol.Version
	req.RequestID = uuid.NewString()
	req.DeadlineAt = time.Now().Add(timeout).UTC()
	logger := r.logger.With("request_id", req.RequestID, "method", req.Method)

	timeoutTimer := time.NewTimer(timeout)
	defer timeoutTimer.Stop()

	// Not CommandContext: termination is escalated by hand below.
	cmd := exec.Command(r.entrypoint)
	// Bounds the wait for stdout/stderr when a grandchild keeps the pipes open.
	cmd.WaitDelay = r.grace

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, "", fmt.Errorf("create stdin pipe: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("spawning plugin", "timeout", timeout)

	if err := cmd.Start(); err != nil {
		return nil, "", fmt.Errorf("start process: %w", err)
	}

	writeErr := make(chan error, 1)
	go func() {
		defer stdin.Close()
		if err := protocol.EncodeRequest(stdin, req); err != nil {
			writeErr <- fmt.Errorf("encode request: %w", err)
			return
		}
		writeErr <- nil
	}()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	var cause error
	select {
	case err := <-waitErr:
		return r.finish(logger, err, <-writeErr, stdout.Bytes(), truncateStderr(stderr.String()))
	case <-timeoutTimer.C:
		cause = context.DeadlineExceeded
		logger.Warn("plugin timed out, sending SIGTERM")
	case <-ctx.Done():
		cause = ctx.Err()
		logger.Debug("call cancelled, sending SIGTERM")
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		logger.Error("failed to send SIGTERM", "error", err)
	}

	grace := time.NewTimer(r.grace)
	defer grace.Stop()

	select {
	case <-waitErr:
		logger.Info("plugin exited after SIGTERM")
	case <-grace.C:
		logger.Warn("plugin did not exit after SIGTERM, sending SIGKILL")
		if err := cmd.Process.Kill(); err != nil {
			logger.Error("failed to send SIGKILL", "error", err)
		}
		<-waitErr
	}

	return nil, truncateStderr(stderr.String()), cause
}

func (r *PluginRuntime) finish(logger *slog.Logger, waitErr, writeErr error, stdout []byte, stderr string) (*protocol.Response, string, error) {
	if writeErr != nil {
		return nil, stderr, writeErr
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, stderr, fmt.Errorf("wait for process: %w", waitErr)
		}
		logger.Warn("plugin exited with non-zero status", "exit_code", exitErr.ExitCode())
	}

	resp, raw, err := protocol.DecodeResponseLenient(bytes.NewReader(stdout))
	if err != nil {
		logger.Error("failed to decode plugin response", "error", err, "stdout", string(raw))
		return nil, stderr, fmt.Errorf("decode response: %w", err)
	}
	for _, entry := range resp.Logs {
		logger.Debug("plugin log", "level", entry.Level, "message", entry.Message)
	}
	return resp, stderr, nil
}

func truncateStderr(s string) string {
	if len(s) > maxStderrBytes {
		return s[:maxStderrBytes]
	}
	return s
}
