package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bekaIva/instant-ai-translator/internal/config"
	"github.com/bekaIva/instant-ai-translator/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not implemented", ErrNotImplemented, true},
		{"wrapped not implemented", fmt.Errorf("invoke: %w", ErrNotImplemented), true},
		{"retryable", &Error{Code: "warming_up", Retryable: true}, true},
		{"legacy marker", &Error{Code: "error", Message: "MissingPluginException(No implementation found for method processText)"}, true},
		{"explicit failure", &Error{Code: "quota", Message: "quota exceeded"}, false},
		{"plain error", errors.New("boom"), false},
		{"plain error with marker", errors.New("MissingPluginException"), false},
		{"cancelled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestError_Message(t *testing.T) {
	assert.Equal(t, "quota: limit reached", (&Error{Code: "quota", Message: "limit reached"}).Error())
	assert.Equal(t, "quota: Unknown error", (&Error{Code: "quota"}).Error())
}

func TestLocalRuntime_Operations(t *testing.T) {
	ch, err := NewLocalRuntime().Start(context.Background())
	require.NoError(t, err)

	tests := []struct {
		op   string
		want string
	}{
		{OpUppercase, "HELLO WORLD"},
		{OpPrefix, "[AI] hello world"},
		{OpEcho, "hello world"},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			got, err := ch.Invoke(context.Background(), Request{Text: "hello world", Operation: tt.op})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocalRuntime_UnknownOperation(t *testing.T) {
	ch, err := NewLocalRuntime().Start(context.Background())
	require.NoError(t, err)

	_, err = ch.Invoke(context.Background(), Request{Text: "x", Operation: "translate"})
	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "unknown_operation", be.Code)
	assert.False(t, IsTransient(err))
}

func TestLocalRuntime_Warmup(t *testing.T) {
	ch, err := NewLocalRuntime(WithWarmup(2)).Start(context.Background())
	require.NoError(t, err)

	req := Request{Text: "a", Operation: OpEcho}
	for i := 0; i < 2; i++ {
		_, err := ch.Invoke(context.Background(), req)
		assert.ErrorIs(t, err, ErrNotImplemented)
	}
	got, err := ch.Invoke(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "a", got)
}

func TestLocalRuntime_CancelledContext(t *testing.T) {
	ch, err := NewLocalRuntime().Start(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ch.Invoke(ctx, Request{Text: "a", Operation: OpEcho})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.BackendConfig
		want    string
		wantErr bool
	}{
		{name: "default", cfg: config.BackendConfig{}, want: "local"},
		{name: "local", cfg: config.BackendConfig{Kind: "local"}, want: "local"},
		{name: "plugin", cfg: config.BackendConfig{Kind: "plugin", Entrypoint: "/bin/true"}, want: "plugin"},
		{name: "plugin without entrypoint", cfg: config.BackendConfig{Kind: "plugin"}, wantErr: true},
		{name: "gemini", cfg: config.BackendConfig{Kind: "gemini", Gemini: config.GeminiConfig{APIKey: "k"}}, want: "gemini"},
		{name: "http", cfg: config.BackendConfig{Kind: "http"}, want: "http"},
		{name: "unknown", cfg: config.BackendConfig{Kind: "grpc"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, err := Open(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, rt.Name())
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	assert.Equal(t, operationInstructions[OpSummarize]+"\n\nsome text", BuildPrompt(OpSummarize, "some text"))
	assert.Equal(t, "Translate the following text to brazilian portuguese.\n\nola", BuildPrompt("translate_brazilian_portuguese", "ola"))
	assert.Equal(t, "Apply the operation \"make shorter\" to the following text.\n\nx", BuildPrompt("make_shorter", "x"))
	assert.Contains(t, BuildPrompt("translate_", "x"), "Apply the operation")
}
