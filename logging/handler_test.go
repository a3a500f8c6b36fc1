package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/bpfreg/logging"
)

func TestFilteringHandlerEnabled(t *testing.T) {
	spec := &logging.Spec{
		BaseLevel: logging.LevelWarn,
		Components: map[string]logging.Level{
			"store": logging.LevelTrace,
			"cli":   logging.LevelDebug,
		},
	}

	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: logging.LevelTrace.ToSlog()})
	handler := logging.NewFilteringHandler(inner, spec)

	// No component: base level warn.
	assert.False(t, handler.Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, handler.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, handler.Enabled(context.Background(), slog.LevelWarn))

	storeHandler := handler.WithAttrs([]slog.Attr{slog.String("component", "store")})
	assert.True(t, storeHandler.Enabled(context.Background(), logging.LevelTrace.ToSlog()))

	cliHandler := handler.WithAttrs([]slog.Attr{slog.String("component", "cli")})
	assert.True(t, cliHandler.Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, cliHandler.Enabled(context.Background(), logging.LevelTrace.ToSlog()))
}

func TestFilteringHandlerHandle(t *testing.T) {
	spec := &logging.Spec{
		BaseLevel: logging.LevelWarn,
		Components: map[string]logging.Level{
			"store": logging.LevelDebug,
		},
	}

	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: logging.LevelTrace.ToSlog()})
	handler := logging.NewFilteringHandler(inner, spec)
	ctx := context.Background()

	r := slog.NewRecord(testTime(), slog.LevelDebug, "debug message", 0)
	require.NoError(t, handler.Handle(ctx, r))
	assert.Empty(t, buf.String(), "debug without component is filtered at warn")

	buf.Reset()
	r = slog.NewRecord(testTime(), slog.LevelWarn, "warn message", 0)
	require.NoError(t, handler.Handle(ctx, r))
	assert.Contains(t, buf.String(), "warn message")

	storeHandler := handler.WithAttrs([]slog.Attr{slog.String("component", "store")})
	buf.Reset()
	r = slog.NewRecord(testTime(), slog.LevelDebug, "store debug", 0)
	require.NoError(t, storeHandler.Handle(ctx, r))
	assert.Contains(t, buf.String(), "store debug")
}

func TestFilteringHandlerWithGroupKeepsComponent(t *testing.T) {
	spec := &logging.Spec{
		BaseLevel: logging.LevelInfo,
		Components: map[string]logging.Level{
			"store": logging.LevelDebug,
		},
	}

	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: logging.LevelTrace.ToSlog()})
	handler := logging.NewFilteringHandler(inner, spec)

	grouped := handler.WithAttrs([]slog.Attr{slog.String("component", "store")}).WithGroup("query")
	assert.True(t, grouped.Enabled(context.Background(), slog.LevelDebug))
}

func TestNewIntegration(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{
		CLISpec: "warn,store=trace",
		Output:  &buf,
	})
	require.NoError(t, err)

	logger.Debug("root debug")
	assert.Empty(t, buf.String())

	buf.Reset()
	logger.Warn("root warn")
	assert.Contains(t, buf.String(), "root warn")

	storeLogger := logger.With("component", "store")

	buf.Reset()
	storeLogger.Log(context.Background(), logging.LevelTrace.ToSlog(), "store trace")
	assert.Contains(t, buf.String(), "store trace")

	// Unlisted component falls back to the base level.
	cliLogger := logger.With("component", "cli")

	buf.Reset()
	cliLogger.Debug("cli debug")
	assert.Empty(t, buf.String())
}

func TestNewPrecedence(t *testing.T) {
	tests := []struct {
		name      string
		opts      logging.Options
		wantLevel logging.Level
	}{
		{
			name:      "cli takes precedence over env",
			opts:      logging.Options{CLISpec: "error", EnvSpec: "debug"},
			wantLevel: logging.LevelError,
		},
		{
			name:      "env used when no cli spec",
			opts:      logging.Options{EnvSpec: "debug"},
			wantLevel: logging.LevelDebug,
		},
		{
			name:      "default is info",
			opts:      logging.Options{},
			wantLevel: logging.LevelInfo,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.opts.Output = &buf

			logger, err := logging.New(tt.opts)
			require.NoError(t, err)

			ctx := context.Background()
			logger.Log(ctx, tt.wantLevel.ToSlog(), "at level")
			assert.NotEmpty(t, buf.String())

			buf.Reset()
			logger.Log(ctx, logging.Level(int(tt.wantLevel)-4).ToSlog(), "below level")
			assert.Empty(t, buf.String())
		})
	}
}

func TestNewInvalidSpec(t *testing.T) {
	_, err := logging.New(logging.Options{CLISpec: "nonsense"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log spec")
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    logging.Format
		wantErr bool
	}{
		{"text", logging.FormatText, false},
		{"json", logging.FormatJSON, false},
		{"JSON", logging.FormatJSON, false},
		{"", logging.FormatText, false},
		{"xml", logging.FormatText, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := logging.ParseFormat(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{
		CLISpec: "info",
		Format:  logging.FormatJSON,
		Output:  &buf,
	})
	require.NoError(t, err)

	logger.Info("hello", "key", "value")
	output := buf.String()
	assert.True(t, strings.HasPrefix(output, "{"))
	assert.Contains(t, output, `"msg":"hello"`)
	assert.Contains(t, output, `"key":"value"`)
}

func TestParseSpec(t *testing.T) {
	spec, err := logging.ParseSpec("warn,store=trace,cli=debug")
	require.NoError(t, err)
	assert.Equal(t, logging.LevelWarn, spec.BaseLevel)
	assert.Equal(t, logging.LevelTrace, spec.LevelFor("store"))
	assert.Equal(t, logging.LevelDebug, spec.LevelFor("cli"))
	assert.Equal(t, logging.LevelWarn, spec.LevelFor("unlisted"))

	_, err = logging.ParseSpec("store=debug,warn")
	assert.Error(t, err, "base level must come first")

	_, err = logging.ParseSpec("=debug")
	assert.Error(t, err, "empty component name")
}

func testTime() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}
