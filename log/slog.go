package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const otelScopeName = "github.com/datachainlab/ibc-relayer/log"

type RelayLogger struct {
	*slog.Logger
}

var (
	mu          sync.RWMutex
	relayLogger *RelayLogger
)

func InitLogger(logLevel, format, output string, enableTelemetry bool) error {
	var writer io.Writer
	switch output {
	case "stdout":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		return errors.New("invalid log output")
	}
	return InitLoggerWithWriter(logLevel, format, writer, enableTelemetry)
}

func InitLoggerWithWriter(logLevel, format string, writer io.Writer, enableTelemetry bool) error {
	var slogLevel slog.Level
	if err := slogLevel.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
		return errors.Wrapf(err, "invalid log level %q", logLevel)
	}
	handlerOpts := &slog.HandlerOptions{
		Level:     slogLevel,
		AddSource: true,
	}

	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(writer, handlerOpts)
	case "json":
		handler = slog.NewJSONHandler(writer, handlerOpts)
	default:
		return errors.New("invalid log format")
	}

	if enableTelemetry {
		handler = slogmulti.Fanout(
			handler,
			otelslog.NewHandler(otelScopeName),
		)
	}

	mu.Lock()
	defer mu.Unlock()
	relayLogger = &RelayLogger{slog.New(handler)}
	return nil
}

// GetLogger returns the global logger. Before InitLogger is called it writes text to stderr.
func GetLogger() *RelayLogger {
	mu.RLock()
	l := relayLogger
	mu.RUnlock()
	if l != nil {
		return l
	}
	return &RelayLogger{slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))}
}

// log emits a record whose source points `skip` frames above the caller of log.
func (rl *RelayLogger) log(level slog.Level, skip int, msg string, args ...any) {
	rl.logContext(context.Background(), level, skip, msg, args...)
}

func (rl *RelayLogger) logContext(ctx context.Context, level slog.Level, skip int, msg string, args ...any) {
	if !rl.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	// skip runtime.Callers, logContext and the exported wrapper
	runtime.Callers(skip+3, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = rl.Handler().Handle(ctx, r)
}

func (rl *RelayLogger) Error(msg string, err error, otherArgs ...any) {
	rl.logContext(context.Background(), slog.LevelError, 0, msg, append([]any{"error", errorString(err)}, otherArgs...)...)
}

func (rl *RelayLogger) ErrorContext(ctx context.Context, msg string, err error, otherArgs ...any) {
	rl.logContext(ctx, slog.LevelError, 0, msg, append([]any{"error", errorString(err)}, otherArgs...)...)
}

// ErrorWithStack logs err with a stack trace captured at the call site.
func (rl *RelayLogger) ErrorWithStack(msg string, err error, otherArgs ...any) {
	cError := errors.WithStackDepth(err, 1)
	args := append([]any{"error", errorString(err), "stack", fmt.Sprintf("%+v", cError)}, otherArgs...)
	rl.logContext(context.Background(), slog.LevelError, 0, msg, args...)
}

func (rl *RelayLogger) TimeTrackContext(ctx context.Context, start time.Time, name string, otherArgs ...any) {
	elapsed := time.Since(start)
	args := append([]any{"name", name, "elapsed", elapsed.Nanoseconds()}, otherArgs...)
	rl.logContext(ctx, slog.LevelInfo, 0, "time track", args...)
}

func errorString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}

func (rl *RelayLogger) WithChainPair(
	srcChainID string,
	dstChainID string,
) *RelayLogger {
	return &RelayLogger{
		rl.With(
			"src_chain_id", srcChainID,
			"dst_chain_id", dstChainID,
		),
	}
}

func (rl *RelayLogger) WithClientPair(
	srcChainID, srcClientID string,
	dstChainID, dstClientID string,
) *RelayLogger {
	return &RelayLogger{
		rl.With(
			"src_chain_id", srcChainID,
			"src_client_id", srcClientID,
			"dst_chain_id", dstChainID,
			"dst_client_id", dstClientID,
		),
	}
}

func (rl *RelayLogger) WithConnectionPair(
	srcChainID, srcClientID, srcConnectionID string,
	dstChainID, dstClientID, dstConnectionID string,
) *RelayLogger {
	return &RelayLogger{
		rl.With(
			"src_chain_id", srcChainID,
			"src_client_id", srcClientID,
			"src_connection_id", srcConnectionID,
			"dst_chain_id", dstChainID,
			"dst_client_id", dstClientID,
			"dst_connection_id", dstConnectionID,
		),
	}
}

func (rl *RelayLogger) WithChannelPair(
	srcChainID, srcPortID, srcChannelID string,
	dstChainID, dstPortID, dstChannelID string,
) *RelayLogger {
	return &RelayLogger{
		rl.With(
			"src_chain_id", srcChainID,
			"src_port_id", srcPortID,
			"src_channel_id", srcChannelID,
			"dst_chain_id", dstChainID,
			"dst_port_id", dstPortID,
			"dst_channel_id", dstChannelID,
		),
	}
}

func (rl *RelayLogger) WithChain(chainID string) *RelayLogger {
	return &RelayLogger{
		rl.With(
			"chain_id", chainID,
		),
	}
}

func (rl *RelayLogger) WithPath(pathName string) *RelayLogger {
	return &RelayLogger{
		rl.With(
			"path", pathName,
		),
	}
}

func (rl *RelayLogger) WithModule(
	moduleName string,
) *RelayLogger {
	return &RelayLogger{
		rl.With(
			"module", moduleName,
		),
	}
}
