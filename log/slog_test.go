package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"testing"
	"time"
)

type setupType struct {
	logger *RelayLogger
	buffer bytes.Buffer
}

func beforeEach(t *testing.T) *setupType {
	var r setupType

	err := InitLoggerWithWriter("info", "json", &r.buffer, false)
	if err != nil {
		t.Fatal(err)
	}

	r.logger = GetLogger()

	return &r
}

type logType struct {
	Time   string
	Level  string
	Source struct {
		Function string
		File     string
		Line     int
	}
	Msg    string
	Stack  string
	Error  string
	Module string
	Path   string
}

func parseResult(setup *setupType, t *testing.T) (string, logType) {
	raw := setup.buffer.String()
	var parsed logType

	err := json.Unmarshal(setup.buffer.Bytes(), &parsed)
	if err != nil {
		t.Fatalf("fail to parse log: %v: %s", err, raw)
	}

	return raw, parsed
}

func TestInvalidConfig(t *testing.T) {
	var buf bytes.Buffer
	if err := InitLoggerWithWriter("verbose", "json", &buf, false); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
	if err := InitLoggerWithWriter("info", "xml", &buf, false); err == nil {
		t.Fatal("expected an error for an unknown format")
	}
	if err := InitLogger("info", "json", "file", false); err == nil {
		t.Fatal("expected an error for an unknown output")
	}
}

func TestLogLevel(t *testing.T) {
	setup := beforeEach(t)

	setup.logger.log(slog.LevelDebug, 0, "test")
	if 0 < setup.buffer.Len() {
		t.Fatalf("debug log is output: %s", setup.buffer.String())
	}
}

func TestLogLog(t *testing.T) {
	setup := beforeEach(t)

	setup.logger.log(slog.LevelInfo, 0, "test")
	raw, r := parseResult(setup, t)

	if r.Level != "INFO" {
		t.Fatalf("mismatch level: %s", raw)
	}

	if m, err := regexp.MatchString(`/log.TestLogLog$`, r.Source.Function); err != nil || !m {
		t.Fatalf("mismatch source.function: %v", raw)
	}
}

func TestLogError(t *testing.T) {
	setup := beforeEach(t)

	setup.logger.Error("testerr", fmt.Errorf("dummy"))
	raw, r := parseResult(setup, t)

	if r.Level != "ERROR" {
		t.Fatalf("mismatch level: %s", raw)
	}

	if m, err := regexp.MatchString(`/log.TestLogError$`, r.Source.Function); err != nil || !m {
		t.Fatalf("mismatch source.function: %v", raw)
	}

	if r.Error != "dummy" {
		t.Fatalf("mismatch error: %s", raw)
	}
}

func TestLogErrorWithStack(t *testing.T) {
	setup := beforeEach(t)

	setup.logger.ErrorWithStack("testerr", fmt.Errorf("dummy"))
	raw, r := parseResult(setup, t)

	if r.Error != "dummy" {
		t.Fatalf("mismatch error: %s", raw)
	}
	if m, err := regexp.MatchString(`TestLogErrorWithStack`, r.Stack); err != nil || !m {
		t.Fatalf("stack does not contain the caller: %v", raw)
	}
}

func TestLogScopes(t *testing.T) {
	setup := beforeEach(t)

	setup.logger.WithModule("core.worker").WithPath("ibc01").TimeTrackContext(context.Background(), time.Now(), "Step")
	raw, r := parseResult(setup, t)

	if r.Module != "core.worker" || r.Path != "ibc01" {
		t.Fatalf("scoped attributes are missing: %s", raw)
	}
	if r.Msg != "time track" {
		t.Fatalf("mismatch msg: %s", raw)
	}
}
