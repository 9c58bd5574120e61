package logger

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, "warn")

	l.Info("не должно попасть")
	l.Warn("предупреждение %d", 1)
	l.Error("ошибка")

	out := buf.String()
	if strings.Contains(out, "не должно попасть") {
		t.Fatalf("info message leaked at WARN level: %q", out)
	}
	if !strings.Contains(out, "[WARN]") || !strings.Contains(out, "предупреждение 1") {
		t.Fatalf("warn message missing: %q", out)
	}
	if !strings.Contains(out, "[ERROR]") {
		t.Fatalf("error message missing: %q", out)
	}
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, "verbose")

	l.Debug("debug")
	l.Info("info")

	if strings.Contains(buf.String(), "debug") {
		t.Fatalf("debug should be filtered at fallback INFO level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "info") {
		t.Fatalf("info message missing: %q", buf.String())
	}
}

func TestNewLoggerCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "guard.log")
	l, err := NewLogger(path, "debug", false)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	defer l.Close()

	l.Debug("hello")
	if l.logFile == nil {
		t.Fatal("expected log file to be opened")
	}
}

func TestGlobalHelpersAreSafeWithoutInit(t *testing.T) {
	SetGlobal(nil)
	Info("no-op %s", "ok")
	Close()
}
