package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLoggerWritesPrefixedLines(t *testing.T) {
	tmp := t.TempDir()
	logPath := filepath.Join(tmp, "agent.log")

	logger, closer, err := NewLogger(logPath)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Println("listener started")
	_ = closer.Close()

	b, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.HasPrefix(string(b), "rsm-agent ") {
		t.Fatalf("missing prefix: %q", string(b))
	}
	if !strings.Contains(string(b), "listener started") {
		t.Fatalf("missing message: %q", string(b))
	}
}
