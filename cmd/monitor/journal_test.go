package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"threatScope/internal/model"
	"threatScope/internal/storage"
)

func writeJournal(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "threats.jsonl")
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	alerts := []model.ThreatAlert{
		{ID: "a", Type: model.ThreatRugPull, Severity: model.SeverityCritical, TxHash: "0x01", BlockNumber: 7, Confidence: 0.9, CreatedAt: created, Mitigated: true},
		{ID: "b", Type: model.ThreatSuspiciousPattern, Severity: model.SeverityLow, TxHash: "0x02", BlockNumber: 8, Confidence: 0.5, CreatedAt: created},
		{ID: "c", Type: model.ThreatSuspiciousPattern, Severity: model.SeverityLow, TxHash: "0x03", BlockNumber: 9, Confidence: 0.5, CreatedAt: created},
	}
	events := make([]model.ThreatEvent, 0, len(alerts))
	for _, a := range alerts {
		events = append(events, model.NewThreatEvent(a))
	}
	if err := storage.NewJsonlStorage(path).PutEventBatch(events); err != nil {
		t.Fatalf("write journal: %v", err)
	}
	return path
}

func TestJournalCommand(t *testing.T) {
	path := writeJournal(t)

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"journal", "--in", path, "--min-severity", "high"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	text := out.String()
	if !strings.Contains(text, "tx=0x01") || !strings.Contains(text, "mitigated") {
		t.Fatalf("critical alert missing: %s", text)
	}
	if strings.Contains(text, "tx=0x02") {
		t.Fatalf("low alert should be filtered: %s", text)
	}
	if !strings.Contains(text, "rug_pull/critical") {
		t.Fatalf("summary missing: %s", text)
	}
}

func TestJournalCommandSummary(t *testing.T) {
	path := writeJournal(t)

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"journal", "--in", path, "--summary"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two summary lines, got %q", lines)
	}
	if !strings.HasPrefix(lines[1], "suspicious_pattern/low") || !strings.HasSuffix(lines[1], " 2") {
		t.Fatalf("unexpected summary line: %q", lines[1])
	}
}

func TestJournalCommandRequiresInput(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"journal"})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected error without input")
	}
}
