package main

import (
	"strings"
	"testing"

	"curator/internal/ipc"
)

func TestTruncate(t *testing.T) {
	if got := truncate("short", 48); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
	long := strings.Repeat("x", 60)
	got := truncate(long, 48)
	if len(got) != 48 || !strings.HasSuffix(got, "...") {
		t.Fatalf("truncate = %q (len %d)", got, len(got))
	}
	if got := truncate(long, 0); got != long {
		t.Fatalf("zero max must not truncate, got %q", got)
	}
}

func TestBuildJobListRows(t *testing.T) {
	rows := buildJobListRows([]ipc.Job{
		{ID: "a", JobType: "url", Status: "pending", SourceURL: "https://x.com/a/status/1", RetryCount: 2, CreatedAt: "2026-01-01T00:00:00.000Z"},
		{ID: "b", JobType: "upload", Status: "completed", UploadPath: "/staging/item.png"},
	})
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0][3] != "https://x.com/a/status/1" || rows[0][4] != "2" {
		t.Fatalf("url row = %v", rows[0])
	}
	if rows[1][3] != "/staging/item.png" {
		t.Fatalf("upload row must fall back to the file path: %v", rows[1])
	}
}

func TestBuildStatusRowsSortedAndNonZero(t *testing.T) {
	rows := buildStatusRows(map[string]int{"pending": 2, "failed": 1, "completed": 0})
	if len(rows) != 2 {
		t.Fatalf("rows = %v", rows)
	}
	if rows[0][0] != "failed" || rows[1][0] != "pending" {
		t.Fatalf("rows not sorted: %v", rows)
	}
}

func TestRenderTableHandlesRaggedRows(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"1"}}, []columnAlignment{alignLeft, alignRight})
	if !strings.Contains(out, "1") {
		t.Fatalf("render = %q", out)
	}
}
