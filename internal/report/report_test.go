package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"PscannerGo/internal/portscan"
)

func result(host string, port int, kind portscan.OutcomeKind, detail string) portscan.ScanResult {
	return portscan.ScanResult{
		Target:  portscan.Target{Host: host, Port: port},
		Outcome: portscan.Outcome{Kind: kind, Detail: detail},
	}
}

func TestLine(t *testing.T) {
	cases := map[string]portscan.ScanResult{
		"127.0.0.1:80 Connected":             result("127.0.0.1", 80, portscan.Connected, ""),
		"127.0.0.1:81 Connection refused":    result("127.0.0.1", 81, portscan.Refused, ""),
		"nope.invalid:22 Error no such host": result("nope.invalid", 22, portscan.Errored, "no such host"),
		"[::1]:443 Timed out":                result("::1", 443, portscan.TimedOut, ""),
	}
	for want, r := range cases {
		if got := Line(r); got != want {
			t.Errorf("got %q want %q", got, want)
		}
	}
}

func TestPrinter(t *testing.T) {
	color.NoColor = true
	results := []portscan.ScanResult{
		result("10.0.0.1", 22, portscan.Connected, ""),
		result("10.0.0.1", 23, portscan.TimedOut, ""),
		result("10.0.0.1", 24, portscan.Refused, ""),
	}

	var buf bytes.Buffer
	p := NewPrinter(&buf, false, nil)
	for _, r := range results {
		p.Print(r)
	}
	want := "10.0.0.1:22 Connected\n10.0.0.1:24 Connection refused\n"
	if buf.String() != want {
		t.Fatalf("got %q want %q", buf.String(), want)
	}
	// 超时不输出，但报告里仍然保留
	if got := p.Results(); len(got) != 3 || got[1].Outcome.Kind != portscan.TimedOut {
		t.Fatalf("results %v", got)
	}

	buf.Reset()
	p = NewPrinter(&buf, true, NewProgress(0, os.Stderr))
	for _, r := range results {
		p.Print(r)
	}
	if !strings.Contains(buf.String(), "10.0.0.1:23 Timed out\n") || len(p.Results()) != 3 {
		t.Fatalf("timeouts not shown: %q", buf.String())
	}
}

func TestProgress_Disabled(t *testing.T) {
	var nilProgress *Progress
	nilProgress.Add()
	nilProgress.Clear()
	nilProgress.Finish()
	if nilProgress.Enabled() || NewProgress(0, os.Stderr).Enabled() || NewProgress(10, nil).Enabled() {
		t.Fatalf("progress should be disabled")
	}

	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if NewProgress(10, f).Enabled() {
		t.Fatalf("progress enabled on a regular file")
	}
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "report.json")
	rep := Report{
		StartedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Hosts:     []string{"127.0.0.1"},
		Ports:     2,
		Timeout:   "500ms",
		Mode:      "connect",
		Summary:   portscan.Summary{Total: 2, Connected: 1, Refused: 1},
		Results:   []portscan.ScanResult{result("127.0.0.1", 80, portscan.Connected, "")},
	}
	if err := WriteJSON(path, rep); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var back Report
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Summary != rep.Summary || len(back.Results) != 1 || back.Results[0] != rep.Results[0] {
		t.Fatalf("got %+v", back)
	}
	if !strings.Contains(string(data), `"kind": "connected"`) {
		t.Fatalf("outcome kind not readable: %s", data)
	}

	// 没有结果时写出空数组而不是 null
	if err := WriteJSON(path, Report{}); err != nil {
		t.Fatalf("write empty: %v", err)
	}
	data, _ = os.ReadFile(path)
	if !strings.Contains(string(data), `"results": []`) {
		t.Fatalf("expected empty results array: %s", data)
	}
}

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	if err := WriteAtomic(path, []byte("first")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteAtomic(path, []byte("second")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if data, _ := os.ReadFile(path); string(data) != "second" {
		t.Fatalf("got %q", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestWriteAtomic_FailureKeepsOriginal(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	if err := WriteAtomic(path, []byte("keep")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(dir, 0o755)

	if err := WriteAtomic(path, []byte("lost")); err == nil {
		t.Fatalf("expected error writing to read-only dir")
	}
	if data, _ := os.ReadFile(path); string(data) != "keep" {
		t.Fatalf("original changed: %q", data)
	}
}
