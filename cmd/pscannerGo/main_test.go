package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"PscannerGo/internal/portscan"
	"PscannerGo/internal/report"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("pscannerGo", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scan.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	return path
}

func TestParseArgs_ProfileMerge(t *testing.T) {
	profile := writeProfile(t, `
hosts: [10.0.0.1, 10.0.0.2]
ports: "22,80"
timeout: 2s
randomize: true
concurrency: 64
`)
	cases := []struct {
		name  string
		args  []string
		check func(t *testing.T, opts options)
	}{
		{
			name: "flag timeout wins",
			args: []string{"-config", profile, "-t", "0.25"},
			check: func(t *testing.T, opts options) {
				if opts.timeout != 0.25 {
					t.Fatalf("timeout %v", opts.timeout)
				}
			},
		},
		{
			name: "profile timeout used when flag absent",
			args: []string{"-config", profile},
			check: func(t *testing.T, opts options) {
				if opts.timeout != 2 || opts.concurrency != 64 || opts.ports != "22,80" {
					t.Fatalf("profile values not applied: %+v", opts)
				}
			},
		},
		{
			name: "explicit -r=false kept",
			args: []string{"-config", profile, "-r=false"},
			check: func(t *testing.T, opts options) {
				if opts.randomize {
					t.Fatalf("randomize overridden by profile")
				}
			},
		},
		{
			name: "profile randomize used when flag absent",
			args: []string{"-config", profile},
			check: func(t *testing.T, opts options) {
				if !opts.randomize {
					t.Fatalf("randomize not applied")
				}
			},
		},
		{
			name: "profile hosts without positional args",
			args: []string{"-config", profile},
			check: func(t *testing.T, opts options) {
				if len(opts.hosts) != 2 || opts.hosts[0] != "10.0.0.1" {
					t.Fatalf("hosts %v", opts.hosts)
				}
			},
		},
		{
			name: "positional hosts win",
			args: []string{"-config", profile, "127.0.0.1"},
			check: func(t *testing.T, opts options) {
				if len(opts.hosts) != 1 || opts.hosts[0] != "127.0.0.1" {
					t.Fatalf("hosts %v", opts.hosts)
				}
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts, err := parseArgs(newFlagSet(), tc.args)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			tc.check(t, opts)
		})
	}
}

func TestParseArgs_Errors(t *testing.T) {
	cases := map[string][]string{
		"bad profile mode": {"-config", writeProfile(t, "mode: udp\n")},
		"missing profile":  {"-config", filepath.Join(t.TempDir(), "none.yaml")},
		"unknown flag":     {"-x"},
		"bad flag value":   {"-c", "many"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseArgs(newFlagSet(), args)
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := exitCode(err); got != 2 {
				t.Fatalf("exit code %d want 2", got)
			}
		})
	}
}

func TestBuildConfig(t *testing.T) {
	opts, err := parseArgs(newFlagSet(), []string{"10.0.0.0/30"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg, err := buildConfig(opts)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(cfg.Ports) != 65535 || cfg.Ports[0] != 1 || cfg.Ports[65534] != 65535 {
		t.Fatalf("default ports not applied: %d", len(cfg.Ports))
	}
	if len(cfg.Hosts) != 4 || cfg.Timeout != portscan.DefaultTimeout || cfg.Mode != portscan.ModeConnect {
		t.Fatalf("unexpected config %+v", cfg)
	}

	opts, _ = parseArgs(newFlagSet(), []string{"-p", "80,443", "-syn", "example.com"})
	if cfg, err = buildConfig(opts); err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(cfg.Ports) != 2 || cfg.Mode != portscan.ModeSYN {
		t.Fatalf("unexpected config %+v", cfg)
	}

	for name, args := range map[string][]string{
		"no hosts":    {"-p", "80"},
		"bad port":    {"-p", "0", "127.0.0.1"},
		"bad timeout": {"-t", "0", "127.0.0.1"},
		"bad workers": {"-c", "-1", "127.0.0.1"},
		"bad cidr":    {"10.0.0.0/40"},
	} {
		opts, err := parseArgs(newFlagSet(), args)
		if err != nil {
			t.Fatalf("%s: parse: %v", name, err)
		}
		if _, err := buildConfig(opts); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{errors.New("write failed"), 1},
		{usage(errors.New("bad flag")), 2},
		{fmt.Errorf("pcap open eth0: %w", portscan.ErrNeedPriv), 3},
		{context.Canceled, 130},
	}
	for _, tc := range cases {
		if got := exitCode(tc.err); got != tc.want {
			t.Errorf("%v: got %d want %d", tc.err, got, tc.want)
		}
	}
}

func TestRun(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()
	port := strconv.Itoa(l.Addr().(*net.TCPAddr).Port)
	out := filepath.Join(t.TempDir(), "report.json")

	if code := run([]string{"-p", port, "-t", "1", "-o", out, "127.0.0.1"}); code != 0 {
		t.Fatalf("exit code %d", code)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var rep report.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if rep.Summary.Connected != 1 || len(rep.Results) != 1 {
		t.Fatalf("unexpected report %+v", rep)
	}

	// 报告路径的父目录是普通文件，写入失败
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if code := run([]string{"-p", port, "-o", filepath.Join(blocker, "r.json"), "127.0.0.1"}); code != 1 {
		t.Fatalf("report failure: exit code %d want 1", code)
	}

	for name, args := range map[string][]string{
		"no hosts":        {"-p", port},
		"bad port":        {"-p", "70000", "127.0.0.1"},
		"syn without nic": {"-syn", "-p", port, "127.0.0.1"},
	} {
		if code := run(args); code != 2 {
			t.Errorf("%s: exit code %d want 2", name, code)
		}
	}
}

func TestRun_Help(t *testing.T) {
	if code := run([]string{"-h"}); code != 0 {
		t.Fatalf("exit code %d", code)
	}
}
