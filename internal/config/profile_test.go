package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scan.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeProfile(t, `
hosts: [10.0.0.0/30, example.com]
ports: "22,80,8000-8100"
timeout: 250ms
randomize: true
concurrency: 64
rate: 1000
mode: syn
interface: eth0
gateway: 10.0.0.1
output: out/report.json
showTimeouts: true
`)
	p, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Profile{
		Hosts:        []string{"10.0.0.0/30", "example.com"},
		Ports:        "22,80,8000-8100",
		Timeout:      "250ms",
		Randomize:    true,
		Concurrency:  64,
		Rate:         1000,
		Mode:         "syn",
		Interface:    "eth0",
		Gateway:      "10.0.0.1",
		Output:       "out/report.json",
		ShowTimeouts: true,
	}
	if !reflect.DeepEqual(p, want) {
		t.Fatalf("got %+v\nwant %+v", p, want)
	}
	if d, _ := p.Duration(); d != 250*time.Millisecond {
		t.Fatalf("duration %v", d)
	}
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]string{
		"unknown key": "hosts: [a]\nthreads: 10\n",
		"bad timeout": "timeout: soon\n",
		"bad yaml":    "hosts: [a\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeProfile(t, body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDuration_Unset(t *testing.T) {
	d, err := Profile{}.Duration()
	if err != nil || d != 0 {
		t.Fatalf("got %v, %v", d, err)
	}
}
