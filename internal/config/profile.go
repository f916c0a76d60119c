package config

import (
	"fmt"
	"os"
	"time"

	"sigs.k8s.io/yaml"
)

// Profile YAML 扫描配置，命令行显式传入的参数优先
//
//	hosts: [10.0.0.0/30, example.com]
//	ports: "22,80,8000-8100"
//	timeout: 500ms
//	randomize: true
//	concurrency: 500
//	rate: 1000
//	mode: connect
type Profile struct {
	Hosts        []string `json:"hosts,omitempty"`
	Ports        string   `json:"ports,omitempty"`
	Timeout      string   `json:"timeout,omitempty"`
	Randomize    bool     `json:"randomize,omitempty"`
	Concurrency  int      `json:"concurrency,omitempty"`
	Rate         float64  `json:"rate,omitempty"`
	Mode         string   `json:"mode,omitempty"`
	Interface    string   `json:"interface,omitempty"`
	Gateway      string   `json:"gateway,omitempty"`
	Output       string   `json:"output,omitempty"`
	ShowTimeouts bool     `json:"showTimeouts,omitempty"`
}

// Load 读取并解析配置文件，未知字段视为错误
func Load(path string) (Profile, error) {
	var p Profile
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &p); err != nil {
		return p, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if _, err := p.Duration(); err != nil {
		return p, err
	}
	return p, nil
}

// Duration 解析 timeout，未设置时返回 0
func (p Profile) Duration() (time.Duration, error) {
	if p.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(p.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", p.Timeout, err)
	}
	return d, nil
}
