package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"PscannerGo/internal/portscan"
)

// Report JSON 报告内容，Results 包含超时结果，与 Summary 的计数一致
type Report struct {
	StartedAt time.Time             `json:"started_at"`
	Hosts     []string              `json:"hosts"`
	Ports     int                   `json:"port_count"`
	Timeout   string                `json:"timeout"`
	Mode      string                `json:"mode"`
	Summary   portscan.Summary      `json:"summary"`
	Results   []portscan.ScanResult `json:"results"`
}

// WriteJSON 以 JSON 格式原子写入报告
func WriteJSON(path string, rep Report) error {
	if rep.Results == nil {
		rep.Results = []portscan.ScanResult{}
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return WriteAtomic(path, append(data, '\n'))
}

// WriteAtomic 原子写文件:
//   - 在同目录创建临时文件
//   - 写入、fsync、关闭
//   - rename 覆盖目标文件
//
// 失败时删除临时文件，原文件保持不变。
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	tmp, err := os.CreateTemp(dir, "pscanner-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		return fail(fmt.Errorf("write temp file: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("sync temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
