package report

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// Progress 进度条，输出不是终端时什么都不做
type Progress struct {
	bar *progressbar.ProgressBar
}

func NewProgress(total int, out *os.File) *Progress {
	if total <= 0 || out == nil {
		return &Progress{}
	}
	if !isatty.IsTerminal(out.Fd()) && !isatty.IsCygwinTerminal(out.Fd()) {
		return &Progress{}
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription("[cyan][扫描中][reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return &Progress{bar: bar}
}

// Enabled 是否真正绘制进度条
func (p *Progress) Enabled() bool {
	return p != nil && p.bar != nil
}

func (p *Progress) Add() {
	if p.Enabled() {
		_ = p.bar.Add(1)
	}
}

func (p *Progress) Clear() {
	if p.Enabled() {
		_ = p.bar.Clear()
	}
}

func (p *Progress) Finish() {
	if p.Enabled() {
		_ = p.bar.Finish()
	}
}
