package report

import (
	"io"

	"github.com/fatih/color"

	"PscannerGo/internal/portscan"
)

var (
	connectedColor = color.New(color.FgGreen)
	refusedColor   = color.New(color.FgYellow)
	timeoutColor   = color.New(color.FgHiBlack)
	errorColor     = color.New(color.FgRed)
)

// Line 输出格式: <host>:<port> <status>
func Line(r portscan.ScanResult) string {
	return r.Target.String() + " " + r.Outcome.String()
}

// Printer 逐条输出扫描结果，默认不输出超时
type Printer struct {
	w            io.Writer
	showTimeouts bool
	progress     *Progress
	all          []portscan.ScanResult
}

// NewPrinter progress 可以为 nil
func NewPrinter(w io.Writer, showTimeouts bool, progress *Progress) *Printer {
	return &Printer{w: w, showTimeouts: showTimeouts, progress: progress}
}

func (p *Printer) Print(r portscan.ScanResult) {
	p.progress.Add()
	p.all = append(p.all, r)
	if !r.Outcome.Reportable() && !p.showTimeouts {
		return
	}
	p.progress.Clear()
	colorFor(r.Outcome.Kind).Fprintln(p.w, Line(r))
}

// Results 收到的全部结果，包括没有输出的超时
func (p *Printer) Results() []portscan.ScanResult {
	return p.all
}

func colorFor(k portscan.OutcomeKind) *color.Color {
	switch k {
	case portscan.Connected:
		return connectedColor
	case portscan.Refused:
		return refusedColor
	case portscan.TimedOut:
		return timeoutColor
	default:
		return errorColor
	}
}
