package portscan

import "time"

// Summary 一次扫描的结果统计，超时虽不输出但计入完成数
type Summary struct {
	Total     int           `json:"total"`
	Connected int           `json:"connected"`
	Refused   int           `json:"refused"`
	TimedOut  int           `json:"timed_out"`
	Errors    int           `json:"errors"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

func (s *Summary) Add(r ScanResult) {
	s.Total++
	switch r.Outcome.Kind {
	case Connected:
		s.Connected++
	case Refused:
		s.Refused++
	case TimedOut:
		s.TimedOut++
	default:
		s.Errors++
	}
}
