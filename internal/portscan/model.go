package portscan

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// ScanMode 定义扫描模式
type ScanMode int

const (
	ModeConnect ScanMode = iota // TCP 全连接扫描 (默认, 无需 Root)
	ModeSYN                     // TCP SYN 半开放扫描 (需 Root)
)

func (m ScanMode) String() string {
	if m == ModeSYN {
		return "syn"
	}
	return "connect"
}

// ParseScanMode 解析 "connect" / "syn"，空字符串视为 connect
func ParseScanMode(s string) (ScanMode, error) {
	switch s {
	case "", "connect", "tcp":
		return ModeConnect, nil
	case "syn", "stealth":
		return ModeSYN, nil
	}
	return ModeConnect, fmt.Errorf("unknown scan mode %q", s)
}

const (
	MinPort = 1
	MaxPort = 65535

	DefaultTimeout     = 500 * time.Millisecond
	DefaultConcurrency = 500
)

var (
	ErrInvalidTimeout     = errors.New("timeout must be greater than zero")
	ErrInvalidPort        = errors.New("port numbers must be in 1..65535")
	ErrInvalidConcurrency = errors.New("concurrency must not be negative")
	ErrInvalidRate        = errors.New("rate must not be negative")
)

// Target 单个探测目标 (host, port)
type Target struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (t Target) String() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// OutcomeKind 探测结果分类
type OutcomeKind int

const (
	Connected OutcomeKind = iota // 建立连接后由扫描器主动关闭
	Refused                      // 对端拒绝 (RST)
	TimedOut                     // 超时内无响应，视为过滤/不可达
	Errored                      // 其他错误 (DNS、路由等)
)

var kindNames = map[OutcomeKind]string{
	Connected: "connected",
	Refused:   "refused",
	TimedOut:  "timeout",
	Errored:   "error",
}

func (k OutcomeKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

func (k OutcomeKind) MarshalText() ([]byte, error) {
	s, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown outcome kind %d", int(k))
	}
	return []byte(s), nil
}

func (k *OutcomeKind) UnmarshalText(b []byte) error {
	for kind, name := range kindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown outcome kind %q", string(b))
}

// Outcome 单次探测的分类结果，Detail 仅在 Errored 时有值
type Outcome struct {
	Kind   OutcomeKind `json:"kind"`
	Detail string      `json:"detail,omitempty"`
}

func connected() Outcome { return Outcome{Kind: Connected} }
func refused() Outcome   { return Outcome{Kind: Refused} }
func timedOut() Outcome  { return Outcome{Kind: TimedOut} }

func errored(err error) Outcome {
	return Outcome{Kind: Errored, Detail: err.Error()}
}

// String 返回与原工具一致的状态文本
func (o Outcome) String() string {
	switch o.Kind {
	case Connected:
		return "Connected"
	case Refused:
		return "Connection refused"
	case TimedOut:
		return "Timed out"
	default:
		return "Error " + o.Detail
	}
}

// Reportable 超时结果默认不输出
func (o Outcome) Reportable() bool {
	return o.Kind != TimedOut
}

// ScanResult 扫描结果
type ScanResult struct {
	Target  Target        `json:"target"`
	Outcome Outcome       `json:"outcome"`
	RTT     time.Duration `json:"rtt_ns"`
}

// Config 一次扫描的配置，NewScanner 会复制一份，扫描期间不可变
type Config struct {
	Hosts       []string
	Ports       []int
	Timeout     time.Duration
	Randomize   bool
	Concurrency int     // 0 使用 DefaultConcurrency
	Rate        float64 // 每秒最多发起的探测数，0 表示不限速
	Mode        ScanMode
}

// Validate 检查配置。空的主机或端口列表是合法的，扫描会立即结束。
func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	for _, p := range c.Ports {
		if p < MinPort || p > MaxPort {
			return fmt.Errorf("%w: %d", ErrInvalidPort, p)
		}
	}
	if c.Concurrency < 0 {
		return ErrInvalidConcurrency
	}
	if c.Rate < 0 {
		return ErrInvalidRate
	}
	return nil
}

func (c Config) clone() Config {
	out := c
	out.Hosts = append([]string(nil), c.Hosts...)
	out.Ports = append([]int(nil), c.Ports...)
	if out.Concurrency == 0 {
		out.Concurrency = DefaultConcurrency
	}
	return out
}
