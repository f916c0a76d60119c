package portscan

import (
	"context"
	"errors"
	"net"
	"os"
	"runtime"
	"strings"
	"syscall"
)

// Prober 对单个目标执行一次探测。ctx 携带本次探测的截止时间。
type Prober interface {
	Probe(ctx context.Context, t Target) Outcome
}

// DialFunc 与 net.Dialer.DialContext 签名一致
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// ConnectProber TCP 全连接探测
type ConnectProber struct {
	dial DialFunc
}

// NewConnectProber resolver 为 nil 时使用系统默认解析器
func NewConnectProber(resolver *net.Resolver) *ConnectProber {
	d := &net.Dialer{
		KeepAlive: -1, // 禁用 KeepAlive，扫描不需要保持连接
		Resolver:  resolver,
	}
	return &ConnectProber{dial: d.DialContext}
}

// NewConnectProberWithDial 使用自定义拨号函数
func NewConnectProberWithDial(dial DialFunc) *ConnectProber {
	return &ConnectProber{dial: dial}
}

func (p *ConnectProber) Probe(ctx context.Context, t Target) Outcome {
	conn, err := p.dial(ctx, "tcp", t.String())
	if err != nil {
		return classifyDialError(err)
	}
	// 同步关闭，避免高并发下泄漏 socket
	_ = conn.Close()
	return connected()
}

// classifyDialError 把拨号错误映射为探测结果，每种信号只在这里判断一次
func classifyDialError(err error) Outcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return timedOut()
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return timedOut()
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		// 解析失败不是对端拒绝，即使文本里带 refused
		return errored(err)
	}
	if isConnRefused(err) {
		return refused()
	}
	return errored(err)
}

// WSAECONNREFUSED
const wsaConnRefused = syscall.Errno(10061)

func isConnRefused(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, wsaConnRefused) {
		return true
	}
	if runtime.GOOS != "windows" {
		return false
	}
	// Windows 上部分错误只有文本
	return strings.Contains(err.Error(), "refused")
}
