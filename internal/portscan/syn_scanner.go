package portscan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/netip"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"go.uber.org/zap"

	"PscannerGo/internal/targets"
)

var (
	ErrNeedPriv     = errors.New("syn scan requires raw socket privileges (root/CAP_NET_RAW)")
	ErrProberClosed = errors.New("syn prober closed")
)

const (
	srcPortBase  = 40000
	srcPortRange = 20000
)

// synKey 用 (目标地址, 目标端口, 本地源端口) 匹配回包，重复目标使用不同源端口
type synKey struct {
	addr    netip.Addr
	dstPort uint16
	srcPort uint16
}

// frame 以太网/IP 层的固定部分
type frame struct {
	srcMac, dstMac net.HardwareAddr
	srcIP, dstIP   net.IP
}

// SynProber 负责处理 SYN 扫描
// 所有探测共享一个 pcap 句柄，接收协程按 synKey 把回包分发给等待中的探测。
type SynProber struct {
	handle   *pcap.Handle
	decoder  gopacket.Decoder
	localIP  net.IP
	localMac net.HardwareAddr
	dstMac   net.HardwareAddr // 目标 MAC 或 网关 MAC
	resolver *net.Resolver
	logger   *zap.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[synKey]chan OutcomeKind
	hosts   map[string]netip.Addr

	nextPort  atomic.Uint32
	done      chan struct{}
	recvDone  chan struct{}
	closeOnce sync.Once
}

// NewSynProber 初始化 SYN 探测器
// nextHop 为目标所在网段的网关地址，同网段扫描时可直接传目标地址。
func NewSynProber(ifaceName string, nextHop net.IP, logger *zap.Logger) (*SynProber, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// 1. 获取网卡信息
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("interface %s: %w", ifaceName, err)
	}

	// 2. 获取本地 IP
	localIP, err := interfaceIPv4(iface)
	if err != nil {
		return nil, err
	}

	// 3. 解析下一跳 MAC
	dstMac, err := GetMacByIP(iface, localIP, nextHop, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("resolve next hop %s: %w", nextHop, privError(err))
	}

	// 4. 打开 Pcap 句柄，读超时保证接收协程能及时退出
	handle, err := pcap.OpenLive(ifaceName, 65536, false, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("pcap open %s: %w", ifaceName, privError(err))
	}
	// 只接收发往本机的 TCP 包
	if err := handle.SetBPFFilter(fmt.Sprintf("tcp and dst host %s", localIP)); err != nil {
		handle.Close()
		return nil, fmt.Errorf("set bpf filter: %w", err)
	}

	p := &SynProber{
		handle:   handle,
		decoder:  handle.LinkType(),
		localIP:  localIP,
		localMac: iface.HardwareAddr,
		dstMac:   dstMac,
		resolver: net.DefaultResolver,
		logger:   logger.With(zap.String("component", "syn"), zap.String("iface", ifaceName)),
		pending:  make(map[synKey]chan OutcomeKind),
		hosts:    make(map[string]netip.Addr),
		done:     make(chan struct{}),
		recvDone: make(chan struct{}),
	}
	p.nextPort.Store(rand.Uint32N(srcPortRange))
	go p.recvLoop()
	return p, nil
}

// privError 把 pcap 的权限错误归为 ErrNeedPriv，root 或带 CAP_NET_RAW 的进程都能通过
func privError(err error) error {
	if err == nil || errors.Is(err, ErrNeedPriv) {
		return err
	}
	msg := strings.ToLower(err.Error())
	if errors.Is(err, os.ErrPermission) ||
		strings.Contains(msg, "permission") ||
		strings.Contains(msg, "not permitted") {
		return fmt.Errorf("%w: %v", ErrNeedPriv, err)
	}
	return err
}

func interfaceIPv4(iface *net.Interface) (net.IP, error) {
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, err
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				return ip4, nil
			}
		}
	}
	return nil, fmt.Errorf("no IPv4 address on interface %s", iface.Name)
}

// Warm 预先解析全部主机，避免探测时逐个查询 DNS
func (p *SynProber) Warm(ctx context.Context, hosts []string, parallel int64) {
	addrs, errs := targets.ResolveIPv4(ctx, p.resolver, hosts, parallel)
	p.mu.Lock()
	for h, a := range addrs {
		p.hosts[h] = a
	}
	p.mu.Unlock()
	for h, err := range errs {
		p.logger.Debug("resolve failed", zap.String("host", h), zap.Error(err))
	}
}

func (p *SynProber) lookup(ctx context.Context, host string) (netip.Addr, error) {
	p.mu.Lock()
	addr, ok := p.hosts[host]
	p.mu.Unlock()
	if ok {
		return addr, nil
	}
	addrs, errs := targets.ResolveIPv4(ctx, p.resolver, []string{host}, 1)
	if err := errs[host]; err != nil {
		return netip.Addr{}, err
	}
	addr = addrs[host]
	p.mu.Lock()
	p.hosts[host] = addr
	p.mu.Unlock()
	return addr, nil
}

func (p *SynProber) Probe(ctx context.Context, t Target) Outcome {
	addr, err := p.lookup(ctx, t.Host)
	if err != nil {
		if ctx.Err() != nil {
			return timedOut()
		}
		return errored(err)
	}

	key := synKey{
		addr:    addr,
		dstPort: uint16(t.Port),
		srcPort: uint16(srcPortBase + p.nextPort.Add(1)%srcPortRange),
	}
	ch := make(chan OutcomeKind, 1)
	p.mu.Lock()
	p.pending[key] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, key)
		p.mu.Unlock()
	}()

	f := p.frameTo(addr)
	seq := rand.Uint32()
	syn, err := buildSegment(f, key.srcPort, key.dstPort, seq, false)
	if err != nil {
		return errored(err)
	}
	if err := p.write(syn); err != nil {
		return errored(err)
	}

	select {
	case kind := <-ch:
		if kind == Connected {
			// 对端回了 SYN+ACK，发 RST 拆掉半开连接
			if rst, err := buildSegment(f, key.srcPort, key.dstPort, seq+1, true); err == nil {
				_ = p.write(rst)
			}
		}
		return Outcome{Kind: kind}
	case <-ctx.Done():
		return timedOut()
	case <-p.done:
		return errored(ErrProberClosed)
	}
}

func (p *SynProber) frameTo(addr netip.Addr) frame {
	return frame{
		srcMac: p.localMac,
		dstMac: p.dstMac,
		srcIP:  p.localIP,
		dstIP:  net.IP(addr.AsSlice()),
	}
}

func (p *SynProber) write(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.handle.WritePacketData(data)
}

func (p *SynProber) recvLoop() {
	defer close(p.recvDone)
	for {
		select {
		case <-p.done:
			return
		default:
		}
		data, _, err := p.handle.ReadPacketData()
		if err != nil {
			if err == io.EOF {
				return
			}
			// 读超时或临时错误，继续等待
			continue
		}
		key, kind, ok := decodeReply(data, p.decoder)
		if !ok {
			continue
		}
		p.mu.Lock()
		ch := p.pending[key]
		p.mu.Unlock()
		if ch != nil {
			select {
			case ch <- kind:
			default:
			}
		}
	}
}

// Close 停止接收协程并关闭句柄
func (p *SynProber) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		<-p.recvDone
		p.handle.Close()
	})
	return nil
}

// buildSegment 构造 SYN (rst=false) 或 RST 报文
func buildSegment(f frame, srcPort, dstPort uint16, seq uint32, rst bool) ([]byte, error) {
	eth := layers.Ethernet{
		SrcMAC:       f.srcMac,
		DstMAC:       f.dstMac,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := layers.IPv4{
		SrcIP:    f.srcIP,
		DstIP:    f.dstIP,
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
	}
	tcp := layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		Seq:     seq,
		Window:  1024,
		SYN:     !rst,
		RST:     rst,
	}
	if err := tcp.SetNetworkLayerForChecksum(&ip); err != nil {
		return nil, err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &ip, &tcp); err != nil {
		return nil, fmt.Errorf("serialize segment: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeReply 解析回包
// SYN=1, ACK=1 => 端口开放; RST => 端口关闭; 其他包忽略
func decodeReply(data []byte, decoder gopacket.Decoder) (synKey, OutcomeKind, bool) {
	packet := gopacket.NewPacket(data, decoder, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	ip, _ := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	tcp, _ := packet.Layer(layers.LayerTypeTCP).(*layers.TCP)
	if ip == nil || tcp == nil {
		return synKey{}, 0, false
	}
	addr, ok := netip.AddrFromSlice(ip.SrcIP.To4())
	if !ok {
		return synKey{}, 0, false
	}
	key := synKey{
		addr:    addr,
		dstPort: uint16(tcp.SrcPort),
		srcPort: uint16(tcp.DstPort),
	}
	switch {
	case tcp.SYN && tcp.ACK:
		return key, Connected, true
	case tcp.RST:
		return key, Refused, true
	}
	return key, 0, false
}
