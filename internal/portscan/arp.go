package portscan

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

var ErrARPTimeout = errors.New("arp request timed out")

var broadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// GetMacByIP 通过 ARP 请求获取指定 IP 的 MAC 地址
// 注意：仅适用于同一局域网，跨网段时应传入网关地址
func GetMacByIP(iface *net.Interface, srcIP, targetIP net.IP, wait time.Duration) (net.HardwareAddr, error) {
	handle, err := pcap.OpenLive(iface.Name, 65536, false, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", iface.Name, privError(err))
	}
	defer handle.Close()

	if err := handle.SetBPFFilter("arp"); err != nil {
		return nil, fmt.Errorf("set arp filter: %w", err)
	}

	req, err := buildARPRequest(iface.HardwareAddr, srcIP, targetIP)
	if err != nil {
		return nil, err
	}
	if err := handle.WritePacketData(req); err != nil {
		return nil, fmt.Errorf("send arp request: %w", err)
	}

	// 监听 ARP 回复
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		data, _, err := handle.ReadPacketData()
		if err != nil {
			continue
		}
		if mac, ok := parseARPReply(data, targetIP); ok {
			return mac, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrARPTimeout, targetIP)
}

func buildARPRequest(srcMac net.HardwareAddr, srcIP, targetIP net.IP) ([]byte, error) {
	src4, dst4 := srcIP.To4(), targetIP.To4()
	if src4 == nil || dst4 == nil {
		return nil, errors.New("arp requires ipv4 addresses")
	}
	eth := layers.Ethernet{
		SrcMAC:       srcMac,
		DstMAC:       broadcastMAC,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(srcMac),
		SourceProtAddress: []byte(src4),
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte(dst4),
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &arp); err != nil {
		return nil, fmt.Errorf("serialize arp: %w", err)
	}
	return buf.Bytes(), nil
}

func parseARPReply(data []byte, targetIP net.IP) (net.HardwareAddr, bool) {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
	arpLayer := packet.Layer(layers.LayerTypeARP)
	if arpLayer == nil {
		return nil, false
	}
	arp := arpLayer.(*layers.ARP)
	if arp.Operation != layers.ARPReply || !bytes.Equal(arp.SourceProtAddress, targetIP.To4()) {
		return nil, false
	}
	return net.HardwareAddr(arp.SourceHwAddress), true
}
