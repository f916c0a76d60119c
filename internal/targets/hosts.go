package targets

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"go4.org/netipx"
)

// MaxExpandedHosts 单次展开的主机数上限
const MaxExpandedHosts = 1 << 16

var ErrTooManyHosts = fmt.Errorf("host list expands to more than %d addresses", MaxExpandedHosts)

// ExpandHosts 展开主机列表:
//   - CIDR: "10.0.0.0/30"
//   - 地址范围: "10.0.0.1-10.0.0.9"
//   - 其他 (IP 或域名) 原样保留
//
// 保持输入顺序，不去重。
func ExpandHosts(specs []string) ([]string, error) {
	var out []string
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			return nil, errors.New("empty host")
		}
		r, ok, err := parseRange(spec)
		if err != nil {
			return nil, err
		}
		if !ok {
			if len(out) >= MaxExpandedHosts {
				return nil, ErrTooManyHosts
			}
			out = append(out, spec)
			continue
		}
		for ip := r.From(); ; ip = ip.Next() {
			if len(out) >= MaxExpandedHosts {
				return nil, ErrTooManyHosts
			}
			out = append(out, ip.String())
			if ip == r.To() {
				break
			}
		}
	}
	return out, nil
}

func parseRange(spec string) (netipx.IPRange, bool, error) {
	if strings.Contains(spec, "/") {
		p, err := netip.ParsePrefix(spec)
		if err != nil {
			return netipx.IPRange{}, false, fmt.Errorf("invalid cidr %q: %w", spec, err)
		}
		return netipx.RangeOfPrefix(p.Masked()), true, nil
	}
	from, to, found := strings.Cut(spec, "-")
	if !found {
		return netipx.IPRange{}, false, nil
	}
	// 域名里也可能有 '-'，两端都是 IP 才按范围处理
	a, errA := netip.ParseAddr(from)
	b, errB := netip.ParseAddr(to)
	if errA != nil || errB != nil {
		return netipx.IPRange{}, false, nil
	}
	r := netipx.IPRangeFrom(a, b)
	if !r.IsValid() {
		return netipx.IPRange{}, false, fmt.Errorf("invalid address range %q", spec)
	}
	return r, true, nil
}
