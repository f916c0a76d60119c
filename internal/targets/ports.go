package targets

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	minPort = 1
	maxPort = 65535
)

var ErrPortRange = errors.New("port numbers must be in 1..65535")

// ParsePorts 解析端口描述，保留输入顺序和重复项。
// 支持的形式:
//   - 单个: "22"
//   - 列表: "22,80,443"
//   - 范围: "1-1024"
//   - 混合: "22,80,8000-8100"
//   - 全部: "all" 或 "-"
func ParsePorts(spec string) ([]int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("empty port spec")
	}
	if spec == "all" || spec == "-" {
		return AllPorts(), nil
	}

	var ports []int
	for _, tok := range strings.Split(spec, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			return nil, errors.New("invalid empty token in port spec")
		}
		lo, hi, isRange := strings.Cut(tok, "-")
		if !isRange {
			v, err := parsePort(tok)
			if err != nil {
				return nil, err
			}
			ports = append(ports, v)
			continue
		}
		start, err := parsePort(lo)
		if err != nil {
			return nil, err
		}
		end, err := parsePort(hi)
		if err != nil {
			return nil, err
		}
		if start > end {
			return nil, fmt.Errorf("range start greater than end: %s", tok)
		}
		for p := start; p <= end; p++ {
			ports = append(ports, p)
		}
	}
	return ports, nil
}

func parsePort(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", s, err)
	}
	if v < minPort || v > maxPort {
		return 0, fmt.Errorf("%w: %d", ErrPortRange, v)
	}
	return v, nil
}

// AllPorts 1-65535
func AllPorts() []int {
	ports := make([]int, 0, maxPort)
	for p := minPort; p <= maxPort; p++ {
		ports = append(ports, p)
	}
	return ports
}
