package targets

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ResolveIPv4 并发解析主机的第一个 IPv4 地址，parallel 限制同时进行的查询数。
// IP 字面量直接返回，重复主机只解析一次。
func ResolveIPv4(ctx context.Context, resolver *net.Resolver, hosts []string, parallel int64) (map[string]netip.Addr, map[string]error) {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if parallel <= 0 {
		parallel = 1
	}

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		addrs = make(map[string]netip.Addr, len(hosts))
		errs  = make(map[string]error)
		seen  = make(map[string]struct{}, len(hosts))
		sem   = semaphore.NewWeighted(parallel)
	)

	for _, h := range hosts {
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}

		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			errs[h] = err
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(host string) {
			defer wg.Done()
			defer sem.Release(1)
			addr, err := lookupIPv4(ctx, resolver, host)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[host] = err
				return
			}
			addrs[host] = addr
		}(h)
	}
	wg.Wait()
	return addrs, errs
}

func lookupIPv4(ctx context.Context, resolver *net.Resolver, host string) (netip.Addr, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		ip = ip.Unmap()
		if !ip.Is4() {
			return netip.Addr{}, fmt.Errorf("%s: IPv6 addresses are not supported", host)
		}
		return ip, nil
	}
	ips, err := resolver.LookupNetIP(ctx, "ip4", host)
	if err != nil {
		return netip.Addr{}, err
	}
	for _, ip := range ips {
		if ip = ip.Unmap(); ip.Is4() {
			return ip, nil
		}
	}
	return netip.Addr{}, fmt.Errorf("no A records found for %s", host)
}
