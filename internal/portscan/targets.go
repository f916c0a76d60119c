package portscan

import "math/rand/v2"

// BuildTargets 生成 hosts x ports 笛卡尔积 (主机在外层，端口在内层)。
// 重复的主机或端口不去重，每一项都会被单独探测。
// randomize 为 true 时整体打乱派发顺序，rng 为 nil 时使用全局随机源。
func BuildTargets(hosts []string, ports []int, randomize bool, rng *rand.Rand) []Target {
	targets := make([]Target, 0, len(hosts)*len(ports))
	for _, h := range hosts {
		for _, p := range ports {
			targets = append(targets, Target{Host: h, Port: p})
		}
	}
	if !randomize {
		return targets
	}
	swap := func(i, j int) { targets[i], targets[j] = targets[j], targets[i] }
	if rng != nil {
		rng.Shuffle(len(targets), swap)
	} else {
		rand.Shuffle(len(targets), swap)
	}
	return targets
}
