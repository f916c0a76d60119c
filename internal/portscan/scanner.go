package portscan

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrNeedProber SYN 模式需要调用方提供已初始化的 SynProber
var ErrNeedProber = errors.New("syn mode requires a raw-socket prober")

const poolReleaseTimeout = 5 * time.Second

// Scanner 扫描引擎，不持有跨扫描的状态
type Scanner struct {
	cfg     Config
	prober  Prober
	logger  *zap.Logger
	limiter *rate.Limiter
	rng     *rand.Rand
}

type Option func(*Scanner)

// WithProber 替换默认的 TCP 全连接探测
func WithProber(p Prober) Option {
	return func(s *Scanner) { s.prober = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRand 指定打乱目标顺序用的随机源
func WithRand(r *rand.Rand) Option {
	return func(s *Scanner) { s.rng = r }
}

// NewScanner 创建一个新的扫描器实例
func NewScanner(cfg Config, opts ...Option) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scanner{
		cfg:    cfg.clone(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.prober == nil {
		if s.cfg.Mode == ModeSYN {
			return nil, ErrNeedProber
		}
		s.prober = NewConnectProber(nil)
	}
	if s.cfg.Rate > 0 {
		burst := int(math.Ceil(s.cfg.Rate))
		s.limiter = rate.NewLimiter(rate.Limit(s.cfg.Rate), burst)
	}
	s.logger = s.logger.With(zap.String("component", "scanner"))
	return s, nil
}

// TargetCount 本次扫描的目标总数 |hosts| x |ports|
func (s *Scanner) TargetCount() int {
	return len(s.cfg.Hosts) * len(s.cfg.Ports)
}

// Scan 启动异步流式扫描
// 每个目标恰好产生一个结果 (包括超时)，全部探测结束后关闭通道。
// ctx 取消后停止派发，被取消打断的探测不再产生结果。
func (s *Scanner) Scan(ctx context.Context) <-chan ScanResult {
	results := make(chan ScanResult)
	targets := BuildTargets(s.cfg.Hosts, s.cfg.Ports, s.cfg.Randomize, s.rng)

	go func() {
		defer close(results)
		if len(targets) == 0 {
			return
		}

		var wg sync.WaitGroup
		// 工作池大小即最大并发探测数
		pool, err := ants.NewPoolWithFunc(min(s.cfg.Concurrency, len(targets)), func(arg interface{}) {
			defer wg.Done()
			res, ok := s.probe(ctx, arg.(Target))
			if !ok {
				return
			}
			select {
			case results <- res:
			case <-ctx.Done():
			}
		})
		if err != nil {
			s.logger.Error("create worker pool", zap.Error(err))
			return
		}
		// 等待空闲 worker 全部退出后再关闭结果通道
		defer func() {
			if err := pool.ReleaseTimeout(poolReleaseTimeout); err != nil {
				s.logger.Warn("release worker pool", zap.Error(err))
			}
		}()

		s.logger.Info("scan started",
			zap.Int("targets", len(targets)),
			zap.Int("workers", pool.Cap()),
			zap.Duration("timeout", s.cfg.Timeout),
			zap.Bool("randomize", s.cfg.Randomize),
			zap.Stringer("mode", s.cfg.Mode),
		)

		for _, t := range targets {
			if s.limiter != nil {
				if err := s.limiter.Wait(ctx); err != nil {
					break
				}
			}
			if ctx.Err() != nil {
				break
			}
			wg.Add(1)
			if err := pool.Invoke(t); err != nil {
				wg.Done()
				s.logger.Warn("dispatch stopped", zap.Stringer("target", t), zap.Error(err))
				break
			}
		}

		// 等待所有正在进行的探测完成
		wg.Wait()
	}()

	return results
}

// probe 在超时约束下探测单个目标。第二个返回值为 false 表示整体扫描已被取消。
func (s *Scanner) probe(ctx context.Context, t Target) (ScanResult, bool) {
	pctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	deadline, _ := pctx.Deadline()

	start := time.Now()
	out := s.prober.Probe(pctx, t)
	end := time.Now()

	if ctx.Err() != nil {
		return ScanResult{}, false
	}
	// 超过截止时间才返回的结果一律按超时处理
	if out.Kind != TimedOut && end.After(deadline) {
		out = timedOut()
	}

	if ce := s.logger.Check(zap.DebugLevel, "probe"); ce != nil {
		ce.Write(
			zap.Stringer("target", t),
			zap.Stringer("outcome", out.Kind),
			zap.String("detail", out.Detail),
			zap.Duration("rtt", end.Sub(start)),
		)
	}
	return ScanResult{Target: t, Outcome: out, RTT: end.Sub(start)}, true
}

// Run 消费 Scan 的全部结果，对每个结果调用 fn，返回汇总
func (s *Scanner) Run(ctx context.Context, fn func(ScanResult)) Summary {
	start := time.Now()
	var sum Summary
	for res := range s.Scan(ctx) {
		sum.Add(res)
		if fn != nil {
			fn(res)
		}
	}
	sum.Elapsed = time.Since(start)

	s.logger.Info("scan finished",
		zap.Int("total", sum.Total),
		zap.Int("connected", sum.Connected),
		zap.Int("refused", sum.Refused),
		zap.Int("timed_out", sum.TimedOut),
		zap.Int("errors", sum.Errors),
		zap.Duration("elapsed", sum.Elapsed),
		zap.Bool("cancelled", ctx.Err() != nil),
	)
	return sum
}
