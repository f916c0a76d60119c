package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"PscannerGo/internal/config"
	"PscannerGo/internal/logging"
	"PscannerGo/internal/portscan"
	"PscannerGo/internal/report"
	"PscannerGo/internal/targets"
)

type options struct {
	ports        string
	timeout      float64
	randomize    bool
	concurrency  int
	rate         float64
	syn          bool
	iface        string
	gateway      string
	output       string
	showTimeouts bool
	verbose      bool
	profile      string
	hosts        []string
}

// usageError 参数或配置错误，退出码 2
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usage(err error) error {
	if err == nil {
		return nil
	}
	return usageError{err: err}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run 执行一次完整扫描并返回退出码
func run(args []string) int {
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	opts, err := parseArgs(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		color.Red("[-]%v", err)
		return exitCode(err)
	}

	logger, err := logging.New(opts.verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := buildConfig(opts)
	if err != nil {
		color.Red("[-]%v", err)
		fs.Usage()
		return exitCode(usage(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = scan(ctx, opts, cfg, logger)
	switch {
	case errors.Is(err, context.Canceled):
		color.Yellow("[!]扫描被中断")
	case err != nil:
		color.Red("[-]%v", err)
	}
	return exitCode(err)
}

// exitCode 0 成功, 1 运行失败, 2 参数错误, 3 权限不足, 130 被中断
func exitCode(err error) int {
	var ue usageError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	case errors.Is(err, portscan.ErrNeedPriv):
		return 3
	case errors.As(err, &ue):
		return 2
	default:
		return 1
	}
}

// parseArgs 解析命令行，再用配置文件补齐未显式设置的参数
func parseArgs(fs *flag.FlagSet, args []string) (options, error) {
	var opts options
	fs.StringVar(&opts.ports, "p", "", "端口 (如 22,80,8000-8100，默认 1-65535)")
	fs.Float64Var(&opts.timeout, "t", portscan.DefaultTimeout.Seconds(), "单次探测超时(秒)")
	fs.BoolVar(&opts.randomize, "r", false, "随机化探测顺序")
	fs.IntVar(&opts.concurrency, "c", portscan.DefaultConcurrency, "并发数")
	fs.Float64Var(&opts.rate, "rate", 0, "每秒最多探测数 (0 不限速)")
	fs.BoolVar(&opts.syn, "syn", false, "SYN 半开放扫描 (需 Root 或 CAP_NET_RAW)")
	fs.StringVar(&opts.iface, "iface", "", "SYN 扫描使用的网卡")
	fs.StringVar(&opts.gateway, "gw", "", "SYN 扫描的下一跳地址 (网关或同网段目标)")
	fs.StringVar(&opts.output, "o", "", "JSON 报告输出文件")
	fs.BoolVar(&opts.showTimeouts, "show-timeouts", false, "同时输出超时结果")
	fs.BoolVar(&opts.verbose, "v", false, "显示调试日志")
	fs.StringVar(&opts.profile, "config", "", "YAML 扫描配置文件")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "用法: %s [选项] ip [ip ...]\n", fs.Name())
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return opts, err
		}
		return opts, usage(err)
	}
	opts.hosts = fs.Args()

	if opts.profile != "" {
		if err := applyProfile(fs, &opts); err != nil {
			return opts, usage(err)
		}
	}
	return opts, nil
}

// scan 运行扫描并输出结果，被信号中断时返回 context.Canceled
func scan(ctx context.Context, opts options, cfg portscan.Config, logger *zap.Logger) error {
	scanOpts := []portscan.Option{portscan.WithLogger(logger)}
	if cfg.Mode == portscan.ModeSYN {
		prober, err := newSynProber(ctx, opts, cfg.Hosts, logger)
		if err != nil {
			return err
		}
		defer prober.Close()
		scanOpts = append(scanOpts, portscan.WithProber(prober))
	}

	scanner, err := portscan.NewScanner(cfg, scanOpts...)
	if err != nil {
		return usage(err)
	}

	color.Cyan("--- 开始扫描 %d 个主机 x %d 个端口 (%s) ---", len(cfg.Hosts), len(cfg.Ports), cfg.Mode)
	color.Cyan("--- 并发数: %d | 超时: %v | 随机: %v ---", cfg.Concurrency, cfg.Timeout, cfg.Randomize)

	startedAt := time.Now()
	bar := report.NewProgress(scanner.TargetCount(), os.Stderr)
	printer := report.NewPrinter(os.Stdout, opts.showTimeouts, bar)
	summary := scanner.Run(ctx, printer.Print)
	bar.Finish()
	if bar.Enabled() {
		fmt.Fprintln(os.Stderr)
	}

	fmt.Println("============================")
	color.Cyan("[+]扫描完成! 耗时: %s", summary.Elapsed.Round(time.Millisecond))
	color.Cyan("[+]共 %d | 连接 %d | 拒绝 %d | 超时 %d | 错误 %d",
		summary.Total, summary.Connected, summary.Refused, summary.TimedOut, summary.Errors)

	if opts.output != "" {
		rep := report.Report{
			StartedAt: startedAt,
			Hosts:     cfg.Hosts,
			Ports:     len(cfg.Ports),
			Timeout:   cfg.Timeout.String(),
			Mode:      cfg.Mode.String(),
			Summary:   summary,
			Results:   printer.Results(),
		}
		if err := report.WriteJSON(opts.output, rep); err != nil {
			return fmt.Errorf("写入报告失败: %w", err)
		}
		color.Cyan("[+]报告已写入 %s", opts.output)
	}
	return ctx.Err()
}

func buildConfig(opts options) (portscan.Config, error) {
	if len(opts.hosts) == 0 {
		return portscan.Config{}, errors.New("至少需要一个目标地址")
	}
	hosts, err := targets.ExpandHosts(opts.hosts)
	if err != nil {
		return portscan.Config{}, err
	}

	ports := targets.AllPorts()
	if opts.ports != "" {
		if ports, err = targets.ParsePorts(opts.ports); err != nil {
			return portscan.Config{}, fmt.Errorf("invalid ports spec: %w", err)
		}
	}

	mode := portscan.ModeConnect
	if opts.syn {
		mode = portscan.ModeSYN
	}

	cfg := portscan.Config{
		Hosts:       hosts,
		Ports:       ports,
		Timeout:     time.Duration(opts.timeout * float64(time.Second)),
		Randomize:   opts.randomize,
		Concurrency: opts.concurrency,
		Rate:        opts.rate,
		Mode:        mode,
	}
	if err := cfg.Validate(); err != nil {
		return portscan.Config{}, err
	}
	return cfg, nil
}

func newSynProber(ctx context.Context, opts options, hosts []string, logger *zap.Logger) (*portscan.SynProber, error) {
	if opts.iface == "" || opts.gateway == "" {
		return nil, usage(errors.New("SYN 扫描需要 -iface 和 -gw"))
	}
	gw := net.ParseIP(opts.gateway)
	if gw == nil || gw.To4() == nil {
		return nil, usage(fmt.Errorf("invalid gateway %q", opts.gateway))
	}
	prober, err := portscan.NewSynProber(opts.iface, gw, logger)
	if err != nil {
		return nil, err
	}
	prober.Warm(ctx, hosts, 32)
	return prober, nil
}

// applyProfile 用配置文件填充命令行未显式设置的参数
func applyProfile(fs *flag.FlagSet, opts *options) error {
	p, err := config.Load(opts.profile)
	if err != nil {
		return err
	}
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if len(opts.hosts) == 0 {
		opts.hosts = p.Hosts
	}
	if !set["p"] && p.Ports != "" {
		opts.ports = p.Ports
	}
	if d, _ := p.Duration(); !set["t"] && d > 0 {
		opts.timeout = d.Seconds()
	}
	if !set["r"] && p.Randomize {
		opts.randomize = true
	}
	if !set["c"] && p.Concurrency > 0 {
		opts.concurrency = p.Concurrency
	}
	if !set["rate"] && p.Rate > 0 {
		opts.rate = p.Rate
	}
	if !set["syn"] && p.Mode != "" {
		mode, err := portscan.ParseScanMode(p.Mode)
		if err != nil {
			return err
		}
		opts.syn = mode == portscan.ModeSYN
	}
	if !set["iface"] && p.Interface != "" {
		opts.iface = p.Interface
	}
	if !set["gw"] && p.Gateway != "" {
		opts.gateway = p.Gateway
	}
	if !set["o"] && p.Output != "" {
		opts.output = p.Output
	}
	if !set["show-timeouts"] && p.ShowTimeouts {
		opts.showTimeouts = true
	}
	return nil
}
