package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/dnscache"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/intercept-cache/internal/cache"
	"github.com/any-hub/intercept-cache/internal/command"
	"github.com/any-hub/intercept-cache/internal/config"
	"github.com/any-hub/intercept-cache/internal/fetch"
	"github.com/any-hub/intercept-cache/internal/gate"
	"github.com/any-hub/intercept-cache/internal/lifecycle"
	"github.com/any-hub/intercept-cache/internal/logging"
	"github.com/any-hub/intercept-cache/internal/server"
	"github.com/any-hub/intercept-cache/internal/server/routes"
	"github.com/any-hub/intercept-cache/internal/settings"
	"github.com/any-hub/intercept-cache/internal/telemetry"
	"github.com/any-hub/intercept-cache/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["storage_backend"] = cfg.Global.StorageBackend
		fields["store_name"] = cfg.Global.StoreName
		fields["initial_settings"] = cfg.HasInitialSettings()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// CLI 启动遵循“配置 → 缓存存储 → 上游客户端 → 实例激活 → Fiber server”顺序，
	// 保证所有请求共享同一个存储与上游连接池。
	store, err := cache.Open(cache.Options{
		Backend: cache.Backend(cfg.Global.StorageBackend),
		Path:    cfg.Global.StoragePath,
		Name:    cfg.Global.StoreName,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存存储失败: %v\n", err)
		return 1
	}
	defer store.Close()

	resolver := &dnscache.Resolver{}
	fetch.StartDNSRefresh(ctx, resolver, cfg.Global.DNSRefreshInterval.DurationValue())
	fetcher := fetch.NewClient(fetch.NewUpstreamClient(cfg, resolver))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)

	controller := lifecycle.NewController(lifecycle.Deps{
		Fetcher:    fetcher,
		Store:      store,
		Logger:     logger,
		Metrics:    metrics,
		KeyHeaders: cfg.Global.KeyHeaders,
	})
	controller.Activate(controller.Install(version.Version))

	if cfg.HasInitialSettings() {
		msg := command.SetConfig{Settings: settings.Settings(cfg.InitialSettings)}
		if err := controller.Dispatch(ctx, msg); err != nil {
			fmt.Fprintf(stdErr, "下发初始配置失败: %v\n", err)
			return 1
		}
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["storage_backend"] = cfg.Global.StorageBackend
	fields["store_name"] = store.Name()
	fields["self_origin"] = cfg.Global.SelfOrigin
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	deps := serverDeps{
		gate:     gate.New(cfg.Global.SelfOrigin, controller),
		fetcher:  fetcher,
		control:  controller,
		metrics:  metrics,
		registry: reg,
	}
	if err := startHTTPServer(ctx, cfg, deps, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("intercept-cache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 INTERCEPT_CACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("INTERCEPT_CACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

type serverDeps struct {
	gate     *gate.Gate
	fetcher  fetch.Fetcher
	control  *lifecycle.Controller
	metrics  *telemetry.Metrics
	registry *prometheus.Registry
}

func startHTTPServer(ctx context.Context, cfg *config.Config, deps serverDeps, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:         logger,
		Gate:           deps.gate,
		Fetcher:        deps.fetcher,
		Messages:       deps.control,
		Metrics:        deps.metrics,
		MetricsHandler: promhttp.HandlerFor(deps.registry, promhttp.HandlerOpts{}),
		ListenPort:     port,
	})
	if err != nil {
		return err
	}
	routes.RegisterStatusRoutes(app, routes.StatusOptions{
		Controller: deps.control,
		Backend:    cfg.Global.StorageBackend,
	})

	go func() {
		<-ctx.Done()
		logger.WithField("action", "shutdown").Info("Fiber 服务关闭")
		_ = app.Shutdown()
	}()

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
