package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/orbgate/orbgate/internal/analytics"
	"github.com/orbgate/orbgate/internal/backend"
	"github.com/orbgate/orbgate/internal/config"
	"github.com/orbgate/orbgate/internal/gateway"
	"github.com/orbgate/orbgate/internal/logging"
	"github.com/orbgate/orbgate/internal/registry"
	"github.com/orbgate/orbgate/internal/server"
	"github.com/orbgate/orbgate/internal/server/routes"
	"github.com/orbgate/orbgate/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	seed        bool
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
		fields["sites"] = len(cfg.Sites)
		fields["backend"] = cfg.Global.Backend
		fields["registry"] = cfg.Global.Registry
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	reg, closer, err := registry.Open(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "打开站点注册表失败: %v\n", err)
		return 1
	}
	if closer != nil {
		defer closer.Close()
	}

	if opts.seed {
		if err := seedRegistry(cfg, reg, logger, opts.configPath); err != nil {
			fmt.Fprintf(stdErr, "写入站点注册表失败: %v\n", err)
			return 1
		}
		return 0
	}

	// 启动顺序：配置 → 注册表 → 上游客户端 → 内容后端 → 统计分发 → Fiber server，
	// 所有请求共享同一组实例。
	httpClient := server.NewUpstreamClient(cfg)
	contentBackend, err := backend.New(cfg.Global, httpClient, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化内容后端失败: %v\n", err)
		return 1
	}

	dispatcher := analytics.NewDispatcher(
		analytics.NewTracker(cfg.Global.AnalyticsEndpoint, server.NewUpstreamClient(cfg)),
		cfg.Global.AnalyticsTimeout.DurationValue(),
		logger,
	)
	defer dispatcher.Wait()

	handler, err := gateway.NewHandler(gateway.Options{
		Registry:           reg,
		Backend:            contentBackend,
		Analytics:          dispatcher,
		Logger:             logger,
		PinParam:           cfg.Global.PinParam,
		OriginalHostHeader: cfg.Global.OriginalHostHeader,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "初始化网关失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["sites"] = config.SiteSummaries(cfg.Sites)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["backend"] = cfg.Global.Backend
	fields["registry"] = cfg.Global.Registry
	fields["native_domain"] = cfg.Global.NativeDomain
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, reg, handler, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("orbgate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
		seed       bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 ORBGATE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.BoolVar(&seed, "seed", false, "把配置中的站点写入 redis/leveldb 注册表后退出")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("ORBGATE_CONFIG")
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
		seed:        seed,
	}, nil
}

// seedRegistry 把 TOML/YAML 中声明的站点推送到共享注册表。
func seedRegistry(cfg *config.Config, reg registry.Registry, logger *logrus.Logger, configPath string) error {
	seeder, ok := reg.(registry.Seeder)
	if !ok {
		return fmt.Errorf("%s 注册表不支持写入", cfg.Global.Registry)
	}
	if len(cfg.Sites) == 0 {
		return errors.New("配置中没有可写入的站点")
	}
	sites, err := registry.SitesFromConfig(cfg.Sites)
	if err != nil {
		return err
	}
	if err := seeder.Seed(context.Background(), sites); err != nil {
		return err
	}

	fields := logging.BaseFields("seed", configPath)
	fields["registry"] = cfg.Global.Registry
	fields["sites"] = config.SiteSummaries(cfg.Sites)
	logger.WithFields(fields).Info("站点注册表写入完成")
	return nil
}

func startHTTPServer(cfg *config.Config, reg registry.Registry, handler server.SiteHandler, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Resolver:   server.NewDomainResolver(cfg.Global.NativeDomain, reg, port),
		Handler:    handler,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterDiagnostics(app, reg, version.Full())

	go shutdownOnSignal(app, logger)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
}

// shutdownOnSignal 收到 SIGINT/SIGTERM 后停止接收新连接，等待在途请求结束。
func shutdownOnSignal(app *fiber.App, logger *logrus.Logger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	received := <-sig

	logger.WithFields(logrus.Fields{
		"action": "shutdown",
		"signal": received.String(),
	}).Info("Fiber 服务停止")
	if err := app.Shutdown(); err != nil {
		logger.WithError(err).Warn("shutdown_failed")
	}
}
