package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/termcache/termcache/internal/cache"
	"github.com/termcache/termcache/internal/config"
	"github.com/termcache/termcache/internal/fetch"
	"github.com/termcache/termcache/internal/logging"
	"github.com/termcache/termcache/internal/registry"
	"github.com/termcache/termcache/internal/server"
	"github.com/termcache/termcache/internal/server/routes"
	"github.com/termcache/termcache/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath     string
	configExplicit bool
	checkOnly      bool
	showVersion    bool
	ids            []string
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

// serve 可在测试中替换，避免真正监听端口。
var serve = startHTTPServer

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

	cfg, err := config.Load(opts.configPath, opts.configExplicit)
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
		fields["terminologies"] = config.TerminologyNames(cfg.Terminology)
		fields["cache_dir"] = cfg.Global.CacheDir
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序为 "配置 → 磁盘缓存 → Fetcher → Registry"，整个进程只构建一个 Registry 并注入调用方。
	store, err := cache.NewStore(cfg.Global.CacheDir)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存目录失败: %v\n", err)
		return 1
	}

	fetcher := fetch.New(fetch.Options{
		Client:         fetch.NewClient(cfg.Global.FetchTimeout.DurationValue()),
		Logger:         logger,
		UserAgent:      version.UserAgent(),
		MaxRetries:     cfg.Global.MaxRetries,
		InitialBackoff: cfg.Global.InitialBackoff.DurationValue(),
	})
	terms, err := registry.New(registry.Options{
		Source:      cache.New(store, fetcher, cfg.Global.CacheTTL.DurationValue(), logger),
		Logger:      logger,
		WaitTimeout: cfg.Global.WaitTimeout.DurationValue(),
	})
	if err != nil {
		fmt.Fprintf(stdErr, "构建术语注册表失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["cache_dir"] = cfg.Global.CacheDir
	fields["cache_ttl"] = cfg.Global.CacheTTL.DurationValue().String()
	fields["terminologies"] = config.TerminologyNames(cfg.Terminology)
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if len(opts.ids) > 0 {
		return prefetch(terms, opts.ids, cfg.Global.PreloadConcurrency, logger)
	}

	catalog, err := server.NewCatalog(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "构建术语目录失败: %v\n", err)
		return 1
	}
	for _, id := range cfg.Preloads() {
		terms.DeferredLoad(id)
	}

	if err := serve(cfg, terms, catalog, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// prefetchLine 是预取模式下每个 id 输出的一行 JSON。
type prefetchLine struct {
	ID        string `json:"id"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
	Name      string `json:"name,omitempty"`
	Sections  int    `json:"sections,omitempty"`
}

// prefetch 同步加载命令行给出的 id，逐行输出结果；任一 id 不可用时返回 1。
func prefetch(terms *registry.Registry, ids []string, limit int, logger *logrus.Logger) int {
	results, err := terms.Prefetch(context.Background(), ids, limit)
	if err != nil {
		logger.WithError(err).WithField("action", "prefetch").Error("prefetch_aborted")
		fmt.Fprintf(stdErr, "预取失败: %v\n", err)
		return 1
	}

	code := 0
	encoder := json.NewEncoder(stdOut)
	for _, res := range results {
		line := prefetchLine{ID: res.ID, Available: res.Err == nil}
		switch {
		case res.Err == nil:
			summary := res.Terminology.Summary()
			line.Name = summary.Name
			line.Sections = summary.Sections
		case errors.Is(res.Err, registry.ErrUnavailable):
			line.Error = "terminology_unavailable"
			code = 1
		default:
			line.Error = res.Err.Error()
			code = 1
		}
		if err := encoder.Encode(line); err != nil {
			fmt.Fprintf(stdErr, "写出结果失败: %v\n", err)
			return 1
		}
	}
	return code
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("termcache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 TERMCACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("TERMCACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	explicit := path != ""
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:     path,
		configExplicit: explicit,
		checkOnly:      checkOnly,
		showVersion:    showVer,
		ids:            fs.Args(),
	}, nil
}

func startHTTPServer(cfg *config.Config, terms *registry.Registry, catalog *server.Catalog, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:        logger,
		Terminologies: terms,
		ListenPort:    port,
	})
	if err != nil {
		return err
	}
	routes.RegisterTerminologyRoutes(app, terms, catalog)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf("127.0.0.1:%d", port))
}
