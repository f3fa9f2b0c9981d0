package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"pda-client-sol/internal/config"
	"pda-client-sol/internal/logic/txn"
	"pda-client-sol/internal/pkg/logger"
	"pda-client-sol/internal/svc"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/logx"
)

var (
	configFile = flag.String("f", "etc/pdaclient.yaml", "the config file")
	dryRun     = flag.Bool("dry-run", false, "run against an in-memory ledger with simulated programs")
	envFile    = flag.String("env", ".env", "optional dotenv file with PDACLIENT_* overrides")
)

const (
	exitOK      = 0
	exitError   = 1
	exitUsage   = 2
	exitPending = 3 // 结果未知（超时或被取消），需要 recheck
)

func main() {
	os.Exit(run())
}

func run() (code int) {
	defer func() {
		if r := recover(); r != nil {
			logx.Errorf("panic: %+v\nstack: %s", r, debug.Stack())
			code = exitError
		}
	}()

	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		return exitUsage
	}
	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", flag.Arg(0))
		usage()
		return exitUsage
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		logx.Errorf("load %s: %v", *envFile, err)
		return exitError
	}

	var c config.ClientConfig
	conf.MustLoad(*configFile, &c)
	applyEnv(&c)

	if err := logger.Init(c.LogConf.ToLogOption()); err != nil {
		logx.Errorf("init logger: %v", err)
		return exitError
	}

	serviceContext, err := svc.NewClientContext(c, *dryRun)
	if err != nil {
		logger.Errorf("[Main] 客户端上下文初始化失败: %v", err)
		return exitError
	}
	defer serviceContext.Close()

	if serviceContext.Registry != nil && c.MetricsConf.Listen != "" {
		srv := &http.Server{
			Addr:              c.MetricsConf.Listen,
			Handler:           promhttp.HandlerFor(serviceContext.Registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warnf("[Main] metrics 服务退出: %v", err)
			}
		}()
		defer srv.Close()
	}

	// 等待退出信号；取消后仍在确认中的交易结果未知
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = cmd.run(ctx, serviceContext, flag.Args()[1:], os.Stdout)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errUsage):
		fmt.Fprintf(os.Stderr, "usage: pdaclient %s %s\n", flag.Arg(0), cmd.args)
		return exitUsage
	case errors.Is(err, txn.ErrTimedOut), errors.Is(err, txn.ErrOutcomeUnknown):
		fmt.Fprintf(os.Stderr, "%v\nthe transaction may still land; run `pdaclient recheck` later\n", err)
		return exitPending
	default:
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
}

// applyEnv 环境变量覆盖配置文件
func applyEnv(c *config.ClientConfig) {
	if v := os.Getenv("PDACLIENT_RPC"); v != "" {
		c.RpcConf.Endpoints = strings.Split(v, ",")
	}
	if v := os.Getenv("PDACLIENT_KEYPAIR"); v != "" {
		c.WalletConf.KeypairPath = v
	}
	if v := os.Getenv("PDACLIENT_MNEMONIC"); v != "" {
		c.WalletConf.Mnemonic = v
	}
	if v := os.Getenv("PDACLIENT_PASSPHRASE"); v != "" {
		c.WalletConf.Passphrase = v
	}
	if v := os.Getenv("PDACLIENT_REDIS"); v != "" {
		c.JournalConf.RedisAddr = v
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: pdaclient [-f config] [-dry-run] <command> [args]\n\nflags:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\ncommands:\n")
	for _, name := range commandNames() {
		cmd := commands[name]
		fmt.Fprintf(os.Stderr, "  %-20s %s\n", name+" "+cmd.args, cmd.help)
	}
}
