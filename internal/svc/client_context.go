package svc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pda-client-sol/internal/config"
	"pda-client-sol/internal/consts"
	"pda-client-sol/internal/keys"
	"pda-client-sol/internal/logic/account"
	"pda-client-sol/internal/logic/funding"
	"pda-client-sol/internal/logic/journal"
	"pda-client-sol/internal/logic/programs"
	"pda-client-sol/internal/logic/programs/counter"
	"pda-client-sol/internal/logic/programs/pdas"
	"pda-client-sol/internal/logic/programs/system"
	"pda-client-sol/internal/logic/txn"
	"pda-client-sol/internal/metrics"
	"pda-client-sol/internal/pkg/logger"
	"pda-client-sol/internal/pkg/types"
	"pda-client-sol/internal/transport"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// ClientContext 包含客户端运行所需的全部资源，由配置一次性构建后传给各个流程
type ClientContext struct {
	Config     config.ClientConfig
	DryRun     bool
	Transport  transport.Transport
	Payer      *keys.Keypair
	Manager    *txn.Manager
	Reader     *account.Reader
	Journal    journal.Journal
	Metrics    *metrics.Metrics
	Registry   *prometheus.Registry // 指标关闭时为 nil
	Counter    *counter.Client
	Calculator *counter.Client
	Pdas       *pdas.Client
	Funder     *funding.Funder

	redis *redis.Client
	rpc   *transport.RPCTransport
}

// NewClientContext 创建一个新的客户端上下文。dryRun 时使用内存账本与进程内合约模拟
func NewClientContext(c config.ClientConfig, dryRun bool) (*ClientContext, error) {
	ctx := &ClientContext{Config: c, DryRun: dryRun}

	// 1. 指标
	if c.MetricsConf.Enabled {
		ctx.Registry = prometheus.NewRegistry()
		m, err := metrics.New(ctx.Registry)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		ctx.Metrics = m
	}

	// 2. 合约地址
	counterID, err := c.ProgramsConf.CounterProgram()
	if err != nil {
		return nil, err
	}
	calculatorID, err := c.ProgramsConf.CalculatorProgram()
	if err != nil {
		return nil, err
	}
	pdaPrograms, err := c.ProgramsConf.ToPdasPrograms()
	if err != nil {
		return nil, err
	}

	// 3. 传输层
	if dryRun {
		ctx.Transport = newDryRunTransport(counterID, calculatorID, pdaPrograms)
		logger.Infof("[ClientContext] dry-run: 使用内存账本")
	} else {
		rt, err := transport.NewRPCTransport(c.RpcConf.ToTransportOption(), ctx.Metrics)
		if err != nil {
			return nil, fmt.Errorf("init rpc transport: %w", err)
		}
		ctx.Transport, ctx.rpc = rt, rt

		// 不健康的节点只告警，读写时由 failover 跳过
		healthCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		healthy := rt.CheckHealth(healthCtx)
		cancel()
		if healthy == 0 {
			logger.Warnf("[ClientContext] 所有 RPC 节点健康检查失败: endpoints=%v", c.RpcConf.ToTransportOption().Endpoints)
		} else {
			logger.Infof("[ClientContext] RPC 节点健康: %d/%d", healthy, len(c.RpcConf.ToTransportOption().Endpoints))
		}
	}

	// 4. 交易日志：配置了 Redis 时落 Redis，否则只在进程内
	if c.JournalConf.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr: c.JournalConf.RedisAddr,
			DB:   c.JournalConf.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = rdb.Close()
			ctx.closeTransport()
			return nil, fmt.Errorf("connect redis %s: %w", c.JournalConf.RedisAddr, err)
		}
		ctx.redis = rdb
		ctx.Journal = journal.NewRedisJournal(rdb, c.JournalConf.TTL())
	} else {
		ctx.Journal = journal.NewMemoryJournal()
	}

	// 5. 付款钱包
	if ctx.Payer, err = loadPayer(c.WalletConf, dryRun); err != nil {
		ctx.Close()
		return nil, err
	}

	// 6. 交易管理与合约客户端
	ctx.Manager = txn.NewManager(ctx.Transport,
		txn.WithMetrics(ctx.Metrics),
		txn.WithJournal(ctx.Journal),
		txn.WithConfirmOption(c.ConfirmConf.ToConfirmOption()),
	)
	ctx.Reader = account.NewReader(ctx.Transport)
	ctx.Counter = counter.NewClient(counterID, ctx.Transport, ctx.Manager, ctx.Reader)
	ctx.Calculator = counter.NewClient(calculatorID, ctx.Transport, ctx.Manager, ctx.Reader)
	ctx.Pdas = pdas.NewClient(pdaPrograms, ctx.Manager, ctx.Reader)
	ctx.Funder = funding.NewFunder(ctx.Transport, ctx.Manager, c.FundingConf.ToFundingOption())

	logger.Infof("[ClientContext] 客户端上下文初始化完成: payer=%s", ctx.Payer.PublicKey())
	return ctx, nil
}

func loadPayer(c config.WalletConfig, dryRun bool) (*keys.Keypair, error) {
	switch {
	case c.KeypairPath != "":
		kp, err := keys.LoadFile(c.KeypairPath)
		if err != nil {
			return nil, fmt.Errorf("load keypair: %w", err)
		}
		return kp, nil
	case c.Mnemonic != "":
		kp, err := keys.FromMnemonic(c.Mnemonic, c.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("load mnemonic: %w", err)
		}
		return kp, nil
	case dryRun:
		return keys.Generate()
	default:
		return nil, errors.New("wallet: keypair_path or mnemonic is required")
	}
}

// newDryRunTransport 内存账本 + 已注册全部示例合约的模拟器
func newDryRunTransport(counterID, calculatorID types.Pubkey, p pdas.Programs) *transport.MemoryTransport {
	sim := programs.NewSimulator()
	sim.Register(consts.SystemProgram, system.Handler)
	sim.Register(counterID, counter.Handler)
	if calculatorID != counterID {
		sim.Register(calculatorID, counter.Handler)
	}
	sim.Register(p.Ecom, pdas.EcomHandler)
	sim.Register(p.Address, pdas.AddressHandler)
	sim.Register(p.Profile, pdas.ProfileHandler)

	mt := transport.NewMemoryTransport()
	mt.Executor = sim.Executor()
	for _, id := range []types.Pubkey{counterID, calculatorID, p.Ecom, p.Address, p.Profile} {
		mt.SetAccount(id, transport.AccountInfo{Lamports: 1, Owner: consts.BPFLoader, Executable: true})
	}
	return mt
}

func (ctx *ClientContext) closeTransport() {
	if ctx.rpc != nil {
		if err := ctx.rpc.Close(); err != nil {
			logger.Warnf("[ClientContext] 关闭 RPC 连接失败: %v", err)
		}
	}
}

// Close 关闭服务上下文中的资源
func (ctx *ClientContext) Close() {
	ctx.closeTransport()
	if ctx.redis != nil {
		if err := ctx.redis.Close(); err != nil {
			logger.Warnf("[ClientContext] 关闭 Redis 失败: %v", err)
		}
	}
	logger.Sync()
}
