package config

import (
	"fmt"
	"time"

	"pda-client-sol/internal/consts"
	"pda-client-sol/internal/logic/funding"
	"pda-client-sol/internal/logic/programs/pdas"
	"pda-client-sol/internal/logic/txn"
	"pda-client-sol/internal/pkg/logger"
	"pda-client-sol/internal/pkg/types"
	"pda-client-sol/internal/transport"
)

type LogConfig struct {
	Format   string `json:"format,optional" yaml:"format"`     // 日志格式，支持 "console" 或 "json"
	LogDir   string `json:"log_dir,optional" yaml:"log_dir"`   // 日志目录（可为相对路径或绝对路径），为空只输出到 stdout
	Level    string `json:"level,optional" yaml:"level"`       // 日志级别：debug / info / warn / error
	Compress bool   `json:"compress,optional" yaml:"compress"` // 是否压缩旧日志文件
}

func (c *LogConfig) ToLogOption() logger.LogOption {
	return logger.LogOption{
		Format:   c.Format,
		LogDir:   c.LogDir,
		Level:    c.Level,
		Compress: c.Compress,
	}
}

// RpcConfig 节点连接配置
type RpcConfig struct {
	Endpoints    []string `json:"endpoints,optional" yaml:"endpoints"`           // 多个节点时读请求轮询切换，发送只走一个
	Commitment   string   `json:"commitment,optional" yaml:"commitment"`         // finalized / confirmed / processed
	TimeoutMs    int      `json:"timeout_ms,optional" yaml:"timeout_ms"`         // 单次 RPC 超时（毫秒）
	RateLimitRps float64  `json:"rate_limit_rps,optional" yaml:"rate_limit_rps"` // 客户端限速，<=0 不限
	RateBurst    int      `json:"rate_burst,optional" yaml:"rate_burst"`
}

func (c *RpcConfig) ToTransportOption() transport.Option {
	endpoints := c.Endpoints
	if len(endpoints) == 0 {
		endpoints = []string{consts.DevnetRPC}
	}
	return transport.Option{
		Endpoints:    endpoints,
		Commitment:   c.Commitment,
		TimeoutMs:    c.TimeoutMs,
		RateLimitRps: c.RateLimitRps,
		RateBurst:    c.RateBurst,
	}
}

// ConfirmConfig 确认轮询配置（毫秒）
type ConfirmConfig struct {
	TimeoutMs      int `json:"timeout_ms,optional" yaml:"timeout_ms"`
	PollIntervalMs int `json:"poll_interval_ms,optional" yaml:"poll_interval_ms"`
}

func (c *ConfirmConfig) ToConfirmOption() txn.ConfirmOption {
	return txn.ConfirmOption{
		Timeout:      time.Duration(c.TimeoutMs) * time.Millisecond,
		PollInterval: time.Duration(c.PollIntervalMs) * time.Millisecond,
	}
}

// WalletConfig 付款钱包：keypair 文件优先，其次助记词
type WalletConfig struct {
	KeypairPath string `json:"keypair_path,optional" yaml:"keypair_path"`
	Mnemonic    string `json:"mnemonic,optional" yaml:"mnemonic"`
	Passphrase  string `json:"passphrase,optional" yaml:"passphrase"`
}

// ProgramsConfig 各合约的 program id，留空使用 devnet 默认部署
type ProgramsConfig struct {
	Counter    string `json:"counter,optional" yaml:"counter"`
	Calculator string `json:"calculator,optional" yaml:"calculator"` // 为空时与 counter 相同
	Ecom       string `json:"ecom,optional" yaml:"ecom"`
	Address    string `json:"address,optional" yaml:"address"`
	Profile    string `json:"profile,optional" yaml:"profile"`
}

func pubkeyOr(s, def string) (types.Pubkey, error) {
	if s == "" {
		s = def
	}
	pk, err := types.TryPubkeyFromBase58(s)
	if err != nil {
		return types.Pubkey{}, fmt.Errorf("invalid program id %q: %w", s, err)
	}
	return pk, nil
}

func (c *ProgramsConfig) CounterProgram() (types.Pubkey, error) {
	return pubkeyOr(c.Counter, consts.CounterProgramStr)
}

func (c *ProgramsConfig) CalculatorProgram() (types.Pubkey, error) {
	if c.Calculator == "" {
		return c.CounterProgram()
	}
	return pubkeyOr(c.Calculator, consts.CounterProgramStr)
}

func (c *ProgramsConfig) ToPdasPrograms() (pdas.Programs, error) {
	var (
		p   pdas.Programs
		err error
	)
	if p.Ecom, err = pubkeyOr(c.Ecom, consts.EcomProgramStr); err != nil {
		return p, err
	}
	if p.Address, err = pubkeyOr(c.Address, consts.AddressProgramStr); err != nil {
		return p, err
	}
	if p.Profile, err = pubkeyOr(c.Profile, consts.ProfileProgramStr); err != nil {
		return p, err
	}
	return p, nil
}

// FundingConfig 付款账户的资金预留
type FundingConfig struct {
	MinAccountSize  uint64 `json:"min_account_size,optional" yaml:"min_account_size"`
	SignatureBudget uint64 `json:"signature_budget,optional" yaml:"signature_budget"`
	AirdropLamports uint64 `json:"airdrop_lamports,optional" yaml:"airdrop_lamports"`
}

func (c *FundingConfig) ToFundingOption() funding.Option {
	return funding.Option{
		MinAccountSize:  c.MinAccountSize,
		SignatureBudget: c.SignatureBudget,
		AirdropLamports: c.AirdropLamports,
	}
}

// JournalConfig 交易日志。RedisAddr 为空时使用进程内存
type JournalConfig struct {
	RedisAddr string `json:"redis_addr,optional" yaml:"redis_addr"`
	RedisDB   int    `json:"redis_db,optional" yaml:"redis_db"`
	TTLHours  int    `json:"ttl_hours,optional" yaml:"ttl_hours"`
}

func (c *JournalConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled,optional" yaml:"enabled"`
	Listen  string `json:"listen,optional" yaml:"listen"` // 例如 :9464，为空时只注册不暴露
}

// WatchConfig 账户监控服务
type WatchConfig struct {
	Accounts  []string `json:"accounts,optional" yaml:"accounts"`
	IntervalS int      `json:"interval_s,optional" yaml:"interval_s"`
}

// ClientConfig 是主配置结构体，用于驱动客户端
type ClientConfig struct {
	LogConf      LogConfig      `json:"logger,optional" yaml:"logger"`
	RpcConf      RpcConfig      `json:"rpc,optional" yaml:"rpc"`
	ConfirmConf  ConfirmConfig  `json:"confirm,optional" yaml:"confirm"`
	WalletConf   WalletConfig   `json:"wallet,optional" yaml:"wallet"`
	ProgramsConf ProgramsConfig `json:"programs,optional" yaml:"programs"`
	FundingConf  FundingConfig  `json:"funding,optional" yaml:"funding"`
	JournalConf  JournalConfig  `json:"journal,optional" yaml:"journal"`
	MetricsConf  MetricsConfig  `json:"metrics,optional" yaml:"metrics"`
	WatchConf    WatchConfig    `json:"watch,optional" yaml:"watch"`
}
