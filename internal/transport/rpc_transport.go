package transport

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"pda-client-sol/internal/metrics"
	"pda-client-sol/internal/pkg/logger"
	"pda-client-sol/internal/pkg/types"

	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const defaultTimeout = 10 * time.Second

// Option RPC 传输配置
type Option struct {
	Endpoints    []string
	Commitment   string  // finalized / confirmed / processed
	TimeoutMs    int     // 单次 RPC 调用超时
	RateLimitRps float64 // <=0 表示不限速
	RateBurst    int
}

// RPCTransport 基于 JSON-RPC 的 Transport 实现
//
// 读请求在多个节点间轮询并失败切换；发送交易只走一个节点，不做任何重试，
// 避免同一笔交易在结果未知时被重复提交。
type RPCTransport struct {
	clients    []*rpc.Client
	endpoints  []string
	index      uint64
	commitment rpc.CommitmentType
	timeout    time.Duration
	markerSF   singleflight.Group
	metrics    *metrics.Metrics
}

func NewRPCTransport(opt Option, m *metrics.Metrics) (*RPCTransport, error) {
	if len(opt.Endpoints) == 0 {
		return nil, fmt.Errorf("no RPC endpoints provided")
	}

	commitment, err := parseCommitment(opt.Commitment)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(opt.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	clients := make([]*rpc.Client, 0, len(opt.Endpoints))
	for _, url := range opt.Endpoints {
		if opt.RateLimitRps > 0 {
			burst := opt.RateBurst
			if burst <= 0 {
				burst = 1
			}
			clients = append(clients, rpc.NewWithCustomRPCClient(rpc.NewWithLimiter(url, rate.Limit(opt.RateLimitRps), burst)))
		} else {
			clients = append(clients, rpc.New(url))
		}
	}

	return &RPCTransport{
		clients:    clients,
		endpoints:  append([]string(nil), opt.Endpoints...),
		commitment: commitment,
		timeout:    timeout,
		metrics:    m,
	}, nil
}

func parseCommitment(s string) (rpc.CommitmentType, error) {
	switch rpc.CommitmentType(s) {
	case "":
		return rpc.CommitmentFinalized, nil
	case rpc.CommitmentFinalized, rpc.CommitmentConfirmed, rpc.CommitmentProcessed:
		return rpc.CommitmentType(s), nil
	default:
		return "", fmt.Errorf("unsupported commitment %q", s)
	}
}

// CheckHealth 探测所有节点，返回健康节点数；不健康节点只记录告警
func (t *RPCTransport) CheckHealth(ctx context.Context) int {
	healthy := 0
	for i, c := range t.clients {
		cctx, cancel := context.WithTimeout(ctx, t.timeout)
		health, err := c.GetHealth(cctx)
		cancel()
		if err != nil || health != rpc.HealthOk {
			logger.Warnf("[RPCTransport] endpoint %s unhealthy: health=%q err=%v", t.endpoints[i], health, err)
			continue
		}
		healthy++
	}
	return healthy
}

func (t *RPCTransport) next() (*rpc.Client, string) {
	i := (atomic.AddUint64(&t.index, 1) - 1) % uint64(len(t.clients))
	return t.clients[i], t.endpoints[i]
}

// executeWithFailover 读请求轮询执行，失败时切到下一个节点，最多尝试每个节点一次
func (t *RPCTransport) executeWithFailover(ctx context.Context, op string, fn func(ctx context.Context, c *rpc.Client) error) error {
	var lastErr error
	for attempt := 0; attempt < len(t.clients); attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
		}

		client, endpoint := t.next()
		cctx, cancel := context.WithTimeout(ctx, t.timeout)
		err := fn(cctx, client)
		cancel()
		if err == nil || errors.Is(err, ErrNotFound) {
			return err
		}

		lastErr = err
		t.metrics.RPCError(op)
		logger.Warnf("[RPCTransport] %s failed on %s (attempt %d/%d): %v", op, endpoint, attempt+1, len(t.clients), err)
	}
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, lastErr)
}

func (t *RPCTransport) GetRecentSequenceMarker(ctx context.Context) (SequenceMarker, error) {
	// 并发签名时合并同一时刻的取哈希请求，结果对每个调用方都是新鲜的
	ch := t.markerSF.DoChan("marker", func() (any, error) {
		var marker SequenceMarker
		err := t.executeWithFailover(context.WithoutCancel(ctx), "getLatestBlockhash", func(cctx context.Context, c *rpc.Client) error {
			res, err := c.GetLatestBlockhash(cctx, t.commitment)
			if err != nil {
				return err
			}
			if res == nil || res.Value == nil {
				return fmt.Errorf("empty blockhash response")
			}
			marker = SequenceMarker{
				Blockhash:            types.Hash(res.Value.Blockhash),
				LastValidBlockHeight: res.Value.LastValidBlockHeight,
			}
			return nil
		})
		return marker, err
	})

	select {
	case <-ctx.Done():
		return SequenceMarker{}, fmt.Errorf("%w: getLatestBlockhash: %w", ErrTransport, ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return SequenceMarker{}, r.Err
		}
		return r.Val.(SequenceMarker), nil
	}
}

// SendTransaction 只向一个节点发送一次，失败即返回 ErrTransport
func (t *RPCTransport) SendTransaction(ctx context.Context, raw []byte) (types.Signature, error) {
	client, endpoint := t.next()
	cctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	sig, err := client.SendRawTransactionWithOpts(cctx, raw, rpc.TransactionOpts{
		PreflightCommitment: t.commitment,
	})
	if err != nil {
		t.metrics.RPCError("sendTransaction")
		logger.Warnf("[RPCTransport] sendTransaction failed on %s: %v", endpoint, err)
		return types.Signature{}, fmt.Errorf("%w: sendTransaction: %w", ErrTransport, err)
	}
	return types.SignatureFromSolana(sig), nil
}

func (t *RPCTransport) GetTransactionStatus(ctx context.Context, sig types.Signature) (TxStatusResult, error) {
	var result TxStatusResult
	err := t.executeWithFailover(ctx, "getSignatureStatuses", func(cctx context.Context, c *rpc.Client) error {
		res, err := c.GetSignatureStatuses(cctx, true, sig.ToSolana())
		if errors.Is(err, rpc.ErrNotFound) {
			result = TxStatusResult{Status: TxPending}
			return nil
		}
		if err != nil {
			return err
		}
		result = t.toStatus(res)
		return nil
	})
	return result, err
}

func (t *RPCTransport) toStatus(res *rpc.GetSignatureStatusesResult) TxStatusResult {
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return TxStatusResult{Status: TxPending}
	}
	st := res.Value[0]
	if st.Err != nil {
		return TxStatusResult{Status: TxRejected, Slot: st.Slot, Reason: fmt.Sprintf("%v", st.Err)}
	}
	if t.meetsCommitment(st.ConfirmationStatus) {
		return TxStatusResult{Status: TxFinalized, Slot: st.Slot}
	}
	return TxStatusResult{Status: TxPending, Slot: st.Slot}
}

func (t *RPCTransport) meetsCommitment(s rpc.ConfirmationStatusType) bool {
	switch t.commitment {
	case rpc.CommitmentProcessed:
		return s != ""
	case rpc.CommitmentConfirmed:
		return s == rpc.ConfirmationStatusConfirmed || s == rpc.ConfirmationStatusFinalized
	default:
		return s == rpc.ConfirmationStatusFinalized
	}
}

func (t *RPCTransport) GetAccount(ctx context.Context, addr types.Pubkey) (*AccountInfo, error) {
	var info *AccountInfo
	err := t.executeWithFailover(ctx, "getAccountInfo", func(cctx context.Context, c *rpc.Client) error {
		res, err := c.GetAccountInfoWithOpts(cctx, addr.ToSolana(), &rpc.GetAccountInfoOpts{Commitment: t.commitment})
		if errors.Is(err, rpc.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		acc := res.Value
		info = &AccountInfo{
			Lamports:   acc.Lamports,
			Owner:      types.PubkeyFromSolana(acc.Owner),
			Executable: acc.Executable,
		}
		if acc.Data != nil {
			info.Data = acc.Data.GetBinary()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (t *RPCTransport) GetMinimumFundingForSize(ctx context.Context, size uint64) (uint64, error) {
	var lamports uint64
	err := t.executeWithFailover(ctx, "getMinimumBalanceForRentExemption", func(cctx context.Context, c *rpc.Client) error {
		var err error
		lamports, err = c.GetMinimumBalanceForRentExemption(cctx, size, t.commitment)
		return err
	})
	return lamports, err
}

func (t *RPCTransport) GetBlockHeight(ctx context.Context) (uint64, error) {
	var height uint64
	err := t.executeWithFailover(ctx, "getBlockHeight", func(cctx context.Context, c *rpc.Client) error {
		var err error
		height, err = c.GetBlockHeight(cctx, t.commitment)
		return err
	})
	return height, err
}

func (t *RPCTransport) GetBalance(ctx context.Context, addr types.Pubkey) (uint64, error) {
	var balance uint64
	err := t.executeWithFailover(ctx, "getBalance", func(cctx context.Context, c *rpc.Client) error {
		res, err := c.GetBalance(cctx, addr.ToSolana(), t.commitment)
		if err != nil {
			return err
		}
		balance = res.Value
		return nil
	})
	return balance, err
}

// RequestAirdrop 与发送交易相同，只请求一次
func (t *RPCTransport) RequestAirdrop(ctx context.Context, addr types.Pubkey, lamports uint64) (types.Signature, error) {
	client, endpoint := t.next()
	cctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	sig, err := client.RequestAirdrop(cctx, addr.ToSolana(), lamports, t.commitment)
	if err != nil {
		t.metrics.RPCError("requestAirdrop")
		logger.Warnf("[RPCTransport] requestAirdrop failed on %s: %v", endpoint, err)
		return types.Signature{}, fmt.Errorf("%w: requestAirdrop: %w", ErrTransport, err)
	}
	return types.SignatureFromSolana(sig), nil
}

// Close 释放底层 HTTP 连接
func (t *RPCTransport) Close() error {
	var errs []error
	for _, c := range t.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
