package txn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pda-client-sol/internal/logic/journal"
	"pda-client-sol/internal/metrics"
	"pda-client-sol/internal/pkg/logger"
	"pda-client-sol/internal/pkg/types"
	"pda-client-sol/internal/transport"

	"github.com/gagliardetto/solana-go"
)

const (
	DefaultConfirmTimeout = 60 * time.Second
	DefaultPollInterval   = 2 * time.Second
)

type ConfirmOption struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

func (o ConfirmOption) withDefaults() ConfirmOption {
	if o.Timeout <= 0 {
		o.Timeout = DefaultConfirmTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

// Outcome Confirm 的结果分类
type Outcome int

const (
	OutcomeUnknown Outcome = iota // 调用方取消，交易可能已上链
	OutcomeConfirmed
	OutcomeFailed
	OutcomeTimedOut
	OutcomeExpired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeUnknown:
		return "unknown"
	case OutcomeExpired:
		return "expired"
	default:
		return "invalid"
	}
}

func (o Outcome) journalStatus() journal.Status {
	switch o {
	case OutcomeConfirmed:
		return journal.StatusConfirmed
	case OutcomeFailed:
		return journal.StatusFailed
	case OutcomeTimedOut:
		return journal.StatusTimedOut
	case OutcomeUnknown:
		return journal.StatusCancelled
	case OutcomeExpired:
		return journal.StatusExpired
	default:
		return journal.StatusUnknown
	}
}

// Confirmation 一次 Confirm 调用的结果
type Confirmation struct {
	Signature types.Signature
	Outcome   Outcome
	Slot      uint64
	Reason    string
	Polls     int
	Elapsed   time.Duration
}

// Manager 负责交易的签名、提交与确认。不持有全局状态，可被多个流程共享
type Manager struct {
	transport transport.Transport
	metrics   *metrics.Metrics
	journal   journal.Journal
	confirm   ConfirmOption
}

type ManagerOption func(*Manager)

func WithMetrics(m *metrics.Metrics) ManagerOption {
	return func(mgr *Manager) { mgr.metrics = m }
}

func WithJournal(j journal.Journal) ManagerOption {
	return func(mgr *Manager) { mgr.journal = j }
}

func WithConfirmOption(o ConfirmOption) ManagerOption {
	return func(mgr *Manager) { mgr.confirm = o.withDefaults() }
}

func NewManager(t transport.Transport, opts ...ManagerOption) *Manager {
	m := &Manager{
		transport: t,
		confirm:   ConfirmOption{}.withDefaults(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) ConfirmOption() ConfirmOption {
	return m.confirm
}

// Sign 签名前获取新的 sequence marker，编译消息并由所有必需签名者签名。
// Built 或 Signed 状态可重复签名（会换新 marker）
func (m *Manager) Sign(ctx context.Context, tx *Transaction, signers ...Signer) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.status != StatusBuilt && tx.status != StatusSigned {
		return fmt.Errorf("%w: cannot sign a %s transaction", ErrInvalidState, tx.status)
	}

	marker, err := m.transport.GetRecentSequenceMarker(ctx)
	if err != nil {
		m.metrics.TxStage("sign", "error")
		return fmt.Errorf("fetch sequence marker: %w", err)
	}

	instrs := make([]solana.Instruction, len(tx.instructions))
	for i, ix := range tx.instructions {
		instrs[i] = ix.ToSolana()
	}
	stx, err := solana.NewTransaction(instrs, marker.Blockhash.ToSolana(), solana.TransactionPayer(tx.payer.ToSolana()))
	if err != nil {
		return fmt.Errorf("compile message: %w", err)
	}

	byKey := make(map[types.Pubkey]Signer, len(signers))
	for _, s := range signers {
		byKey[s.PublicKey()] = s
	}
	required := stx.Message.Signers()
	for _, pk := range required {
		if _, ok := byKey[types.PubkeyFromSolana(pk)]; !ok {
			m.metrics.TxStage("sign", "missing_signer")
			return fmt.Errorf("%w: %s", ErrMissingSigner, pk)
		}
	}

	msg, err := stx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("serialize message: %w", err)
	}
	sigs := make([]types.Signature, len(required))
	stx.Signatures = make([]solana.Signature, len(required))
	for i, pk := range required {
		sigs[i] = byKey[types.PubkeyFromSolana(pk)].Sign(msg)
		stx.Signatures[i] = sigs[i].ToSolana()
	}

	raw, err := stx.MarshalBinary()
	if err != nil {
		return fmt.Errorf("serialize transaction: %w", err)
	}
	if len(raw) > MaxPacketSize {
		return fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(raw), MaxPacketSize)
	}

	tx.marker = marker
	tx.signatures = sigs
	tx.raw = raw
	tx.status = StatusSigned
	m.metrics.TxStage("sign", "ok")
	logger.Debugf("[TxManager] 签名完成: sig=%s, signers=%d, blockhash=%s, lastValid=%d",
		sigs[0], len(sigs), marker.Blockhash, marker.LastValidBlockHeight)
	return nil
}

// Submit 只发送一次，从不自动重试。失败时交易保持 Signed，由调用方决定是否重发
func (m *Manager) Submit(ctx context.Context, tx *Transaction) (types.Signature, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.status != StatusSigned {
		return types.Signature{}, fmt.Errorf("%w: cannot submit a %s transaction", ErrInvalidState, tx.status)
	}

	sig, err := m.transport.SendTransaction(ctx, tx.raw)
	if err != nil {
		m.metrics.TxStage("submit", "error")
		logger.Warnf("[TxManager] 提交失败: sig=%s, err=%v", tx.signatures[0], err)
		return types.Signature{}, err
	}
	if sig != tx.signatures[0] {
		logger.Warnf("[TxManager] 节点返回的签名与本地不一致: local=%s, remote=%s", tx.signatures[0], sig)
	}

	tx.status = StatusSubmitted
	m.metrics.TxStage("submit", "ok")
	m.record(ctx, journal.Entry{
		Signature: tx.signatures[0], Label: tx.label, Status: journal.StatusSubmitted,
		LastValidBlockHeight: tx.marker.LastValidBlockHeight,
	})
	logger.Infof("[TxManager] 已提交: sig=%s, label=%s", tx.signatures[0], tx.label)
	return tx.signatures[0], nil
}

// Confirm 轮询交易状态直到终态、超时、过期或 ctx 取消，最迟在 timeout + 一个轮询间隔内返回。
//
//   - Confirmed: err 为 nil
//   - Failed: ErrRejected，交易进入 Failed
//   - Expired: ErrBlockhashExpired，交易进入 Failed（确定不会上链）
//   - TimedOut: ErrTimedOut，交易保持 Submitted
//   - Unknown: ctx 被取消，ErrOutcomeUnknown，交易保持 Submitted
func (m *Manager) Confirm(ctx context.Context, tx *Transaction, timeout, pollInterval time.Duration) (Confirmation, error) {
	tx.mu.Lock()
	status, marker, label := tx.status, tx.marker, tx.label
	var sig types.Signature
	if len(tx.signatures) > 0 {
		sig = tx.signatures[0]
	}
	reason, slot := tx.reason, tx.slot
	tx.mu.Unlock()

	switch status {
	case StatusConfirmed:
		return Confirmation{Signature: sig, Outcome: OutcomeConfirmed, Slot: slot}, nil
	case StatusFailed:
		return Confirmation{Signature: sig, Outcome: OutcomeFailed, Slot: slot, Reason: reason},
			fmt.Errorf("%w: %s", ErrRejected, reason)
	case StatusSubmitted:
	default:
		return Confirmation{Signature: sig}, fmt.Errorf("%w: cannot confirm a %s transaction", ErrInvalidState, status)
	}

	if timeout <= 0 {
		timeout = m.confirm.Timeout
	}
	if pollInterval <= 0 {
		pollInterval = m.confirm.PollInterval
	}

	start := time.Now()
	c := m.poll(ctx, sig, marker, timeout, pollInterval)
	c.Signature = sig
	c.Elapsed = time.Since(start)

	tx.mu.Lock()
	switch c.Outcome {
	case OutcomeConfirmed:
		tx.status, tx.slot = StatusConfirmed, c.Slot
	case OutcomeFailed, OutcomeExpired:
		tx.status, tx.slot, tx.reason = StatusFailed, c.Slot, c.Reason
	}
	tx.mu.Unlock()

	m.metrics.TxStage("confirm", c.Outcome.String())
	m.metrics.ConfirmDuration(c.Outcome.String(), c.Elapsed)
	m.record(ctx, journal.Entry{
		Signature: sig, Label: label, Status: c.Outcome.journalStatus(), Reason: c.Reason, Slot: c.Slot,
		LastValidBlockHeight: marker.LastValidBlockHeight,
	})

	err := outcomeError(c, ctx.Err())
	if err != nil {
		logger.Warnf("[TxManager] 确认未成功: sig=%s, outcome=%s, polls=%d, elapsed=%s, reason=%s",
			sig, c.Outcome, c.Polls, c.Elapsed, c.Reason)
	} else {
		logger.Infof("[TxManager] 已确认: sig=%s, slot=%d, polls=%d, elapsed=%s", sig, c.Slot, c.Polls, c.Elapsed)
	}
	return c, err
}

func outcomeError(c Confirmation, ctxErr error) error {
	switch c.Outcome {
	case OutcomeConfirmed:
		return nil
	case OutcomeFailed:
		return fmt.Errorf("%w: %s", ErrRejected, c.Reason)
	case OutcomeExpired:
		return ErrBlockhashExpired
	case OutcomeTimedOut:
		return fmt.Errorf("%w after %s", ErrTimedOut, c.Elapsed.Truncate(time.Millisecond))
	default:
		if ctxErr != nil {
			return fmt.Errorf("%w: %w", ErrOutcomeUnknown, ctxErr)
		}
		return ErrOutcomeUnknown
	}
}

// poll 唯一的等待循环。外层 ctx 取消视为结果未知，自身超时视为 TimedOut
func (m *Manager) poll(ctx context.Context, sig types.Signature, marker transport.SequenceMarker, timeout, interval time.Duration) Confirmation {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	timer := time.NewTimer(0)
	defer timer.Stop()

	var c Confirmation
	for {
		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				c.Outcome = OutcomeUnknown
			} else {
				c.Outcome = OutcomeTimedOut
			}
			return c
		case <-timer.C:
		}

		c.Polls++
		done, ok := m.check(pollCtx, sig, &c)
		if done {
			return c
		}
		// 只有成功读到 pending 才判断过期，查询失败时结果仍未知
		if ok && m.expired(pollCtx, marker) {
			// 过期后再查一次，避免错过最后时刻落地的交易
			done, ok = m.check(pollCtx, sig, &c)
			if done {
				return c
			}
			if ok && pollCtx.Err() == nil {
				c.Outcome = OutcomeExpired
				c.Reason = fmt.Sprintf("block height passed last valid height %d", marker.LastValidBlockHeight)
				return c
			}
		}
		timer.Reset(interval)
	}
}

// check 查询一次状态。done 表示已到终态，ok 表示本次查询成功
func (m *Manager) check(ctx context.Context, sig types.Signature, c *Confirmation) (done, ok bool) {
	st, err := m.transport.GetTransactionStatus(ctx, sig)
	if err != nil {
		if ctx.Err() == nil {
			m.metrics.RPCError("getSignatureStatuses")
			logger.Warnf("[TxManager] 查询状态失败，继续轮询: sig=%s, err=%v", sig, err)
		}
		return false, false
	}
	switch st.Status {
	case transport.TxFinalized:
		c.Outcome, c.Slot = OutcomeConfirmed, st.Slot
		return true, true
	case transport.TxRejected:
		c.Outcome, c.Slot, c.Reason = OutcomeFailed, st.Slot, st.Reason
		return true, true
	default:
		return false, true
	}
}

func (m *Manager) expired(ctx context.Context, marker transport.SequenceMarker) bool {
	if marker.LastValidBlockHeight == 0 {
		return false
	}
	height, err := m.transport.GetBlockHeight(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.metrics.RPCError("getBlockHeight")
			logger.Warnf("[TxManager] 查询区块高度失败: %v", err)
		}
		return false
	}
	return height > marker.LastValidBlockHeight
}

// SendAndConfirm sign → submit → confirm，使用 Manager 配置的超时与轮询间隔
func (m *Manager) SendAndConfirm(ctx context.Context, tx *Transaction, signers ...Signer) (Confirmation, error) {
	if err := m.Sign(ctx, tx, signers...); err != nil {
		return Confirmation{}, err
	}
	sig, err := m.Submit(ctx, tx)
	if err != nil {
		return Confirmation{Signature: tx.Signature()}, err
	}
	c, err := m.Confirm(ctx, tx, m.confirm.Timeout, m.confirm.PollInterval)
	c.Signature = sig
	return c, err
}

// ConfirmSignature 确认一个只知道签名的交易（例如 airdrop 或 recheck），不做过期判断
func (m *Manager) ConfirmSignature(ctx context.Context, sig types.Signature, timeout, pollInterval time.Duration) (Confirmation, error) {
	if timeout <= 0 {
		timeout = m.confirm.Timeout
	}
	if pollInterval <= 0 {
		pollInterval = m.confirm.PollInterval
	}
	start := time.Now()
	c := m.poll(ctx, sig, transport.SequenceMarker{}, timeout, pollInterval)
	c.Signature = sig
	c.Elapsed = time.Since(start)
	m.metrics.ConfirmDuration(c.Outcome.String(), c.Elapsed)
	return c, outcomeError(c, ctx.Err())
}

// Recheck 重新查询 journal 中未决的交易，并写回新的状态。
// 仍查不到且区块高度已超过 LastValidBlockHeight 的交易记为 Expired
func (m *Manager) Recheck(ctx context.Context) ([]journal.Entry, error) {
	if m.journal == nil {
		return nil, nil
	}
	pending, err := m.journal.Pending(ctx)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}

	// 先取高度再查状态：高度已过期时仍查不到，才能确定不会上链
	height, err := m.transport.GetBlockHeight(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		m.metrics.RPCError("getBlockHeight")
		logger.Warnf("[TxManager] recheck 查询区块高度失败，本轮不做过期判断: %v", err)
		height = 0
	}

	out := make([]journal.Entry, 0, len(pending))
	for _, e := range pending {
		st, err := m.transport.GetTransactionStatus(ctx, e.Signature)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return out, err
			}
			logger.Warnf("[TxManager] recheck 查询失败: sig=%s, err=%v", e.Signature, err)
			out = append(out, e)
			continue
		}
		switch st.Status {
		case transport.TxFinalized:
			e.Status, e.Slot, e.Reason = journal.StatusConfirmed, st.Slot, ""
		case transport.TxRejected:
			e.Status, e.Slot, e.Reason = journal.StatusFailed, st.Slot, st.Reason
		default:
			if e.LastValidBlockHeight == 0 || height <= e.LastValidBlockHeight {
				out = append(out, e)
				continue
			}
			e.Status = journal.StatusExpired
			e.Reason = fmt.Sprintf("block height %d passed last valid height %d", height, e.LastValidBlockHeight)
		}
		e.UpdatedAt = time.Time{}
		m.record(ctx, e)
		out = append(out, e)
	}
	return out, nil
}

func (m *Manager) record(ctx context.Context, e journal.Entry) {
	if m.journal == nil {
		return
	}
	// 取消后仍要落盘，否则未决交易无从复查
	if err := m.journal.Record(context.WithoutCancel(ctx), e); err != nil {
		logger.Warnf("[Journal] 写入失败: sig=%s, err=%v", e.Signature, err)
	}
}
