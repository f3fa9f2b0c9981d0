package transport

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"

	"pda-client-sol/internal/pkg/types"

	"github.com/gagliardetto/solana-go"
)

const (
	// 网络侧 blockhash 有效期约 150 个区块
	defaultMarkerValidity  = 150
	rentPerByteYear        = 3480
	rentExemptionYears     = 2
	accountStorageOverhead = 128
)

// Ledger Executor 可见的账本视图，调用期间账本已加锁
type Ledger interface {
	Account(addr types.Pubkey) (AccountInfo, bool)
	PutAccount(addr types.Pubkey, info AccountInfo)
}

// Executor 在内存账本上“执行”一笔已签名交易；返回 error 表示交易被拒绝
type Executor func(tx *solana.Transaction, ledger Ledger) error

type lockedLedger struct {
	m *MemoryTransport
}

func (l lockedLedger) Account(addr types.Pubkey) (AccountInfo, bool) {
	acc, ok := l.m.accounts[addr]
	if !ok {
		return AccountInfo{}, false
	}
	cp := *acc
	cp.Data = append([]byte(nil), acc.Data...)
	return cp, true
}

func (l lockedLedger) PutAccount(addr types.Pubkey, info AccountInfo) {
	cp := info
	cp.Data = append([]byte(nil), info.Data...)
	l.m.accounts[addr] = &cp
}

// MemoryTransport 内存账本，用于单测和 dry-run
//
// 发送的交易会校验签名并记录；状态查询按 FinalizeAfter 推进，
// 每次状态查询推进 BlocksPerPoll 个区块高度。
type MemoryTransport struct {
	mu sync.Mutex

	height    uint64
	markerSeq uint64
	markers   map[types.Hash]uint64 // blockhash -> lastValidBlockHeight
	accounts  map[types.Pubkey]*AccountInfo
	txs       map[types.Signature]*memTx
	sendOrder []types.Signature

	// 可在测试中直接设置
	MarkerValidity uint64
	FinalizeAfter  int    // 第 N 次状态查询后返回终态；<0 表示永远 pending
	BlocksPerPoll  uint64 // 每次状态查询推进的区块数
	SendErr        error  // 非 nil 时发送失败
	StatusErrs     int    // 接下来 N 次状态查询返回错误
	Executor       Executor
}

type memTx struct {
	raw      []byte
	tx       *solana.Transaction
	polls    int
	landed   bool // false 时永远查不到（模拟丢包）
	result   TxStatusResult
	executed bool
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		height:         1,
		markers:        make(map[types.Hash]uint64),
		accounts:       make(map[types.Pubkey]*AccountInfo),
		txs:            make(map[types.Signature]*memTx),
		MarkerValidity: defaultMarkerValidity,
		FinalizeAfter:  1,
	}
}

func (m *MemoryTransport) GetRecentSequenceMarker(ctx context.Context) (SequenceMarker, error) {
	if err := ctx.Err(); err != nil {
		return SequenceMarker{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.markerSeq++
	h := sha256.Sum256(binary.LittleEndian.AppendUint64([]byte("memory-blockhash"), m.markerSeq))
	marker := SequenceMarker{Blockhash: types.Hash(h), LastValidBlockHeight: m.height + m.MarkerValidity}
	m.markers[marker.Blockhash] = marker.LastValidBlockHeight
	return marker, nil
}

func (m *MemoryTransport) SendTransaction(ctx context.Context, raw []byte) (types.Signature, error) {
	if err := ctx.Err(); err != nil {
		return types.Signature{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SendErr != nil {
		return types.Signature{}, fmt.Errorf("%w: %w", ErrTransport, m.SendErr)
	}

	tx, err := solana.TransactionFromBytes(raw)
	if err != nil {
		return types.Signature{}, fmt.Errorf("%w: malformed transaction: %v", ErrTransport, err)
	}
	if err := tx.VerifySignatures(); err != nil {
		return types.Signature{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if len(tx.Signatures) == 0 {
		return types.Signature{}, fmt.Errorf("%w: unsigned transaction", ErrTransport)
	}

	sig := types.SignatureFromSolana(tx.Signatures[0])
	if _, dup := m.txs[sig]; dup {
		// 与网络一致：重复签名的交易不会被执行两次
		return sig, nil
	}

	landed := true
	lastValid, known := m.markers[types.Hash(tx.Message.RecentBlockhash)]
	if !known || m.height > lastValid {
		landed = false
	}
	m.txs[sig] = &memTx{raw: append([]byte(nil), raw...), tx: tx, landed: landed}
	m.sendOrder = append(m.sendOrder, sig)
	return sig, nil
}

func (m *MemoryTransport) GetTransactionStatus(ctx context.Context, sig types.Signature) (TxStatusResult, error) {
	if err := ctx.Err(); err != nil {
		return TxStatusResult{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.height += m.BlocksPerPoll
	if m.StatusErrs > 0 {
		m.StatusErrs--
		return TxStatusResult{}, fmt.Errorf("%w: injected status failure", ErrTransport)
	}

	t, ok := m.txs[sig]
	if !ok || !t.landed {
		return TxStatusResult{Status: TxPending}, nil
	}
	t.polls++
	if m.FinalizeAfter < 0 || t.polls < m.FinalizeAfter {
		return TxStatusResult{Status: TxPending}, nil
	}
	if !t.executed {
		t.executed = true
		t.result = TxStatusResult{Status: TxFinalized, Slot: m.height}
		if m.Executor != nil {
			if err := m.Executor(t.tx, lockedLedger{m: m}); err != nil {
				t.result = TxStatusResult{Status: TxRejected, Slot: m.height, Reason: err.Error()}
			}
		}
	}
	return t.result, nil
}

func (m *MemoryTransport) GetAccount(ctx context.Context, addr types.Pubkey) (*AccountInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[addr]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *acc
	cp.Data = append([]byte(nil), acc.Data...)
	return &cp, nil
}

// GetMinimumFundingForSize 与网络的租金豁免公式一致
func (m *MemoryTransport) GetMinimumFundingForSize(ctx context.Context, size uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return RentExemptMinimum(size), nil
}

// RentExemptMinimum 按默认租金参数计算 size 字节账户的免租最低余额
func RentExemptMinimum(size uint64) uint64 {
	return (accountStorageOverhead + size) * rentPerByteYear * rentExemptionYears
}

func (m *MemoryTransport) GetBlockHeight(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.height, nil
}

func (m *MemoryTransport) GetBalance(ctx context.Context, addr types.Pubkey) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if acc, ok := m.accounts[addr]; ok {
		return acc.Lamports, nil
	}
	return 0, nil
}

// RequestAirdrop 直接入账，并登记一笔已确认的交易以便调用方确认
func (m *MemoryTransport) RequestAirdrop(ctx context.Context, addr types.Pubkey, lamports uint64) (types.Signature, error) {
	if err := ctx.Err(); err != nil {
		return types.Signature{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.creditLocked(addr, lamports)

	var sig types.Signature
	h := sha256.Sum256(append([]byte("memory-airdrop"), binary.LittleEndian.AppendUint64(addr[:], uint64(len(m.txs)))...))
	copy(sig[:], h[:])
	m.txs[sig] = &memTx{landed: true, executed: true, result: TxStatusResult{Status: TxFinalized, Slot: m.height}}
	return sig, nil
}

// SetAccount 写入或覆盖账户
func (m *MemoryTransport) SetAccount(addr types.Pubkey, info AccountInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lockedLedger{m: m}.PutAccount(addr, info)
}

func (m *MemoryTransport) Credit(addr types.Pubkey, lamports uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creditLocked(addr, lamports)
}

func (m *MemoryTransport) creditLocked(addr types.Pubkey, lamports uint64) {
	acc, ok := m.accounts[addr]
	if !ok {
		acc = &AccountInfo{}
		m.accounts[addr] = acc
	}
	acc.Lamports += lamports
}

// AdvanceBlocks 推进区块高度，用于模拟 blockhash 过期
func (m *MemoryTransport) AdvanceBlocks(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.height += n
}

// Drop 让已发送的交易永远查不到（模拟网络丢弃）
func (m *MemoryTransport) Drop(sig types.Signature) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.txs[sig]; ok {
		t.landed = false
	}
}

func (m *MemoryTransport) SendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sendOrder)
}

// SentTransaction 返回已发送交易的解码结果
func (m *MemoryTransport) SentTransaction(sig types.Signature) (*solana.Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txs[sig]
	if !ok || t.tx == nil {
		return nil, false
	}
	return t.tx, true
}
