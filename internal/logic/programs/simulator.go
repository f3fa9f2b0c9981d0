package programs

import (
	"errors"
	"fmt"
	"sync"

	"pda-client-sol/internal/consts"
	"pda-client-sol/internal/logic/instruction"
	"pda-client-sol/internal/pkg/types"
	"pda-client-sol/internal/transport"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrUnhandled handler 不认识该指令，交给同一 program id 上的下一个 handler
	ErrUnhandled = errors.New("programs: instruction not handled")
	// ErrProgram 模拟执行时程序返回的错误
	ErrProgram = errors.New("programs: program error")
)

// Invocation 一条已解析的指令调用
type Invocation struct {
	ProgramID types.Pubkey
	Accounts  []instruction.AccountMeta
	Data      []byte
}

// Account 按位置取账户，越界时返回 ErrProgram（对应链上 NotEnoughAccountKeys）
func (inv Invocation) Account(i int) (instruction.AccountMeta, error) {
	if i >= len(inv.Accounts) {
		return instruction.AccountMeta{}, fmt.Errorf("%w: not enough account keys: want #%d, have %d", ErrProgram, i, len(inv.Accounts))
	}
	return inv.Accounts[i], nil
}

// InvocationOf 把构造好的指令转成调用，用于跨程序调用
func InvocationOf(ix *instruction.Instruction) Invocation {
	return Invocation{ProgramID: ix.ProgramID(), Accounts: ix.Accounts(), Data: ix.Data()}
}

// Handler 在 State 上执行一条指令
type Handler func(inv Invocation, st *State) error

// Simulator 把交易中的指令分发给进程内的程序实现，供 MemoryTransport 使用
type Simulator struct {
	mu       sync.RWMutex
	handlers map[types.Pubkey][]Handler
}

func NewSimulator() *Simulator {
	return &Simulator{handlers: make(map[types.Pubkey][]Handler)}
}

// Register 同一 program id 可注册多个 handler，按注册顺序尝试
func (s *Simulator) Register(programID types.Pubkey, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[programID] = append(s.handlers[programID], h)
}

func (s *Simulator) dispatch(inv Invocation, st *State) error {
	s.mu.RLock()
	hs := s.handlers[inv.ProgramID]
	s.mu.RUnlock()

	if len(hs) == 0 {
		return fmt.Errorf("%w: program %s is not deployed", ErrProgram, inv.ProgramID)
	}
	for _, h := range hs {
		err := h(inv, st)
		if errors.Is(err, ErrUnhandled) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: invalid instruction data for %s", ErrProgram, inv.ProgramID)
}

// Executor 返回 transport.Executor。手续费先于指令扣除，即使交易失败也不退还；
// 任意指令失败时整笔交易的状态修改都被丢弃
func (s *Simulator) Executor() transport.Executor {
	return func(tx *solana.Transaction, ledger transport.Ledger) error {
		msg := tx.Message
		if len(msg.AccountKeys) == 0 {
			return fmt.Errorf("%w: empty message", ErrProgram)
		}

		feePayer := types.PubkeyFromSolana(msg.AccountKeys[0])
		fee := consts.LamportsPerSignature * uint64(len(tx.Signatures))
		acc, ok := ledger.Account(feePayer)
		if !ok || acc.Lamports < fee {
			return fmt.Errorf("%w: insufficient funds for fee", ErrProgram)
		}
		acc.Lamports -= fee
		ledger.PutAccount(feePayer, acc)

		st := newState(s, ledger)
		for i, ci := range msg.Instructions {
			inv, err := resolve(msg, ci)
			if err != nil {
				return fmt.Errorf("instruction #%d: %w", i, err)
			}
			if err := s.dispatch(inv, st); err != nil {
				return fmt.Errorf("instruction #%d: %w", i, err)
			}
		}
		st.commit()
		return nil
	}
}

func resolve(msg solana.Message, ci solana.CompiledInstruction) (Invocation, error) {
	pid, err := msg.Program(ci.ProgramIDIndex)
	if err != nil {
		return Invocation{}, err
	}
	inv := Invocation{
		ProgramID: types.PubkeyFromSolana(pid),
		Accounts:  make([]instruction.AccountMeta, len(ci.Accounts)),
		Data:      append([]byte(nil), ci.Data...),
	}
	for i, idx := range ci.Accounts {
		pk, err := msg.Account(idx)
		if err != nil {
			return Invocation{}, err
		}
		writable, err := msg.IsWritable(pk)
		if err != nil {
			return Invocation{}, err
		}
		inv.Accounts[i] = instruction.AccountMeta{
			Pubkey:     types.PubkeyFromSolana(pk),
			IsSigner:   msg.IsSigner(pk),
			IsWritable: writable,
		}
	}
	return inv, nil
}

// State 交易执行期间的暂存账本，提交前对外不可见
type State struct {
	sim   *Simulator
	base  transport.Ledger
	dirty map[types.Pubkey]transport.AccountInfo
}

func newState(sim *Simulator, base transport.Ledger) *State {
	return &State{sim: sim, base: base, dirty: make(map[types.Pubkey]transport.AccountInfo)}
}

// Account 不存在时返回 false；返回值可自由修改
func (st *State) Account(addr types.Pubkey) (transport.AccountInfo, bool) {
	if acc, ok := st.dirty[addr]; ok {
		acc.Data = append([]byte(nil), acc.Data...)
		return acc, true
	}
	return st.base.Account(addr)
}

func (st *State) PutAccount(addr types.Pubkey, info transport.AccountInfo) {
	info.Data = append([]byte(nil), info.Data...)
	st.dirty[addr] = info
}

// Invoke 跨程序调用。调用方负责按链上规则设置签名者（PDA 由派生它的程序代签）
func (st *State) Invoke(inv Invocation) error {
	return st.sim.dispatch(inv, st)
}

func (st *State) commit() {
	for addr, info := range st.dirty {
		st.base.PutAccount(addr, info)
	}
}
