package txn

import "errors"

var (
	// ErrMissingSigner 消息要求的签名者未提供
	ErrMissingSigner = errors.New("txn: missing required signer")
	// ErrInvalidState 当前状态不允许该操作
	ErrInvalidState = errors.New("txn: invalid state for operation")

	ErrNoInstructions = errors.New("txn: transaction has no instructions")
	ErrTooLarge       = errors.New("txn: serialized transaction exceeds packet size")

	// ErrTimedOut 超时前未观察到终态；交易可能仍会上链
	ErrTimedOut = errors.New("txn: confirmation timed out")
	// ErrOutcomeUnknown 调用方取消了等待，交易结果未知
	ErrOutcomeUnknown = errors.New("txn: outcome unknown")
	// ErrRejected 交易已上链但执行失败
	ErrRejected = errors.New("txn: rejected by network")
	// ErrBlockhashExpired 区块高度已超过 blockhash 有效期且交易未落地，确定不会上链
	ErrBlockhashExpired = errors.New("txn: blockhash expired before landing")
)
