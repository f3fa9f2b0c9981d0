package account

import (
	"context"
	"errors"
	"fmt"

	"pda-client-sol/internal/logic/codec"
	"pda-client-sol/internal/pkg/types"
	"pda-client-sol/internal/transport"
)

var (
	// ErrAccountNotFound 地址上不存在账户。与“存在但数据全零”不同
	ErrAccountNotFound    = errors.New("account: not found")
	ErrProgramNotDeployed = errors.New("account: program not deployed")
	ErrNotExecutable      = errors.New("account: program account is not executable")
	ErrOwnerMismatch      = errors.New("account: unexpected owner")
)

// Reader 通过 transport 读取账户原始字节，再按 schema 解码
type Reader struct {
	transport transport.Transport
}

func NewReader(t transport.Transport) *Reader {
	return &Reader{transport: t}
}

// Info 返回账户原始内容
func (r *Reader) Info(ctx context.Context, addr types.Pubkey) (*transport.AccountInfo, error) {
	info, err := r.transport.GetAccount(ctx, addr)
	if err != nil {
		if errors.Is(err, transport.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
		}
		return nil, err
	}
	return info, nil
}

// Read 读取并解码到 out（结构体指针）
func (r *Reader) Read(ctx context.Context, addr types.Pubkey, schema *codec.Schema, out any) error {
	info, err := r.Info(ctx, addr)
	if err != nil {
		return err
	}
	if err := codec.Decode(schema, info.Data, out); err != nil {
		return fmt.Errorf("account %s: %w", addr, err)
	}
	return nil
}

// ReadOwned 额外校验账户 owner
func (r *Reader) ReadOwned(ctx context.Context, addr, owner types.Pubkey, schema *codec.Schema, out any) error {
	info, err := r.Info(ctx, addr)
	if err != nil {
		return err
	}
	if info.Owner != owner {
		return fmt.Errorf("%w: %s is owned by %s, want %s", ErrOwnerMismatch, addr, info.Owner, owner)
	}
	if err := codec.Decode(schema, info.Data, out); err != nil {
		return fmt.Errorf("account %s: %w", addr, err)
	}
	return nil
}

func (r *Reader) ReadRecord(ctx context.Context, addr types.Pubkey, schema *codec.Schema) (codec.Record, error) {
	info, err := r.Info(ctx, addr)
	if err != nil {
		return nil, err
	}
	rec, err := codec.DecodeRecord(schema, info.Data)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", addr, err)
	}
	return rec, nil
}

// ReadAs 使用 T 推导出的 schema 读取
func ReadAs[T any](ctx context.Context, r *Reader, addr types.Pubkey) (T, error) {
	var out T
	schema, err := codec.SchemaOf(&out)
	if err != nil {
		return out, err
	}
	if err := r.Read(ctx, addr, schema, &out); err != nil {
		return out, err
	}
	return out, nil
}

// CheckProgram 校验程序账户已部署且可执行
func (r *Reader) CheckProgram(ctx context.Context, program types.Pubkey) error {
	info, err := r.Info(ctx, program)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return fmt.Errorf("%w: %s", ErrProgramNotDeployed, program)
		}
		return err
	}
	if !info.Executable {
		return fmt.Errorf("%w: %s", ErrNotExecutable, program)
	}
	return nil
}
