package pda

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"pda-client-sol/internal/pkg/types"
)

const (
	MaxSeeds      = 16
	MaxSeedLength = 32

	// pdaMarker 追加在哈希输入末尾，与网络侧派生算法一致
	pdaMarker = "ProgramDerivedAddress"
)

var (
	ErrMaxSeedLength     = errors.New("pda: max seed length exceeded")
	ErrInvalidSeeds      = errors.New("pda: seeds produce an on-curve address")
	ErrNoValidDerivation = errors.New("pda: no valid derivation found")
)

type deriver struct {
	onCurve func(types.Pubkey) bool
}

var std = deriver{onCurve: types.Pubkey.IsOnCurve}

// CreateProgramAddress 使用给定 seeds（已包含 bump）计算派生地址
// 结果落在 ed25519 曲线上时返回 ErrInvalidSeeds
func CreateProgramAddress(seeds [][]byte, owner types.Pubkey) (types.Pubkey, error) {
	return std.create(seeds, owner)
}

// FindProgramAddress 从 bump=255 向下搜索到 0，返回第一个不在曲线上的派生地址及其 bump
func FindProgramAddress(seeds [][]byte, owner types.Pubkey) (types.Pubkey, uint8, error) {
	return std.find(seeds, owner)
}

func (d deriver) create(seeds [][]byte, owner types.Pubkey) (types.Pubkey, error) {
	if len(seeds) > MaxSeeds {
		return types.Pubkey{}, fmt.Errorf("%w: %d seeds, max %d", ErrMaxSeedLength, len(seeds), MaxSeeds)
	}
	for i, s := range seeds {
		if len(s) > MaxSeedLength {
			return types.Pubkey{}, fmt.Errorf("%w: seed #%d has %d bytes, max %d", ErrMaxSeedLength, i, len(s), MaxSeedLength)
		}
	}

	h := sha256.New()
	for _, s := range seeds {
		h.Write(s)
	}
	h.Write(owner[:])
	h.Write([]byte(pdaMarker))

	var addr types.Pubkey
	copy(addr[:], h.Sum(nil))
	if d.onCurve(addr) {
		return types.Pubkey{}, ErrInvalidSeeds
	}
	return addr, nil
}

func (d deriver) find(seeds [][]byte, owner types.Pubkey) (types.Pubkey, uint8, error) {
	// bump 本身占一个 seed 位置
	if len(seeds) >= MaxSeeds {
		return types.Pubkey{}, 0, fmt.Errorf("%w: %d seeds leave no room for bump", ErrMaxSeedLength, len(seeds))
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	bump := []byte{0}
	withBump[len(seeds)] = bump

	for b := 255; b >= 0; b-- {
		bump[0] = uint8(b)
		addr, err := d.create(withBump, owner)
		switch {
		case err == nil:
			return addr, uint8(b), nil
		case errors.Is(err, ErrInvalidSeeds):
			continue
		default:
			return types.Pubkey{}, 0, err
		}
	}
	return types.Pubkey{}, 0, fmt.Errorf("%w: owner=%s", ErrNoValidDerivation, owner)
}

// Verify 校验 addr 是否确实由 seeds + bump + owner 派生
func Verify(seeds [][]byte, bump uint8, owner, addr types.Pubkey) bool {
	withBump := append(append([][]byte(nil), seeds...), []byte{bump})
	got, err := CreateProgramAddress(withBump, owner)
	return err == nil && got == addr
}

// Derivation 一次派生的完整输入与结果，便于调用方在指令中携带 bump
type Derivation struct {
	Seeds   [][]byte
	Owner   types.Pubkey
	Address types.Pubkey
	Bump    uint8
}

func Derive(owner types.Pubkey, seeds ...[]byte) (Derivation, error) {
	addr, bump, err := FindProgramAddress(seeds, owner)
	if err != nil {
		return Derivation{}, err
	}
	return Derivation{Seeds: seeds, Owner: owner, Address: addr, Bump: bump}, nil
}
