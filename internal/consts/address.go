package consts

import "pda-client-sol/internal/pkg/types"

// Base58 地址常量（可读性高，适合配置与日志使用）
const (
	// 原生 Program
	SystemProgramStr = "11111111111111111111111111111111"
	SysvarRentStr    = "SysvarRent111111111111111111111111111111111"
	BPFLoaderStr     = "BPFLoaderUpgradeab1e11111111111111111111111"

	// devnet 上部署的示例合约（配置未指定时的默认值）
	CounterProgramStr = "H7yPiw1m7mcnBFbQdLXnLDdN37vAP9csKXe9ckSTxUo8"
	AddressProgramStr = "3Ff2JNLJTjK7irW7U79HkvZLsakXuTJKG115cAE2hijz"
	// ecom 与 profile 在 devnet 上是同一个部署
	EcomProgramStr    = "9xvFLBLM8bhnh86heynttThpUbW4FC5nkErSnQxBrScZ"
	ProfileProgramStr = "9xvFLBLM8bhnh86heynttThpUbW4FC5nkErSnQxBrScZ"
)

var (
	SystemProgram = types.PubkeyFromBase58(SystemProgramStr)
	SysvarRent    = types.PubkeyFromBase58(SysvarRentStr)
	BPFLoader     = types.PubkeyFromBase58(BPFLoaderStr)

	CounterProgram = types.PubkeyFromBase58(CounterProgramStr)
	AddressProgram = types.PubkeyFromBase58(AddressProgramStr)
	EcomProgram    = types.PubkeyFromBase58(EcomProgramStr)
	ProfileProgram = types.PubkeyFromBase58(ProfileProgramStr)
)
