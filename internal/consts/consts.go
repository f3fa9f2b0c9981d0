package consts

const (
	LamportsPerSOL uint64 = 1_000_000_000

	// LamportsPerSignature 网络当前的单签名手续费
	LamportsPerSignature uint64 = 5000

	// DevnetRPC 未配置节点时使用
	DevnetRPC = "https://api.devnet.solana.com"
)
