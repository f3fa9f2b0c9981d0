package keys

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"

	"pda-client-sol/internal/pkg/types"

	"github.com/bytedance/sonic"
	"github.com/gagliardetto/solana-go"
	"github.com/tyler-smith/go-bip39"
)

var ErrInvalidKey = errors.New("keys: invalid key material")

// Keypair 钱包密钥对（ed25519），持有私钥即可签名
type Keypair struct {
	priv ed25519.PrivateKey
}

func Generate() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	return &Keypair{priv: priv}, nil
}

// FromSeed 由 32 字节种子生成密钥对
func FromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes, got %d", ErrInvalidKey, ed25519.SeedSize, len(seed))
	}
	return &Keypair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// FromPrivateKey 64 字节私钥（seed ‖ pubkey），校验公钥部分一致
func FromPrivateKey(b []byte) (*Keypair, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d", ErrInvalidKey, ed25519.PrivateKeySize, len(b))
	}
	kp, err := FromSeed(b[:ed25519.SeedSize])
	if err != nil {
		return nil, err
	}
	if !kp.priv.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(b[ed25519.SeedSize:])) {
		return nil, fmt.Errorf("%w: public half does not match seed", ErrInvalidKey)
	}
	return kp, nil
}

// LoadFile 读取 solana-keygen 格式的 JSON 数组密钥文件
func LoadFile(path string) (*Keypair, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair file %s: %w", path, err)
	}
	var values []int
	if err := sonic.Unmarshal(content, &values); err != nil {
		return nil, fmt.Errorf("%w: parse keypair file %s: %v", ErrInvalidKey, path, err)
	}
	raw := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("%w: byte #%d out of range: %d", ErrInvalidKey, i, v)
		}
		raw[i] = byte(v)
	}
	return FromPrivateKey(raw)
}

// SaveFile 以 solana-keygen 兼容格式写出，权限 0600
func (k *Keypair) SaveFile(path string) error {
	values := make([]int, len(k.priv))
	for i, b := range k.priv {
		values[i] = int(b)
	}
	content, err := sonic.Marshal(values)
	if err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o600)
}

// NewMnemonic 生成 12 词助记词
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// FromMnemonic 与 solana-keygen recover（无派生路径）一致：取 BIP39 种子前 32 字节
func FromMnemonic(mnemonic, passphrase string) (*Keypair, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("%w: invalid mnemonic", ErrInvalidKey)
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	return FromSeed(seed[:ed25519.SeedSize])
}

func (k *Keypair) PublicKey() types.Pubkey {
	var p types.Pubkey
	copy(p[:], k.priv.Public().(ed25519.PublicKey))
	return p
}

func (k *Keypair) Sign(message []byte) types.Signature {
	var s types.Signature
	copy(s[:], ed25519.Sign(k.priv, message))
	return s
}

// ToSolana 供 solana-go 消息签名使用
func (k *Keypair) ToSolana() solana.PrivateKey {
	return solana.PrivateKey(append([]byte(nil), k.priv...))
}
