package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/yaml.v3"

	"CoSign-Relay/internal/config"
	xerrors "CoSign-Relay/internal/errors"
)

// Signer 表示密钥环中的一个具名签名人。
type Signer struct {
	Name    string
	Address common.Address
	key     *ecdsa.PrivateKey
}

// Keyring 保存全部可连接的签名人密钥。
type Keyring struct {
	mu      sync.RWMutex
	signers map[string]*Signer
}

// keystoreFile 描述 YAML 密钥库文件的结构。
type keystoreFile struct {
	Signers []config.SignerConfig `yaml:"signers"`
}

// NewKeyring 创建一个空的密钥环。
func NewKeyring() *Keyring {
	return &Keyring{signers: make(map[string]*Signer)}
}

// LoadKeyring 根据配置构建密钥环，支持内联密钥与外部密钥库文件。
func LoadKeyring(cfg config.WalletConfig) (*Keyring, error) {
	ring := NewKeyring()

	entries := append([]config.SignerConfig(nil), cfg.Signers...)
	if cfg.KeystorePath != "" {
		raw, err := os.ReadFile(cfg.KeystorePath)
		if err != nil {
			return nil, fmt.Errorf("读取密钥库失败: %w", err)
		}
		var file keystoreFile
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("解析密钥库失败: %w", err)
		}
		entries = append(entries, file.Signers...)
	}

	for _, entry := range entries {
		if err := ring.Add(entry.Name, entry.PrivateKey); err != nil {
			return nil, err
		}
	}
	return ring, nil
}

// Add 注册一个签名人，私钥为十六进制编码，兼容 0x 前缀。
func (r *Keyring) Add(name, privateKeyHex string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "签名人名称不能为空")
	}
	keyHex := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("签名人 %s 私钥无效", name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.signers[name]; ok {
		return xerrors.New(xerrors.CodeConflict, fmt.Sprintf("签名人 %s 已存在", name))
	}
	r.signers[name] = &Signer{
		Name:    name,
		Address: crypto.PubkeyToAddress(key.PublicKey),
		key:     key,
	}
	return nil
}

// Generate 生成一个新的随机签名人并注册，返回其地址。测试常用。
func (r *Keyring) Generate(name string) (common.Address, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return common.Address{}, fmt.Errorf("生成密钥失败: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.signers[name]; ok {
		return common.Address{}, xerrors.New(xerrors.CodeConflict, fmt.Sprintf("签名人 %s 已存在", name))
	}
	signer := &Signer{
		Name:    name,
		Address: crypto.PubkeyToAddress(key.PublicKey),
		key:     key,
	}
	r.signers[name] = signer
	return signer.Address, nil
}

// Signer 按名称查找签名人。
func (r *Keyring) Signer(name string) (*Signer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	signer, ok := r.signers[name]
	return signer, ok
}

// Names 返回全部签名人名称，按字典序排列。
func (r *Keyring) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.signers))
	for name := range r.signers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
