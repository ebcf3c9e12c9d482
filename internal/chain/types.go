package chain

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// signingDomain 是签名消息的域分隔前缀，避免签名被挪用到其他上下文。
const signingDomain = "COSIGN::RAWTX::V1"

// 函数参数的类型标签。
const (
	ArgumentU64     uint8 = 1
	ArgumentAddress uint8 = 2
)

// Argument 表示脚本函数的一个带类型参数。
type Argument struct {
	Kind    uint8
	U64     uint64
	Address common.Address
}

// U64Argument 构造一个无符号整数参数。
func U64Argument(value uint64) Argument {
	return Argument{Kind: ArgumentU64, U64: value}
}

// AddressArgument 构造一个地址参数。
func AddressArgument(addr common.Address) Argument {
	return Argument{Kind: ArgumentAddress, Address: addr}
}

// RawTransaction 表示一笔尚未签名的多签名人交易。
// 序列化采用 RLP，编码结果是确定且可逆的。
type RawTransaction struct {
	Sender           common.Address
	SecondarySigners []common.Address
	Bytecode         []byte
	Arguments        []Argument
	ExpirationUnix   uint64
	ChainID          uint64
}

// Validate 检查交易的结构完整性。
func (tx *RawTransaction) Validate() error {
	if tx == nil {
		return errors.New("交易为空")
	}
	if tx.Sender == (common.Address{}) {
		return errors.New("缺少主签名人地址")
	}
	if len(tx.SecondarySigners) == 0 {
		return errors.New("缺少副签名人地址")
	}
	for _, signer := range tx.SecondarySigners {
		if signer == (common.Address{}) {
			return errors.New("副签名人地址为空")
		}
	}
	if len(tx.Bytecode) == 0 {
		return errors.New("脚本字节码为空")
	}
	if tx.ExpirationUnix == 0 {
		return errors.New("缺少过期时间")
	}
	return nil
}

// ToBinary 将交易编码为规范二进制形式。
func (tx *RawTransaction) ToBinary() ([]byte, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	raw, err := rlp.EncodeToBytes(tx)
	if err != nil {
		return nil, fmt.Errorf("序列化交易失败: %w", err)
	}
	return raw, nil
}

// RawTransactionFromBinary 从规范二进制形式还原交易。
func RawTransactionFromBinary(raw []byte) (*RawTransaction, error) {
	if len(raw) == 0 {
		return nil, errors.New("交易字节为空")
	}
	var tx RawTransaction
	if err := rlp.DecodeBytes(raw, &tx); err != nil {
		return nil, fmt.Errorf("反序列化交易失败: %w", err)
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return &tx, nil
}

// SigningMessage 返回所有签名人都必须签署的摘要。
func (tx *RawTransaction) SigningMessage() ([]byte, error) {
	raw, err := tx.ToBinary()
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256([]byte(signingDomain), raw), nil
}

// Authenticator 表示单个签名人对某笔交易的授权证明。
type Authenticator struct {
	PublicKey []byte
	Signature []byte
}

// ToBinary 将授权证明编码为规范二进制形式。
func (a *Authenticator) ToBinary() ([]byte, error) {
	if a == nil || len(a.PublicKey) == 0 || len(a.Signature) == 0 {
		return nil, errors.New("授权证明不完整")
	}
	raw, err := rlp.EncodeToBytes(a)
	if err != nil {
		return nil, fmt.Errorf("序列化授权证明失败: %w", err)
	}
	return raw, nil
}

// AuthenticatorFromBinary 从规范二进制形式还原授权证明。
func AuthenticatorFromBinary(raw []byte) (*Authenticator, error) {
	if len(raw) == 0 {
		return nil, errors.New("授权证明字节为空")
	}
	var auth Authenticator
	if err := rlp.DecodeBytes(raw, &auth); err != nil {
		return nil, fmt.Errorf("反序列化授权证明失败: %w", err)
	}
	if len(auth.PublicKey) == 0 || len(auth.Signature) == 0 {
		return nil, errors.New("授权证明不完整")
	}
	return &auth, nil
}

// SignerAddress 返回授权证明对应的签名人地址。
func (a *Authenticator) SignerAddress() (common.Address, error) {
	pub, err := crypto.UnmarshalPubkey(a.PublicKey)
	if err != nil {
		return common.Address{}, fmt.Errorf("解析公钥失败: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify 校验授权证明确实是 expected 对 message 的签名。
func (a *Authenticator) Verify(message []byte, expected common.Address) error {
	if a == nil {
		return errors.New("授权证明为空")
	}
	if len(a.Signature) != crypto.SignatureLength {
		return fmt.Errorf("签名长度异常: %d", len(a.Signature))
	}
	recovered, err := crypto.SigToPub(message, a.Signature)
	if err != nil {
		return fmt.Errorf("恢复公钥失败: %w", err)
	}
	if addr := crypto.PubkeyToAddress(*recovered); addr != expected {
		return fmt.Errorf("签名人不匹配: %s", addr.Hex())
	}
	if !bytes.Equal(crypto.FromECDSAPub(recovered), a.PublicKey) {
		return errors.New("公钥与签名不一致")
	}
	if !crypto.VerifySignature(a.PublicKey, message, a.Signature[:crypto.RecoveryIDOffset]) {
		return errors.New("签名校验失败")
	}
	return nil
}

// SignedTransaction 组合交易本体与全部授权证明，可直接提交上链。
type SignedTransaction struct {
	Raw                     *RawTransaction
	SenderAuthenticator     *Authenticator
	SecondaryAuthenticators []*Authenticator
}

// Validate 检查签名集合与交易声明的签名人数量一致。
func (s *SignedTransaction) Validate() error {
	if s == nil || s.Raw == nil {
		return errors.New("签名交易为空")
	}
	if err := s.Raw.Validate(); err != nil {
		return err
	}
	if s.SenderAuthenticator == nil {
		return errors.New("缺少主签名人授权")
	}
	if len(s.SecondaryAuthenticators) != len(s.Raw.SecondarySigners) {
		return fmt.Errorf("副签名人授权数量不匹配: 期望 %d 实际 %d",
			len(s.Raw.SecondarySigners), len(s.SecondaryAuthenticators))
	}
	return nil
}

// ToBinary 将签名交易编码为规范二进制形式。
func (s *SignedTransaction) ToBinary() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	raw, err := rlp.EncodeToBytes(s)
	if err != nil {
		return nil, fmt.Errorf("序列化签名交易失败: %w", err)
	}
	return raw, nil
}

// SignedTransactionFromBinary 从规范二进制形式还原签名交易。
func SignedTransactionFromBinary(raw []byte) (*SignedTransaction, error) {
	if len(raw) == 0 {
		return nil, errors.New("签名交易字节为空")
	}
	var signed SignedTransaction
	if err := rlp.DecodeBytes(raw, &signed); err != nil {
		return nil, fmt.Errorf("反序列化签名交易失败: %w", err)
	}
	if err := signed.Validate(); err != nil {
		return nil, err
	}
	return &signed, nil
}

// Hash 返回签名交易的标识哈希。
func (s *SignedTransaction) Hash() (common.Hash, error) {
	raw, err := s.Raw.ToBinary()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(raw), nil
}
