package chain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// EncodeArtifact 将二进制工件编码为带 0x 前缀的十六进制字符串。
// 所有跨步骤传递的工件都统一使用该编码。
func EncodeArtifact(raw []byte) string {
	return hexutil.Encode(raw)
}

// DecodeArtifact 解析十六进制工件字符串，兼容有无 0x 前缀两种形式。
func DecodeArtifact(artifact string) ([]byte, error) {
	artifact = strings.TrimSpace(artifact)
	if artifact == "" {
		return nil, errors.New("工件为空")
	}
	if strings.HasPrefix(artifact, "0x") || strings.HasPrefix(artifact, "0X") {
		artifact = artifact[2:]
	}
	raw, err := hex.DecodeString(artifact)
	if err != nil {
		return nil, fmt.Errorf("解析十六进制工件失败: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("工件内容为空")
	}
	return raw, nil
}
