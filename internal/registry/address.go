package registry

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
)

// MaxDecimals is the largest token precision accepted.
const MaxDecimals = 36

// NormalizeAddress validates a token address and returns its canonical form.
// 0x-prefixed input must be a 20-byte hex address and is returned checksummed;
// anything else must decode as a 32-byte base58 mint and is returned unchanged.
func NormalizeAddress(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("empty address")
	}
	if strings.HasPrefix(input, "0x") || strings.HasPrefix(input, "0X") {
		if !common.IsHexAddress(input) {
			return "", fmt.Errorf("invalid address: %s", input)
		}
		return common.HexToAddress(input).Hex(), nil
	}
	raw, err := base58.Decode(input)
	if err != nil {
		return "", fmt.Errorf("invalid address: %s", input)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("invalid address length: %s", input)
	}
	return input, nil
}

// IsEVMAddress reports whether the address is in hex form.
func IsEVMAddress(addr string) bool {
	return common.IsHexAddress(addr)
}
