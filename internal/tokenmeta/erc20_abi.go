package tokenmeta

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Most tokens return string metadata; some older ones (e.g. MKR) return bytes32.
const (
	erc20StringJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"}
]`
	erc20Bytes32JSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`
)

type parsedABIs struct {
	str     abi.ABI
	bytes32 abi.ABI
}

var (
	erc20Once sync.Once
	erc20ABIs parsedABIs
	erc20Err  error
)

func erc20() (parsedABIs, error) {
	erc20Once.Do(func() {
		erc20ABIs.str, erc20Err = abi.JSON(strings.NewReader(erc20StringJSON))
		if erc20Err != nil {
			return
		}
		erc20ABIs.bytes32, erc20Err = abi.JSON(strings.NewReader(erc20Bytes32JSON))
	})
	return erc20ABIs, erc20Err
}
