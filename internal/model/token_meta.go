package model

// MetaSource records where token metadata came from.
type MetaSource string

const (
	MetaSourceKnown MetaSource = "known"
	MetaSourceERC20 MetaSource = "erc20"
)

// TokenMeta is resolved token metadata, used to fill decimals a pair omits.
type TokenMeta struct {
	Address  string     `json:"address"`
	Decimals uint8      `json:"decimals"`
	Symbol   string     `json:"symbol,omitempty"`
	Name     string     `json:"name,omitempty"`
	Source   MetaSource `json:"source"`
}
