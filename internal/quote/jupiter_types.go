package quote

// jupiterQuoteResponse is the subset of the /quote response the monitor reads.
type jupiterQuoteResponse struct {
	InputMint      string             `json:"inputMint"`
	InAmount       string             `json:"inAmount"`
	OutputMint     string             `json:"outputMint"`
	OutAmount      string             `json:"outAmount"`
	SwapMode       string             `json:"swapMode"`
	SlippageBps    int                `json:"slippageBps"`
	PriceImpactPct string             `json:"priceImpactPct"`
	RoutePlan      []jupiterRoutePlan `json:"routePlan"`
	ContextSlot    int64              `json:"contextSlot,omitempty"`
	Error          string             `json:"error,omitempty"`
	ErrorCode      string             `json:"errorCode,omitempty"`
}

type jupiterRoutePlan struct {
	SwapInfo jupiterSwapInfo `json:"swapInfo"`
	Percent  int             `json:"percent"`
}

type jupiterSwapInfo struct {
	AmmKey     string `json:"ammKey"`
	Label      string `json:"label"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
	FeeAmount  string `json:"feeAmount"`
	FeeMint    string `json:"feeMint"`
}

// jupiterError is the body returned on non-2xx responses.
type jupiterError struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}
