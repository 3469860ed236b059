package common

// LevelAgg is one price level of an order-book payload, amount summed over
// every resting order at the price.
type LevelAgg struct {
	Price  uint64 `json:"price"`
	Amount uint64 `json:"amount"`
}

// OrderBookPayload is the wire representation of the book's depth, bids
// descending and asks ascending.
type OrderBookPayload struct {
	Timestamp uint64     `json:"timestamp"`
	Pair      string     `json:"pair"`
	Bids      []LevelAgg `json:"bids"`
	Asks      []LevelAgg `json:"asks"`
}

// MarketStatusPayload summarizes last trade and top of book. Pointer fields
// marshal as JSON null when the side or trade is missing.
type MarketStatusPayload struct {
	LastPrice *uint64 `json:"lastPrice"`
	LastSide  *string `json:"lastSide"`
	Bid       *uint64 `json:"bid"`
	BidAmount *uint64 `json:"bidAmount"`
	Ask       *uint64 `json:"ask"`
	AskAmount *uint64 `json:"askAmount"`
}
