package broker

import domain "orderbook/internal/domain/entity/marketdata"

// SummaryMessage is the body published on the summary exchange.
type SummaryMessage struct {
	Pair    string          `json:"pair"`
	Summary *domain.Summary `json:"summary,omitempty"`
}
