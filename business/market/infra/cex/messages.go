package cex

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StreamEvent is the combined-streams wrapper: {"stream":"...","data":{...}}.
type StreamEvent struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// WSRequest is a stream subscription request.
type WSRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params,omitempty"`
	ID     int64    `json:"id"`
}

// WSResponse is a subscription acknowledgement.
type WSResponse struct {
	Result json.RawMessage `json:"result"`
	ID     int64           `json:"id"`
}

// DepthSnapshot is a partial book snapshot (@depth20 stream payload).
// Levels are [price, quantity] decimal strings.
type DepthSnapshot struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`

	// Filled in from the stream name; not part of the payload.
	Symbol string `json:"-"`
}

// DepthStream returns the stream name for a partial depth subscription.
func DepthStream(symbol string, speedMs int) string {
	return fmt.Sprintf("%s@depth20@%dms", strings.ToLower(symbol), speedMs)
}

// symbolFromStream extracts the symbol from a stream name
// ("ethusdc@depth20@100ms" -> "ETHUSDC").
func symbolFromStream(stream string) string {
	if idx := strings.Index(stream, "@"); idx > 0 {
		return strings.ToUpper(stream[:idx])
	}
	return strings.ToUpper(stream)
}
