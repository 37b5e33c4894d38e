package notify

import (
	"encoding/json"
	"fmt"

	"fridgemind/internal/inventory"
)

// productName is the fixed title carried by every push payload.
const productName = "FridgeMind"

// Payload is the message handed to the push transport. Clients display it
// as-is, so the body carries the full human-readable text.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// nearExpiryPayload renders the notification for one near-expiry item.
func nearExpiryPayload(item inventory.Item) Payload {
	return Payload{
		Title: productName,
		Body:  fmt.Sprintf("⚠️ %s is near expiry (%s)", item.Name, item.Expiry),
	}
}

// Encode serializes the payload for transport delivery.
func (p Payload) Encode() []byte {
	b, _ := json.Marshal(p)
	return b
}
