package ws

// Client → server

type BaseMessage struct {
	Type string `json:"type"`
}

type SubscribeMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

// Server → client acknowledgement of a subscription change.
type SubscriptionAck struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}
