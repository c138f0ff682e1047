// Package notify implements the authenticated websocket hub that fans
// engine outcomes out to channel subscribers, plus the downstream Kafka
// stream publisher.
package notify

import (
	"time"
)

// Inbound message types.
const (
	MsgSubscribe        = "SUBSCRIBE"
	MsgUnsubscribe      = "UNSUBSCRIBE"
	MsgHeartbeat        = "HEARTBEAT"
	MsgGetSubscriptions = "GET_SUBSCRIPTIONS"
)

// Outbound message types.
const (
	MsgConnectionEstablished = "CONNECTION_ESTABLISHED"
	MsgSubscribed            = "SUBSCRIBED"
	MsgUnsubscribed          = "UNSUBSCRIBED"
	MsgSubscriptions         = "SUBSCRIPTIONS"
	MsgHighRiskAlert         = "HIGH_RISK_ALERT"
	MsgBridgeUpdate          = "BRIDGE_UPDATE"
	MsgNewTransaction        = "NEW_TRANSACTION"
	MsgError                 = "ERROR"
)

// Inbound is a client request frame.
type Inbound struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels,omitempty"`
}

// Outbound frames are open maps so payload shapes can vary per type.
type Outbound map[string]interface{}

func newOutbound(msgType string) Outbound {
	return Outbound{
		"type":      msgType,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
}

func connectionEstablished(clientID string) Outbound {
	msg := newOutbound(MsgConnectionEstablished)
	msg["clientId"] = clientID
	return msg
}

func subscriptionAck(msgType string, channels []string) Outbound {
	if channels == nil {
		channels = []string{}
	}
	msg := newOutbound(msgType)
	msg["channels"] = channels
	return msg
}

func errorMessage(reason string) Outbound {
	msg := newOutbound(MsgError)
	msg["error"] = reason
	return msg
}
