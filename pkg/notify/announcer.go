package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/chainscope/bridge-sentinel/pkg/model"
)

// Announcer fans correlation engine outcomes out to hub channels and the
// Kafka stream. Methods return immediately; stream writes run async.
type Announcer struct {
	hub               *Hub
	stream            *StreamPublisher
	highRiskThreshold int
	logger            *zap.Logger
}

func NewAnnouncer(hub *Hub, stream *StreamPublisher, highRiskThreshold int, logger *zap.Logger) *Announcer {
	return &Announcer{
		hub:               hub,
		stream:            stream,
		highRiskThreshold: highRiskThreshold,
		logger:            logger,
	}
}

// TransactionObserved pushes every normalized transaction to the
// transactions channel.
func (a *Announcer) TransactionObserved(tx *model.BridgeTransaction) {
	msg := newOutbound(MsgNewTransaction)
	msg["transaction"] = tx
	a.hub.Broadcast(ChannelTransactions, msg)
}

// LinkCreated announces a new link on the bridge-monitoring channel and
// mirrors it to the link stream. High-risk links additionally raise an
// alert.
func (a *Announcer) LinkCreated(link *model.CrossChainLink) {
	msg := newOutbound(MsgBridgeUpdate)
	msg["link"] = link
	a.hub.Broadcast(ChannelBridgeMonitoring, msg)

	a.stream.PublishLink(context.Background(), link)

	if link.RiskScore >= a.highRiskThreshold {
		alert := newOutbound(MsgHighRiskAlert)
		alert["severity"] = severityFor(link.RiskScore)
		alert["link"] = link
		alert["riskScore"] = link.RiskScore
		alert["riskFlags"] = link.RiskFlags
		alert["message"] = "high risk cross-chain link detected"
		a.hub.Broadcast(ChannelHighRisk, alert)
		a.hub.Broadcast(ChannelAlerts, alert)
		a.stream.PublishAlert(context.Background(), link.ID, alert)
	}
}

// HighRiskDetected raises an alert for a single high-risk transaction.
func (a *Announcer) HighRiskDetected(tx *model.BridgeTransaction) {
	alert := newOutbound(MsgHighRiskAlert)
	alert["severity"] = severityFor(tx.RiskScore)
	alert["transaction"] = tx
	alert["riskScore"] = tx.RiskScore
	alert["message"] = "high risk bridge transaction detected"
	a.hub.Broadcast(ChannelHighRisk, alert)
	a.hub.Broadcast(ChannelAlerts, alert)
	a.stream.PublishAlert(context.Background(), tx.ID, alert)
}

func severityFor(riskScore int) string {
	if riskScore >= 90 {
		return "critical"
	}
	return "high"
}
