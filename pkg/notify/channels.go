package notify

import (
	"github.com/chainscope/bridge-sentinel/pkg/auth"
)

// Channel names clients can subscribe to.
const (
	ChannelAlerts           = "alerts"
	ChannelHighRisk         = "high-risk"
	ChannelBridgeMonitoring = "bridge-monitoring"
	ChannelSystem           = "system"
	ChannelCases            = "cases"
	ChannelTransactions     = "transactions"
)

// channelACL is the fixed role gate per channel. A channel missing from
// the table does not exist; a role missing from a channel's set is denied.
var channelACL = map[string]map[auth.Role]bool{
	ChannelAlerts:           {auth.RoleAdmin: true, auth.RoleAnalyst: true, auth.RolePartner: true},
	ChannelHighRisk:         {auth.RoleAdmin: true, auth.RoleAnalyst: true},
	ChannelBridgeMonitoring: {auth.RoleAdmin: true, auth.RoleAnalyst: true, auth.RolePartner: true},
	ChannelSystem:           {auth.RoleAdmin: true},
	ChannelCases:            {auth.RoleAdmin: true, auth.RoleAnalyst: true},
	ChannelTransactions:     {auth.RoleAdmin: true, auth.RoleAnalyst: true, auth.RolePartner: true},
}

// CanSubscribe reports whether the role may join the channel. Unknown
// channels are denied for every role.
func CanSubscribe(role auth.Role, channel string) bool {
	return channelACL[channel][role]
}
