// Package v12 implements the subset of ETP 1.2 served by this module: the
// Core protocol that opens and closes sessions, Store for object access and
// ChannelSubscribe for streaming channel data.
package v12

// SubProtocol is the WebSocket sub-protocol naming ETP 1.2.
const SubProtocol = "etp12.energistics.org"

// Protocol numbers.
const (
	ProtocolCore              int32 = 0
	ProtocolChannelStreaming  int32 = 1
	ProtocolChannelDataFrame  int32 = 2
	ProtocolDiscovery         int32 = 3
	ProtocolStore             int32 = 4
	ProtocolStoreNotification int32 = 5
	ProtocolGrowingObject     int32 = 6
	ProtocolDataArray         int32 = 7
	ProtocolChannelSubscribe  int32 = 21
)

// Roles.
const (
	RoleServer   = "server"
	RoleClient   = "client"
	RoleStore    = "store"
	RoleCustomer = "customer"
	RoleProducer = "producer"
	RoleConsumer = "consumer"
)

// Core message types.
const (
	CoreRequestSession int32 = 1
	CoreOpenSession    int32 = 2
	CoreCloseSession   int32 = 5
	CorePing           int32 = 8
	CorePong           int32 = 9
)

// Store message types.
const (
	StoreGetObject    int32 = 1
	StorePutObject    int32 = 2
	StoreDeleteObject int32 = 3
	StoreObject       int32 = 4
)

// ChannelSubscribe message types.
const (
	ChannelSubscribeGetChannelMetadata         int32 = 1
	ChannelSubscribeGetChannelMetadataResponse int32 = 2
	ChannelSubscribeSubscribeChannels          int32 = 3
	ChannelSubscribeRealtimeData               int32 = 4
	ChannelSubscribeInfillData                 int32 = 5
	ChannelSubscribeChangedData                int32 = 6
	ChannelSubscribeUnsubscribeChannels        int32 = 7
	ChannelSubscribeSubscriptionStopped        int32 = 8
	ChannelSubscribeGetRange                   int32 = 9
	ChannelSubscribeGetRangeResponse           int32 = 10
)

// ProtocolName returns the name of a protocol number.
func ProtocolName(protocol int32) string {
	switch protocol {
	case ProtocolCore:
		return "Core"
	case ProtocolChannelStreaming:
		return "ChannelStreaming"
	case ProtocolChannelDataFrame:
		return "ChannelDataFrame"
	case ProtocolDiscovery:
		return "Discovery"
	case ProtocolStore:
		return "Store"
	case ProtocolStoreNotification:
		return "StoreNotification"
	case ProtocolGrowingObject:
		return "GrowingObject"
	case ProtocolDataArray:
		return "DataArray"
	case ProtocolChannelSubscribe:
		return "ChannelSubscribe"
	default:
		return "Unknown"
	}
}
