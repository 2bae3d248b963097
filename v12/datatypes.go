package v12

// ProtocolVersion is a protocol version number.
type ProtocolVersion struct {
	Major    int32 `avro:"major" json:"major"`
	Minor    int32 `avro:"minor" json:"minor"`
	Revision int32 `avro:"revision" json:"revision"`
	Patch    int32 `avro:"patch" json:"patch"`
}

// Version12 is the version every protocol of this package reports.
var Version12 = ProtocolVersion{Major: 1, Minor: 2}

// SupportedProtocol names a protocol and the role an endpoint plays in it.
type SupportedProtocol struct {
	Protocol             int32             `avro:"protocol" json:"protocol"`
	ProtocolVersion      ProtocolVersion   `avro:"protocolVersion" json:"protocolVersion"`
	Role                 string            `avro:"role" json:"role"`
	ProtocolCapabilities map[string]string `avro:"protocolCapabilities" json:"protocolCapabilities"`
}

// RequestSession is the first message a client sends. RequestedProtocols
// lists the protocols the client wants, each with the role the server is
// to play.
type RequestSession struct {
	ApplicationName      string              `avro:"applicationName" json:"applicationName"`
	ApplicationVersion   string              `avro:"applicationVersion" json:"applicationVersion"`
	ClientInstanceID     string              `avro:"clientInstanceId" json:"clientInstanceId"`
	RequestedProtocols   []SupportedProtocol `avro:"requestedProtocols" json:"requestedProtocols"`
	SupportedDataObjects []string            `avro:"supportedDataObjects" json:"supportedDataObjects"`
	SupportedCompression []string            `avro:"supportedCompression" json:"supportedCompression"`
	SupportedFormats     []string            `avro:"supportedFormats" json:"supportedFormats"`
	CurrentDateTime      int64               `avro:"currentDateTime" json:"currentDateTime"`
}

// OpenSession answers RequestSession with the negotiated protocols.
type OpenSession struct {
	ApplicationName      string              `avro:"applicationName" json:"applicationName"`
	ApplicationVersion   string              `avro:"applicationVersion" json:"applicationVersion"`
	ServerInstanceID     string              `avro:"serverInstanceId" json:"serverInstanceId"`
	SupportedProtocols   []SupportedProtocol `avro:"supportedProtocols" json:"supportedProtocols"`
	SupportedDataObjects []string            `avro:"supportedDataObjects" json:"supportedDataObjects"`
	SupportedCompression string              `avro:"supportedCompression" json:"supportedCompression"`
	SupportedFormats     []string            `avro:"supportedFormats" json:"supportedFormats"`
	CurrentDateTime      int64               `avro:"currentDateTime" json:"currentDateTime"`
	SessionID            string              `avro:"sessionId" json:"sessionId"`
}

// CloseSession ends a session.
type CloseSession struct {
	Reason string `avro:"reason" json:"reason"`
}

// Ping asks the peer for a Pong.
type Ping struct {
	CurrentDateTime int64 `avro:"currentDateTime" json:"currentDateTime"`
}

// Pong answers Ping.
type Pong struct {
	CurrentDateTime int64 `avro:"currentDateTime" json:"currentDateTime"`
}

// Resource describes a data object.
type Resource struct {
	URI         string            `avro:"uri" json:"uri"`
	Name        string            `avro:"name" json:"name"`
	LastChanged int64             `avro:"lastChanged" json:"lastChanged"`
	CustomData  map[string]string `avro:"customData" json:"customData"`
}

// DataObject is a data object and its serialized content.
type DataObject struct {
	Resource Resource `avro:"resource" json:"resource"`
	Format   string   `avro:"format" json:"format"`
	Data     []byte   `avro:"data" json:"data"`
}

// GetObject asks a store for the object at URI.
type GetObject struct {
	URI string `avro:"uri" json:"uri"`
}

// PutObject adds or replaces an object in a store.
type PutObject struct {
	DataObject DataObject `avro:"dataObject" json:"dataObject"`
}

// DeleteObject removes the object at URI from a store.
type DeleteObject struct {
	URI string `avro:"uri" json:"uri"`
}

// Object answers GetObject.
type Object struct {
	DataObject DataObject `avro:"dataObject" json:"dataObject"`
}

// IndexMetadataRecord describes one index of a channel.
type IndexMetadataRecord struct {
	Name      string `avro:"name" json:"name"`
	IndexKind string `avro:"indexKind" json:"indexKind"`
	Uom       string `avro:"uom" json:"uom"`
	Direction string `avro:"direction" json:"direction"`
}

// ChannelMetadataRecord describes one channel.
type ChannelMetadataRecord struct {
	URI         string                `avro:"uri" json:"uri"`
	ChannelID   int64                 `avro:"channelId" json:"channelId"`
	ChannelName string                `avro:"channelName" json:"channelName"`
	DataType    string                `avro:"dataType" json:"dataType"`
	Uom         string                `avro:"uom" json:"uom"`
	Indexes     []IndexMetadataRecord `avro:"indexes" json:"indexes"`
}

// DataItem is one value of one channel at one index.
type DataItem struct {
	ChannelID       int64             `avro:"channelId" json:"channelId"`
	Indexes         []int64           `avro:"indexes" json:"indexes"`
	Value           float64           `avro:"value" json:"value"`
	ValueAttributes map[string]string `avro:"valueAttributes" json:"valueAttributes"`
}

// IndexInterval is a closed range of index values.
type IndexInterval struct {
	StartIndex int64  `avro:"startIndex" json:"startIndex"`
	EndIndex   int64  `avro:"endIndex" json:"endIndex"`
	Uom        string `avro:"uom" json:"uom"`
}

// ChannelSubscribeInfo asks for one channel's data from StartIndex on.
type ChannelSubscribeInfo struct {
	ChannelID               int64 `avro:"channelId" json:"channelId"`
	StartIndex              int64 `avro:"startIndex" json:"startIndex"`
	DataChanges             bool  `avro:"dataChanges" json:"dataChanges"`
	RequestLatestIndexCount int32 `avro:"requestLatestIndexCount" json:"requestLatestIndexCount"`
}

// ChannelRangeInfo asks for the data of some channels within an interval.
type ChannelRangeInfo struct {
	ChannelIDs []int64 `avro:"channelIds" json:"channelIds"`
	StartIndex int64   `avro:"startIndex" json:"startIndex"`
	EndIndex   int64   `avro:"endIndex" json:"endIndex"`
}

// GetChannelMetadata asks for the metadata of the channels at URIs.
type GetChannelMetadata struct {
	URIs []string `avro:"uris" json:"uris"`
}

// GetChannelMetadataResponse answers GetChannelMetadata.
type GetChannelMetadataResponse struct {
	Metadata []ChannelMetadataRecord `avro:"metadata" json:"metadata"`
}

// SubscribeChannels starts streaming of channels.
type SubscribeChannels struct {
	Channels []ChannelSubscribeInfo `avro:"channels" json:"channels"`
}

// RealtimeData carries new channel values.
type RealtimeData struct {
	Data []DataItem `avro:"data" json:"data"`
}

// InfillData carries channel values older than the subscription start.
type InfillData struct {
	Data []DataItem `avro:"data" json:"data"`
}

// ChangedData carries replaced values within an interval.
type ChangedData struct {
	ChangedInterval IndexInterval `avro:"changedInterval" json:"changedInterval"`
	Data            []DataItem    `avro:"data" json:"data"`
}

// UnsubscribeChannels stops streaming of channels.
type UnsubscribeChannels struct {
	ChannelIDs []int64 `avro:"channelIds" json:"channelIds"`
}

// SubscriptionStopped tells the consumer that channels stopped streaming.
type SubscriptionStopped struct {
	ChannelIDs []int64 `avro:"channelIds" json:"channelIds"`
}

// GetRange asks for historical channel data.
type GetRange struct {
	ChannelRanges []ChannelRangeInfo `avro:"channelRanges" json:"channelRanges"`
}

// GetRangeResponse answers GetRange, usually in several parts.
type GetRangeResponse struct {
	Data []DataItem `avro:"data" json:"data"`
}
