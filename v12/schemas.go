package v12

import (
	"github.com/Zereker/etp"
	"github.com/Zereker/etp/avrocodec"
)

// Avro schemas of the message bodies. Every message schema is parsed on
// its own, so each one defines the records it uses inline.
const (
	stringMap   = `{"type":"map","values":"string"}`
	stringArray = `{"type":"array","items":"string"}`
	longArray   = `{"type":"array","items":"long"}`

	versionSchema = `{"type":"record","name":"Version","namespace":"Energistics.Etp.v12.Datatypes","fields":[
		{"name":"major","type":"int"},
		{"name":"minor","type":"int"},
		{"name":"revision","type":"int"},
		{"name":"patch","type":"int"}]}`

	supportedProtocolSchema = `{"type":"record","name":"SupportedProtocol","namespace":"Energistics.Etp.v12.Datatypes","fields":[
		{"name":"protocol","type":"int"},
		{"name":"protocolVersion","type":` + versionSchema + `},
		{"name":"role","type":"string"},
		{"name":"protocolCapabilities","type":` + stringMap + `}]}`

	resourceSchema = `{"type":"record","name":"Resource","namespace":"Energistics.Etp.v12.Datatypes.Object","fields":[
		{"name":"uri","type":"string"},
		{"name":"name","type":"string"},
		{"name":"lastChanged","type":"long"},
		{"name":"customData","type":` + stringMap + `}]}`

	dataObjectSchema = `{"type":"record","name":"DataObject","namespace":"Energistics.Etp.v12.Datatypes.Object","fields":[
		{"name":"resource","type":` + resourceSchema + `},
		{"name":"format","type":"string"},
		{"name":"data","type":"bytes"}]}`

	indexMetadataSchema = `{"type":"record","name":"IndexMetadataRecord","namespace":"Energistics.Etp.v12.Datatypes.ChannelData","fields":[
		{"name":"name","type":"string"},
		{"name":"indexKind","type":"string"},
		{"name":"uom","type":"string"},
		{"name":"direction","type":"string"}]}`

	channelMetadataSchema = `{"type":"record","name":"ChannelMetadataRecord","namespace":"Energistics.Etp.v12.Datatypes.ChannelData","fields":[
		{"name":"uri","type":"string"},
		{"name":"channelId","type":"long"},
		{"name":"channelName","type":"string"},
		{"name":"dataType","type":"string"},
		{"name":"uom","type":"string"},
		{"name":"indexes","type":{"type":"array","items":` + indexMetadataSchema + `}}]}`

	dataItemSchema = `{"type":"record","name":"DataItem","namespace":"Energistics.Etp.v12.Datatypes.ChannelData","fields":[
		{"name":"channelId","type":"long"},
		{"name":"indexes","type":` + longArray + `},
		{"name":"value","type":"double"},
		{"name":"valueAttributes","type":` + stringMap + `}]}`

	dataItemArray = `{"type":"array","items":` + dataItemSchema + `}`

	indexIntervalSchema = `{"type":"record","name":"IndexInterval","namespace":"Energistics.Etp.v12.Datatypes.ChannelData","fields":[
		{"name":"startIndex","type":"long"},
		{"name":"endIndex","type":"long"},
		{"name":"uom","type":"string"}]}`

	channelSubscribeInfoSchema = `{"type":"record","name":"ChannelSubscribeInfo","namespace":"Energistics.Etp.v12.Datatypes.ChannelData","fields":[
		{"name":"channelId","type":"long"},
		{"name":"startIndex","type":"long"},
		{"name":"dataChanges","type":"boolean"},
		{"name":"requestLatestIndexCount","type":"int"}]}`

	channelRangeInfoSchema = `{"type":"record","name":"ChannelRangeInfo","namespace":"Energistics.Etp.v12.Datatypes.ChannelData","fields":[
		{"name":"channelIds","type":` + longArray + `},
		{"name":"startIndex","type":"long"},
		{"name":"endIndex","type":"long"}]}`
)

const (
	protocolExceptionSchema = `{"type":"record","name":"ProtocolException","namespace":"Energistics.Etp.v12.Protocol.Core","fields":[
		{"name":"errorCode","type":"int"},
		{"name":"errorMessage","type":"string"}]}`

	acknowledgeSchema = `{"type":"record","name":"Acknowledge","namespace":"Energistics.Etp.v12.Protocol.Core","fields":[]}`

	requestSessionSchema = `{"type":"record","name":"RequestSession","namespace":"Energistics.Etp.v12.Protocol.Core","fields":[
		{"name":"applicationName","type":"string"},
		{"name":"applicationVersion","type":"string"},
		{"name":"clientInstanceId","type":"string"},
		{"name":"requestedProtocols","type":{"type":"array","items":` + supportedProtocolSchema + `}},
		{"name":"supportedDataObjects","type":` + stringArray + `},
		{"name":"supportedCompression","type":` + stringArray + `},
		{"name":"supportedFormats","type":` + stringArray + `},
		{"name":"currentDateTime","type":"long"}]}`

	openSessionSchema = `{"type":"record","name":"OpenSession","namespace":"Energistics.Etp.v12.Protocol.Core","fields":[
		{"name":"applicationName","type":"string"},
		{"name":"applicationVersion","type":"string"},
		{"name":"serverInstanceId","type":"string"},
		{"name":"supportedProtocols","type":{"type":"array","items":` + supportedProtocolSchema + `}},
		{"name":"supportedDataObjects","type":` + stringArray + `},
		{"name":"supportedCompression","type":"string"},
		{"name":"supportedFormats","type":` + stringArray + `},
		{"name":"currentDateTime","type":"long"},
		{"name":"sessionId","type":"string"}]}`

	closeSessionSchema = `{"type":"record","name":"CloseSession","namespace":"Energistics.Etp.v12.Protocol.Core","fields":[
		{"name":"reason","type":"string"}]}`

	pingSchema = `{"type":"record","name":"Ping","namespace":"Energistics.Etp.v12.Protocol.Core","fields":[
		{"name":"currentDateTime","type":"long"}]}`

	pongSchema = `{"type":"record","name":"Pong","namespace":"Energistics.Etp.v12.Protocol.Core","fields":[
		{"name":"currentDateTime","type":"long"}]}`

	getObjectSchema = `{"type":"record","name":"GetObject","namespace":"Energistics.Etp.v12.Protocol.Store","fields":[
		{"name":"uri","type":"string"}]}`

	putObjectSchema = `{"type":"record","name":"PutObject","namespace":"Energistics.Etp.v12.Protocol.Store","fields":[
		{"name":"dataObject","type":` + dataObjectSchema + `}]}`

	deleteObjectSchema = `{"type":"record","name":"DeleteObject","namespace":"Energistics.Etp.v12.Protocol.Store","fields":[
		{"name":"uri","type":"string"}]}`

	objectSchema = `{"type":"record","name":"Object","namespace":"Energistics.Etp.v12.Protocol.Store","fields":[
		{"name":"dataObject","type":` + dataObjectSchema + `}]}`

	getChannelMetadataSchema = `{"type":"record","name":"GetChannelMetadata","namespace":"Energistics.Etp.v12.Protocol.ChannelSubscribe","fields":[
		{"name":"uris","type":` + stringArray + `}]}`

	getChannelMetadataResponseSchema = `{"type":"record","name":"GetChannelMetadataResponse","namespace":"Energistics.Etp.v12.Protocol.ChannelSubscribe","fields":[
		{"name":"metadata","type":{"type":"array","items":` + channelMetadataSchema + `}}]}`

	subscribeChannelsSchema = `{"type":"record","name":"SubscribeChannels","namespace":"Energistics.Etp.v12.Protocol.ChannelSubscribe","fields":[
		{"name":"channels","type":{"type":"array","items":` + channelSubscribeInfoSchema + `}}]}`

	realtimeDataSchema = `{"type":"record","name":"RealtimeData","namespace":"Energistics.Etp.v12.Protocol.ChannelSubscribe","fields":[
		{"name":"data","type":` + dataItemArray + `}]}`

	infillDataSchema = `{"type":"record","name":"InfillData","namespace":"Energistics.Etp.v12.Protocol.ChannelSubscribe","fields":[
		{"name":"data","type":` + dataItemArray + `}]}`

	changedDataSchema = `{"type":"record","name":"ChangedData","namespace":"Energistics.Etp.v12.Protocol.ChannelSubscribe","fields":[
		{"name":"changedInterval","type":` + indexIntervalSchema + `},
		{"name":"data","type":` + dataItemArray + `}]}`

	unsubscribeChannelsSchema = `{"type":"record","name":"UnsubscribeChannels","namespace":"Energistics.Etp.v12.Protocol.ChannelSubscribe","fields":[
		{"name":"channelIds","type":` + longArray + `}]}`

	subscriptionStoppedSchema = `{"type":"record","name":"SubscriptionStopped","namespace":"Energistics.Etp.v12.Protocol.ChannelSubscribe","fields":[
		{"name":"channelIds","type":` + longArray + `}]}`

	getRangeSchema = `{"type":"record","name":"GetRange","namespace":"Energistics.Etp.v12.Protocol.ChannelSubscribe","fields":[
		{"name":"channelRanges","type":{"type":"array","items":` + channelRangeInfoSchema + `}}]}`

	getRangeResponseSchema = `{"type":"record","name":"GetRangeResponse","namespace":"Energistics.Etp.v12.Protocol.ChannelSubscribe","fields":[
		{"name":"data","type":` + dataItemArray + `}]}`
)

// Schemas returns the Avro body schema of every message this package knows.
func Schemas() map[etp.MessageKey]string {
	key := func(protocol, messageType int32) etp.MessageKey {
		return etp.MessageKey{Protocol: protocol, MessageType: messageType}
	}
	return map[etp.MessageKey]string{
		key(avrocodec.AnyProtocol, etp.MessageTypeProtocolException): protocolExceptionSchema,
		key(avrocodec.AnyProtocol, etp.MessageTypeAcknowledge):       acknowledgeSchema,

		key(ProtocolCore, CoreRequestSession): requestSessionSchema,
		key(ProtocolCore, CoreOpenSession):    openSessionSchema,
		key(ProtocolCore, CoreCloseSession):   closeSessionSchema,
		key(ProtocolCore, CorePing):           pingSchema,
		key(ProtocolCore, CorePong):           pongSchema,

		key(ProtocolStore, StoreGetObject):    getObjectSchema,
		key(ProtocolStore, StorePutObject):    putObjectSchema,
		key(ProtocolStore, StoreDeleteObject): deleteObjectSchema,
		key(ProtocolStore, StoreObject):       objectSchema,

		key(ProtocolChannelSubscribe, ChannelSubscribeGetChannelMetadata):         getChannelMetadataSchema,
		key(ProtocolChannelSubscribe, ChannelSubscribeGetChannelMetadataResponse): getChannelMetadataResponseSchema,
		key(ProtocolChannelSubscribe, ChannelSubscribeSubscribeChannels):          subscribeChannelsSchema,
		key(ProtocolChannelSubscribe, ChannelSubscribeRealtimeData):               realtimeDataSchema,
		key(ProtocolChannelSubscribe, ChannelSubscribeInfillData):                 infillDataSchema,
		key(ProtocolChannelSubscribe, ChannelSubscribeChangedData):                changedDataSchema,
		key(ProtocolChannelSubscribe, ChannelSubscribeUnsubscribeChannels):        unsubscribeChannelsSchema,
		key(ProtocolChannelSubscribe, ChannelSubscribeSubscriptionStopped):        subscriptionStoppedSchema,
		key(ProtocolChannelSubscribe, ChannelSubscribeGetRange):                   getRangeSchema,
		key(ProtocolChannelSubscribe, ChannelSubscribeGetRangeResponse):           getRangeResponseSchema,
	}
}
