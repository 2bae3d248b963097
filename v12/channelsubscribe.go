package v12

import (
	"sync"

	"github.com/Zereker/etp"
)

// ProducerHandler is the producer role of the ChannelSubscribe protocol.
type ProducerHandler struct {
	*etp.Handler

	// OnGetChannelMetadata fires for every GetChannelMetadata. Listeners
	// fill the record list; unless canceled it is sent back correlated to
	// the request, flagged NoData when empty.
	OnGetChannelMetadata etp.Hook[GetChannelMetadata, []ChannelMetadataRecord]
	// OnSubscribeChannels fires for every SubscribeChannels.
	OnSubscribeChannels etp.Hook[SubscribeChannels, struct{}]
	// OnUnsubscribeChannels fires for every UnsubscribeChannels.
	OnUnsubscribeChannels etp.Hook[UnsubscribeChannels, struct{}]
	// OnGetRange fires for every GetRange. Answer with StreamRange.
	OnGetRange etp.Hook[GetRange, struct{}]
}

// NewProducerHandler returns a producer handler.
func NewProducerHandler() *ProducerHandler {
	h := &ProducerHandler{Handler: etp.NewHandler(ProtocolChannelSubscribe, RoleProducer, RoleConsumer)}
	etp.Handle(h.Handler, ChannelSubscribeGetChannelMetadata, "GetChannelMetadata", &h.OnGetChannelMetadata, nil, h.respondGetChannelMetadata)
	etp.Handle(h.Handler, ChannelSubscribeSubscribeChannels, "SubscribeChannels", &h.OnSubscribeChannels, nil, nil)
	etp.Handle(h.Handler, ChannelSubscribeUnsubscribeChannels, "UnsubscribeChannels", &h.OnUnsubscribeChannels, nil, nil)
	etp.Handle(h.Handler, ChannelSubscribeGetRange, "GetRange", &h.OnGetRange, nil, nil)
	return h
}

// GetChannelMetadataResponse sends records answering the request with id correlationID.
func (h *ProducerHandler) GetChannelMetadataResponse(records []ChannelMetadataRecord, correlationID int64, flags etp.MessageFlags) (int64, error) {
	return h.Send(ChannelSubscribeGetChannelMetadataResponse, correlationID, flags,
		GetChannelMetadataResponse{Metadata: records})
}

// RealtimeData sends items as one single-part message.
func (h *ProducerHandler) RealtimeData(items []DataItem) (int64, error) {
	return h.Send(ChannelSubscribeRealtimeData, 0, etp.FinalPart, RealtimeData{Data: items})
}

// StreamRealtimeData sends batches as the parts of one RealtimeData
// message and returns the ids of the parts.
func (h *ProducerHandler) StreamRealtimeData(batches [][]DataItem) ([]int64, error) {
	return stream(h.NewMultiPartWriter(ChannelSubscribeRealtimeData, 0), batches, func(items []DataItem) any {
		return RealtimeData{Data: items}
	})
}

// InfillData sends batches as the parts of one InfillData message.
func (h *ProducerHandler) InfillData(batches [][]DataItem) ([]int64, error) {
	return stream(h.NewMultiPartWriter(ChannelSubscribeInfillData, 0), batches, func(items []DataItem) any {
		return InfillData{Data: items}
	})
}

// ChangedData sends replaced values within interval.
func (h *ProducerHandler) ChangedData(interval IndexInterval, items []DataItem) (int64, error) {
	return h.Send(ChannelSubscribeChangedData, 0, etp.FinalPart, ChangedData{ChangedInterval: interval, Data: items})
}

// SubscriptionStopped tells the consumer that channelIDs stopped streaming.
func (h *ProducerHandler) SubscriptionStopped(channelIDs []int64) (int64, error) {
	return h.Send(ChannelSubscribeSubscriptionStopped, 0, etp.FinalPart, SubscriptionStopped{ChannelIDs: channelIDs})
}

// StreamRange answers the GetRange with id correlationID with batches as
// the parts of one GetRangeResponse. No batches sends an empty response.
func (h *ProducerHandler) StreamRange(correlationID int64, batches [][]DataItem) ([]int64, error) {
	return stream(h.NewMultiPartWriter(ChannelSubscribeGetRangeResponse, correlationID), batches, func(items []DataItem) any {
		return GetRangeResponse{Data: items}
	})
}

func (h *ProducerHandler) respondGetChannelMetadata(ev *etp.Event[GetChannelMetadata, []ChannelMetadataRecord]) error {
	flags := etp.FinalPart
	if len(ev.Context) == 0 {
		flags = etp.NoData
	}
	_, err := h.GetChannelMetadataResponse(ev.Context, ev.Header.MessageID, flags)
	return err
}

// stream writes every batch but the last as a part and closes w with the
// last one.
func stream(w *etp.MultiPartWriter, batches [][]DataItem, body func([]DataItem) any) ([]int64, error) {
	if len(batches) == 0 {
		id, err := w.Close(nil)
		if err != nil {
			return nil, err
		}
		return []int64{id}, nil
	}
	ids := make([]int64, 0, len(batches))
	for i, items := range batches {
		var (
			id  int64
			err error
		)
		if i == len(batches)-1 {
			id, err = w.Close(body(items))
		} else {
			id, err = w.Write(body(items))
		}
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ConsumerHandler is the consumer role of the ChannelSubscribe protocol.
// Besides the per-part hooks it reports whole multi-part messages to
// batch listeners once their final part arrived.
type ConsumerHandler struct {
	*etp.Handler

	OnGetChannelMetadataResponse etp.Hook[GetChannelMetadataResponse, struct{}]
	OnRealtimeData               etp.Hook[RealtimeData, struct{}]
	OnInfillData                 etp.Hook[InfillData, struct{}]
	OnChangedData                etp.Hook[ChangedData, struct{}]
	OnSubscriptionStopped        etp.Hook[SubscriptionStopped, struct{}]
	OnGetRangeResponse           etp.Hook[GetRangeResponse, struct{}]

	mu       sync.RWMutex
	realtime []func([]DataItem)
	infill   []func([]DataItem)
	ranges   []func(correlationID int64, items []DataItem)
}

// NewConsumerHandler returns a consumer handler.
func NewConsumerHandler() *ConsumerHandler {
	h := &ConsumerHandler{Handler: etp.NewHandler(ProtocolChannelSubscribe, RoleConsumer, RoleProducer)}
	etp.Handle(h.Handler, ChannelSubscribeGetChannelMetadataResponse, "GetChannelMetadataResponse", &h.OnGetChannelMetadataResponse, nil, nil)
	etp.Handle(h.Handler, ChannelSubscribeRealtimeData, "RealtimeData", &h.OnRealtimeData, nil, nil)
	etp.Handle(h.Handler, ChannelSubscribeInfillData, "InfillData", &h.OnInfillData, nil, nil)
	etp.Handle(h.Handler, ChannelSubscribeChangedData, "ChangedData", &h.OnChangedData, nil, nil)
	etp.Handle(h.Handler, ChannelSubscribeSubscriptionStopped, "SubscriptionStopped", &h.OnSubscriptionStopped, nil, nil)
	etp.Handle(h.Handler, ChannelSubscribeGetRangeResponse, "GetRangeResponse", &h.OnGetRangeResponse, nil, nil)
	h.OnComplete(h.deliverBatch)
	return h
}

// GetChannelMetadata asks for the metadata of the channels at uris.
func (h *ConsumerHandler) GetChannelMetadata(uris []string) (int64, error) {
	return h.Request(ChannelSubscribeGetChannelMetadata, GetChannelMetadata{URIs: uris})
}

// SubscribeChannels starts streaming of channels.
func (h *ConsumerHandler) SubscribeChannels(channels []ChannelSubscribeInfo) (int64, error) {
	return h.Send(ChannelSubscribeSubscribeChannels, 0, etp.FinalPart, SubscribeChannels{Channels: channels})
}

// UnsubscribeChannels stops streaming of channelIDs.
func (h *ConsumerHandler) UnsubscribeChannels(channelIDs []int64) (int64, error) {
	return h.Send(ChannelSubscribeUnsubscribeChannels, 0, etp.FinalPart, UnsubscribeChannels{ChannelIDs: channelIDs})
}

// GetRange asks for historical data.
func (h *ConsumerHandler) GetRange(ranges []ChannelRangeInfo) (int64, error) {
	return h.Request(ChannelSubscribeGetRange, GetRange{ChannelRanges: ranges})
}

// OnRealtimeBatch adds a listener receiving the items of every complete
// RealtimeData message, all parts joined in arrival order.
func (h *ConsumerHandler) OnRealtimeBatch(fn func([]DataItem)) {
	h.mu.Lock()
	h.realtime = append(h.realtime, fn)
	h.mu.Unlock()
}

// OnInfillBatch is OnRealtimeBatch for InfillData.
func (h *ConsumerHandler) OnInfillBatch(fn func([]DataItem)) {
	h.mu.Lock()
	h.infill = append(h.infill, fn)
	h.mu.Unlock()
}

// OnRangeBatch adds a listener receiving the items of every complete
// GetRangeResponse together with the id of the GetRange it answers.
func (h *ConsumerHandler) OnRangeBatch(fn func(correlationID int64, items []DataItem)) {
	h.mu.Lock()
	h.ranges = append(h.ranges, fn)
	h.mu.Unlock()
}

func (h *ConsumerHandler) deliverBatch(ex *etp.Exchange) {
	h.mu.RLock()
	realtime, infill, ranges := h.realtime, h.infill, h.ranges
	h.mu.RUnlock()

	switch ex.MessageType() {
	case ChannelSubscribeRealtimeData:
		var items []DataItem
		for _, m := range etp.Bodies[RealtimeData](ex) {
			items = append(items, m.Data...)
		}
		for _, fn := range realtime {
			fn(items)
		}
	case ChannelSubscribeInfillData:
		var items []DataItem
		for _, m := range etp.Bodies[InfillData](ex) {
			items = append(items, m.Data...)
		}
		for _, fn := range infill {
			fn(items)
		}
	case ChannelSubscribeGetRangeResponse:
		var items []DataItem
		for _, m := range etp.Bodies[GetRangeResponse](ex) {
			items = append(items, m.Data...)
		}
		for _, fn := range ranges {
			fn(ex.Key.CorrelationID, items)
		}
	}
}
