package v12

import "github.com/Zereker/etp"

// StoreHandler is the store role of the Store protocol.
type StoreHandler struct {
	*etp.Handler

	// OnGetObject fires for every GetObject. Listeners fill the DataObject
	// context; unless canceled it is sent back as an Object correlated to
	// the request, flagged NoData when its data is empty.
	OnGetObject etp.Hook[GetObject, DataObject]
	// OnPutObject fires for every PutObject.
	OnPutObject etp.Hook[PutObject, struct{}]
	// OnDeleteObject fires for every DeleteObject.
	OnDeleteObject etp.Hook[DeleteObject, struct{}]
}

// NewStoreHandler returns a store handler.
func NewStoreHandler() *StoreHandler {
	h := &StoreHandler{Handler: etp.NewHandler(ProtocolStore, RoleStore, RoleCustomer)}
	etp.Handle(h.Handler, StoreGetObject, "GetObject", &h.OnGetObject, nil, h.respondGetObject)
	etp.Handle(h.Handler, StorePutObject, "PutObject", &h.OnPutObject, nil, nil)
	etp.Handle(h.Handler, StoreDeleteObject, "DeleteObject", &h.OnDeleteObject, nil, nil)
	return h
}

// Object sends obj answering the request with id correlationID.
func (h *StoreHandler) Object(obj DataObject, correlationID int64, flags etp.MessageFlags) (int64, error) {
	return h.Send(StoreObject, correlationID, flags, Object{DataObject: obj})
}

func (h *StoreHandler) respondGetObject(ev *etp.Event[GetObject, DataObject]) error {
	flags := etp.FinalPart
	if len(ev.Context.Data) == 0 {
		flags = etp.NoData
	}
	_, err := h.Object(ev.Context, ev.Header.MessageID, flags)
	return err
}

// CustomerHandler is the customer role of the Store protocol.
type CustomerHandler struct {
	*etp.Handler

	// OnObject fires for every Object the store sends.
	OnObject etp.Hook[Object, struct{}]
}

// NewCustomerHandler returns a customer handler.
func NewCustomerHandler() *CustomerHandler {
	h := &CustomerHandler{Handler: etp.NewHandler(ProtocolStore, RoleCustomer, RoleStore)}
	etp.Handle(h.Handler, StoreObject, "Object", &h.OnObject, nil, nil)
	return h
}

// GetObject asks the store for the object at uri.
func (h *CustomerHandler) GetObject(uri string) (int64, error) {
	return h.Request(StoreGetObject, GetObject{URI: uri})
}

// PutObject adds or replaces obj in the store.
func (h *CustomerHandler) PutObject(obj DataObject) (int64, error) {
	return h.Send(StorePutObject, 0, etp.FinalPart, PutObject{DataObject: obj})
}

// DeleteObject removes the object at uri from the store.
func (h *CustomerHandler) DeleteObject(uri string) (int64, error) {
	return h.Send(StoreDeleteObject, 0, etp.FinalPart, DeleteObject{URI: uri})
}
