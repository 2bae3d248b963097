package main

import (
	"context"
	"flag"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Zereker/etp"
	"github.com/Zereker/etp/config"
	"github.com/Zereker/etp/logging"
	"github.com/Zereker/etp/v12"
	"github.com/Zereker/etp/websocket"
)

// objectStore keeps data objects in memory, shared by every session.
type objectStore struct {
	sync.RWMutex
	objects map[string]v12.DataObject
}

func newObjectStore() *objectStore {
	return &objectStore{objects: make(map[string]v12.DataObject)}
}

func (s *objectStore) get(uri string) (v12.DataObject, bool) {
	s.RLock()
	defer s.RUnlock()
	obj, ok := s.objects[uri]
	return obj, ok
}

func (s *objectStore) put(obj v12.DataObject) {
	s.Lock()
	defer s.Unlock()
	obj.Resource.LastChanged = time.Now().UnixMicro()
	s.objects[obj.Resource.URI] = obj
}

func (s *objectStore) delete(uri string) {
	s.Lock()
	defer s.Unlock()
	delete(s.objects, uri)
}

// channels served by every producer.
var channels = []v12.ChannelMetadataRecord{
	{
		URI:         "eml:///witsml20.Channel(depth)",
		ChannelID:   1,
		ChannelName: "depth",
		DataType:    "double",
		Uom:         "m",
		Indexes:     []v12.IndexMetadataRecord{{Name: "time", IndexKind: "DateTime", Uom: "us", Direction: "Increasing"}},
	},
	{
		URI:         "eml:///witsml20.Channel(rop)",
		ChannelID:   2,
		ChannelName: "rop",
		DataType:    "double",
		Uom:         "m/h",
		Indexes:     []v12.IndexMetadataRecord{{Name: "time", IndexKind: "DateTime", Uom: "us", Direction: "Increasing"}},
	},
}

func bindStore(h *v12.StoreHandler, store *objectStore) {
	h.OnGetObject.Listen(func(ev *etp.Event[v12.GetObject, v12.DataObject]) {
		obj, ok := store.get(ev.Message.URI)
		if !ok {
			ev.Cancel = true
			_, _ = h.ProtocolException(etp.ErrorCodeNotFound, "no object at "+ev.Message.URI, ev.Header.MessageID)
			return
		}
		ev.Context = obj
	})
	h.OnPutObject.Listen(func(ev *etp.Event[v12.PutObject, struct{}]) {
		store.put(ev.Message.DataObject)
		_, _ = h.Acknowledge(ev.Header.MessageID)
	})
	h.OnDeleteObject.Listen(func(ev *etp.Event[v12.DeleteObject, struct{}]) {
		store.delete(ev.Message.URI)
		_, _ = h.Acknowledge(ev.Header.MessageID)
	})
}

// bindProducer streams a sine wave for every subscribed channel until the
// consumer unsubscribes or the session closes.
func bindProducer(h *v12.ProducerHandler, logger etp.Logger) {
	var (
		mu   sync.Mutex
		stop chan struct{}
	)
	halt := func() {
		mu.Lock()
		defer mu.Unlock()
		if stop != nil {
			close(stop)
			stop = nil
		}
	}

	h.OnGetChannelMetadata.Listen(func(ev *etp.Event[v12.GetChannelMetadata, []v12.ChannelMetadataRecord]) {
		ev.Context = channels
	})
	h.OnSubscribeChannels.Listen(func(ev *etp.Event[v12.SubscribeChannels, struct{}]) {
		ids := make([]int64, 0, len(ev.Message.Channels))
		for _, c := range ev.Message.Channels {
			ids = append(ids, c.ChannelID)
		}
		halt()

		mu.Lock()
		stop = make(chan struct{})
		done := stop
		mu.Unlock()
		go stream(h, ids, done, logger)
	})
	h.OnUnsubscribeChannels.Listen(func(ev *etp.Event[v12.UnsubscribeChannels, struct{}]) {
		halt()
		_, _ = h.SubscriptionStopped(ev.Message.ChannelIDs)
	})
	h.OnClose(func(string) { halt() })
}

func stream(h *v12.ProducerHandler, ids []int64, stop <-chan struct{}, logger etp.Logger) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case t := <-ticker.C:
			idx := t.UnixMicro()
			items := make([]v12.DataItem, 0, len(ids))
			for _, id := range ids {
				items = append(items, v12.DataItem{
					ChannelID: id,
					Indexes:   []int64{idx},
					Value:     math.Sin(float64(idx)/1e6) * float64(id),
				})
			}
			if _, err := h.RealtimeData(items); err != nil {
				logger.Warn("realtime data not sent", "error", err)
				return
			}
		}
	}
}

func main() {
	path := flag.String("config", "", "path of a TOML configuration file")
	flag.Parse()

	logger := logging.New("etp-server", logging.ProfileRuntime)

	cfg := config.DefaultConfig()
	if *path != "" {
		var err error
		if cfg, err = config.Load(*path); err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}

	version, err := v12.NewVersion()
	if err != nil {
		logger.Error("failed to build ETP 1.2", "error", err)
		os.Exit(1)
	}

	transport := websocket.NewTransport(cfg.Addr, []string{v12.SubProtocol}, cfg.TransportOptions(logger)...)
	server, err := etp.NewServer(transport, []etp.Version{version},
		etp.ServerLoggerOption(logger),
		etp.ApplicationOption(cfg.ApplicationName, cfg.ApplicationVersion),
		etp.SessionOptions(cfg.SessionOptions(logger)...))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}
	if err := server.Register(v12.SubProtocol, v12.ServerHandlers()...); err != nil {
		logger.Error("failed to register handlers", "error", err)
		os.Exit(1)
	}

	store := newObjectStore()
	server.OnSessionConnected(func(s *etp.Session) {
		if h, ok := s.Handler(v12.ProtocolStore); ok {
			bindStore(h.(*v12.StoreHandler), store)
		}
		if h, ok := s.Handler(v12.ProtocolChannelSubscribe); ok {
			bindProducer(h.(*v12.ProducerHandler), logger.With("session", s.ID()))
		}
	})

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("server start", "addr", cfg.Addr, "path", cfg.Path)
	if err := server.Serve(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
