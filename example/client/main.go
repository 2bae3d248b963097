package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Zereker/etp"
	"github.com/Zereker/etp/config"
	"github.com/Zereker/etp/logging"
	"github.com/Zereker/etp/v12"
	"github.com/Zereker/etp/websocket"
)

const wellURI = "eml:///witsml20.Well(example)"

func main() {
	path := flag.String("config", "", "path of a TOML configuration file")
	duration := flag.Duration("duration", 5*time.Second, "how long to stream channel data")
	flag.Parse()

	logger := logging.New("etp-client", logging.ProfileRuntime)

	cfg := config.DefaultConfig()
	if *path != "" {
		var err error
		if cfg, err = config.Load(*path); err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}
	if err := run(cfg, logger, *duration); err != nil {
		logger.Error("client error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *logging.Logger, duration time.Duration) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	defer dialCancel()

	conn, err := websocket.Dial(dialCtx, cfg.URL, v12.SubProtocol, cfg.TransportOptions(logger)...)
	if err != nil {
		return err
	}

	info := conn.Info()
	info.ApplicationName = cfg.ApplicationName
	info.ApplicationVersion = cfg.ApplicationVersion

	customer := v12.NewCustomerHandler()
	consumer := v12.NewConsumerHandler()
	session, core, err := v12.NewClientSession(info, conn,
		[]etp.ProtocolHandler{customer, consumer}, cfg.SessionOptions(logger)...)
	if err != nil {
		_ = conn.Close(err.Error())
		return err
	}

	served := make(chan error, 1)
	go func() { served <- conn.Serve(ctx, session) }()

	if _, err := core.RequestSession(v12.RequestSession{}); err != nil {
		return err
	}
	open, err := core.WaitOpen(dialCtx)
	if err != nil {
		return err
	}
	logger.Info("session opened", "session_id", open.SessionID,
		"server", open.ApplicationName, "protocols", len(open.SupportedProtocols))

	objects := make(chan v12.Object, 1)
	customer.OnObject.Listen(func(ev *etp.Event[v12.Object, struct{}]) {
		objects <- ev.Message
	})
	customer.OnProtocolException.Listen(func(ev *etp.Event[etp.ProtocolException, struct{}]) {
		logger.Warn("store refused request", "code", ev.Message.ErrorCode, "message", ev.Message.ErrorMessage)
	})

	if _, err := customer.PutObject(v12.DataObject{
		Resource: v12.Resource{URI: wellURI, Name: "example well"},
		Format:   "xml",
		Data:     []byte("<Well><Name>example well</Name></Well>"),
	}); err != nil {
		return err
	}
	if _, err := customer.GetObject(wellURI); err != nil {
		return err
	}
	select {
	case obj := <-objects:
		logger.Info("object received", "uri", obj.DataObject.Resource.URI, "bytes", len(obj.DataObject.Data))
	case <-time.After(5 * time.Second):
		logger.Warn("no object received")
	case <-ctx.Done():
		return nil
	}

	metadata := make(chan []v12.ChannelMetadataRecord, 1)
	consumer.OnGetChannelMetadataResponse.Listen(func(ev *etp.Event[v12.GetChannelMetadataResponse, struct{}]) {
		metadata <- ev.Message.Metadata
	})
	consumer.OnRealtimeBatch(func(items []v12.DataItem) {
		for _, item := range items {
			logger.Info("realtime data", "channel", item.ChannelID, "index", item.Indexes, "value", item.Value)
		}
	})

	if _, err := consumer.GetChannelMetadata([]string{"eml:///witsml20.Channel(depth)", "eml:///witsml20.Channel(rop)"}); err != nil {
		return err
	}
	var records []v12.ChannelMetadataRecord
	select {
	case records = <-metadata:
	case <-time.After(5 * time.Second):
		logger.Warn("no channel metadata received")
	case <-ctx.Done():
		return nil
	}

	subs := make([]v12.ChannelSubscribeInfo, 0, len(records))
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		subs = append(subs, v12.ChannelSubscribeInfo{ChannelID: r.ChannelID})
		ids = append(ids, r.ChannelID)
	}
	if len(subs) > 0 {
		if _, err := consumer.SubscribeChannels(subs); err != nil {
			return err
		}
		select {
		case <-time.After(duration):
		case <-ctx.Done():
		}
		_, _ = consumer.UnsubscribeChannels(ids)
	}

	if err := core.CloseSession("client done"); err != nil {
		logger.Warn("close session", "error", err)
	}
	select {
	case <-served:
	case <-time.After(time.Second):
	}
	return nil
}
