package core

import (
	"context"
	"errors"
	"time"

	"github.com/datachainlab/ibc-relayer/log"
	"github.com/datachainlab/ibc-relayer/metrics"
	"github.com/datachainlab/ibc-relayer/otelcore/semconv"
	"go.opentelemetry.io/otel/attribute"
)

// HealthReporter receives the outcome of each worker action.
type HealthReporter interface {
	ReportHealthy(pathName string)
	ReportFailure(pathName string, err error)
}

type nopReporter struct{}

func (nopReporter) ReportHealthy(string)        {}
func (nopReporter) ReportFailure(string, error) {}

// ServiceConfig tunes a relay worker.
type ServiceConfig struct {
	// Interval drives timeout checks and handshake polling between events.
	Interval time.Duration `yaml:"interval" json:"interval" mapstructure:"interval"`
	// ResubscribeDelay is the first backoff delay after an event feed breaks.
	ResubscribeDelay time.Duration `yaml:"resubscribe-delay" json:"resubscribe-delay" mapstructure:"resubscribe-delay"`
	Retry            RetryPolicy   `yaml:"retry" json:"retry" mapstructure:"retry"`
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Interval:         3 * time.Second,
		ResubscribeDelay: time.Second,
		Retry:            DefaultRetryPolicy(),
	}
}

// RelayService is the worker of one path. Its event loop runs on a single goroutine;
// submissions go through the endpoints' Submitters.
type RelayService struct {
	pathName string
	path     *Path
	src      *Endpoint
	dst      *Endpoint
	conf     ServiceConfig
	reporter HealthReporter

	// packets sent on src and on dst
	forward  *relayDirection
	backward *relayDirection

	channelOpen bool
}

// NewRelayService returns a new service
func NewRelayService(pathName string, path *Path, src, dst *Endpoint, conf ServiceConfig, reporter HealthReporter) *RelayService {
	if reporter == nil {
		reporter = nopReporter{}
	}
	if conf.Interval <= 0 {
		conf.Interval = DefaultServiceConfig().Interval
	}
	if conf.ResubscribeDelay <= 0 {
		conf.ResubscribeDelay = DefaultServiceConfig().ResubscribeDelay
	}
	return &RelayService{
		pathName: pathName,
		path:     path,
		src:      src,
		dst:      dst,
		conf:     conf,
		reporter: reporter,
		forward:  newRelayDirection("src->dst", src, dst),
		backward: newRelayDirection("dst->src", dst, src),
	}
}

func (srv *RelayService) logger() *log.RelayLogger {
	return log.GetLogger().WithPath(srv.pathName).WithModule("core.service")
}

// Start runs the event loop until ctx is done. A failed action is reported and the
// loop moves on; only ctx ends the worker.
func (srv *RelayService) Start(ctx context.Context) error {
	logger := srv.logger()
	logger.InfoContext(ctx, "relay service starting", "path", srv.path.String())

	srv.advanceHandshake(ctx)

	srcEvents := srv.subscribe(ctx, srv.src)
	dstEvents := srv.subscribe(ctx, srv.dst)
	srv.clear(ctx)

	ticker := time.NewTicker(srv.conf.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "relay service stopped")
			return nil
		case batch, ok := <-srcEvents:
			if !ok {
				srcEvents = srv.subscribe(ctx, srv.src)
				srv.clear(ctx)
				continue
			}
			srv.handleBatch(ctx, srv.src, batch)
		case batch, ok := <-dstEvents:
			if !ok {
				dstEvents = srv.subscribe(ctx, srv.dst)
				srv.clear(ctx)
				continue
			}
			srv.handleBatch(ctx, srv.dst, batch)
		case <-ticker.C:
			srv.tick(ctx)
		}
	}
}

// subscribe opens the event feed of ep, retrying with exponential backoff until it
// succeeds or ctx is done. A nil channel, which never delivers, is returned after ctx is done.
func (srv *RelayService) subscribe(ctx context.Context, ep *Endpoint) <-chan EventBatch {
	logger := srv.logger()
	delay := srv.conf.ResubscribeDelay
	for {
		ch, err := ep.Chain.Subscribe(ctx, EventFilter{PortID: ep.End.PortID})
		if err == nil {
			logger.DebugContext(ctx, "subscribed to events", "chain_id", ep.ChainID())
			return ch
		}
		srv.fail(ctx, "subscribe", err)
		if err := wait(ctx, delay); err != nil {
			return nil
		}
		if delay *= 2; srv.conf.Retry.MaxDelay > 0 && delay > srv.conf.Retry.MaxDelay {
			delay = srv.conf.Retry.MaxDelay
		}
	}
}

func (srv *RelayService) fail(ctx context.Context, action string, err error) {
	if ctx.Err() != nil {
		return
	}
	class := ClassOf(err)
	srv.logger().ErrorContext(ctx, "relay action failed", err, "action", action, "error_class", class.String())
	metrics.RecordFailedAction(ctx, action, class.String(), semconv.PathNameKey.String(srv.pathName))
	srv.reporter.ReportFailure(srv.pathName, err)
}

func (srv *RelayService) relaysPackets() bool {
	return srv.channelOpen && srv.path.RelaysPackets()
}

// advanceHandshake submits the next step of whichever handshake is incomplete.
func (srv *RelayService) advanceHandshake(ctx context.Context) {
	if srv.channelOpen {
		return
	}
	if srv.src.End.ClientID == "" || srv.dst.End.ClientID == "" {
		if err := CreateClients(ctx, srv.pathName, srv.src, srv.dst); err != nil {
			srv.fail(ctx, "create_clients", err)
		}
		return
	}

	steps, err := ConnectionStep(ctx, srv.src, srv.dst)
	if err != nil {
		srv.fail(ctx, "connection_step", err)
		return
	}
	kind := "connection_step"
	if !steps.Ready() && steps.Last && srv.src.End.HasChannel() {
		if steps, err = ChannelStep(ctx, srv.src, srv.dst); err != nil {
			srv.fail(ctx, "channel_step", err)
			return
		}
		kind = "channel_step"
		if !steps.Ready() && steps.Last {
			srv.channelOpen = true
			srv.logger().InfoContext(ctx, "channel is open, relaying packets")
			return
		}
	}
	if !steps.Ready() {
		return
	}
	if err := SendHandshakeStep(ctx, srv.pathName, steps, srv.src, srv.dst); err != nil {
		srv.fail(ctx, kind, err)
		return
	}
	srv.reporter.ReportHealthy(srv.pathName)
}

// clear reloads both backlogs from chain state, relays pending acknowledgements and drains.
func (srv *RelayService) clear(ctx context.Context) {
	if !srv.relaysPackets() || ctx.Err() != nil {
		return
	}
	for _, d := range []*relayDirection{srv.forward, srv.backward} {
		acks, err := d.clear(ctx)
		if err != nil {
			srv.fail(ctx, "clear", err)
			continue
		}
		for _, a := range acks {
			if err := d.relayAck(ctx, a.Packet, a.Acknowledgement, srv.conf.Retry); err != nil {
				srv.fail(ctx, "ack", err)
			}
		}
	}
	srv.drain(ctx)
}

func (srv *RelayService) handleBatch(ctx context.Context, ep *Endpoint, batch EventBatch) {
	logger := srv.logger()
	chainAttr := attribute.String("chain_id", ep.ChainID())
	metrics.ProcessedBlockHeightGauge.Set(int64(batch.Height.GetRevisionHeight()), chainAttr)

	// on ep, packets of out were sent and packets of in were received
	out, in := srv.forward, srv.backward
	if ep == srv.dst {
		out, in = srv.backward, srv.forward
	}

	handshake := false
	for _, ev := range batch.Events {
		switch ev := ev.(type) {
		case *EventChannelHandshake:
			handshake = true
			if ev.Stage == StageClosed && ev.PortID == ep.End.PortID && ev.ChannelID == ep.End.ChannelID {
				logger.InfoContext(ctx, "channel closed", "chain_id", ep.ChainID(), "channel_id", ev.ChannelID)
				srv.forward.closed, srv.backward.closed = true, true
			}
		case *EventConnectionHandshake, *EventGenerateClientIdentifier:
			handshake = true
		case *EventSendPacket:
			if !srv.relaysPackets() || !out.sentOn(ev.Packet) {
				continue
			}
			if !out.queue.Push(ev.Packet) {
				logger.DebugContext(ctx, "ignoring resolved or buffered packet", "direction", out.name, "sequence", ev.Packet.Sequence)
			}
		case *EventWriteAcknowledgement:
			if !srv.relaysPackets() || !in.receivedOn(ev.Packet) {
				continue
			}
			if err := in.relayAck(ctx, ev.Packet, ev.Acknowledgement, srv.conf.Retry); err != nil {
				srv.fail(ctx, "ack", err)
			}
		case *EventAcknowledgePacket, *EventTimeoutPacket:
			logger.DebugContext(ctx, "packet lifecycle completed", "chain_id", ep.ChainID(), "event", ev)
		}
	}

	if handshake || !srv.channelOpen {
		wasOpen := srv.channelOpen
		srv.advanceHandshake(ctx)
		if !wasOpen && srv.channelOpen {
			srv.clear(ctx)
			return
		}
	}
	srv.drain(ctx)
}

func (srv *RelayService) tick(ctx context.Context) {
	if !srv.channelOpen {
		wasOpen := srv.channelOpen
		srv.advanceHandshake(ctx)
		if !wasOpen && srv.channelOpen {
			srv.clear(ctx)
		}
		return
	}
	srv.drain(ctx)
}

// drain relays each direction's packets in sequence order until the head packet cannot be resolved.
func (srv *RelayService) drain(ctx context.Context) {
	if !srv.relaysPackets() {
		return
	}
	for _, d := range []*relayDirection{srv.forward, srv.backward} {
		if err := srv.drainDirection(ctx, d); err != nil {
			srv.fail(ctx, "relay_packet", err)
		}
		metrics.BacklogSizeGauge.Set(int64(d.queue.Len()), d.metricAttributes()...)
	}
}

func (srv *RelayService) drainDirection(ctx context.Context, d *relayDirection) error {
	for ctx.Err() == nil {
		if d.closed {
			if d.queue.Len() > 0 {
				srv.logger().WarnContext(ctx, "channel closed, packets left unrelayed", "direction", d.name, "sequences", d.queue.Sequences())
			}
			return nil
		}
		p, ok := d.queue.Peek()
		if !ok {
			if d.queue.Len() == 0 {
				return nil
			}
			// a later sequence was observed, so the cursor's packet was sent
			progressed, err := d.fillGap(ctx)
			if err != nil {
				return err
			}
			if !progressed {
				return nil
			}
			continue
		}
		if _, err := d.relayPacket(ctx, p, srv.conf.Retry); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		d.queue.Advance()
		srv.reporter.ReportHealthy(srv.pathName)
	}
	return nil
}
