package progress

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

const DefaultSubjectPrefix = "ingest.progress"

// headerCarrier adapts nats.Msg headers for OTel propagation.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// NATSPublisher forwards events to <prefix>.<jobID>, tagged with origin so a
// relay in the same process can skip its own events.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	origin string
	log    *slog.Logger
}

func NewNATSPublisher(nc *nats.Conn, prefix, origin string, log *slog.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{nc: nc, prefix: prefix, origin: origin, log: log}
}

func (p *NATSPublisher) Publish(ctx context.Context, jobID string, ev Event) {
	ev.JobID = jobID
	ev.Origin = p.origin

	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("progress: encode event", "job", jobID, "err", err)
		return
	}
	msg := &nats.Msg{Subject: p.prefix + "." + jobID, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	if err := p.nc.PublishMsg(msg); err != nil {
		p.log.Warn("progress: nats publish", "job", jobID, "err", err)
	}
}

// RelayNATS republishes events received under prefix into dst, skipping
// events that carry origin. Malformed messages are dropped.
func RelayNATS(nc *nats.Conn, prefix, origin string, dst Publisher) (*nats.Subscription, error) {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return nc.Subscribe(prefix+".>", func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil || ev.JobID == "" {
			return
		}
		if origin != "" && ev.Origin == origin {
			return
		}
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*headerCarrier)(msg))
		dst.Publish(ctx, ev.JobID, ev)
	})
}
