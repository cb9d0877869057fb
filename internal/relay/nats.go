package relay

import (
	"context"
	"fmt"

	"hkms/internal/hub"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type NATSRelay struct {
	conn    *nats.Conn
	subject string
	sink    Sink
	logger  *zap.Logger
	ready   chan struct{}
}

func NewNATS(url, subject string, sink Sink, logger *zap.Logger) (*NATSRelay, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := nats.Connect(url, nats.Name("hkms-room-service"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSRelay{
		conn:    conn,
		subject: subject,
		sink:    sink,
		logger:  logger,
		ready:   make(chan struct{}),
	}, nil
}

func (n *NATSRelay) Publish(ctx context.Context, event hub.Event) error {
	payload, err := hub.Encode(event)
	if err != nil {
		return err
	}
	if err := n.conn.Publish(n.subject, payload); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func (n *NATSRelay) Run(ctx context.Context) error {
	sub, err := n.conn.Subscribe(n.subject, func(msg *nats.Msg) {
		n.sink.Deliver(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", n.subject, err)
	}
	if err := n.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("nats flush: %w", err)
	}
	close(n.ready)
	n.logger.Info("relay subscribed", zap.String("driver", "nats"), zap.String("subject", n.subject))

	<-ctx.Done()
	return sub.Unsubscribe()
}

func (n *NATSRelay) Ready() <-chan struct{} {
	return n.ready
}

func (n *NATSRelay) Close() error {
	n.conn.Close()
	return nil
}
