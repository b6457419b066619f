// Package probe carries packet summaries over NATS so that taps outside the
// controller process can follow packet-in traffic live.
package probe

import (
	"OFSpectra/internal/config"
	"OFSpectra/internal/model"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Publisher publishes packet summaries to a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher connects to the NATS server of cfg.
func NewPublisher(cfg config.ProbeConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("of-controller"))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to NATS at %s", cfg.NATSURL)
	}
	log.Printf("Connected to NATS server at %s", cfg.NATSURL)
	return NewPublisherWithConn(nc, cfg.Subject), nil
}

// NewPublisherWithConn publishes on an existing connection.
func NewPublisherWithConn(nc *nats.Conn, subject string) *Publisher {
	return &Publisher{nc: nc, subject: subject}
}

// PublishSummary serializes s to protobuf and publishes it. NATS buffers the
// message, so the packet-in path never waits on the network.
func (p *Publisher) PublishSummary(s model.PacketSummary) error {
	data, err := EncodeSummary(s)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
}
