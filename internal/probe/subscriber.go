package probe

import (
	"OFSpectra/internal/config"
	"OFSpectra/internal/model"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// SummaryHandler processes a received packet summary.
type SummaryHandler func(s model.PacketSummary)

// Subscriber receives packet summaries from a NATS subject.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
}

// NewSubscriber connects to the NATS server of cfg.
func NewSubscriber(cfg config.ProbeConfig) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("of-tap"))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to NATS at %s", cfg.NATSURL)
	}
	log.Printf("Connected to NATS server at %s", cfg.NATSURL)
	return &Subscriber{nc: nc, subject: cfg.Subject}, nil
}

// Start subscribes to the subject and hands every decodable summary to handler.
func (s *Subscriber) Start(handler SummaryHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		summary, err := DecodeSummary(msg.Data)
		if err != nil {
			log.Warnf("Dropping undecodable summary: %v", err)
			return
		}
		handler(summary)
	})
	if err != nil {
		return errors.Wrapf(err, "failed to subscribe to '%s'", s.subject)
	}
	s.sub = sub
	log.Printf("Subscribed to '%s'. Waiting for summaries...", s.subject)
	return nil
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		log.Println("NATS connection closed.")
	}
}
