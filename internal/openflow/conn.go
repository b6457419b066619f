package openflow

import (
	"OFSpectra/internal/model"
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"

	"github.com/contiv/libOpenflow/common"
	"github.com/contiv/libOpenflow/openflow13"
	"github.com/contiv/libOpenflow/util"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrClosed is returned by sends on a closed connection.
var ErrClosed = errors.New("openflow connection closed")

const outboundQueueSize = 256

// conn is one switch control channel. Inbound messages are read and handled
// by a single goroutine so that a switch's events keep their order; outbound
// messages are queued and written by another.
type conn struct {
	netConn net.Conn
	reader  *bufio.Reader
	dpid    uint64

	outbound  chan util.Message
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(c net.Conn) *conn {
	oc := &conn{
		netConn:  c,
		reader:   bufio.NewReader(c),
		outbound: make(chan util.Message, outboundQueueSize),
		done:     make(chan struct{}),
	}
	go oc.writeLoop()
	return oc
}

// readMessage reads one framed message and returns its raw bytes.
func (c *conn) readMessage() ([]byte, error) {
	hdr := make([]byte, headerLen)
	if _, err := io.ReadFull(c.reader, hdr); err != nil {
		return nil, err
	}
	length := int(binary.BigEndian.Uint16(hdr[2:4]))
	if length < headerLen {
		return nil, errors.Errorf("invalid message length %d", length)
	}
	raw := make([]byte, length)
	copy(raw, hdr)
	if _, err := io.ReadFull(c.reader, raw[headerLen:]); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *conn) writeLoop() {
	for {
		select {
		case msg := <-c.outbound:
			data, err := msg.MarshalBinary()
			if err != nil {
				log.WithField("remote", c.netConn.RemoteAddr()).Errorf("Failed to encode outbound message: %v", err)
				continue
			}
			if _, err := c.netConn.Write(data); err != nil {
				log.WithField("remote", c.netConn.RemoteAddr()).Warnf("Outbound write failed: %v", err)
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// send queues msg without waiting for it to be written.
func (c *conn) send(msg util.Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outbound <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return errors.Errorf("switch %#x: outbound queue full", c.dpid)
	}
}

// handshake exchanges Hello and Features messages and returns the features reply.
func (c *conn) handshake(timeout time.Duration) (*openflow13.SwitchFeatures, error) {
	hello, err := common.NewHello(4)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build hello")
	}
	if err := c.send(hello); err != nil {
		return nil, err
	}

	if err := c.netConn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, errors.Wrap(err, "failed to set handshake deadline")
	}
	defer c.netConn.SetReadDeadline(time.Time{})

	for {
		raw, err := c.readMessage()
		if err != nil {
			return nil, errors.Wrap(err, "handshake read")
		}
		msg, err := parseMessage(raw)
		if err != nil {
			log.Debugf("Ignoring unparsable message during handshake: %v", err)
			continue
		}

		switch m := msg.(type) {
		case *common.Hello:
			if m.Version < openflow13.VERSION {
				return nil, errors.Errorf("unsupported OpenFlow version %d", m.Version)
			}
			if err := c.send(openflow13.NewFeaturesRequest()); err != nil {
				return nil, err
			}
		case *common.Header:
			if m.Type == openflow13.Type_EchoRequest {
				c.replyEcho(m)
			}
		case *openflow13.SwitchFeatures:
			return m, nil
		case *openflow13.ErrorMsg:
			return nil, errors.Errorf("switch rejected handshake: type %d code %d", m.Type, m.Code)
		}
	}
}

func (c *conn) replyEcho(req *common.Header) {
	reply := openflow13.NewEchoReply()
	reply.Xid = req.Xid
	if err := c.send(reply); err != nil {
		log.WithField("dpid", c.dpid).Debugf("Failed to send echo reply: %v", err)
	}
}

// receive reads messages until the connection fails and passes the
// resulting events to emit. It returns the error that ended the loop.
func (c *conn) receive(emit func(model.Event)) error {
	assembler := newMultipartAssembler(c)
	for {
		raw, err := c.readMessage()
		if err != nil {
			return err
		}
		// openflow13 only knows the OF1.0 port stats layout.
		if isPortStatsReply(raw) {
			xid, more, entries, err := portStatsReply(raw)
			if err != nil {
				log.WithField("dpid", c.dpid).Warnf("Dropping malformed port stats reply: %v", err)
				continue
			}
			if ev := assembler.addPorts(c.dpid, xid, more, entries); ev != nil {
				emit(ev)
			}
			continue
		}
		msg, err := parseMessage(raw)
		if err != nil {
			log.WithField("dpid", c.dpid).Warnf("Dropping malformed message: %v", err)
			continue
		}

		switch m := msg.(type) {
		case *common.Header:
			if m.Type == openflow13.Type_EchoRequest {
				c.replyEcho(m)
			}
		case *openflow13.PacketIn:
			data, err := packetInData(raw)
			if err != nil {
				log.WithField("dpid", c.dpid).Warnf("Dropping packet-in: %v", err)
				continue
			}
			emit(model.PacketInEvent{
				DPID:     c.dpid,
				InPort:   inPortOf(m.Match),
				BufferID: m.BufferId,
				Data:     data,
			})
		case *openflow13.MultipartReply:
			if ev := assembler.add(c.dpid, m); ev != nil {
				emit(ev)
			}
		case *openflow13.ErrorMsg:
			emit(model.ErrorEvent{DPID: c.dpid, Type: m.Type, Code: m.Code})
		default:
			log.WithField("dpid", c.dpid).Debugf("Ignoring message %T", msg)
		}
	}
}

// InstallFlow implements model.Datapath.
func (c *conn) InstallFlow(rule model.FlowRule) error {
	return c.send(flowModFor(rule))
}

// SendPacketOut implements model.Datapath.
func (c *conn) SendPacketOut(out model.PacketOut) error {
	return c.send(packetOutFor(out))
}

// RequestFlowStats implements model.Datapath.
func (c *conn) RequestFlowStats() error {
	return c.send(flowStatsRequest())
}

// RequestPortStats implements model.Datapath.
func (c *conn) RequestPortStats(port uint32) error {
	return c.send(portStatsRequest(port))
}

// Close shuts the connection down. It is safe to call more than once.
func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.netConn.Close()
	})
	return err
}
