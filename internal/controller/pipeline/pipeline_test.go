package pipeline

import (
	"OFSpectra/internal/controller/session"
	"OFSpectra/internal/engine/stats"
	"OFSpectra/internal/engine/summary"
	"OFSpectra/internal/model"
	"OFSpectra/internal/testutil"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
)

type fixture struct {
	sessions *session.Manager
	stats    *stats.Aggregator
	ring     *summary.Ring
	dp       *testutil.FakeDatapath
	pipeline *Pipeline
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		sessions: session.NewManager(0),
		stats:    stats.NewAggregator(),
		ring:     summary.NewRing(summary.DefaultCapacity),
		dp:       &testutil.FakeDatapath{},
	}
	if _, err := f.sessions.Connect(1, f.dp); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	f.pipeline = New(f.sessions, f.stats, f.ring, opts...)
	return f
}

func packetIn(data []byte, inPort uint32) model.PacketInEvent {
	return model.PacketInEvent{DPID: 1, InPort: inPort, BufferID: model.NoBuffer, Data: data}
}

func TestThreePacketScenario(t *testing.T) {
	f := newFixture(t)

	http := testutil.Build(testutil.Frame{Transport: testutil.TCP, SrcPort: 40000, DstPort: 80, Size: 100})
	dns := testutil.Build(testutil.Frame{Transport: testutil.UDP, SrcPort: 40001, DstPort: 53, Size: 60})
	icmp := testutil.Build(testutil.Frame{Transport: testutil.ICMP})

	for _, data := range [][]byte{http, dns, icmp} {
		if err := f.pipeline.HandlePacketIn(packetIn(data, 1)); err != nil {
			t.Fatalf("HandlePacketIn failed: %v", err)
		}
	}

	c := f.stats.Counters()
	if c[model.TagHTTP] != (model.Counter{Packets: 1, Bytes: 100}) {
		t.Errorf("Unexpected http counter %+v", c[model.TagHTTP])
	}
	if c[model.TagDNS] != (model.Counter{Packets: 1, Bytes: 60}) {
		t.Errorf("Unexpected dns counter %+v", c[model.TagDNS])
	}
	if c[model.TagICMP] != (model.Counter{Packets: 1, Bytes: uint64(len(icmp))}) {
		t.Errorf("Unexpected icmp counter %+v", c[model.TagICMP])
	}

	got := f.ring.Recent(10)
	if len(got) != 3 {
		t.Fatalf("Expected 3 summaries, got %d", len(got))
	}
	for i, want := range []model.Tag{model.TagHTTP, model.TagDNS, model.TagICMP} {
		if got[i].Protocol != want {
			t.Errorf("Summary %d: expected %s, got %s", i, want, got[i].Protocol)
		}
	}

	outs := f.dp.Outs()
	if len(outs) != 3 {
		t.Fatalf("Expected 3 packet-outs, got %d", len(outs))
	}
	for _, out := range outs {
		if out.OutPort != model.PortNormal {
			t.Errorf("Expected NORMAL output, got %#x", out.OutPort)
		}
	}
	if len(f.dp.Flows) != 2 {
		t.Errorf("The pipeline must not install flow rules, found %d rules", len(f.dp.Flows))
	}
}

func TestIPv6IsForwardedOnly(t *testing.T) {
	f := newFixture(t)
	data := testutil.Build(testutil.Frame{IPv6: true, Transport: testutil.TCP, SrcPort: 1234, DstPort: 80, Size: 120})

	if err := f.pipeline.HandlePacketIn(packetIn(data, 2)); err != nil {
		t.Fatalf("HandlePacketIn failed: %v", err)
	}

	for tag, c := range f.stats.Counters() {
		if c.Packets != 0 {
			t.Errorf("IPv6 must not be counted, %s = %+v", tag, c)
		}
	}
	if f.ring.Len() != 0 {
		t.Error("IPv6 must not be summarized")
	}
	sw, _ := f.sessions.Switch(1)
	if sw.MACs().Len() != 0 {
		t.Error("IPv6 must not be learned")
	}
	outs := f.dp.Outs()
	if len(outs) != 1 || outs[0].OutPort != model.PortNormal {
		t.Errorf("Expected one NORMAL packet-out, got %+v", outs)
	}
}

func TestLearningAndBufferHandling(t *testing.T) {
	f := newFixture(t)
	data := testutil.Build(testutil.Frame{SrcMAC: "00:00:00:00:00:0a", DstMAC: "00:00:00:00:00:0b", Transport: testutil.UDP, SrcPort: 68, DstPort: 67})

	ev := packetIn(data, 3)
	ev.BufferID = 42
	if err := f.pipeline.HandlePacketIn(ev); err != nil {
		t.Fatalf("HandlePacketIn failed: %v", err)
	}

	sw, _ := f.sessions.Switch(1)
	if port, ok := sw.MACs().Lookup(testutil.MustMAC("00:00:00:00:00:0a")); !ok || port != 3 {
		t.Errorf("Expected source learned on port 3, got %d (found=%v)", port, ok)
	}

	out := f.dp.Outs()[0]
	if out.BufferID != 42 || out.Data != nil || out.InPort != 3 {
		t.Errorf("A buffered packet-out must not carry data: %+v", out)
	}

	f.pipeline.HandlePacketIn(packetIn(data, 3))
	out = f.dp.Outs()[1]
	if out.BufferID != model.NoBuffer || len(out.Data) != len(data) {
		t.Errorf("An unbuffered packet-out must carry the packet: %+v", out)
	}
}

func TestNonEthernetPacket(t *testing.T) {
	f := newFixture(t)
	if err := f.pipeline.HandlePacketIn(packetIn([]byte{0xde, 0xad}, 1)); err != nil {
		t.Fatalf("HandlePacketIn failed: %v", err)
	}
	if c := f.stats.Counters()[model.TagOther]; c.Packets != 1 || c.Bytes != 2 {
		t.Errorf("Expected the packet to be counted as other, got %+v", c)
	}
	s := f.ring.Recent(1)[0]
	if s.EthSrc != nil || s.IPSrc != nil {
		t.Errorf("Expected empty header fields, got %+v", s)
	}
	sw, _ := f.sessions.Switch(1)
	if sw.MACs().Len() != 0 {
		t.Error("Nothing should be learned without an Ethernet header")
	}
}

func TestUnicastKnownDestinations(t *testing.T) {
	f := newFixture(t, WithUnicastKnownDestinations(true))
	toB := testutil.Build(testutil.Frame{SrcMAC: "00:00:00:00:00:0a", DstMAC: "00:00:00:00:00:0b", Transport: testutil.TCP, DstPort: 22})
	toA := testutil.Build(testutil.Frame{SrcMAC: "00:00:00:00:00:0b", DstMAC: "00:00:00:00:00:0a", Transport: testutil.TCP, SrcPort: 22})

	f.pipeline.HandlePacketIn(packetIn(toB, 1))
	f.pipeline.HandlePacketIn(packetIn(toA, 2))

	outs := f.dp.Outs()
	if outs[0].OutPort != model.PortNormal {
		t.Errorf("Unknown destination should go NORMAL, got %#x", outs[0].OutPort)
	}
	if outs[1].OutPort != 1 {
		t.Errorf("Known destination should go out port 1, got %#x", outs[1].OutPort)
	}
	if len(f.dp.Flows) != 2 {
		t.Error("Unicast forwarding must not install flow rules")
	}
}

type recordingPublisher struct {
	mu  sync.Mutex
	got []model.PacketSummary
	err error
}

func (p *recordingPublisher) PublishSummary(s model.PacketSummary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, s)
	return p.err
}

func TestPublisherAndClock(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("nats: connection closed")}
	ts := time.Unix(1700000000, 0)
	f := newFixture(t, WithPublisher(pub), WithClock(func() time.Time { return ts }))

	data := testutil.Build(testutil.Frame{Transport: testutil.TCP, DstPort: 443})
	if err := f.pipeline.HandlePacketIn(packetIn(data, 1)); err != nil {
		t.Fatalf("A publish failure must not fail the pipeline: %v", err)
	}
	if len(pub.got) != 1 || pub.got[0].Protocol != model.TagHTTPS {
		t.Fatalf("Expected one https summary published, got %+v", pub.got)
	}
	if !pub.got[0].Time().Equal(ts) {
		t.Errorf("Expected timestamp %v, got %v", ts, pub.got[0].Time())
	}
}

type recordingRecorder struct {
	times  []time.Time
	frames [][]byte
}

func (r *recordingRecorder) RecordFrame(ts time.Time, data []byte) {
	r.times = append(r.times, ts)
	r.frames = append(r.frames, data)
}

func TestRecorderSeesEveryFrame(t *testing.T) {
	rec := &recordingRecorder{}
	ts := time.Unix(1700000000, 0)
	f := newFixture(t, WithRecorder(rec), WithClock(func() time.Time { return ts }))

	v4 := testutil.Build(testutil.Frame{Transport: testutil.UDP, DstPort: 53})
	v6 := testutil.Build(testutil.Frame{IPv6: true, Transport: testutil.TCP, DstPort: 80})
	f.pipeline.HandlePacketIn(packetIn(v4, 1))
	f.pipeline.HandlePacketIn(packetIn(v6, 1))
	f.pipeline.HandlePacketIn(model.PacketInEvent{DPID: 9, Data: v4})

	if len(rec.frames) != 2 {
		t.Fatalf("Expected both frames of the known switch to be recorded, got %d", len(rec.frames))
	}
	if len(rec.frames[1]) != len(v6) || !rec.times[0].Equal(ts) {
		t.Errorf("Unexpected recording: %d bytes at %v", len(rec.frames[1]), rec.times[0])
	}
}

func TestUnknownAndInactiveSwitch(t *testing.T) {
	f := newFixture(t)
	data := testutil.Build(testutil.Frame{Transport: testutil.TCP, DstPort: 80})

	ev := packetIn(data, 1)
	ev.DPID = 9
	if err := f.pipeline.HandlePacketIn(ev); errors.Cause(err) != session.ErrUnknownSwitch {
		t.Errorf("Expected ErrUnknownSwitch, got %v", err)
	}

	f.sessions.Disconnect(1, nil)
	if err := f.pipeline.HandlePacketIn(packetIn(data, 1)); err != nil {
		t.Fatalf("HandlePacketIn failed: %v", err)
	}
	if len(f.dp.Outs()) != 0 {
		t.Error("No packet-out may be sent to a disconnected switch")
	}
	if f.stats.Counters()[model.TagHTTP].Packets != 1 {
		t.Error("The packet should still be accounted")
	}
}

func TestSendFailure(t *testing.T) {
	f := newFixture(t)
	f.dp.SetErr(errors.New("closed"))
	data := testutil.Build(testutil.Frame{Transport: testutil.UDP, DstPort: 53})
	if err := f.pipeline.HandlePacketIn(packetIn(data, 1)); err == nil {
		t.Error("Expected the packet-out error to be returned")
	}
	if f.ring.Len() != 1 {
		t.Error("The summary should be recorded before forwarding")
	}
}
