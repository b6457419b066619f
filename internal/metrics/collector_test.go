package metrics

import (
	"OFSpectra/internal/config"
	"OFSpectra/internal/controller"
	"OFSpectra/internal/model"
	"OFSpectra/internal/testutil"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func newController(t *testing.T) *controller.Controller {
	t.Helper()
	c := controller.New(&config.Default().Controller)
	if err := c.Dispatch(model.FeaturesReplyEvent{DPID: 1, Datapath: &testutil.FakeDatapath{}}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	data := testutil.Build(testutil.Frame{Transport: testutil.TCP, DstPort: 80, Size: 100})
	c.Dispatch(model.PacketInEvent{DPID: 1, InPort: 1, BufferID: model.NoBuffer, Data: data})
	c.Dispatch(model.FlowStatsReplyEvent{DPID: 1, Entries: []model.FlowEntrySummary{
		{Priority: 10, Packets: 4, Bytes: 400, Protocol: model.TagHTTP},
		{Priority: 0, Packets: 1, Bytes: 60, Protocol: model.TagOther},
	}})
	c.Dispatch(model.PortStatsReplyEvent{DPID: 1, Entries: []model.PortStatSummary{{PortNo: 1, RxBytes: 1000, TxBytes: 2000}}})
	return c
}

func TestCollectorGather(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(New(newController(t))); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, l := range m.GetLabel() {
				key += "," + l.GetName() + "=" + l.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				values[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[key] = m.GetGauge().GetValue()
			}
		}
	}

	checks := map[string]float64{
		"ofspectra_protocol_packets_total,protocol=http": 1,
		"ofspectra_protocol_bytes_total,protocol=http":   100,
		"ofspectra_protocol_packets_total,protocol=dhcp": 0,
		"ofspectra_switches,state=active":                1,
		"ofspectra_switches,state=disconnected":          0,
		"ofspectra_mac_table_entries,dpid=1":             1,
		"ofspectra_flow_bytes,dpid=1,protocol=http":      400,
		"ofspectra_flow_packets,dpid=1,protocol=other":   1,
		"ofspectra_port_tx_bytes,dpid=1,port=1":          2000,
		"ofspectra_packet_summaries":                     1,
	}
	for key, want := range checks {
		got, ok := values[key]
		if !ok {
			t.Errorf("Metric %s not found", key)
			continue
		}
		if got != want {
			t.Errorf("Metric %s = %v, want %v", key, got, want)
		}
	}
}

func TestHandlerServesExposition(t *testing.T) {
	h, err := Handler(newController(t))
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `ofspectra_protocol_packets_total{protocol="http"} 1`) {
		t.Errorf("Exposition is missing the http counter:\n%s", body)
	}
}
