package api

import (
	"OFSpectra/internal/config"
	"OFSpectra/internal/controller"
	"OFSpectra/internal/model"
	"OFSpectra/internal/testutil"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fixture struct {
	ctrl   *controller.Controller
	dp     *testutil.FakeDatapath
	router http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := controller.New(&config.Default().Controller)
	dp := &testutil.FakeDatapath{}
	if err := ctrl.Dispatch(model.FeaturesReplyEvent{DPID: 1, Datapath: dp}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	return &fixture{ctrl: ctrl, dp: dp, router: NewRouter(ctrl, nil)}
}

func (f *fixture) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Unexpected Content-Type %q", ct)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func (f *fixture) packetIn(t *testing.T, frame testutil.Frame) {
	t.Helper()
	data := testutil.Build(frame)
	if err := f.ctrl.Dispatch(model.PacketInEvent{DPID: 1, InPort: 1, BufferID: model.NoBuffer, Data: data}); err != nil {
		t.Fatalf("Dispatch(PacketIn) failed: %v", err)
	}
}

func TestFlowStatsHandler(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Dispatch(model.FlowStatsReplyEvent{DPID: 1, Entries: []model.FlowEntrySummary{
		{Priority: 10, Match: "eth_type=0x0800,ip_proto=6,tcp_dst=80", Packets: 3, Bytes: 300, Protocol: model.TagHTTP},
	}})

	var resp flowStatsResponse
	decode(t, f.do(t, "GET", "/stats/flow/1"), &resp)
	if !resp.Success || len(resp.Flows) != 1 || resp.Flows[0].Protocol != model.TagHTTP {
		t.Errorf("Unexpected response %+v", resp)
	}
	if f.dp.FlowRequests != 1 || len(f.dp.PortRequests) != 1 {
		t.Errorf("Expected one stats refresh, got %d flow and %d port requests", f.dp.FlowRequests, len(f.dp.PortRequests))
	}
}

func TestPortStatsHandler(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Dispatch(model.PortStatsReplyEvent{DPID: 1, Entries: []model.PortStatSummary{
		{PortNo: 1, RxBytes: 10}, {PortNo: 2, TxBytes: 20},
	}})

	var resp portStatsResponse
	decode(t, f.do(t, "GET", "/stats/port/1"), &resp)
	if !resp.Success || len(resp.Ports) != 2 || resp.Ports[1].TxBytes != 20 {
		t.Errorf("Unexpected response %+v", resp)
	}
}

func TestStatsHandlerErrors(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		path string
		code int
	}{
		{"/stats/flow/abc", http.StatusBadRequest},
		{"/stats/flow/1.5", http.StatusBadRequest},
		{"/stats/port/-1", http.StatusNotFound},
		{"/stats/flow/-1", http.StatusNotFound},
		{"/stats/flow/99", http.StatusNotFound},
		{"/stats/port/99", http.StatusNotFound},
	}
	for _, tt := range tests {
		if rec := f.do(t, "GET", tt.path); rec.Code != tt.code {
			t.Errorf("GET %s: expected %d, got %d", tt.path, tt.code, rec.Code)
		}
	}
}

func TestStatsOfDisconnectedSwitch(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Dispatch(model.FlowStatsReplyEvent{DPID: 1, Entries: []model.FlowEntrySummary{{Priority: 0, Protocol: model.TagOther}}})
	f.ctrl.Dispatch(model.DisconnectEvent{DPID: 1, Datapath: f.dp})

	var resp flowStatsResponse
	decode(t, f.do(t, "GET", "/stats/flow/1"), &resp)
	if len(resp.Flows) != 1 {
		t.Errorf("Expected the cached flow entry, got %+v", resp.Flows)
	}
	if f.dp.FlowRequests != 0 {
		t.Errorf("A disconnected switch must not be polled, got %d requests", f.dp.FlowRequests)
	}
}

func TestProtocolStatsHandler(t *testing.T) {
	f := newFixture(t)
	f.packetIn(t, testutil.Frame{Transport: testutil.TCP, DstPort: 80, Size: 100})
	f.packetIn(t, testutil.Frame{Transport: testutil.UDP, SrcPort: 5000, DstPort: 53, Size: 80})

	var resp protocolStatsResponse
	decode(t, f.do(t, "GET", "/stats/protocol"), &resp)
	if !resp.Success {
		t.Fatalf("Expected success")
	}
	if len(resp.Protocols) != len(model.AllTags) {
		t.Errorf("Expected every tag to be reported, got %d", len(resp.Protocols))
	}
	if resp.Protocols[model.TagHTTP].Packets != 1 || resp.Protocols[model.TagDNS].Bytes != 80 {
		t.Errorf("Unexpected counters %+v", resp.Protocols)
	}
	if len(resp.History.Timestamps) != 1 || len(resp.History.Protocols) != 1 {
		t.Fatalf("Expected one history sample, got %d/%d", len(resp.History.Timestamps), len(resp.History.Protocols))
	}
	if resp.History.Timestamps[0] <= 0 {
		t.Errorf("Expected a unix timestamp, got %v", resp.History.Timestamps[0])
	}
}

func TestPacketSummariesHandler(t *testing.T) {
	f := newFixture(t)
	for _, port := range []uint16{80, 443, 22} {
		f.packetIn(t, testutil.Frame{Transport: testutil.TCP, DstPort: port, Size: 100})
	}

	tests := []struct {
		query string
		want  []model.Tag
	}{
		{"", []model.Tag{model.TagHTTP, model.TagHTTPS, model.TagSSH}},
		{"?limit=2", []model.Tag{model.TagHTTPS, model.TagSSH}},
		{"?limit=0", nil},
		{"?limit=-3", nil},
		{"?limit=50", []model.Tag{model.TagHTTP, model.TagHTTPS, model.TagSSH}},
	}
	for _, tt := range tests {
		var resp packetSummariesResponse
		decode(t, f.do(t, "GET", "/stats/packet_summaries"+tt.query), &resp)
		if len(resp.Summaries) != len(tt.want) {
			t.Errorf("limit %q: expected %d summaries, got %d", tt.query, len(tt.want), len(resp.Summaries))
			continue
		}
		for i, s := range resp.Summaries {
			if s.Protocol != tt.want[i] {
				t.Errorf("limit %q: summary %d is %s, want %s", tt.query, i, s.Protocol, tt.want[i])
			}
		}
	}

	if rec := f.do(t, "GET", "/stats/packet_summaries?limit=abc"); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a non-integer limit, got %d", rec.Code)
	}
}

func TestClearHandler(t *testing.T) {
	f := newFixture(t)
	f.packetIn(t, testutil.Frame{Transport: testutil.TCP, DstPort: 80, Size: 100})

	if rec := f.do(t, "GET", "/stats/clear"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET /stats/clear, got %d", rec.Code)
	}

	var resp successResponse
	decode(t, f.do(t, "POST", "/stats/clear"), &resp)
	if !resp.Success {
		t.Errorf("Expected success")
	}
	if f.ctrl.Summaries().Len() != 0 {
		t.Errorf("Expected the ring to be empty")
	}
	counters, history := f.ctrl.Stats().Snapshot()
	if counters[model.TagHTTP].Packets != 0 || len(history) != 0 {
		t.Errorf("Expected cleared counters, got %+v with %d samples", counters, len(history))
	}
	// MAC tables survive a clear.
	sw, _ := f.ctrl.Sessions().Switch(1)
	if sw.MACs().Len() != 1 {
		t.Errorf("Expected the MAC table to be kept, got %d entries", sw.MACs().Len())
	}
}

func TestSwitchesHandler(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Dispatch(model.PortStatsReplyEvent{DPID: 1, Entries: []model.PortStatSummary{{PortNo: 1}, {PortNo: 2}, {PortNo: 3}}})
	f.ctrl.Dispatch(model.FeaturesReplyEvent{DPID: 2, Datapath: &testutil.FakeDatapath{}})
	f.ctrl.Dispatch(model.DisconnectEvent{DPID: 2})

	var resp switchesResponse
	decode(t, f.do(t, "GET", "/stats/switch"), &resp)
	want := []switchEntry{
		{DPID: 1, Ports: 3, State: "active"},
		{DPID: 2, Ports: 0, State: "disconnected"},
	}
	if len(resp.Switches) != len(want) {
		t.Fatalf("Expected %d switches, got %+v", len(want), resp.Switches)
	}
	for i := range want {
		if resp.Switches[i] != want[i] {
			t.Errorf("Switch %d = %+v, want %+v", i, resp.Switches[i], want[i])
		}
	}
}

func TestMetricsMount(t *testing.T) {
	ctrl := controller.New(&config.Default().Controller)
	called := false
	router := NewRouter(ctrl, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/metrics", nil))
	if !called {
		t.Errorf("Expected /metrics to reach the metrics handler")
	}
}

func TestHealthFollowsSwitches(t *testing.T) {
	ctrl := controller.New(&config.Default().Controller)
	h := NewHealth(ctrl.Sessions())

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		resp, err := h.Server().Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("Check(%q) failed: %v", service, err)
		}
		return resp.GetStatus()
	}

	if got := check(""); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Expected the process to be serving, got %s", got)
	}
	if got := check(SwitchesService); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Expected NOT_SERVING without switches, got %s", got)
	}

	dp := &testutil.FakeDatapath{}
	ctrl.Dispatch(model.FeaturesReplyEvent{DPID: 7, Datapath: dp})
	if got := check(SwitchesService); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Expected SERVING with an active switch, got %s", got)
	}

	ctrl.Dispatch(model.DisconnectEvent{DPID: 7, Datapath: dp})
	if got := check(SwitchesService); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Expected NOT_SERVING after disconnect, got %s", got)
	}

	h.Shutdown()
	if got := check(""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Expected NOT_SERVING after shutdown, got %s", got)
	}
}
