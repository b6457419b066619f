// Package metrics exposes the controller's state as Prometheus metrics.
package metrics

import (
	"OFSpectra/internal/controller"
	"OFSpectra/internal/model"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector reads the controller state on every scrape; it keeps no state of its own.
type Collector struct {
	ctrl *controller.Controller

	protocolPackets *prometheus.Desc
	protocolBytes   *prometheus.Desc
	switches        *prometheus.Desc
	macEntries      *prometheus.Desc
	flowPackets     *prometheus.Desc
	flowBytes       *prometheus.Desc
	portRxBytes     *prometheus.Desc
	portTxBytes     *prometheus.Desc
	summaries       *prometheus.Desc
}

func New(ctrl *controller.Controller) *Collector {
	return &Collector{
		ctrl: ctrl,
		protocolPackets: prometheus.NewDesc(
			"ofspectra_protocol_packets_total",
			"Packets seen by the controller per classified protocol",
			[]string{"protocol"},
			nil,
		),
		protocolBytes: prometheus.NewDesc(
			"ofspectra_protocol_bytes_total",
			"Bytes seen by the controller per classified protocol",
			[]string{"protocol"},
			nil,
		),
		switches: prometheus.NewDesc(
			"ofspectra_switches",
			"Known switches per session state",
			[]string{"state"},
			nil,
		),
		macEntries: prometheus.NewDesc(
			"ofspectra_mac_table_entries",
			"Learned MAC addresses per switch",
			[]string{"dpid"},
			nil,
		),
		flowPackets: prometheus.NewDesc(
			"ofspectra_flow_packets",
			"Packets matched by flow entries per switch and protocol, from the last flow stats reply",
			[]string{"dpid", "protocol"},
			nil,
		),
		flowBytes: prometheus.NewDesc(
			"ofspectra_flow_bytes",
			"Bytes matched by flow entries per switch and protocol, from the last flow stats reply",
			[]string{"dpid", "protocol"},
			nil,
		),
		portRxBytes: prometheus.NewDesc(
			"ofspectra_port_rx_bytes",
			"Received bytes per switch port, from the last port stats reply",
			[]string{"dpid", "port"},
			nil,
		),
		portTxBytes: prometheus.NewDesc(
			"ofspectra_port_tx_bytes",
			"Transmitted bytes per switch port, from the last port stats reply",
			[]string{"dpid", "port"},
			nil,
		),
		summaries: prometheus.NewDesc(
			"ofspectra_packet_summaries",
			"Packet summaries currently held in the ring",
			nil,
			nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.protocolPackets
	ch <- c.protocolBytes
	ch <- c.switches
	ch <- c.macEntries
	ch <- c.flowPackets
	ch <- c.flowBytes
	ch <- c.portRxBytes
	ch <- c.portTxBytes
	ch <- c.summaries
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	counters := c.ctrl.Stats().Counters()
	for _, tag := range model.AllTags {
		v := counters[tag]
		ch <- prometheus.MustNewConstMetric(c.protocolPackets, prometheus.CounterValue, float64(v.Packets), string(tag))
		ch <- prometheus.MustNewConstMetric(c.protocolBytes, prometheus.CounterValue, float64(v.Bytes), string(tag))
	}

	states := map[model.SwitchState]int{
		model.SwitchConnecting:   0,
		model.SwitchActive:       0,
		model.SwitchDisconnected: 0,
	}
	sessions := c.ctrl.Sessions()
	for _, info := range sessions.Switches() {
		states[info.State]++
		dpid := strconv.FormatUint(info.DPID, 10)
		ch <- prometheus.MustNewConstMetric(c.macEntries, prometheus.GaugeValue, float64(info.MACCount), dpid)
	}
	for state, n := range states {
		ch <- prometheus.MustNewConstMetric(c.switches, prometheus.GaugeValue, float64(n), state.String())
	}

	for _, snap := range sessions.Snapshots() {
		dpid := strconv.FormatUint(snap.DPID, 10)
		perProto := make(map[model.Tag]model.Counter)
		for _, f := range snap.Flows {
			v := perProto[f.Protocol]
			v.Packets += f.Packets
			v.Bytes += f.Bytes
			perProto[f.Protocol] = v
		}
		for tag, v := range perProto {
			ch <- prometheus.MustNewConstMetric(c.flowPackets, prometheus.GaugeValue, float64(v.Packets), dpid, string(tag))
			ch <- prometheus.MustNewConstMetric(c.flowBytes, prometheus.GaugeValue, float64(v.Bytes), dpid, string(tag))
		}
		for _, p := range snap.Ports {
			port := strconv.FormatUint(uint64(p.PortNo), 10)
			ch <- prometheus.MustNewConstMetric(c.portRxBytes, prometheus.GaugeValue, float64(p.RxBytes), dpid, port)
			ch <- prometheus.MustNewConstMetric(c.portTxBytes, prometheus.GaugeValue, float64(p.TxBytes), dpid, port)
		}
	}

	ch <- prometheus.MustNewConstMetric(c.summaries, prometheus.GaugeValue, float64(c.ctrl.Summaries().Len()))
}

// Handler registers a collector for ctrl on a fresh registry and returns
// the exposition handler for it.
func Handler(ctrl *controller.Controller) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(New(ctrl)); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}
