// Package api serves the controller's statistics over HTTP and its health over gRPC.
package api

import (
	"OFSpectra/internal/controller"
	"OFSpectra/internal/controller/session"
	"OFSpectra/internal/model"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Handler holds the dependencies of the HTTP handlers.
type Handler struct {
	ctrl *controller.Controller
}

// NewRouter builds the HTTP routes. metrics is mounted on /metrics when not nil.
func NewRouter(ctrl *controller.Controller, metrics http.Handler) *mux.Router {
	h := &Handler{ctrl: ctrl}

	r := mux.NewRouter()
	r.HandleFunc("/stats/flow/{dpid}", h.flowStatsHandler).Methods("GET")
	r.HandleFunc("/stats/port/{dpid}", h.portStatsHandler).Methods("GET")
	r.HandleFunc("/stats/protocol", h.protocolStatsHandler).Methods("GET")
	r.HandleFunc("/stats/packet_summaries", h.packetSummariesHandler).Methods("GET")
	r.HandleFunc("/stats/clear", h.clearHandler).Methods("POST")
	r.HandleFunc("/stats/switch", h.switchesHandler).Methods("GET")
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods("GET")
	}
	return r
}

type flowStatsResponse struct {
	Success bool                     `json:"success"`
	Flows   []model.FlowEntrySummary `json:"flows"`
}

type portStatsResponse struct {
	Success bool                    `json:"success"`
	Ports   []model.PortStatSummary `json:"ports"`
}

type historyResponse struct {
	Timestamps []float64             `json:"timestamps"`
	Protocols  []model.ProtocolStats `json:"protocols"`
}

type protocolStatsResponse struct {
	Success   bool                `json:"success"`
	Protocols model.ProtocolStats `json:"protocols"`
	History   historyResponse     `json:"history"`
}

type packetSummariesResponse struct {
	Success   bool                  `json:"success"`
	Summaries []model.PacketSummary `json:"packet_summaries"`
}

type switchEntry struct {
	DPID  uint64 `json:"dpid"`
	Ports int    `json:"ports"`
	State string `json:"state"`
}

type switchesResponse struct {
	Success  bool          `json:"success"`
	Switches []switchEntry `json:"switches"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// errNoSuchSwitch marks a dpid that is an integer but can never name a switch.
var errNoSuchSwitch = errors.New("switch not found")

// parseDPID reads the {dpid} path variable as a decimal integer. Negative
// values parse but yield errNoSuchSwitch.
func parseDPID(r *http.Request) (uint64, error) {
	v := mux.Vars(r)["dpid"]
	dpid, err := strconv.ParseUint(v, 10, 64)
	if err == nil {
		return dpid, nil
	}
	if n, serr := strconv.ParseInt(v, 10, 64); serr == nil && n < 0 {
		return 0, errors.Wrapf(errNoSuchSwitch, "switch %d", n)
	}
	return 0, errors.Wrapf(err, "invalid dpid '%s'", v)
}

// switchFromPath resolves the {dpid} path variable to a known switch and
// writes the error response when it cannot.
func (h *Handler) switchFromPath(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	dpid, err := parseDPID(r)
	if errors.Cause(err) == errNoSuchSwitch {
		http.Error(w, err.Error(), http.StatusNotFound)
		return 0, false
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return 0, false
	}
	if _, ok := h.ctrl.Sessions().Switch(dpid); !ok {
		http.Error(w, fmt.Sprintf("switch %d not found", dpid), http.StatusNotFound)
		return 0, false
	}
	return dpid, true
}

// refreshStats asks the switch for new statistics. The reply arrives later,
// so the current request is answered from the cached snapshot.
func (h *Handler) refreshStats(dpid uint64) {
	if err := h.ctrl.Sessions().RequestStats(dpid); err != nil {
		log.WithField("dpid", dpid).Debugf("Stats refresh skipped: %v", err)
	}
}

// flowStatsHandler returns the last flow statistics of a switch.
func (h *Handler) flowStatsHandler(w http.ResponseWriter, r *http.Request) {
	dpid, ok := h.switchFromPath(w, r)
	if !ok {
		return
	}
	h.refreshStats(dpid)

	flows, err := h.ctrl.Sessions().Flows(dpid)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, flowStatsResponse{Success: true, Flows: flows})
}

// portStatsHandler returns the last port statistics of a switch.
func (h *Handler) portStatsHandler(w http.ResponseWriter, r *http.Request) {
	dpid, ok := h.switchFromPath(w, r)
	if !ok {
		return
	}
	h.refreshStats(dpid)

	ports, err := h.ctrl.Sessions().Ports(dpid)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, portStatsResponse{Success: true, Ports: ports})
}

// protocolStatsHandler returns the cumulative protocol counters and their history.
func (h *Handler) protocolStatsHandler(w http.ResponseWriter, r *http.Request) {
	counters, history := h.ctrl.Stats().Snapshot()
	resp := protocolStatsResponse{
		Success:   true,
		Protocols: counters,
		History: historyResponse{
			Timestamps: make([]float64, 0, len(history)),
			Protocols:  make([]model.ProtocolStats, 0, len(history)),
		},
	}
	for _, s := range history {
		resp.History.Timestamps = append(resp.History.Timestamps, float64(s.Timestamp.UnixNano())/1e9)
		resp.History.Protocols = append(resp.History.Protocols, s.Protocols)
	}
	writeJSON(w, resp)
}

// packetSummariesHandler returns the newest packet summaries, limited by ?limit=N.
func (h *Handler) packetSummariesHandler(w http.ResponseWriter, r *http.Request) {
	ring := h.ctrl.Summaries()
	limit := ring.Capacity()
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid limit '%s'", v), http.StatusBadRequest)
			return
		}
		limit = n
	}
	writeJSON(w, packetSummariesResponse{Success: true, Summaries: ring.Recent(limit)})
}

// clearHandler resets protocol counters, their history and the packet summaries.
func (h *Handler) clearHandler(w http.ResponseWriter, r *http.Request) {
	h.ctrl.Clear()
	writeJSON(w, successResponse{Success: true})
}

// switchesHandler lists every known switch.
func (h *Handler) switchesHandler(w http.ResponseWriter, r *http.Request) {
	infos := h.ctrl.Sessions().Switches()
	resp := switchesResponse{Success: true, Switches: make([]switchEntry, 0, len(infos))}
	for _, info := range infos {
		resp.Switches = append(resp.Switches, switchEntry{
			DPID:  info.DPID,
			Ports: info.PortCount,
			State: info.State.String(),
		})
	}
	writeJSON(w, resp)
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Cause(err) == session.ErrUnknownSwitch {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// writeJSON encodes v before writing anything so that an encoding failure
// can still be reported as a 500.
func writeJSON(w http.ResponseWriter, v interface{}) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(jsonBytes)
}
