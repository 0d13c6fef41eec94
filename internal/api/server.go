// Package api serves the read-only JSON API over stored packets, plus
// decode and send helpers for working with transport strings.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openpowerquality/opq.report/internal/db"
	"github.com/openpowerquality/opq.report/internal/httputil"
	"github.com/openpowerquality/opq.report/internal/ingest"
	"github.com/openpowerquality/opq.report/internal/protocol"
	"github.com/openpowerquality/opq.report/internal/serialmux"
)

// Store is the query side of the database. *db.DB implements it.
type Store interface {
	RecentPackets(limit int) ([]db.PacketRecord, error)
	Measurements(deviceID *int64, limit int) ([]db.MeasurementRecord, error)
	Alerts(deviceID *int64, limit int) ([]db.AlertRecord, error)
	MeasurementSummary(deviceID *int64, sinceMs, untilMs int64) (db.Summary, error)
	Devices() ([]db.DeviceSummary, error)
}

// StatsSource reports ingest counters. *ingest.Handler implements it.
type StatsSource interface {
	Stats() ingest.Stats
}

type Server struct {
	m     serialmux.SerialMuxInterface
	db    Store
	stats StatsSource
}

func NewServer(m serialmux.SerialMuxInterface, store Store, stats StatsSource) *Server {
	return &Server{m: m, db: store, stats: stats}
}

const maxDecodeBody = 1 << 20

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/packets", s.listPackets)
	mux.HandleFunc("/api/measurements", s.listMeasurements)
	mux.HandleFunc("/api/alerts", s.listAlerts)
	mux.HandleFunc("/api/summary", s.showSummary)
	mux.HandleFunc("/api/devices", s.listDevices)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/decode", s.decodePacket)
	mux.HandleFunc("/api/send", s.sendPacket)
	return mux
}

func (s *Server) listPackets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	limit, err := httputil.IntQuery(r, "limit", 100)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	packets, err := s.db.RecentPackets(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve packets: %v", err))
		return
	}
	out := make([]PacketView, 0, len(packets))
	for _, p := range packets {
		out = append(out, newPacketView(p))
	}
	httputil.WriteJSONOK(w, out)
}

// PacketView is a stored packet with its transport string.
type PacketView struct {
	db.PacketRecord
	Transport string `json:"transport"`
}

func newPacketView(r db.PacketRecord) PacketView {
	return PacketView{PacketRecord: r, Transport: r.Packet().TransportString()}
}

func (s *Server) listMeasurements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	deviceID, limit, ok := deviceAndLimit(w, r)
	if !ok {
		return
	}
	rows, err := s.db.Measurements(deviceID, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve measurements: %v", err))
		return
	}
	if rows == nil {
		rows = []db.MeasurementRecord{}
	}
	httputil.WriteJSONOK(w, rows)
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	deviceID, limit, ok := deviceAndLimit(w, r)
	if !ok {
		return
	}
	rows, err := s.db.Alerts(deviceID, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve alerts: %v", err))
		return
	}
	if rows == nil {
		rows = []db.AlertRecord{}
	}
	httputil.WriteJSONOK(w, rows)
}

func deviceAndLimit(w http.ResponseWriter, r *http.Request) (*int64, int, bool) {
	deviceID, err := httputil.OptionalInt64Query(r, "device_id")
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return nil, 0, false
	}
	limit, err := httputil.IntQuery(r, "limit", 100)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return nil, 0, false
	}
	return deviceID, limit, true
}

// showSummary aggregates measurements. The window is given either as
// since/until in Unix milliseconds or as hours back from now.
func (s *Server) showSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	deviceID, err := httputil.OptionalInt64Query(r, "device_id")
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	var since, until int64
	for name, dst := range map[string]*int64{"since": &since, "until": &until} {
		v, err := httputil.OptionalInt64Query(r, name)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if v != nil {
			*dst = *v
		}
	}
	if h := r.URL.Query().Get("hours"); h != "" {
		hours, err := strconv.Atoi(h)
		if err != nil || hours < 1 {
			httputil.BadRequest(w, "Invalid 'hours' parameter")
			return
		}
		since = time.Now().Add(-time.Duration(hours) * time.Hour).UnixMilli()
	}

	summary, err := s.db.MeasurementSummary(deviceID, since, until)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to compute summary: %v", err))
		return
	}
	httputil.WriteJSONOK(w, summary)
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	devices, err := s.db.Devices()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve devices: %v", err))
		return
	}
	if devices == nil {
		devices = []db.DeviceSummary{}
	}
	httputil.WriteJSONOK(w, devices)
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.stats == nil {
		httputil.WriteJSONOK(w, ingest.Stats{})
		return
	}
	httputil.WriteJSONOK(w, s.stats.Stats())
}

// TransportRequest is the body of /api/decode and /api/send.
type TransportRequest struct {
	Transport string `json:"transport"`
}

func readTransport(w http.ResponseWriter, r *http.Request) (*protocol.Packet, bool) {
	var req TransportRequest
	body := http.MaxBytesReader(w, r.Body, maxDecodeBody)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("Invalid JSON body: %v", err))
			return nil, false
		}
	} else {
		raw, err := io.ReadAll(body)
		if err != nil {
			httputil.BadRequest(w, fmt.Sprintf("Failed to read body: %v", err))
			return nil, false
		}
		req.Transport = string(raw)
	}

	encoded := strings.TrimSpace(req.Transport)
	if encoded == "" {
		httputil.BadRequest(w, "Missing transport string")
		return nil, false
	}
	p, err := protocol.FromTransportString(encoded)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return nil, false
	}
	return p, true
}

// decodePacket accepts a transport string as JSON {"transport": "..."} or
// as a plain text body and returns every decoded field.
func (s *Server) decodePacket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	p, ok := readTransport(w, r)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, protocol.Describe(p))
}

// sendPacket writes a transport string to the attached device unchanged.
func (s *Server) sendPacket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	p, ok := readTransport(w, r)
	if !ok {
		return
	}
	if err := s.m.SendPacket(p); err != nil {
		if errors.Is(err, serialmux.ErrWriteFailed) {
			httputil.WriteJSONError(w, http.StatusBadGateway, err.Error())
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("Failed to send packet: %v", err))
		return
	}
	log.Printf("api: sent packet %s", p)
	httputil.WriteJSON(w, http.StatusAccepted, map[string]int32{"sequence_number": p.SequenceNumber()})
}
