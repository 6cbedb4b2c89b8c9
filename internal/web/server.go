// Package web provides the HTTP status and command surface for the
// gas-rig daemon. Reads come from the status tracker's snapshots;
// commands go straight to the engine, which serializes them against
// the tick loop.
package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/gas-rig/internal/engine"
	"github.com/sweeney/gas-rig/internal/protocol"
	"github.com/sweeney/gas-rig/internal/series"
	"github.com/sweeney/gas-rig/internal/status"
)

// Server serves the status page and the command endpoints.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	eng        *engine.Engine
	log        *logrus.Entry
}

// New creates a Server that reads state from the tracker and issues
// commands to the engine.
func New(addr string, tracker *status.Tracker, eng *engine.Engine, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{tracker: tracker, eng: eng, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/series.json", s.handleSeries)
	mux.HandleFunc("/timeline.json", s.handleTimeline)
	mux.HandleFunc("/protocol/start", s.handleProtocolStart)
	mux.HandleFunc("/protocol/cancel", s.handleProtocolCancel)
	mux.HandleFunc("/auto/start", s.handleAutoStart)
	mux.HandleFunc("/auto/stop", s.handleAutoStop)
	mux.HandleFunc("/channel/reset", s.handleChannelReset)
	mux.HandleFunc("/reference", s.handleReference)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(formatJSON(snap))
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	ch, ok := series.ParseChannel(r.URL.Query().Get("channel"))
	if !ok {
		http.Error(w, "unknown channel", http.StatusBadRequest)
		return
	}
	samples := s.eng.Snapshot(ch)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(formatSeries(ch, samples))
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(formatTimeline(s.eng.TimelineSnapshot()))
}

func (s *Server) handleProtocolStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	kind := protocol.Kind(r.URL.Query().Get("kind"))
	var err error
	switch kind {
	case protocol.KindCO2, protocol.KindResistance, protocol.KindFull:
		err = s.eng.StartProtocol(kind, time.Now())
	default:
		http.Error(w, "unknown protocol kind", http.StatusBadRequest)
		return
	}
	s.respond(w, "start "+string(kind), err)
}

func (s *Server) handleProtocolCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	kind := protocol.Kind(r.URL.Query().Get("kind"))
	switch kind {
	case protocol.KindCO2, protocol.KindResistance, protocol.KindFull:
	default:
		http.Error(w, "unknown protocol kind", http.StatusBadRequest)
		return
	}
	s.respond(w, "cancel "+string(kind), s.eng.CancelProtocol(kind))
}

func (s *Server) handleAutoStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	s.respond(w, "start auto", s.eng.StartAuto(time.Now()))
}

func (s *Server) handleAutoStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	s.respond(w, "stop auto", s.eng.StopAuto())
}

func (s *Server) handleChannelReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	ch, ok := series.ParseChannel(r.URL.Query().Get("channel"))
	if !ok {
		http.Error(w, "unknown channel", http.StatusBadRequest)
		return
	}
	s.respond(w, "reset "+ch.String(), s.eng.ResetChannel(ch))
}

func (s *Server) handleReference(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	ohms, err := strconv.ParseFloat(r.URL.Query().Get("ohms"), 64)
	if err != nil {
		http.Error(w, "bad ohms value", http.StatusBadRequest)
		return
	}
	s.respond(w, "set reference", s.eng.SetReferenceResistance(ohms))
}

// respond writes the uniform command result payload.
func (s *Server) respond(w http.ResponseWriter, action string, err error) {
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		s.log.WithError(err).WithField("action", action).Warn("command rejected")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"action": action, "error": err.Error()})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"action": action, "result": "ok"})
}
