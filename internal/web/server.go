// Package web provides an HTTP status and control server for the
// chamber-heater daemon.
package web

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"

	"github.com/sweeney/chamber-heater/internal/control"
	"github.com/sweeney/chamber-heater/internal/status"
)

// Control is the subset of the controller the web server drives.
type Control interface {
	SetTunings(kp, ki, kd float64)
	SetMaxPWM(max float64)
	SetEnabled(enabled bool)
	SetOnOffMode(onOff bool)
	ResetPID()
	TurnOffPWM() error
	Parameters() control.Parameters
}

// Server serves the status page and control API over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	ctrl       Control
}

// New creates a Server that reads state from the given tracker and
// applies parameter changes through ctrl.
func New(addr string, tracker *status.Tracker, ctrl Control) *Server {
	s := &Server{tracker: tracker, ctrl: ctrl}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/api/params", s.handleParams)
	mux.HandleFunc("/api/mode", s.handleMode)
	mux.HandleFunc("/api/reset-pid", s.handleResetPID)
	mux.HandleFunc("/api/pwm-off", s.handlePWMOff)

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
	w.Write(status.FormatJSON(snap))
}

// paramsRequest is the POST /api/params body. Omitted fields keep
// their current values.
type paramsRequest struct {
	P      *float64 `json:"p"`
	I      *float64 `json:"i"`
	D      *float64 `json:"d"`
	MaxPWM *float64 `json:"max_pwm"`
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req paramsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}

	cur := s.ctrl.Parameters()
	kp, ki, kd, max := cur.KP, cur.KI, cur.KD, cur.MaxPWM
	if req.P != nil {
		kp = *req.P
	}
	if req.I != nil {
		ki = *req.I
	}
	if req.D != nil {
		kd = *req.D
	}
	if req.MaxPWM != nil {
		max = *req.MaxPWM
	}

	s.ctrl.SetTunings(kp, ki, kd)
	s.ctrl.SetMaxPWM(max)
	log.Printf("web: params updated p=%v i=%v d=%v max_pwm=%v", kp, ki, kd, max)

	s.writeParams(w)
}

// modeRequest is the POST /api/mode body.
type modeRequest struct {
	Enabled *bool `json:"enabled"`
	OnOff   *bool `json:"on_off"`
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.Enabled != nil {
		s.ctrl.SetEnabled(*req.Enabled)
		log.Printf("web: control enabled=%v", *req.Enabled)
	}
	if req.OnOff != nil {
		s.ctrl.SetOnOffMode(*req.OnOff)
		log.Printf("web: on-off mode=%v", *req.OnOff)
	}

	s.writeParams(w)
}

func (s *Server) handleResetPID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.ctrl.ResetPID()
	log.Print("web: PID state reset")
	s.writeParams(w)
}

func (s *Server) handlePWMOff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.ctrl.TurnOffPWM(); err != nil {
		log.Printf("web: PWM off failed: %v", err)
		http.Error(w, "pwm off failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	log.Print("web: PWM forced off")
	s.writeParams(w)
}

// writeParams responds with the live control parameters so callers can
// confirm what was applied.
func (s *Server) writeParams(w http.ResponseWriter) {
	p := s.ctrl.Parameters()
	resp := struct {
		Enabled bool    `json:"enabled"`
		OnOff   bool    `json:"on_off"`
		P       float64 `json:"p"`
		I       float64 `json:"i"`
		D       float64 `json:"d"`
		MaxPWM  float64 `json:"max_pwm"`
	}{p.Enabled, p.OnOff, p.KP, p.KI, p.KD, p.MaxPWM}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
