package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/bft-labs/dripfeed/internal/adapters/fs"
	"github.com/bft-labs/dripfeed/internal/adapters/serial"
	"github.com/bft-labs/dripfeed/internal/domain"
	"github.com/bft-labs/dripfeed/internal/observer"
	"github.com/bft-labs/dripfeed/internal/ports"
	"github.com/bft-labs/dripfeed/pkg/log"
)

// Client-facing messages.
const (
	msgNoFile        = "No file uploaded."
	msgBadSpeed      = "Invalid baud rate provided."
	msgUndefinedPort = "COM port is undefined. Please select a valid COM port."
	msgBadRequest    = "Malformed request body."
	msgNotAccessible = "G-code file is not accessible."
)

// speed accepts a baud rate sent either as a JSON number or a numeric
// string. Anything else decodes as zero, which validation rejects.
type speed int

func (s *speed) UnmarshalJSON(b []byte) error {
	str := strings.Trim(string(b), `"`)
	n, err := strconv.Atoi(strings.TrimSpace(str))
	if err != nil {
		*s = 0
		return nil
	}
	*s = speed(n)
	return nil
}

type sessionRequest struct {
	FilePath string `json:"filepath"`
	Speed    speed  `json:"baudRate"`
	Address  string `json:"comPort"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

// statusFor maps a classified error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConnection), errors.Is(err, domain.ErrWrite):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handlePorts(w http.ResponseWriter, r *http.Request) {
	list, err := s.listPorts()
	if err != nil {
		s.logger.Error("list ports failed", log.Err(err))
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"ports": []serial.PortInfo{},
			"error": err.Error(),
		})
		return
	}
	if list == nil {
		list = []serial.PortInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ports": list})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "File too large.")
			return
		}
		writeMessage(w, http.StatusBadRequest, msgNoFile)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("gcode")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, msgNoFile)
		return
	}
	defer file.Close()

	baud, err := strconv.Atoi(strings.TrimSpace(r.FormValue("baudRate")))
	if err != nil || baud <= 0 {
		writeMessage(w, http.StatusBadRequest, msgBadSpeed)
		return
	}
	address := r.FormValue("comPort")
	if address == "" {
		writeMessage(w, http.StatusBadRequest, msgUndefinedPort)
		return
	}

	path, err := s.uploads.Save(header.Filename, file)
	if err != nil {
		if errors.Is(err, fs.ErrExtensionNotAllowed) {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("store upload failed", log.String("file", header.Filename), log.Err(err))
		writeMessage(w, http.StatusInternalServerError, "Failed to store upload.")
		return
	}
	s.logger.Info("upload stored", log.String("path", path), log.Int64("bytes", header.Size))

	writeJSON(w, http.StatusOK, sessionRequest{FilePath: path, Speed: speed(baud), Address: address})
}

func (s *Server) handleDripFeed(w http.ResponseWriter, r *http.Request) {
	var body sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	req := domain.Request{Address: body.Address, Speed: int(body.Speed)}
	if body.FilePath != "" {
		path, err := s.uploads.Resolve(body.FilePath)
		if err != nil {
			s.logger.Warn("rejected file path", log.String("filepath", body.FilePath), log.Err(err))
			writeMessage(w, http.StatusBadRequest, msgNotAccessible)
			return
		}
		req.FilePath = path
	}

	sink := observer.NewSink(s.cfg.Events)
	info, _ := s.manager.Start(req, sink)

	w.Header().Set("Content-Type", observer.NDJSONContentType)
	w.Header().Set("X-Session-ID", info.ID)
	w.WriteHeader(http.StatusOK)

	if err := observer.WriteNDJSON(r.Context(), w, sink.Events()); err != nil {
		s.logger.Info("event stream ended early",
			log.String("session", info.ID),
			log.Err(err),
		)
	}
	if n := sink.Dropped(); n > 0 {
		s.logger.Warn("events dropped for slow observer",
			log.String("session", info.ID),
			log.Int64("dropped", n),
		)
	}
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	var body sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	var result domain.Event
	capture := ports.EventSinkFunc(func(ev domain.Event) { result = ev })
	s.prober.Probe(r.Context(), body.Address, int(body.Speed), capture)

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": s.manager.List()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.manager.Get(r.PathValue("id"))
	if err != nil {
		writeMessage(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.manager.Cancel(id); err != nil {
		writeMessage(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "cancelling"})
}
