package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/opero/opero-tts/internal/speech"
)

// Speaker is the engine handle used by the handlers.
type Speaker interface {
	Name() string
	Voices(ctx context.Context) ([]speech.Voice, error)
	Configure(cfg speech.VoiceConfig)
	Speak(ctx context.Context, req speech.SpeakRequest) (string, error)
	SpeakBytes(ctx context.Context, req speech.SpeakRequest) ([]byte, error)
	Release(path string) error
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /speak", s.handleSpeak)
	mux.HandleFunc("POST /speak/base64", s.handleSpeakBase64)
	mux.HandleFunc("GET /voices", s.handleVoices)
	mux.HandleFunc("POST /configure", s.handleConfigure)

	// JSON bodies for wrong methods and unknown paths
	mux.Handle("/{$}", methodNotAllowed("GET"))
	mux.Handle("/status", methodNotAllowed("GET"))
	mux.Handle("/speak", methodNotAllowed("POST"))
	mux.Handle("/speak/base64", methodNotAllowed("POST"))
	mux.Handle("/voices", methodNotAllowed("GET"))
	mux.Handle("/configure", methodNotAllowed("POST"))
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Service: ServiceName})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	voices, err := s.voices(r)
	if err != nil {
		s.writeSpeechError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Status:          "ok",
		Engine:          s.engine.Name(),
		VoicesAvailable: len(voices),
		Voices:          voices[:min(len(voices), statusVoiceLimit)],
	})
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := s.voices(r)
	if err != nil {
		s.writeSpeechError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, VoicesResponse{Success: true, Count: len(voices), Voices: voices})
}

// voices never returns a nil slice so the JSON list is always an array.
func (s *Server) voices(r *http.Request) ([]speech.Voice, error) {
	voices, err := s.engine.Voices(context.WithoutCancel(r.Context()))
	if err != nil {
		return nil, err
	}
	if voices == nil {
		voices = []speech.Voice{}
	}
	return voices, nil
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	var cfg VoiceConfig
	if !s.decode(w, r, &cfg) {
		return
	}

	s.engine.Configure(speech.VoiceConfig{VoiceID: cfg.VoiceID, Rate: cfg.Rate})
	writeJSON(w, http.StatusOK, ConfigureResponse{Success: true, Message: "Configuration updated"})
}

// handleSpeak sends the synthesized WAV as a download and removes the
// temporary file once the body has been written.
func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req SpeakRequest
	if !s.decode(w, r, &req) {
		return
	}

	// synthesis is not cancelled when the client goes away
	path, err := s.engine.Speak(context.WithoutCancel(r.Context()), req.toSpeech())
	if err != nil {
		s.writeSpeechError(w, r, err)
		return
	}
	defer func() {
		if err := s.engine.Release(path); err != nil {
			s.logger.Warn("Failed to remove audio file", "path", path, "error", err)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		s.writeSpeechError(w, r, err)
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		s.writeSpeechError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", `attachment; filename="speech.wav"`)
	http.ServeContent(w, r, "speech.wav", info.ModTime(), f)
}

func (s *Server) handleSpeakBase64(w http.ResponseWriter, r *http.Request) {
	var req SpeakRequest
	if !s.decode(w, r, &req) {
		return
	}

	data, err := s.engine.SpeakBytes(context.WithoutCancel(r.Context()), req.toSpeech())
	if err != nil {
		s.writeSpeechError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, AudioResponse{
		Success:    true,
		Audio:      "data:audio/wav;base64," + base64.StdEncoding.EncodeToString(data),
		TextLength: speech.TextLength(req.Text),
	})
}

var errTrailingData = errors.New("unexpected data after JSON object")

// decode reads a JSON body into v. On failure it writes the error response
// and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	dec := json.NewDecoder(body)
	err := dec.Decode(v)
	if err == nil {
		// only whitespace may follow the object
		var extra json.RawMessage
		if err = dec.Decode(&extra); errors.Is(err, io.EOF) {
			return true
		}
		if err == nil {
			err = errTrailingData
		}
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body too large (max %d bytes)", tooLarge.Limit))
	case errors.Is(err, io.EOF):
		writeError(w, http.StatusUnprocessableEntity, "Request body is required")
	default:
		writeError(w, http.StatusUnprocessableEntity, "Invalid request body: "+err.Error())
	}
	return false
}

// writeSpeechError maps engine errors to 400 or 500.
func (s *Server) writeSpeechError(w http.ResponseWriter, r *http.Request, err error) {
	detail := err.Error()
	var serr *speech.Error
	if errors.As(err, &serr) {
		detail = serr.Message
	}

	if errors.Is(err, speech.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, detail)
		return
	}

	s.logger.Error("Speech request failed", "path", r.URL.Path, "requestID", RequestID(r.Context()), "error", err)
	writeError(w, http.StatusInternalServerError, detail)
}

func methodNotAllowed(allow string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Allow", allow)
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}
