package server

import "github.com/opero/opero-tts/internal/speech"

// ServiceName is reported by the health endpoint.
const ServiceName = "Opero TTS Server"

// statusVoiceLimit caps the voices embedded in the status response.
const statusVoiceLimit = 5

// SpeakRequest is the body of /speak and /speak/base64.
type SpeakRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id,omitempty"`
	Rate    int    `json:"rate,omitempty"`

	// Persist overrides the configured override persistence for this call.
	Persist *bool `json:"persist,omitempty"`
}

func (r SpeakRequest) toSpeech() speech.SpeakRequest {
	return speech.SpeakRequest{
		Text:    r.Text,
		VoiceID: r.VoiceID,
		Rate:    r.Rate,
		Persist: r.Persist,
	}
}

// VoiceConfig is the body of /configure.
type VoiceConfig struct {
	VoiceID string `json:"voice_id,omitempty"`
	Rate    int    `json:"rate,omitempty"`
}

// HealthResponse is returned by GET /.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Status          string         `json:"status"`
	Engine          string         `json:"engine"`
	VoicesAvailable int            `json:"voices_available"`
	Voices          []speech.Voice `json:"voices"`
}

// VoicesResponse is returned by GET /voices.
type VoicesResponse struct {
	Success bool           `json:"success"`
	Count   int            `json:"count"`
	Voices  []speech.Voice `json:"voices"`
}

// AudioResponse is returned by POST /speak/base64.
type AudioResponse struct {
	Success    bool   `json:"success"`
	Audio      string `json:"audio"`
	TextLength int    `json:"text_length"`
}

// ConfigureResponse is returned by POST /configure.
type ConfigureResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
