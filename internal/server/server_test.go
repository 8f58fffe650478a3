package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/gzip"

	"github.com/opero/opero-tts/internal/audio"
	"github.com/opero/opero-tts/internal/speech"
	"github.com/opero/opero-tts/internal/speech/engines/mock"
	"github.com/opero/opero-tts/internal/tempfiles"
)

type testEnv struct {
	server  *httptest.Server
	backend *mock.Engine
	engine  *speech.Engine
	files   *tempfiles.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := log.New(io.Discard)

	files, err := tempfiles.New(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("tempfiles.New failed: %v", err)
	}

	backend := mock.New()
	opts := speech.DefaultOptions()
	opts.Files = files
	opts.Logger = logger
	engine := speech.New(backend, opts)

	srv, err := New(DefaultConfig(), engine, logger)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, backend: backend, engine: engine, files: files}
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return v
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("Expected status %d, got %d", want, resp.StatusCode)
	}
}

func speakJSON(text string) string {
	b, _ := json.Marshal(SpeakRequest{Text: text})
	return string(b)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/", "")
	expectStatus(t, resp, http.StatusOK)

	got := decodeJSON[HealthResponse](t, resp)
	if got.Status != "ok" || got.Service != "Opero TTS Server" {
		t.Errorf("Unexpected health response: %+v", got)
	}
	if env.backend.Calls() != 0 {
		t.Error("Health check must not touch the engine")
	}
}

func TestStatusAndVoices(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/status", "")
	expectStatus(t, resp, http.StatusOK)
	status := decodeJSON[StatusResponse](t, resp)

	if status.Status != "ok" || status.Engine != "mock" {
		t.Errorf("Unexpected status: %+v", status)
	}

	resp = env.do(t, http.MethodGet, "/voices", "")
	expectStatus(t, resp, http.StatusOK)
	voices := decodeJSON[VoicesResponse](t, resp)

	if !voices.Success || voices.Count != len(voices.Voices) {
		t.Errorf("Inconsistent voices response: %+v", voices)
	}
	if voices.Count != status.VoicesAvailable {
		t.Errorf("voices count %d does not match voices_available %d", voices.Count, status.VoicesAvailable)
	}

	var female int
	for _, v := range voices.Voices {
		if v.Gender == speech.GenderFemale {
			female++
		}
		if v.Languages == nil {
			t.Errorf("Voice %q has null languages", v.ID)
		}
	}
	if female != 2 {
		t.Errorf("Expected 2 female voices (Zira, Hedda Female), got %d", female)
	}
}

func TestStatusLimitsVoices(t *testing.T) {
	env := newTestEnv(t)
	var many []speech.Voice
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		many = append(many, speech.NewVoice(name, name, "en"))
	}
	env.backend.SetVoices(many)

	status := decodeJSON[StatusResponse](t, env.do(t, http.MethodGet, "/status", ""))
	if status.VoicesAvailable != 7 || len(status.Voices) != 5 {
		t.Errorf("Expected 7 available and 5 listed, got %d and %d", status.VoicesAvailable, len(status.Voices))
	}
}

func TestSpeak(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/speak", speakJSON("Hello from the gateway"))
	expectStatus(t, resp, http.StatusOK)

	if ct := resp.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("Expected audio/wav, got %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename="speech.wav"` {
		t.Errorf("Unexpected Content-Disposition %q", cd)
	}

	w, err := audio.ParseWAV(readBody(t, resp))
	if err != nil {
		t.Fatalf("Response is not a WAV file: %v", err)
	}
	if w.Duration() <= 0 {
		t.Error("Expected non-empty audio")
	}
}

func TestSpeakRemovesTempFiles(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		resp := env.do(t, http.MethodPost, "/speak", speakJSON("cleanup check"))
		expectStatus(t, resp, http.StatusOK)
		readBody(t, resp)
		_ = resp.Body.Close()
	}
	resp := env.do(t, http.MethodPost, "/speak/base64", speakJSON("cleanup check"))
	expectStatus(t, resp, http.StatusOK)
	readBody(t, resp)

	waitForRelease(t, env.files)
	entries, err := os.ReadDir(env.files.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected empty temp dir, found %d files", len(entries))
	}
}

// waitForRelease waits for handlers to release their files. The client can
// finish reading a body just before the handler returns.
func waitForRelease(t *testing.T, files *tempfiles.Store) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for files.Pending() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected no pending files, got %d", files.Pending())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSpeakBase64MatchesFile(t *testing.T) {
	env := newTestEnv(t)
	text := "Grüße aus Köln"

	resp := env.do(t, http.MethodPost, "/speak", speakJSON(text))
	expectStatus(t, resp, http.StatusOK)
	raw := readBody(t, resp)

	resp = env.do(t, http.MethodPost, "/speak/base64", speakJSON(text))
	expectStatus(t, resp, http.StatusOK)
	got := decodeJSON[AudioResponse](t, resp)

	if !got.Success {
		t.Error("Expected success")
	}
	if got.TextLength != 14 {
		t.Errorf("Expected text_length 14 characters, got %d", got.TextLength)
	}

	const prefix = "data:audio/wav;base64,"
	if !strings.HasPrefix(got.Audio, prefix) {
		t.Fatalf("Missing data URI prefix: %.40q", got.Audio)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(got.Audio, prefix))
	if err != nil {
		t.Fatalf("Invalid base64: %v", err)
	}
	if !bytes.Equal(decoded, raw) {
		t.Error("Base64 audio differs from /speak audio for the same text")
	}
}

func TestSpeakInvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		detail string
	}{
		{"empty text", `{"text":""}`, "Text is required"},
		{"whitespace", `{"text":"   \n\t"}`, "Text is required"},
		{"missing text", `{"voice_id":"mock-david"}`, "Text is required"},
		{"too long", speakJSON(strings.Repeat("a", 5001)), "Text too long (max 5000 chars)"},
	}

	for _, path := range []string{"/speak", "/speak/base64"} {
		for _, tt := range tests {
			t.Run(path+"/"+tt.name, func(t *testing.T) {
				env := newTestEnv(t)

				resp := env.do(t, http.MethodPost, path, tt.body)
				expectStatus(t, resp, http.StatusBadRequest)
				got := decodeJSON[ErrorResponse](t, resp)
				if got.Detail != tt.detail {
					t.Errorf("Expected detail %q, got %q", tt.detail, got.Detail)
				}
				if env.backend.Calls() != 0 {
					t.Error("Engine must not be invoked for invalid input")
				}
			})
		}
	}
}

func TestSpeakMaxLength(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/speak/base64", speakJSON(strings.Repeat("ü", 5000)))
	expectStatus(t, resp, http.StatusOK)
	if got := decodeJSON[AudioResponse](t, resp); got.TextLength != 5000 {
		t.Errorf("Expected text_length 5000, got %d", got.TextLength)
	}
}

func TestMalformedBody(t *testing.T) {
	limit := DefaultConfig().MaxBodyBytes
	oversized := `{"text":"` + strings.Repeat("a", int(limit)) + `"}`

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		detail string
	}{
		{"broken json", "/speak", `{"text":`, http.StatusUnprocessableEntity, ""},
		{"wrong type", "/speak/base64", `{"text": 42}`, http.StatusUnprocessableEntity, ""},
		{"fractional rate", "/configure", `{"rate": 1.5}`, http.StatusUnprocessableEntity, ""},
		{"no body", "/speak", "", http.StatusUnprocessableEntity, "Request body is required"},
		{"second object", "/speak", `{"text":"hi"} {"text":"again"}`, http.StatusUnprocessableEntity, "Invalid request body: unexpected data after JSON object"},
		{"trailing garbage", "/speak/base64", `{"text":"hi"}]`, http.StatusUnprocessableEntity, ""},
		{"too large", "/speak", oversized, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body too large (max %d bytes)", limit)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			resp := env.do(t, http.MethodPost, tt.path, tt.body)
			expectStatus(t, resp, tt.status)
			got := decodeJSON[ErrorResponse](t, resp)
			switch {
			case got.Detail == "":
				t.Error("Expected a detail message")
			case tt.detail != "" && got.Detail != tt.detail:
				t.Errorf("Expected detail %q, got %q", tt.detail, got.Detail)
			}
			if env.backend.Calls() != 0 {
				t.Error("Engine must not be invoked for a rejected body")
			}
		})
	}
}

func TestTrailingWhitespaceAccepted(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/speak/base64", speakJSON("Hello")+"\n\t ")
	expectStatus(t, resp, http.StatusOK)
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		method, path, allow string
	}{
		{http.MethodGet, "/speak", "POST"},
		{http.MethodPut, "/speak/base64", "POST"},
		{http.MethodPost, "/voices", "GET"},
		{http.MethodDelete, "/status", "GET"},
		{http.MethodGet, "/configure", "POST"},
		{http.MethodPost, "/", "GET"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp := env.do(t, tt.method, tt.path, "")
			expectStatus(t, resp, http.StatusMethodNotAllowed)
			if got := resp.Header.Get("Allow"); got != tt.allow {
				t.Errorf("Expected Allow %q, got %q", tt.allow, got)
			}
			if got := decodeJSON[ErrorResponse](t, resp); got.Detail != "Method Not Allowed" {
				t.Errorf("Unexpected detail %q", got.Detail)
			}
		})
	}
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/nope", "")
	expectStatus(t, resp, http.StatusNotFound)
	if got := decodeJSON[ErrorResponse](t, resp); got.Detail != "Not Found" {
		t.Errorf("Unexpected detail %q", got.Detail)
	}
}

func speakDuration(t *testing.T, env *testEnv, text string) time.Duration {
	t.Helper()
	resp := env.do(t, http.MethodPost, "/speak", speakJSON(text))
	expectStatus(t, resp, http.StatusOK)
	w, err := audio.ParseWAV(readBody(t, resp))
	if err != nil {
		t.Fatal(err)
	}
	return w.Duration()
}

func TestConfigureRate(t *testing.T) {
	env := newTestEnv(t)
	text := "the rate of speech should change the length of this sentence"

	var previous time.Duration
	for i, rate := range []int{80, 160, 320} {
		resp := env.do(t, http.MethodPost, "/configure", `{"rate":`+jsonInt(rate)+`}`)
		expectStatus(t, resp, http.StatusOK)
		got := decodeJSON[ConfigureResponse](t, resp)
		if !got.Success || got.Message != "Configuration updated" {
			t.Errorf("Unexpected configure response: %+v", got)
		}

		d := speakDuration(t, env, text)
		if i > 0 && d >= previous {
			t.Errorf("Expected shorter audio at %d wpm: %v >= %v", rate, d, previous)
		}
		previous = d
	}
}

func jsonInt(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestConfigureAcceptsAnything(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{`{}`, `{"voice_id":"does-not-exist"}`, `{"rate":-50}`, `{"voice_id":null,"rate":null}`} {
		resp := env.do(t, http.MethodPost, "/configure", body)
		expectStatus(t, resp, http.StatusOK)
	}
	if got := env.engine.Settings(); got.VoiceID != "does-not-exist" || got.Rate != -50 {
		t.Errorf("Expected values to pass through unchecked, got %+v", got)
	}
}

func TestSpeakOverrides(t *testing.T) {
	env := newTestEnv(t)

	body := `{"text":"override","voice_id":"mock-david","rate":220,"persist":false}`
	resp := env.do(t, http.MethodPost, "/speak", body)
	expectStatus(t, resp, http.StatusOK)
	if got := env.backend.LastSettings(); got.VoiceID != "mock-david" || got.Rate != 220 {
		t.Errorf("Overrides not applied: %+v", got)
	}

	resp = env.do(t, http.MethodPost, "/speak", speakJSON("plain"))
	expectStatus(t, resp, http.StatusOK)
	if got := env.backend.LastSettings(); got.VoiceID != "mock-zira" || got.Rate != speech.DefaultRate {
		t.Errorf("Transient overrides leaked: %+v", got)
	}

	body = `{"text":"override","voice_id":"mock-david","rate":220}`
	resp = env.do(t, http.MethodPost, "/speak", body)
	expectStatus(t, resp, http.StatusOK)
	resp = env.do(t, http.MethodPost, "/speak", speakJSON("plain"))
	expectStatus(t, resp, http.StatusOK)
	if got := env.backend.LastSettings(); got.VoiceID != "mock-david" || got.Rate != 220 {
		t.Errorf("Expected overrides to persist by default: %+v", got)
	}
}

func TestSynthesisFailure(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.Init(context.Background()); err != nil {
		t.Fatal(err)
	}

	env.backend.SetFailure(errors.New("audio driver exploded"))
	for _, path := range []string{"/speak", "/speak/base64"} {
		resp := env.do(t, http.MethodPost, path, speakJSON("Hello"))
		expectStatus(t, resp, http.StatusInternalServerError)
		if got := decodeJSON[ErrorResponse](t, resp); got.Detail != "audio driver exploded" {
			t.Errorf("%s: expected raw engine message, got %q", path, got.Detail)
		}
	}

	env.backend.SetFailure(nil)
	resp := env.do(t, http.MethodPost, "/speak", speakJSON("Hello"))
	expectStatus(t, resp, http.StatusOK)
	readBody(t, resp)
	waitForRelease(t, env.files)
}

func TestConcurrentRequests(t *testing.T) {
	env := newTestEnv(t)
	env.backend.SetDelay(5 * time.Millisecond)

	texts := []string{
		"one",
		"one two",
		"one two three",
		"one two three four",
		"one two three four five",
		"one two three four five six",
	}
	results := make([][]byte, len(texts))
	statuses := make([]int, len(texts))

	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			resp, err := env.server.Client().Post(env.server.URL+"/speak", "application/json", strings.NewReader(speakJSON(text)))
			if err != nil {
				t.Errorf("request %d: %v", i, err)
				return
			}
			defer func() { _ = resp.Body.Close() }()
			statuses[i] = resp.StatusCode
			results[i], _ = io.ReadAll(resp.Body)
		}(i, text)
	}
	wg.Wait()

	for i, status := range statuses {
		if status != http.StatusOK {
			t.Fatalf("request %d: status %d", i, status)
		}
	}
	for i := range results {
		for j := i + 1; j < len(results); j++ {
			if bytes.Equal(results[i], results[j]) {
				t.Errorf("requests %d and %d returned the same audio", i, j)
			}
		}
	}
	if peak := env.backend.MaxConcurrent(); peak != 1 {
		t.Errorf("Expected serialized synthesis, saw %d concurrent", peak)
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/", "", "Origin", "chrome-extension://abcdef")
	expectStatus(t, resp, http.StatusOK)
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "chrome-extension://abcdef" {
		t.Errorf("Expected origin echoed, got %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Expected credentials allowed, got %q", got)
	}

	resp = env.do(t, http.MethodGet, "/", "")
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected wildcard origin without Origin header, got %q", got)
	}

	resp = env.do(t, http.MethodOptions, "/speak", "",
		"Origin", "http://localhost:3000",
		"Access-Control-Request-Method", "POST",
		"Access-Control-Request-Headers", "content-type, x-custom")
	expectStatus(t, resp, http.StatusOK)
	if got := resp.Header.Get("Access-Control-Allow-Methods"); !strings.Contains(got, "POST") {
		t.Errorf("Expected POST in allowed methods, got %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Headers"); got != "content-type, x-custom" {
		t.Errorf("Expected requested headers allowed, got %q", got)
	}
	if env.backend.Calls() != 0 {
		t.Error("Preflight must not reach the engine")
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/", "")
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("Expected a generated request id")
	}

	resp = env.do(t, http.MethodGet, "/", "", RequestIDHeader, "abc-123")
	if got := resp.Header.Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("Expected caller request id, got %q", got)
	}
}

func TestGzipJSON(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/speak/base64", speakJSON("compress this response please"), "Accept-Encoding", "gzip")
	expectStatus(t, resp, http.StatusOK)
	if got := resp.Header.Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Expected gzip encoding, got %q", got)
	}

	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	var got AudioResponse
	if err := json.NewDecoder(zr).Decode(&got); err != nil {
		t.Fatalf("Failed to decode gzipped body: %v", err)
	}
	if !got.Success {
		t.Error("Expected success")
	}

	// audio downloads are sent as-is
	resp = env.do(t, http.MethodPost, "/speak", speakJSON("compress this response please"), "Accept-Encoding", "gzip")
	expectStatus(t, resp, http.StatusOK)
	if got := resp.Header.Get("Content-Encoding"); got != "" {
		t.Errorf("Expected uncompressed audio, got %q", got)
	}
}

func TestAddress(t *testing.T) {
	srv, err := New(Config{Host: "127.0.0.1", Port: 8765}, mockSpeaker(t), log.New(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	if got := srv.Address(); got != "127.0.0.1:8765" {
		t.Errorf("Unexpected address %q", got)
	}
}

func TestStartAsyncAndStop(t *testing.T) {
	srv, err := New(Config{Host: "127.0.0.1", Port: 0}, mockSpeaker(t), log.New(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.StartAsync(); err != nil {
		t.Fatalf("StartAsync failed: %v", err)
	}
	if err := srv.Stop(context.Background()); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func mockSpeaker(t *testing.T) *speech.Engine {
	t.Helper()
	opts := speech.DefaultOptions()
	opts.Logger = log.New(io.Discard)
	return speech.New(mock.New(), opts)
}
