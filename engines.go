package main

// Speech backends register themselves with speech.Backends.
import (
	_ "github.com/opero/opero-tts/internal/speech/engines/espeak"
	_ "github.com/opero/opero-tts/internal/speech/engines/mock"
	_ "github.com/opero/opero-tts/internal/speech/engines/piper"
	_ "github.com/opero/opero-tts/internal/speech/engines/sapi"
	_ "github.com/opero/opero-tts/internal/speech/engines/say"
)
