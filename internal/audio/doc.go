// Package audio reads and writes PCM WAV files and plays them back through
// the oto/v3 library.
package audio
