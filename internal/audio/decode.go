// Package audio decodes audio files into the mono 16 kHz float32 samples
// whisper.cpp expects.
package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// SampleRate is the rate whisper models are trained on.
const SampleRate = 16000

// LoadSamples returns mono float32 samples in [-1, 1] at SampleRate.
// A WAV file already at SampleRate is decoded directly; anything else is
// converted with ffmpeg first.
func LoadSamples(ctx context.Context, path, ffmpegPath string) ([]float32, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		samples, rate, err := decodeWAV(path)
		if err == nil && rate == SampleRate {
			return samples, nil
		}
	}

	tmpDir, err := os.MkdirTemp("", "transcrever-audio-*")
	if err != nil {
		return nil, fmt.Errorf("audio: create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outPath := filepath.Join(tmpDir, "preprocessed-16k-mono.wav")
	if err := convert(ctx, ffmpegPath, path, outPath); err != nil {
		return nil, err
	}

	samples, _, err := decodeWAV(outPath)
	if err != nil {
		return nil, err
	}
	return samples, nil
}

// decodeWAV reads a PCM WAV file and returns mono samples plus its sample rate.
func decodeWAV(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("audio: open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("audio: %s is not a valid WAV file", path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("audio: decode %s: %w", path, err)
	}
	return toMono(buf), int(dec.SampleRate), nil
}

// toMono averages interleaved channels and normalizes by bit depth.
func toMono(buf *goaudio.IntBuffer) []float32 {
	channels := 1
	if buf.Format != nil && buf.Format.NumChannels > 1 {
		channels = buf.Format.NumChannels
	}
	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))

	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for c := 0; c < channels; c++ {
			sum += buf.Data[i*channels+c]
		}
		samples[i] = float32(sum) / float32(channels) / scale
	}
	return samples
}

// convert runs ffmpeg to produce a mono 16 kHz PCM WAV at outPath.
func convert(ctx context.Context, ffmpegPath, inPath, outPath string) error {
	args := buildFFmpegArgs(inPath, outPath)
	cmd := exec.CommandContext(ctx, ffmpegPath, args...) //nolint:gosec // ffmpeg path comes from config
	out, err := cmd.CombinedOutput()
	if err != nil {
		tail := strings.TrimSpace(string(out))
		if i := strings.LastIndexByte(tail, '\n'); i >= 0 {
			tail = tail[i+1:]
		}
		return fmt.Errorf("audio: ffmpeg conversion failed: %w: %s", err, tail)
	}
	return nil
}

// buildFFmpegArgs builds preprocessing CLI args for mono 16k PCM WAV output.
func buildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
}
