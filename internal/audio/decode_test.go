package audio

import (
	"context"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeWAV writes 16-bit PCM samples (interleaved when channels > 1).
func writeWAV(t *testing.T, path string, sampleRate, channels int, data []int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer func() { _ = f.Close() }()

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close wav encoder: %v", err)
	}
}

func TestLoadSamplesMono16k(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mono.wav")
	data := make([]int, SampleRate/2)
	for i := range data {
		data[i] = int(16000 * math.Sin(float64(i)/10))
	}
	writeWAV(t, path, SampleRate, 1, data)

	samples, err := LoadSamples(context.Background(), path, "ffmpeg-not-needed")
	if err != nil {
		t.Fatalf("LoadSamples() error = %v", err)
	}
	if len(samples) != len(data) {
		t.Fatalf("len(samples) = %d, want %d", len(samples), len(data))
	}
	for i, s := range samples {
		if s < -1.0 || s > 1.0 {
			t.Fatalf("sample[%d] = %f, out of [-1.0, 1.0] range", i, s)
		}
	}
}

func TestLoadSamplesDownmixesStereo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	// Left and right cancel out on even frames and agree on odd frames.
	data := []int{1000, -1000, 8192, 8192, 1000, -1000, 8192, 8192}
	writeWAV(t, path, SampleRate, 2, data)

	samples, err := LoadSamples(context.Background(), path, "ffmpeg-not-needed")
	if err != nil {
		t.Fatalf("LoadSamples() error = %v", err)
	}
	want := []float32{0, 0.25, 0, 0.25}
	if len(samples) != len(want) {
		t.Fatalf("len(samples) = %d, want %d", len(samples), len(want))
	}
	for i := range want {
		if math.Abs(float64(samples[i]-want[i])) > 1e-6 {
			t.Errorf("samples[%d] = %f, want %f", i, samples[i], want[i])
		}
	}
}

func TestLoadSamplesResamplesWithFFmpeg(t *testing.T) {
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skipf("ffmpeg not installed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "8k.wav")
	writeWAV(t, path, 8000, 1, make([]int, 8000))

	samples, err := LoadSamples(context.Background(), path, ffmpeg)
	if err != nil {
		t.Fatalf("LoadSamples() error = %v", err)
	}
	// One second of audio at 16 kHz, allowing for resampler padding.
	if len(samples) < 15000 || len(samples) > 17000 {
		t.Errorf("expected ~16000 samples, got %d", len(samples))
	}
}

func TestLoadSamplesMissingFFmpeg(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp3")
	if err := os.WriteFile(path, []byte("not really mp3"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadSamples(context.Background(), path, filepath.Join(t.TempDir(), "no-ffmpeg"))
	if err == nil {
		t.Fatal("LoadSamples() should fail when ffmpeg cannot run")
	}
}

func TestBuildFFmpegArgs(t *testing.T) {
	args := buildFFmpegArgs("in.ogg", "out.wav")
	if args[len(args)-1] != "out.wav" {
		t.Errorf("last arg = %q, want output path", args[len(args)-1])
	}
	want := map[string]string{"-i": "in.ogg", "-ac": "1", "-ar": "16000", "-c:a": "pcm_s16le"}
	for i := 0; i < len(args)-1; i++ {
		if v, ok := want[args[i]]; ok {
			if args[i+1] != v {
				t.Errorf("%s = %q, want %q", args[i], args[i+1], v)
			}
			delete(want, args[i])
		}
	}
	if len(want) != 0 {
		t.Errorf("missing flags: %v", want)
	}
}
