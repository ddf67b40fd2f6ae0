// Package models locates and downloads the ggml whisper weights used by the
// in-process whisper.cpp backend.
package models

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

const baseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

// fileNames maps a model name to its ggml file. "large" points at the
// latest large release.
var fileNames = map[string]string{
	"tiny":   "ggml-tiny.bin",
	"base":   "ggml-base.bin",
	"small":  "ggml-small.bin",
	"medium": "ggml-medium.bin",
	"large":  "ggml-large-v3.bin",
}

// FileName returns the ggml file name for a model name.
func FileName(model string) string {
	if name, ok := fileNames[model]; ok {
		return name
	}
	return "ggml-" + model + ".bin"
}

// Path returns where the weights for model live under dir.
func Path(dir, model string) string {
	return filepath.Join(dir, FileName(model))
}

// URL returns the download location for model.
func URL(model string) string {
	return baseURL + FileName(model)
}

// Installed reports whether a non-empty weights file exists for model.
func Installed(dir, model string) bool {
	info, err := os.Stat(Path(dir, model))
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// Downloader fetches weights over HTTP.
type Downloader struct {
	Client  *http.Client
	BaseURL string
}

// NewDownloader returns a Downloader for the HuggingFace whisper.cpp repo.
func NewDownloader() *Downloader {
	return &Downloader{Client: http.DefaultClient, BaseURL: baseURL}
}

// Download fetches the weights for model into dir and returns the file path.
// Existing weights are kept. Progress is written to progress, which may be nil.
func (d *Downloader) Download(ctx context.Context, dir, model string, progress io.Writer) (string, error) {
	if _, ok := fileNames[model]; !ok {
		return "", fmt.Errorf("models: unknown model %q", model)
	}
	if progress == nil {
		progress = io.Discard
	}

	destPath := Path(dir, model)
	if info, err := os.Stat(destPath); err == nil && info.Size() > 0 {
		fmt.Fprintf(progress, "  Model already exists: %s (%.0f MB)\n", destPath, float64(info.Size())/(1024*1024))
		return destPath, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("models: creating models dir: %w", err)
	}

	url := d.BaseURL + FileName(model)
	fmt.Fprintf(progress, "  Downloading %s\n", url)
	fmt.Fprintf(progress, "  Destination: %s\n", destPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("models: building request: %w", err)
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("models: downloading %s: %w", model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("models: download failed: HTTP %d", resp.StatusCode)
	}

	// Write to temp file first, then rename (atomic)
	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("models: creating temp file: %w", err)
	}

	pw := &progressWriter{
		writer: f,
		out:    progress,
		total:  resp.ContentLength,
		label:  FileName(model),
	}

	written, err := io.Copy(pw, resp.Body)
	f.Close()
	if err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("models: writing model file: %w", err)
	}

	fmt.Fprintf(progress, "\n  Downloaded %.1f MB\n", float64(written)/(1024*1024))

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("models: moving model file: %w", err)
	}
	return destPath, nil
}

// progressWriter wraps an io.Writer and prints download progress to out.
type progressWriter struct {
	writer  io.Writer
	out     io.Writer
	total   int64
	written int64
	label   string
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	pw.written += int64(n)
	if pw.total > 0 {
		pct := float64(pw.written) / float64(pw.total) * 100
		fmt.Fprintf(pw.out, "\r  %s: %.1f MB / %.1f MB (%.0f%%)",
			pw.label,
			float64(pw.written)/(1024*1024),
			float64(pw.total)/(1024*1024),
			pct)
	} else {
		fmt.Fprintf(pw.out, "\r  %s: %.1f MB downloaded",
			pw.label,
			float64(pw.written)/(1024*1024))
	}
	return n, err
}
