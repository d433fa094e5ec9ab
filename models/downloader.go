package models

import (
	"archive/tar"
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ProgressFunc reports download progress as a 0-100 percentage.
type ProgressFunc func(progress float64)

// DownloadFile fetches url to destPath, reporting progress, using a
// temp-file-then-rename so a cancelled or failed download never leaves a
// partial file at destPath.
func DownloadFile(ctx context.Context, url, destPath string, expectedSize int64, onProgress ProgressFunc) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("models: create directory: %w", err)
	}

	tmpPath := destPath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("models: create file: %w", err)
	}
	defer out.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("models: build request: %w", err)
	}

	client := &http.Client{Timeout: 0}
	resp, err := client.Do(req)
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("models: download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		os.Remove(tmpPath)
		return fmt.Errorf("models: bad status: %s", resp.Status)
	}

	totalSize := resp.ContentLength
	if totalSize <= 0 && expectedSize > 0 {
		totalSize = expectedSize
	}

	reader := &progressReader{reader: resp.Body, totalSize: totalSize, onProgress: onProgress}
	if _, err := io.Copy(out, reader); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("models: write file: %w", err)
	}
	out.Close()

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("models: finalize file: %w", err)
	}
	return nil
}

// progressReader wraps an io.Reader to rate-limit progress callbacks.
type progressReader struct {
	reader       io.Reader
	totalSize    int64
	downloaded   int64
	onProgress   ProgressFunc
	lastReport   time.Time
	reportPeriod time.Duration
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.downloaded += int64(n)
		if pr.reportPeriod == 0 {
			pr.reportPeriod = 500 * time.Millisecond
		}
		now := time.Now()
		if pr.onProgress != nil && (now.Sub(pr.lastReport) >= pr.reportPeriod || err == io.EOF) {
			pr.lastReport = now
			if pr.totalSize > 0 {
				pr.onProgress(float64(pr.downloaded) / float64(pr.totalSize) * 100)
			}
		}
	}
	return n, err
}

// DownloadAndExtractTarBz2 fetches a tar.bz2 archive and extracts it into
// destDir. sherpa-onnx model releases ship this way: one archive holding
// the encoder/decoder/joiner/tokens quartet (or the offline model plus its
// tokens file) under a single top-level directory.
func DownloadAndExtractTarBz2(ctx context.Context, url, destDir string, expectedSize int64, onProgress ProgressFunc) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("models: create directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("models: build request: %w", err)
	}

	client := &http.Client{Timeout: 0}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("models: download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("models: bad status: %s", resp.Status)
	}

	totalSize := resp.ContentLength
	if totalSize <= 0 && expectedSize > 0 {
		totalSize = expectedSize
	}

	reader := &progressReader{reader: resp.Body, totalSize: totalSize, onProgress: onProgress}
	bzReader := bzip2.NewReader(reader)
	tarReader := tar.NewReader(bzReader)

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("models: read tar: %w", err)
		}

		// Archives nest their files one directory deep; flatten so every
		// extracted file lands directly under destDir, matching the §6
		// "each model id maps to a directory" probing contract.
		targetPath := filepath.Join(destDir, filepath.Base(header.Name))
		if !strings.HasPrefix(filepath.Clean(targetPath), filepath.Clean(destDir)) {
			return fmt.Errorf("models: invalid path in archive: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			continue
		case tar.TypeReg:
			outFile, err := os.Create(targetPath)
			if err != nil {
				return fmt.Errorf("models: create file: %w", err)
			}
			if _, err := io.Copy(outFile, tarReader); err != nil {
				outFile.Close()
				return fmt.Errorf("models: write file: %w", err)
			}
			outFile.Close()
		}
	}

	return nil
}
