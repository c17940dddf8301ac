// Package archive downloads version source archives from the e-print
// endpoint and extracts the TeX/BibTeX subset into the output layout.
package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/arxiv-harvest/internal/arxivid"
)

// ErrDownload reports a failed archive download (non-2xx or transport error).
var ErrDownload = errors.New("archive download failed")

// Result carries the byte accounting for one extracted version.
type Result struct {
	// SizeBefore is the compressed archive length as downloaded.
	SizeBefore int64
	// SizeAfter is the total byte size of the extraction directory.
	SizeAfter int64
}

// Config controls Fetcher behavior.
type Config struct {
	EPrintURL  string
	Timeout    time.Duration
	ScratchDir string
	UserAgent  string
}

// Fetcher downloads and extracts one version archive at a time. Scratch
// files are removed on every path so peak disk stays bounded to one archive
// plus one extraction per in-flight version.
type Fetcher struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.EPrintURL == "" {
		cfg.EPrintURL = "https://arxiv.org/e-print"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "arxiv-harvest/0.1"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// FetchAndExtract downloads version `version` of the paper and extracts the
// retained file types into destDir. destDir is created if needed.
func (f *Fetcher) FetchAndExtract(ctx context.Context, id arxivid.ID, version int, destDir string) (Result, error) {
	versioned := id.Versioned(version)

	scratch, sizeBefore, err := f.download(ctx, versioned)
	if err != nil {
		return Result{}, err
	}
	defer os.Remove(scratch)

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create version dir: %w", err)
	}

	if err := f.extractFiltered(scratch, destDir); err != nil {
		return Result{}, err
	}

	sizeAfter, err := DirSize(destDir)
	if err != nil {
		return Result{}, fmt.Errorf("measure extraction: %w", err)
	}

	return Result{SizeBefore: sizeBefore, SizeAfter: sizeAfter}, nil
}

func (f *Fetcher) download(ctx context.Context, versioned string) (string, int64, error) {
	url := fmt.Sprintf("%s/%s", f.cfg.EPrintURL, versioned)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, fmt.Errorf("build download request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %s: %v", ErrDownload, versioned, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, fmt.Errorf("%w: %s: http %s", ErrDownload, versioned, resp.Status)
	}

	scratch, err := os.CreateTemp(f.cfg.ScratchDir, versioned+"-*.tar.gz")
	if err != nil {
		return "", 0, fmt.Errorf("create scratch file: %w", err)
	}

	n, err := io.Copy(scratch, resp.Body)
	if cerr := scratch.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(scratch.Name())
		return "", 0, fmt.Errorf("%w: %s: %v", ErrDownload, versioned, err)
	}
	return scratch.Name(), n, nil
}

// extractFiltered unpacks the archive into destDir, keeping directory
// structure but only .tex and .bib members. Payloads that are not tar
// streams are treated as a single gzip-compressed file.
func (f *Fetcher) extractFiltered(archivePath, destDir string) error {
	if err := f.extractTarGz(archivePath, destDir); err == nil {
		return nil
	} else if !errors.Is(err, errNotTar) {
		return err
	}
	return f.extractSingleGz(archivePath, destDir)
}

var errNotTar = errors.New("payload is not a tar stream")

func (f *Fetcher) extractTarGz(archivePath, destDir string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open scratch archive: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("%w: %v", errNotTar, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	extracted := false
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if !extracted {
				return fmt.Errorf("%w: %v", errNotTar, err)
			}
			return fmt.Errorf("read tar: %w", err)
		}

		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			f.logger.Warn("skipping unsafe archive member", zap.String("name", hdr.Name))
			continue
		}

		switch {
		case hdr.Typeflag == tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("extract dir %s: %w", hdr.Name, err)
			}
		case retainMember(hdr.Name):
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("extract %s: %w", hdr.Name, err)
			}
			if err := writeMember(target, tr); err != nil {
				return fmt.Errorf("extract %s: %w", hdr.Name, err)
			}
			extracted = true
		}
	}
	return nil
}

// extractSingleGz handles e-prints that are one gzip-compressed file rather
// than a tarball. The decompressed content is sniffed for TeX markers.
func (f *Fetcher) extractSingleGz(archivePath, destDir string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open scratch archive: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("payload is neither tar.gz nor gz: %w", err)
	}
	defer gz.Close()

	content, err := io.ReadAll(gz)
	if err != nil {
		return fmt.Errorf("decompress single file: %w", err)
	}

	name := "source"
	if bytes.Contains(content, []byte(`\documentclass`)) ||
		bytes.Contains(content, []byte(`\begin{document}`)) {
		name = "main.tex"
	} else {
		f.logger.Warn("unrecognized single-file payload stored verbatim",
			zap.String("dest", destDir))
	}

	if err := os.WriteFile(filepath.Join(destDir, name), content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func retainMember(name string) bool {
	return strings.HasSuffix(name, ".tex") || strings.HasSuffix(name, ".bib")
}

func safeJoin(dir, name string) (string, error) {
	target := filepath.Join(dir, filepath.Clean("/"+name))
	if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("member %q escapes destination", name)
	}
	return target, nil
}

func writeMember(target string, r io.Reader) error {
	out, err := os.Create(target)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, r)
	if cerr := out.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// DirSize walks path and totals the size of regular files beneath it.
func DirSize(path string) (int64, error) {
	var total int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
