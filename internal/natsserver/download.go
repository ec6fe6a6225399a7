package natsserver

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/ahrdadan/pagecheck/internal/errs"
)

// Version is the nats-server release downloaded when the binary is missing.
const Version = "2.10.24"

// DownloadURL returns the release archive for goos/goarch.
func DownloadURL(goos, goarch string) (string, error) {
	switch goos {
	case "linux", "darwin", "windows":
	default:
		return "", errs.New(errs.InvalidArgument, "unsupported OS: "+goos)
	}
	switch goarch {
	case "amd64", "arm64":
	default:
		return "", errs.New(errs.InvalidArgument, "unsupported architecture: "+goarch)
	}

	return fmt.Sprintf(
		"https://github.com/nats-io/nats-server/releases/download/v%s/nats-server-v%s-%s-%s.zip",
		Version, Version, goos, goarch,
	), nil
}

// EnsureBinary returns binPath, downloading the release into it first when
// it is missing and autoDownload is set.
func EnsureBinary(ctx context.Context, binPath string, autoDownload bool, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if _, err := os.Stat(binPath); err == nil {
		logger.Debug("nats-server binary found", zap.String("path", binPath))
		return binPath, nil
	}
	if !autoDownload {
		return "", errs.New(errs.NotFound, "nats-server binary not found at "+binPath+" and auto download is disabled")
	}

	downloadURL, err := DownloadURL(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(binPath), 0o755); err != nil {
		return "", errs.Wrap(errs.Internal, "failed to create nats-server directory", err)
	}

	tmp, err := os.CreateTemp("", "nats-server-*.zip")
	if err != nil {
		return "", errs.Wrap(errs.Internal, "failed to create temp file", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	logger.Info("downloading nats-server", zap.String("url", downloadURL))
	if err := download(ctx, downloadURL, tmp); err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", errs.Wrap(errs.Internal, "failed to save nats-server archive", err)
	}

	if err := extractBinary(tmp.Name(), binPath, binaryName(runtime.GOOS)); err != nil {
		return "", err
	}
	if err := os.Chmod(binPath, 0o755); err != nil {
		return "", errs.Wrap(errs.Internal, "failed to make nats-server executable", err)
	}

	logger.Info("nats-server installed", zap.String("path", binPath))
	return binPath, nil
}

func download(ctx context.Context, src string, dst io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, "invalid download url", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errs.Wrap(errs.Internal, "failed to download nats-server", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errs.New(errs.Internal, fmt.Sprintf("failed to download nats-server: HTTP %d", resp.StatusCode))
	}
	if _, err := io.Copy(dst, resp.Body); err != nil {
		return errs.Wrap(errs.Internal, "failed to save nats-server archive", err)
	}
	return nil
}

func binaryName(goos string) string {
	if goos == "windows" {
		return "nats-server.exe"
	}
	return "nats-server"
}

// extractBinary copies the entry ending in name out of the archive.
func extractBinary(zipPath, destPath, name string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return errs.Wrap(errs.Internal, "failed to open nats-server archive", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() || (f.Name != name && !strings.HasSuffix(f.Name, "/"+name)) {
			continue
		}
		return copyEntry(f, destPath)
	}
	return errs.New(errs.NotFound, name+" not found in archive")
}

func copyEntry(f *zip.File, destPath string) error {
	rc, err := f.Open()
	if err != nil {
		return errs.Wrap(errs.Internal, "failed to open archive entry", err)
	}
	defer rc.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return errs.Wrap(errs.Internal, "failed to create nats-server binary", err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return errs.Wrap(errs.Internal, "failed to write nats-server binary", err)
	}
	return out.Close()
}
