package browser

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/go-rod/rod/lib/launcher"
	"go.uber.org/zap"

	"github.com/ahrdadan/pagecheck/internal/errs"
)

// InstallOptions controls how EnsureChrome finds or fetches a browser.
type InstallOptions struct {
	// Bin is an explicit binary; when set it must exist.
	Bin string
	// Revision pins the Chromium snapshot to download; zero uses rod's default.
	Revision int
	// AutoInstall allows downloading Chromium when no browser is found.
	AutoInstall bool
	// InstallDeps also installs the OS libraries Chromium needs (Linux only).
	InstallDeps bool
}

// EnsureChrome returns the path of a usable Chrome/Chromium binary: the
// configured one, else a system browser, else a downloaded snapshot.
func EnsureChrome(ctx context.Context, opts InstallOptions, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if opts.Bin != "" {
		if _, err := os.Stat(opts.Bin); err != nil {
			return "", errs.Wrap(errs.NotFound, "configured browser binary not found: "+opts.Bin, err)
		}
		return opts.Bin, nil
	}

	if path, ok := launcher.LookPath(); ok {
		logger.Debug("using system browser", zap.String("path", path))
		return path, nil
	}

	if !opts.AutoInstall {
		return "", errs.New(errs.NotFound, "no chrome or chromium found and auto install is disabled")
	}

	if opts.InstallDeps {
		if err := InstallChromeDependencies(ctx); err != nil {
			return "", err
		}
	}

	logger.Info("downloading chromium", zap.Int("revision", opts.Revision))
	return InstallChrome(ctx, opts.Revision)
}

// InstallChrome downloads a Chromium build for the current OS/arch.
func InstallChrome(ctx context.Context, revision int) (string, error) {
	downloader := launcher.NewBrowser()
	downloader.Context = ctx
	if revision > 0 {
		downloader.Revision = revision
	}

	path, err := downloader.Get()
	if err != nil {
		return "", fmt.Errorf("failed to download chrome: %w", err)
	}

	return path, nil
}

// InstallChromeDependencies installs OS packages required by Chromium.
func InstallChromeDependencies(ctx context.Context) error {
	if runtime.GOOS != "linux" {
		return nil
	}

	if path, _ := exec.LookPath("apt-get"); path != "" {
		if err := runCommand(ctx, path, "update"); err != nil {
			return err
		}
		args := append([]string{"install", "-y", "--no-install-recommends"}, chromeDepsApt...)
		return runCommand(ctx, path, args...)
	}

	if path, _ := exec.LookPath("dnf"); path != "" {
		args := append([]string{"install", "-y"}, chromeDepsRPM...)
		return runCommand(ctx, path, args...)
	}

	if path, _ := exec.LookPath("apk"); path != "" {
		args := append([]string{"add", "--no-cache"}, chromeDepsApk...)
		return runCommand(ctx, path, args...)
	}

	return fmt.Errorf("no supported package manager found for Chrome dependencies")
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %v failed: %w\n%s", name, args, err, out.String())
	}
	return nil
}

var chromeDepsApt = []string{
	"ca-certificates", "fonts-liberation", "libasound2", "libatk-bridge2.0-0",
	"libatk1.0-0", "libcups2", "libdbus-1-3", "libdrm2", "libgbm1", "libgtk-3-0",
	"libnspr4", "libnss3", "libx11-xcb1", "libxcomposite1", "libxdamage1",
	"libxfixes3", "libxrandr2", "libxshmfence1", "libxss1", "libxtst6",
	"libpango-1.0-0", "libxkbcommon0",
}

var chromeDepsRPM = []string{
	"alsa-lib", "atk", "cups-libs", "gtk3", "libX11", "libXcomposite",
	"libXdamage", "libXrandr", "libXfixes", "libxkbcommon", "libxshmfence",
	"nss", "nspr", "pango", "mesa-libgbm", "libdrm",
}

var chromeDepsApk = []string{
	"ca-certificates", "freetype", "harfbuzz", "nss", "ttf-freefont",
	"alsa-lib", "at-spi2-atk", "cups-libs", "libxcomposite", "libxdamage",
	"libxrandr", "libxkbcommon", "mesa-gbm", "gtk+3.0", "pango", "fontconfig",
}
