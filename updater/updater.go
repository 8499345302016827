package updater

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	hmacext "github.com/alexellis/hmac/v2"
	"github.com/google/uuid"
)

// ErrRestartRequired signals that a new binary has been installed over the
// running one and the process should exit so the supervisor restarts it.
var ErrRestartRequired = errors.New("client updated, restart required")

// Remote is the slice of the signage client the updater needs.
type Remote interface {
	DownloadUpdate(ctx context.Context, w io.Writer) error
	FetchUpdateSignature(ctx context.Context) (string, error)
}

// Updater swaps the running binary for the one the server publishes. The
// download is staged next to the executable and only renamed into place once
// its HMAC signature validates, so a bad or truncated download can never
// brick the device.
type Updater struct {
	remote   Remote
	secret   string
	execPath func() (string, error)
}

func New(remote Remote, secret string) *Updater {
	return &Updater{
		remote:   remote,
		secret:   secret,
		execPath: os.Executable,
	}
}

// Apply downloads, verifies and installs the published client binary. On any
// failure the staged file is removed and the running binary is untouched.
func (u *Updater) Apply(ctx context.Context) error {
	if u.secret == "" {
		return errors.New("refusing update without a shared secret")
	}

	exe, err := u.execPath()
	if err != nil {
		return err
	}

	staging := filepath.Join(filepath.Dir(exe), ".marquee-update-"+uuid.NewString())
	f, err := os.Create(staging)
	if err != nil {
		return err
	}

	err = u.remote.DownloadUpdate(ctx, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(staging)
		return err
	}

	signature, err := u.remote.FetchUpdateSignature(ctx)
	if err != nil {
		os.Remove(staging)
		return err
	}

	payload, err := os.ReadFile(staging)
	if err != nil {
		os.Remove(staging)
		return err
	}

	if err := hmacext.Validate(payload, signature, u.secret); err != nil {
		os.Remove(staging)
		return fmt.Errorf("update signature rejected: %w", err)
	}

	if err := os.Chmod(staging, 0o755); err != nil {
		os.Remove(staging)
		return err
	}

	if err := os.Rename(staging, exe); err != nil {
		os.Remove(staging)
		return err
	}

	slog.Info("Installed client update", slog.String("path", exe))
	return nil
}
