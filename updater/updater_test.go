package updater

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeRemote struct {
	payload     []byte
	signature   string
	downloadErr error
}

func (r *fakeRemote) DownloadUpdate(_ context.Context, w io.Writer) error {
	if r.downloadErr != nil {
		return r.downloadErr
	}
	_, err := w.Write(r.payload)
	return err
}

func (r *fakeRemote) FetchUpdateSignature(context.Context) (string, error) {
	return r.signature, nil
}

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil)))
}

func newTestUpdater(t *testing.T, remote Remote) (*Updater, string) {
	t.Helper()
	exe := filepath.Join(t.TempDir(), "marquee")
	assert.NoError(t, os.WriteFile(exe, []byte("old binary"), 0o755))

	u := New(remote, "topsecret")
	u.execPath = func() (string, error) { return exe, nil }
	return u, exe
}

func TestApply_InstallsSignedBinary(t *testing.T) {
	payload := []byte("new binary contents")
	remote := &fakeRemote{payload: payload, signature: sign(payload, "topsecret")}
	u, exe := newTestUpdater(t, remote)

	err := u.Apply(context.Background())
	assert.NoError(t, err)

	installed, err := os.ReadFile(exe)
	assert.NoError(t, err)
	assert.Equal(t, payload, installed)

	info, err := os.Stat(exe)
	assert.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestApply_BadSignatureLeavesBinaryUntouched(t *testing.T) {
	payload := []byte("new binary contents")
	remote := &fakeRemote{payload: payload, signature: sign(payload, "someothersecret")}
	u, exe := newTestUpdater(t, remote)

	err := u.Apply(context.Background())
	assert.Error(t, err)

	current, readErr := os.ReadFile(exe)
	assert.NoError(t, readErr)
	assert.Equal(t, []byte("old binary"), current)

	// No staging leftovers either.
	entries, readErr := os.ReadDir(filepath.Dir(exe))
	assert.NoError(t, readErr)
	assert.Len(t, entries, 1)
}

func TestApply_DownloadFailureLeavesBinaryUntouched(t *testing.T) {
	remote := &fakeRemote{downloadErr: errors.New("connection reset")}
	u, exe := newTestUpdater(t, remote)

	err := u.Apply(context.Background())
	assert.Error(t, err)

	current, readErr := os.ReadFile(exe)
	assert.NoError(t, readErr)
	assert.Equal(t, []byte("old binary"), current)

	entries, readErr := os.ReadDir(filepath.Dir(exe))
	assert.NoError(t, readErr)
	assert.Len(t, entries, 1)
}

func TestApply_RefusesWithoutSecret(t *testing.T) {
	remote := &fakeRemote{payload: []byte("x"), signature: "sha256=00"}
	u := New(remote, "")

	err := u.Apply(context.Background())
	assert.Error(t, err)
}
