package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"pactline/internal/domain"
	"pactline/internal/events"
)

var (
	ErrUploadInProgress = errors.New("upload already in progress")
	ErrUploadNotAllowed = errors.New("upload not allowed")
	ErrInvalidUpload    = errors.New("invalid upload")
)

// UploadError carries the reason an upload was refused before reaching the backend.
type UploadError struct {
	Filename string
	Reason   string
	Err      error
}

func (e *UploadError) Error() string {
	if e.Filename != "" {
		return fmt.Sprintf("%s: %s", e.Filename, e.Reason)
	}
	return e.Reason
}

func (e *UploadError) Unwrap() error { return e.Err }

// ValidateUpload checks a candidate file against the upload limits. Only the
// extension, size and sniffed content type are inspected.
func (e Engine) ValidateUpload(filename string, content []byte) error {
	invalid := func(format string, args ...any) error {
		return &UploadError{Filename: filename, Reason: fmt.Sprintf(format, args...), Err: ErrInvalidUpload}
	}
	if strings.TrimSpace(filename) == "" {
		return invalid("file name is required")
	}
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return invalid("only PDF files can be uploaded")
	}
	if len(content) == 0 {
		return invalid("file is empty")
	}
	if limit := e.Config.Upload.MaxBytes; limit > 0 && int64(len(content)) > limit {
		return invalid("file is %d bytes, limit is %d", len(content), limit)
	}
	sniffed := http.DetectContentType(content)
	if i := strings.Index(sniffed, ";"); i >= 0 {
		sniffed = sniffed[:i]
	}
	if !slices.Contains(e.Config.Upload.ContentTypes, sniffed) {
		return invalid("content type %s is not accepted", sniffed)
	}
	return nil
}

type uploadResult struct {
	version domain.ContractVersion
	err     error
}

// UploadVersion sends a new version of the contract. On success the version becomes
// the latest: the task board starts over, the selection is cleared and the chat is
// pinned to it. The request keeps running if ctx is cancelled, so the session never
// misses a version the backend accepted; a second upload is refused until it ends.
func (c *Contract) UploadVersion(ctx context.Context, filename string, content []byte) (domain.ContractVersion, error) {
	if err := c.eng.ValidateUpload(filename, content); err != nil {
		c.uploadFailed(ctx, filename, err)
		return domain.ContractVersion{}, err
	}

	c.mu.Lock()
	if err := c.uploadAllowedLocked(); err != nil {
		c.mu.Unlock()
		if errors.Is(err, ErrUploadNotAllowed) {
			c.uploadFailed(ctx, filename, err)
		}
		return domain.ContractVersion{}, err
	}
	c.uploading = true
	c.mu.Unlock()

	done := make(chan uploadResult, 1)
	bg := context.WithoutCancel(ctx)
	go func() {
		v, err := c.eng.Backend.CreateVersion(bg, c.ID(), filepath.Base(filename), content)
		if err == nil {
			err = c.installVersion(bg, v)
		}
		c.mu.Lock()
		c.uploading = false
		c.mu.Unlock()
		if err != nil {
			c.uploadFailed(bg, filename, err)
		}
		done <- uploadResult{version: v, err: err}
	}()

	select {
	case res := <-done:
		return res.version, res.err
	case <-ctx.Done():
		return domain.ContractVersion{}, ctx.Err()
	}
}

// installVersion makes an accepted version the latest before a fresh read arrives.
func (c *Contract) installVersion(ctx context.Context, v domain.ContractVersion) error {
	c.mu.Lock()
	// A concurrent refresh may have installed it already, or installed a newer
	// version so the insert is refused. The backend accepted the upload either way;
	// the chat follows whatever is latest and the fresh read below settles the rest.
	if _, err := c.history.Get(v.ID); err != nil {
		if err := c.history.Insert(v); err != nil {
			slog.WarnContext(ctx, "uploaded version not installed locally", "contract_id", c.ID(), "version", v.Number, "error", err)
		} else {
			c.board.Invalidate()
		}
	}
	if _, err := c.chat.Pin(ctx, c.history.LatestID()); err != nil {
		slog.WarnContext(ctx, "failed to persist chat re-pin", "contract_id", c.ID(), "error", err)
	}
	c.mu.Unlock()

	c.eng.invalidate(ctx, c.ID())
	slog.InfoContext(ctx, "version uploaded", "contract_id", c.ID(), "version", v.Number)
	c.eng.record(ctx, events.VersionUploaded, c.ID(), "version", v.ID, c.actorID,
		events.EventPayload{"version_num": v.Number, "file_url": v.FileURL})

	if err := c.Refresh(ctx, true); err != nil {
		slog.WarnContext(ctx, "refresh after upload failed", "contract_id", c.ID(), "error", err)
	}
	return nil
}

func (c *Contract) uploadFailed(ctx context.Context, filename string, err error) {
	slog.WarnContext(ctx, "upload failed", "contract_id", c.ID(), "file", filename, "error", err)
	c.eng.record(ctx, events.UploadFailed, c.ID(), "contract", c.ID(), c.actorID,
		events.EventPayload{"file": filepath.Base(filename), "error": err.Error()})
}
