package cursor

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	log = logrus.WithField(
		"module", "epoch-cursor",
	)
)

// Cursor tracks the last fully committed epoch window in a plain-text
// file so long running and backfill operation is resumable. The cursor
// is owned by a single process; concurrent writers are not supported.
type Cursor struct {
	path string
}

func New(path string) *Cursor {
	return &Cursor{path: path}
}

// Read returns the persisted epoch and whether the cursor file exists.
// A present but unparseable cursor is a configuration error: falling
// back to the configured start epoch would mask corruption.
func (c *Cursor) Read() (uint64, bool, error) {
	raw, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrapf(err, "unable to read cursor file %s", c.path)
	}
	epoch, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, false, errors.Wrapf(err, "corrupt cursor file %s", c.path)
	}
	return epoch, true, nil
}

// Advance durably records the epoch. The new value is fsynced and
// moved into place atomically, so an interrupted run resumes from the
// correct window.
func (c *Cursor) Advance(epoch uint64) error {
	tmp, err := os.CreateTemp(filepath.Dir(c.path), filepath.Base(c.path)+".tmp")
	if err != nil {
		return errors.Wrap(err, "unable to create cursor temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(strconv.FormatUint(epoch, 10)); err != nil {
		tmp.Close()
		return errors.Wrap(err, "unable to write cursor")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "unable to sync cursor")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "unable to close cursor temp file")
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return errors.Wrap(err, "unable to move cursor into place")
	}
	log.Debugf("cursor advanced to epoch %d", epoch)
	return nil
}
