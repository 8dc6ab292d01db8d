package filesystem

import (
	"os"
	"os/user"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// OwnerLookup resolves a user name to the uid and gid used for chown.
type OwnerLookup func(owner string) (uid int, gid int, err error)

// FileHandler performs the file operations needed to read and write
// crontabs on top of an afero.Fs.
type FileHandler struct {
	fs          afero.Fs
	lookupOwner OwnerLookup
}

type Option func(*FileHandler)

func WithOwnerLookup(lookup OwnerLookup) Option {
	return func(h *FileHandler) {
		h.lookupOwner = lookup
	}
}

func NewFileHandler(fs afero.Fs, options ...Option) *FileHandler {
	h := &FileHandler{
		fs:          fs,
		lookupOwner: lookupSystemUser,
	}

	for _, option := range options {
		option(h)
	}

	return h
}

func NewOsFileHandler(options ...Option) *FileHandler {
	return NewFileHandler(afero.NewOsFs(), options...)
}

// Read returns the content of path. ok is false when there is no regular
// file at path.
func (h *FileHandler) Read(path string) (content string, ok bool, err error) {
	info, err := h.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "failed to stat %s", path)
	}

	if !info.Mode().IsRegular() {
		return "", false, nil
	}

	data, err := afero.ReadFile(h.fs, path)
	if err != nil {
		return "", false, errors.Wrapf(err, "the file %s is not readable", path)
	}

	return string(data), true, nil
}

// CreateFile creates an empty file, and its parent directories, unless a
// file already exists at path.
func (h *FileHandler) CreateFile(path string) error {
	if info, err := h.fs.Stat(path); err == nil && info.Mode().IsRegular() {
		return nil
	}

	if err := h.fs.MkdirAll(filepath.Dir(path), 0777); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}

	f, err := h.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	return f.Close()
}

func (h *FileHandler) SetPermissions(path string, mode os.FileMode) error {
	return errors.Wrapf(h.fs.Chmod(path, mode), "failed to chmod %s", path)
}

func (h *FileHandler) SetOwner(path string, owner string) error {
	uid, gid, err := h.lookupOwner(owner)
	if err != nil {
		return errors.Wrapf(err, "failed to look up owner %s", owner)
	}
	return errors.Wrapf(h.fs.Chown(path, uid, gid), "failed to chown %s", path)
}

// Write replaces the content of an existing file.
func (h *FileHandler) Write(path string, content string) error {
	f, err := h.fs.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return errors.Wrapf(err, "the file %s is not writable", path)
	}

	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to write %s", path)
	}

	return errors.Wrapf(f.Close(), "failed to close %s", path)
}

func lookupSystemUser(owner string) (int, int, error) {
	u, err := user.Lookup(owner)
	if err != nil {
		return 0, 0, err
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, err
	}

	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return 0, 0, err
	}

	return uid, gid, nil
}
