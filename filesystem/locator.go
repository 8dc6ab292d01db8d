package filesystem

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

var (
	ErrUnsupported = errors.New("this platform does not support drop-in crontabs")
	ErrInvalidName = errors.New("invalid crontab name")
)

// Locator resolves the paths of the crontab files of a platform.
type Locator interface {
	LocateSystemCrontab() (string, error)
	LocateUserCrontab(username string) (string, error)
	LocateDropInCrontab(name string) (string, error)
}

// DebianLocator uses /etc/crontab, /var/spool/cron/<user> and
// /etc/cron.d/<name>. Root, when set, is prepended to every path.
type DebianLocator struct {
	Root string
}

func (l DebianLocator) LocateSystemCrontab() (string, error) {
	return filepath.Join(l.Root, "/etc/crontab"), nil
}

func (l DebianLocator) LocateUserCrontab(username string) (string, error) {
	if err := checkName(username); err != nil {
		return "", err
	}
	return filepath.Join(l.Root, "/var/spool/cron", username), nil
}

func (l DebianLocator) LocateDropInCrontab(name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	return filepath.Join(l.Root, "/etc/cron.d", name), nil
}

// DarwinLocator has no drop-in directory.
type DarwinLocator struct {
	Root string
}

func (l DarwinLocator) LocateSystemCrontab() (string, error) {
	return filepath.Join(l.Root, "/etc/crontab"), nil
}

func (l DarwinLocator) LocateUserCrontab(username string) (string, error) {
	if err := checkName(username); err != nil {
		return "", err
	}
	return filepath.Join(l.Root, "/usr/lib/cron/tabs", username), nil
}

func (l DarwinLocator) LocateDropInCrontab(name string) (string, error) {
	return "", ErrUnsupported
}

// NewLocator returns the locator for platform ("debian", "darwin", or
// "auto" to pick one from runtime.GOOS).
func NewLocator(platform string, root string) (Locator, error) {
	if platform == "" || platform == "auto" {
		platform = platformFor(runtime.GOOS)
	}

	switch platform {
	case "debian":
		return DebianLocator{Root: root}, nil
	case "darwin":
		return DarwinLocator{Root: root}, nil
	default:
		return nil, fmt.Errorf("unsupported platform: %q", platform)
	}
}

func platformFor(goos string) string {
	switch goos {
	case "darwin":
		return "darwin"
	case "linux", "freebsd", "openbsd", "netbsd":
		return "debian"
	}
	return goos
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
