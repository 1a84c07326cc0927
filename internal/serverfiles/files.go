package serverfiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// BanExpiryLayout is the timestamp layout of banned-ips.json.
const BanExpiryLayout = "2006-01-02 15:04:05 -0700"

const reloadDebounce = 200 * time.Millisecond

// Ban is one entry of banned-ips.json.
type Ban struct {
	IP      string `json:"ip"`
	Created string `json:"created,omitempty"`
	Source  string `json:"source,omitempty"`
	Expires string `json:"expires,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Active reports whether the ban still applies at now. Entries with an
// expiry that cannot be parsed are treated as permanent.
func (b Ban) Active(now time.Time) bool {
	if b.Expires == "" || strings.EqualFold(b.Expires, "forever") {
		return true
	}
	t, err := time.Parse(BanExpiryLayout, b.Expires)
	if err != nil {
		return true
	}
	return now.Before(t)
}

type whitelistEntry struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

type snapshot struct {
	whitelistEnabled bool
	whitelist        map[string]struct{}
	bans             map[string]Ban
}

// Files holds the access lists of a server directory. Reads are lock free;
// Reload swaps in a new snapshot.
type Files struct {
	dir  string
	log  *slog.Logger
	now  func() time.Time
	snap atomic.Pointer[snapshot]
}

func New(dir string, log *slog.Logger) *Files {
	if log == nil {
		log = slog.Default()
	}
	f := &Files{dir: dir, log: log.With("component", "serverfiles"), now: time.Now}
	f.snap.Store(&snapshot{})
	return f
}

// Reload reads the access lists again. Missing files count as empty. On a
// parse error the previous lists of that file are kept.
func (f *Files) Reload() error {
	old := f.snap.Load()
	next := &snapshot{whitelist: old.whitelist, bans: old.bans}
	var errs []error

	props, err := ReadProperties(filepath.Join(f.dir, PropertiesFile))
	switch {
	case err == nil:
		next.whitelistEnabled = props["white-list"] == "true"
	case !errors.Is(err, fs.ErrNotExist):
		errs = append(errs, err)
	}

	var entries []whitelistEntry
	if err := readJSON(filepath.Join(f.dir, WhitelistFile), &entries); err != nil {
		errs = append(errs, err)
	} else {
		next.whitelist = make(map[string]struct{}, len(entries))
		for _, e := range entries {
			next.whitelist[strings.ToLower(e.Name)] = struct{}{}
		}
	}

	var bans []Ban
	if err := readJSON(filepath.Join(f.dir, BannedIPsFile), &bans); err != nil {
		errs = append(errs, err)
	} else {
		next.bans = make(map[string]Ban, len(bans))
		for _, b := range bans {
			next.bans[b.IP] = b
		}
	}

	f.snap.Store(next)
	return errors.Join(errs...)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// Whitelisted reports whether name may join. Everybody may join while the
// server has white-list disabled.
func (f *Files) Whitelisted(name string) bool {
	s := f.snap.Load()
	if !s.whitelistEnabled {
		return true
	}
	_, ok := s.whitelist[strings.ToLower(name)]
	return ok
}

// BannedIP returns the active ban for ip, if any.
func (f *Files) BannedIP(ip string) (Ban, bool) {
	b, ok := f.snap.Load().bans[ip]
	if !ok || !b.Active(f.now()) {
		return Ban{}, false
	}
	return b, true
}

// Watch reloads the access lists whenever one of the files changes, until
// ctx is done.
func (f *Files) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = w.Close() }()
	if err := w.Add(f.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", f.dir, err)
	}

	var timer *time.Timer
	reload := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-w.Events:
			if !ok {
				return errors.New("file watcher closed")
			}
			switch filepath.Base(evt.Name) {
			case PropertiesFile, WhitelistFile, BannedIPsFile:
			default:
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(reloadDebounce, func() {
					select {
					case reload <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(reloadDebounce)
			}
		case <-reload:
			if err := f.Reload(); err != nil {
				f.log.Warn("failed to reload server files", "error", err)
			} else {
				f.log.Debug("reloaded server files")
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("file watcher closed")
			}
			f.log.Warn("file watcher error", "error", err)
		}
	}
}
