package release

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/propgate/propgate/pkg/constants"
	"github.com/propgate/propgate/pkg/errors"
)

// processLock excludes concurrent releases inside one process; the lock file
// excludes them across processes.
var processLock sync.Mutex

// lock is a held release lock.
type lock struct {
	path string
	// reclaimed is the holder line of a stale lock file this lock replaced.
	reclaimed string
}

// lockHolder is the content of a lock file.
type lockHolder struct {
	pid  int
	host string
	run  string
}

func (h lockHolder) String() string {
	return fmt.Sprintf("pid=%d host=%s run=%s", h.pid, h.host, h.run)
}

func parseHolder(s string) (lockHolder, bool) {
	var h lockHolder
	for _, field := range strings.Fields(s) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			pid, err := strconv.Atoi(value)
			if err != nil {
				return h, false
			}
			h.pid = pid
		case "host":
			h.host = value
		case "run":
			h.run = value
		}
	}
	return h, h.pid > 0
}

// stale reports whether the holder is a process of this host that no longer
// exists. Holders on other hosts are never stale.
func (h lockHolder) stale() bool {
	if host, _ := os.Hostname(); h.host != "" && h.host != host {
		return false
	}
	return !processAlive(h.pid)
}

// processAlive reports whether pid names a running process. Undecidable
// cases count as alive.
func processAlive(pid int) bool {
	if pid == os.Getpid() {
		return true
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return !stderrors.Is(err, os.ErrProcessDone) && !stderrors.Is(err, syscall.ESRCH)
}

// acquireLock takes the global release lock for the store rooted at workDir.
// A lock file left by a crashed process of this host is reclaimed.
func acquireLock(workDir, runID string) (*lock, error) {
	if !processLock.TryLock() {
		return nil, fmt.Errorf("%w: release already running in this process", errors.ErrLocked)
	}

	path := filepath.Join(workDir, constants.LockFile)
	if err := os.MkdirAll(workDir, constants.DirPermissions); err != nil {
		processLock.Unlock()
		return nil, errors.Storage("lock", "create work dir", err)
	}
	host, _ := os.Hostname()
	self := lockHolder{pid: os.Getpid(), host: host, run: runID}

	lk := &lock{path: path}
	for attempt := 0; ; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, constants.FilePermissions)
		if err == nil {
			_, _ = fmt.Fprint(f, self.String())
			_ = f.Close()
			return lk, nil
		}
		if !os.IsExist(err) {
			processLock.Unlock()
			return nil, errors.Storage("lock", "create lock file", err)
		}

		content, _ := os.ReadFile(path)
		holder, ok := parseHolder(string(content))
		if attempt > 0 || !ok || !holder.stale() {
			processLock.Unlock()
			return nil, fmt.Errorf("%w: lock file %s held by %s", errors.ErrLocked, path, strings.TrimSpace(string(content)))
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			processLock.Unlock()
			return nil, errors.Storage("lock", "remove stale lock file", err)
		}
		lk.reclaimed = holder.String()
	}
}

// release drops the lock.
func (l *lock) release() error {
	defer processLock.Unlock()
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errors.Storage("lock", "remove lock file", err)
	}
	return nil
}
