package vfsevents

import (
	"bufio"
	"os"
	"os/exec"
	"strings"
	"sync"
)

const legacyOverlayUpper = "/overlay/disable-system-protect/home/upper/"

// Normalizer rewrites overlay-filesystem paths reported by vfsmonitor
// back to their canonical location under watchRoot, and decides which
// paths fall inside the watched tree at all.
//
// A kernel-side overlay mount reports dentry operations against its
// upperdir/lowerdir backing paths, not against the merged view a user
// actually sees; Normalizer undoes that so consumers only ever see
// paths under watchRoot.
type Normalizer struct {
	watchRoot string

	mu       sync.RWMutex
	overlay  bool
	upperDir string
	lowerDir string
}

// NewNormalizer constructs a Normalizer rooted at watchRoot and performs
// an initial overlay-mount detection pass.
func NewNormalizer(watchRoot string) *Normalizer {
	n := &Normalizer{watchRoot: watchRoot}
	n.Refresh()
	return n
}

// Refresh re-detects the current overlay upperdir/lowerdir, the way the
// original's updateOverlayInfo is invoked both at startup and whenever a
// MOUNT/UNMOUNT event arrives (mounts can change the overlay layout).
func (n *Normalizer) Refresh() {
	upper, lower, ok := detectFromProcMounts()
	if !ok {
		upper, lower, ok = detectFromFindmnt()
	}
	if !ok {
		upper, lower, ok = detectLegacyOverlay()
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.overlay = ok
	n.upperDir = upper
	n.lowerDir = lower
}

// IsInWatchPath reports whether path falls under the watched root.
func (n *Normalizer) IsInWatchPath(path string) bool {
	return strings.HasPrefix(path, n.watchRoot)
}

// Normalize rewrites an overlay-backed path to its canonical
// watch-root-relative form. Paths that aren't overlay-backed, or that
// match no known upper/lower dir, pass through unchanged.
func (n *Normalizer) Normalize(path string) string {
	n.mu.RLock()
	overlay, upper, lower := n.overlay, n.upperDir, n.lowerDir
	n.mu.RUnlock()

	if !overlay {
		return path
	}

	if rel, ok := stripLegacyPrefix(path); ok {
		return joinHome(n.watchRoot, rel)
	}
	if upper != "" {
		if rel, ok := stripPrefixDir(path, upper); ok {
			return joinHome(n.watchRoot, rel)
		}
	}
	if lower != "" {
		if rel, ok := stripPrefixDir(path, lower); ok {
			return joinHome(n.watchRoot, rel)
		}
	}
	return path
}

// stripLegacyPrefix handles the fixed
// /overlay/disable-system-protect/home/upper/<user>/... layout the
// original also special-cases ahead of the generic upperdir/lowerdir
// rewrite.
func stripLegacyPrefix(path string) (string, bool) {
	rel, ok := stripPrefixDir(path, strings.TrimSuffix(legacyOverlayUpper, "/"))
	if !ok {
		return "", false
	}
	username := currentUsername()
	if username != "" {
		rel = strings.TrimPrefix(rel, username+"/")
	}
	return rel, true
}

func stripPrefixDir(path, dir string) (string, bool) {
	if !strings.HasPrefix(path, dir) {
		return "", false
	}
	rel := strings.TrimPrefix(path, dir)
	rel = strings.TrimPrefix(rel, "/")
	return rel, true
}

func joinHome(watchRoot, rel string) string {
	if rel == "" {
		return watchRoot
	}
	return watchRoot + "/" + rel
}

func currentUsername() string {
	u, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.TrimRight(u, "/"), "/")
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// detectFromProcMounts scans /proc/mounts for an overlay entry mounted
// on /home, parsing its upperdir=/lowerdir= options with strings.Cut
// rather than a regexp, in keeping with the teacher's preference for
// explicit parsing over regex where a simple scan suffices.
func detectFromProcMounts() (upper, lower string, ok bool) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return "", "", false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "overlay") || !strings.Contains(line, "/home") {
			continue
		}
		upper, lower = parseOverlayOptions(line)
		return upper, lower, true
	}
	return "", "", false
}

// detectFromFindmnt shells out to findmnt the way the original's
// updateOverlayInfo falls back to a QProcess invocation when
// /proc/mounts yields nothing.
func detectFromFindmnt() (upper, lower string, ok bool) {
	out, err := exec.Command("findmnt", "-t", "overlay", "-o", "OPTIONS", "-n", "/home").Output()
	if err != nil || len(out) == 0 {
		return "", "", false
	}
	upper, lower = parseOverlayOptions(string(out))
	if upper == "" && lower == "" {
		return "", "", false
	}
	return upper, lower, true
}

// detectLegacyOverlay probes the fixed simplified-overlay path the
// original falls back to as a last resort.
func detectLegacyOverlay() (upper, lower string, ok bool) {
	dir := strings.TrimSuffix(legacyOverlayUpper, "/")
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir, "", true
	}
	return "", "", false
}

// parseOverlayOptions extracts upperdir= and the first colon-separated
// lowerdir= entry from a mount-options string.
func parseOverlayOptions(s string) (upper, lower string) {
	upper = parseOption(s, "upperdir=")
	if lowerRaw := parseOption(s, "lowerdir="); lowerRaw != "" {
		lower, _, _ = strings.Cut(lowerRaw, ":")
	}
	return upper, lower
}

func parseOption(s, key string) string {
	idx := strings.Index(s, key)
	if idx < 0 {
		return ""
	}
	rest := s[idx+len(key):]
	if end := strings.IndexAny(rest, ", \t\n"); end >= 0 {
		rest = rest[:end]
	}
	return rest
}
