package tarball

import (
	"regexp"
	"strings"
)

var windowsAbsoluteRE = regexp.MustCompile(`^[A-Za-z]:[\\/]`)

// sanitizeEntryPath applies the unpacker's entry-path rules.
// It returns the cleaned, slash-joined relative path; skip is true when
// the entry must be dropped outright (too few segments to satisfy
// strip, or a ".." segment); warn, when non-empty, is a message to
// report through the warn sink without dropping the entry.
func sanitizeEntryPath(name string, strip int) (cleaned string, warn string, skip bool) {
	segments := strings.Split(strings.ReplaceAll(name, "\\", "/"), "/")

	if strip > 0 {
		if len(segments) < strip {
			return "", "", true
		}
		segments = segments[strip:]
	}

	joined := strings.Join(segments, "/")

	for _, seg := range strings.Split(joined, "/") {
		if seg == ".." {
			return "", `path contains '..'`, true
		}
	}

	if strings.HasPrefix(joined, "/") {
		joined = strings.TrimPrefix(joined, "/")
		warn = "stripped absolute path root"
	} else if windowsAbsoluteRE.MatchString(joined) {
		joined = windowsAbsoluteRE.ReplaceAllString(joined, "")
		warn = "stripped absolute path root"
	}

	if strings.HasPrefix(joined, "/") || windowsAbsoluteRE.MatchString(joined) {
		// Still absolute after stripping the root: warn but keep the
		// entry. The empty-segment filter below still drops a leading
		// "/"; a drive prefix such as "C:" is kept.
		warn = "path remains absolute after stripping root"
	}

	var kept []string
	for _, seg := range strings.Split(joined, "/") {
		if seg == "" || seg == "." {
			continue
		}
		kept = append(kept, seg)
	}

	return strings.Join(kept, "/"), warn, false
}
