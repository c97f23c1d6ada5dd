package tarball

import "testing"

func TestSanitizeEntryPathStrip(t *testing.T) {
	cleaned, warn, skip := sanitizeEntryPath("package/lib/index.js", 1)
	if skip || warn != "" || cleaned != "lib/index.js" {
		t.Fatalf("got (%q, %q, %v)", cleaned, warn, skip)
	}
}

func TestSanitizeEntryPathTooFewSegmentsSkipped(t *testing.T) {
	_, _, skip := sanitizeEntryPath("package.json", 2)
	if !skip {
		t.Fatal("expected skip when entry has fewer segments than strip")
	}
}

func TestSanitizeEntryPathTraversalSkipped(t *testing.T) {
	_, warn, skip := sanitizeEntryPath("package/../../etc/passwd", 1)
	if !skip || warn != `path contains '..'` {
		t.Fatalf("got (warn=%q, skip=%v)", warn, skip)
	}
}

func TestSanitizeEntryPathAbsoluteStripped(t *testing.T) {
	cleaned, warn, skip := sanitizeEntryPath("/etc/passwd", 0)
	if skip || cleaned != "etc/passwd" || warn == "" {
		t.Fatalf("got (%q, %q, %v)", cleaned, warn, skip)
	}
}

func TestSanitizeEntryPathWindowsAbsoluteStripped(t *testing.T) {
	cleaned, warn, skip := sanitizeEntryPath(`C:\Windows\system.ini`, 0)
	if skip || cleaned != "Windows/system.ini" || warn == "" {
		t.Fatalf("got (%q, %q, %v)", cleaned, warn, skip)
	}
}
