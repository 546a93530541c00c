package vfsevents

import "testing"

func TestParseOverlayOptions(t *testing.T) {
	line := "overlay /home overlay rw,relatime,lowerdir=/a:/b,upperdir=/c/upper,workdir=/c/work 0 0"
	upper, lower := parseOverlayOptions(line)
	if upper != "/c/upper" {
		t.Fatalf("upper = %q, want /c/upper", upper)
	}
	if lower != "/a" {
		t.Fatalf("lower = %q, want /a (first colon-separated entry)", lower)
	}
}

func TestNormalizeUnderUpperDir(t *testing.T) {
	n := &Normalizer{watchRoot: "/home/alice", overlay: true, upperDir: "/overlay/upper"}
	got := n.Normalize("/overlay/upper/docs/a.txt")
	want := "/home/alice/docs/a.txt"
	if got != want {
		t.Fatalf("Normalize() = %q, want %q", got, want)
	}
}

func TestNormalizeUnderLowerDir(t *testing.T) {
	n := &Normalizer{watchRoot: "/home/alice", overlay: true, lowerDir: "/overlay/lower"}
	got := n.Normalize("/overlay/lower/docs/a.txt")
	want := "/home/alice/docs/a.txt"
	if got != want {
		t.Fatalf("Normalize() = %q, want %q", got, want)
	}
}

func TestNormalizePassesThroughWhenNotOverlay(t *testing.T) {
	n := &Normalizer{watchRoot: "/home/alice"}
	path := "/home/alice/docs/a.txt"
	if got := n.Normalize(path); got != path {
		t.Fatalf("Normalize() = %q, want unchanged %q", got, path)
	}
}

func TestNormalizeLegacyOverlayPrefix(t *testing.T) {
	n := &Normalizer{watchRoot: "/home/alice", overlay: true}
	got := n.Normalize("/overlay/disable-system-protect/home/upper/docs/a.txt")
	want := "/home/alice/docs/a.txt"
	if got != want {
		t.Fatalf("Normalize() = %q, want %q", got, want)
	}
}

func TestIsInWatchPath(t *testing.T) {
	n := &Normalizer{watchRoot: "/home/alice"}
	if !n.IsInWatchPath("/home/alice/docs/a.txt") {
		t.Fatal("expected path under watch root to match")
	}
	if n.IsInWatchPath("/home/bob/docs/a.txt") {
		t.Fatal("expected path outside watch root not to match")
	}
}
