package vfsevents

import "testing"

func TestActionStringMatchesOriginalEnumNames(t *testing.T) {
	cases := map[Action]string{
		NewFile:          "NEW_FILE",
		RenameFromFolder: "RENAME_FROM_FOLDER",
		CloseNowriteFile: "CLOSE_NOWRITE_FILE",
	}
	for act, want := range cases {
		if got := act.String(); got != want {
			t.Errorf("Action(%d).String() = %q, want %q", act, got, want)
		}
	}
}

func TestActionStringUnknownFallback(t *testing.T) {
	got := Action(200).String()
	want := "ACT(200)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
