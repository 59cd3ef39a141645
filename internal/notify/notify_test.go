package notify

import (
	"errors"
	"testing"
)

func TestDesktopNotifySwallowsErrors(t *testing.T) {
	var gotTitle, gotBody string
	d := NewDesktop(nil)
	d.send = func(title, message string) error {
		gotTitle, gotBody = title, message
		return errors.New("no notification daemon")
	}

	d.Notify("Claude Code session ended", "Current session has ended")
	if gotTitle != "Claude Code session ended" || gotBody != "Current session has ended" {
		t.Fatalf("unexpected notification %q %q", gotTitle, gotBody)
	}
}
