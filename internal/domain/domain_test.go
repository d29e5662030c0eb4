package domain

import (
	"testing"
	"time"
)

func TestMakeJobKey(t *testing.T) {
	k := MakeJobKey("srv-01", "nightly-docs")
	if k != JobKey("srv-01/nightly-docs") {
		t.Fatalf("unexpected key: %q", k)
	}
}

func TestNotificationRecord_Opened(t *testing.T) {
	var nilRec *NotificationRecord
	if nilRec.Opened() {
		t.Fatal("nil record must not report open")
	}

	rec := &NotificationRecord{JobKey: "a/b"}
	if rec.Opened() {
		t.Fatal("record without episode start must not report open")
	}

	now := time.Now().UTC()
	rec.EpisodeStartedAt = &now
	if !rec.Opened() {
		t.Fatal("record with episode start must report open")
	}
}
