package logrus

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/unkn0wn-root/tiercache"
)

func TestLogrusLogger(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := New(base)

	l.Error("tier unavailable", tiercache.Fields{"level": "structured", "err": errors.New("locked")})
	l.Debug("stored", nil)

	if len(hook.Entries) != 2 {
		t.Fatalf("entries=%d", len(hook.Entries))
	}
	e := hook.Entries[0]
	if e.Level != logrus.ErrorLevel || e.Message != "tier unavailable" {
		t.Fatalf("entry: %v %q", e.Level, e.Message)
	}
	if e.Data["component"] != "tiercache" || e.Data["level"] != "structured" {
		t.Fatalf("data: %v", e.Data)
	}
	if err, ok := e.Data[logrus.ErrorKey].(error); !ok || err.Error() != "locked" {
		t.Fatalf("error field: %v", e.Data)
	}
	if hook.LastEntry().Level != logrus.DebugLevel {
		t.Fatalf("last level: %v", hook.LastEntry().Level)
	}
}
