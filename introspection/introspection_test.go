package introspection

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rsbus/rsbus"
	"github.com/rsbus/rsbus/event"
	"github.com/rsbus/rsbus/protocol"
	"github.com/rsbus/rsbus/scope"

	_ "github.com/rsbus/rsbus/transport/inprocess"
)

func inprocessConfig(introspect bool) *rsbus.ParticipantConfig {
	cfg := rsbus.NewParticipantConfig()
	cfg.Transport("socket").Enabled = false
	cfg.Transport("inprocess").Enabled = true
	cfg.SetIntrospection(introspect)
	return cfg
}

// observe returns a channel of events seen on the participants scope.
// The observer itself lives below the reserved scope, so it is never
// announced.
func observe(t *testing.T) chan *event.Event {
	t.Helper()
	l, err := rsbus.NewListener(participantsScope, inprocessConfig(true))
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	t.Cleanup(l.Deactivate)
	seen := make(chan *event.Event, 16)
	l.AddHandler(func(e *event.Event) { seen <- e })
	return seen
}

func waitFor[T any](t *testing.T, seen chan *event.Event, what string) (*event.Event, T) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-seen:
			if payload, ok := e.Data.(T); ok {
				return e, payload
			}
		case <-deadline:
			t.Fatalf("no %s announcement arrived", what)
		}
	}
}

func TestHelloAndByeAnnouncements(t *testing.T) {
	seen := observe(t)

	inf, err := rsbus.NewInformer(scope.MustParse("/announced/"), nil, inprocessConfig(true))
	if err != nil {
		t.Fatalf("NewInformer: %v", err)
	}

	_, hello := waitFor[*protocol.Hello](t, seen, "hello")
	if hello.Kind != "informer" {
		t.Errorf("hello kind %q", hello.Kind)
	}
	if hello.Scope != "/announced/" {
		t.Errorf("hello scope %q", hello.Scope)
	}
	id := inf.ID()
	if string(hello.ID) != string(id[:]) {
		t.Error("hello carries a different participant id")
	}
	if hello.Process == nil || hello.Process.ProgramName == "" {
		t.Error("hello misses process info")
	}
	if hello.Host == nil || hello.Host.ID == "" {
		t.Error("hello misses host info")
	}

	inf.Deactivate()
	_, bye := waitFor[*protocol.Bye](t, seen, "bye")
	if string(bye.ID) != string(id[:]) {
		t.Error("bye names a different participant")
	}
}

func TestSilentWhenDisabledOrReserved(t *testing.T) {
	seen := observe(t)

	quiet, err := rsbus.NewInformer(scope.MustParse("/quiet/"), nil, inprocessConfig(false))
	if err != nil {
		t.Fatalf("NewInformer: %v", err)
	}
	defer quiet.Deactivate()

	reserved, err := rsbus.NewListener(scope.MustParse("/__rsb/introspection/own/"), inprocessConfig(true))
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	defer reserved.Deactivate()

	select {
	case e := <-seen:
		if _, ok := e.Data.(*protocol.Hello); ok {
			t.Error("exempt participant was announced")
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSurveyAnswersWithHello(t *testing.T) {
	seen := observe(t)

	inf, err := rsbus.NewInformer(scope.MustParse("/surveyed/"), nil, inprocessConfig(true))
	if err != nil {
		t.Fatalf("NewInformer: %v", err)
	}
	defer inf.Deactivate()
	waitFor[*protocol.Hello](t, seen, "creation hello")

	query, err := rsbus.NewInformer(participantsScope, nil, inprocessConfig(true))
	if err != nil {
		t.Fatalf("NewInformer: %v", err)
	}
	defer query.Deactivate()

	q := event.New(participantsScope, nil)
	q.Method = surveyMethod
	if err := query.PublishEvent(q); err != nil {
		t.Fatalf("PublishEvent: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-seen:
			hello, ok := e.Data.(*protocol.Hello)
			if !ok || !e.IsCause(q.ID) {
				continue
			}
			if hello.Scope != "/surveyed/" {
				continue
			}
			return
		case <-deadline:
			t.Fatal("survey produced no cause-linked hello")
		}
	}
}

func TestStartTicksFromStat(t *testing.T) {
	// comm contains spaces and parentheses, the reason for parsing from
	// the last closing parenthesis.
	stat := "4711 (weird (comm) x) S 1 4711 4711 0 -1 4194560 1 2 3 4 5 6 7 8 20 0 1 0 654321 100000 200 18446744073709551615"
	ticks, ok := startTicksFromStat(stat)
	if !ok {
		t.Fatal("starttime was not found")
	}
	if ticks != 654321 {
		t.Errorf("starttime %d, want 654321", ticks)
	}

	if _, ok := startTicksFromStat("garbage"); ok {
		t.Error("garbage accepted")
	}
}

func TestBtimeFromProcStat(t *testing.T) {
	content := "cpu  1 2 3\nintr 4 5\nbtime 1700000000\nprocesses 9\n"
	btime, ok := btimeFromProcStat(content)
	if !ok || btime != 1700000000 {
		t.Errorf("btime %d ok=%v", btime, ok)
	}
	if _, ok := btimeFromProcStat("cpu 1 2 3\n"); ok {
		t.Error("missing btime accepted")
	}
}

func TestReadFirstLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "machine-id")
	if err := os.WriteFile(path, []byte("abcdef123456\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := readFirstLine(path); got != "abcdef123456" {
		t.Errorf("readFirstLine %q", got)
	}
	if got := readFirstLine(filepath.Join(t.TempDir(), "missing")); got != "" {
		t.Errorf("missing file read as %q", got)
	}
}

func TestComponentSafe(t *testing.T) {
	if got := componentSafe("host.example.com"); got != "host-example-com" {
		t.Errorf("componentSafe %q", got)
	}
	if got := componentSafe(""); got != "unknown" {
		t.Errorf("componentSafe of empty %q", got)
	}
}
