package rsbus

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/rsbus/rsbus/event"
	"github.com/rsbus/rsbus/filter"
	"github.com/rsbus/rsbus/scope"

	_ "github.com/rsbus/rsbus/transport/inprocess"
)

// inprocessConfig keeps participant tests off the network.
func inprocessConfig() *ParticipantConfig {
	cfg := NewParticipantConfig()
	cfg.Transport("socket").Enabled = false
	cfg.Transport("inprocess").Enabled = true
	cfg.SetIntrospection(false)
	return cfg
}

func TestInformerListenerRoundTrip(t *testing.T) {
	cfg := inprocessConfig()
	sc := scope.MustParse("/test/roundtrip/")

	l, err := NewListener(sc, cfg)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	defer l.Deactivate()
	received := make(chan *event.Event, 1)
	l.AddHandler(func(e *event.Event) { received <- e })

	inf, err := NewInformer(sc, nil, cfg)
	if err != nil {
		t.Fatalf("NewInformer: %v", err)
	}
	defer inf.Deactivate()

	sent, err := inf.Publish("payload")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-received:
		if got.Data != "payload" {
			t.Errorf("received %v", got.Data)
		}
		if got.ID != sent.ID {
			t.Errorf("received ID %v, sent %v", got.ID, sent.ID)
		}
		if got.MetaData.DeliverTime.IsZero() {
			t.Error("deliver time was not stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestInformer_AssignsSequentialIDs(t *testing.T) {
	inf, err := NewInformer(scope.MustParse("/test/seq/"), nil, inprocessConfig())
	if err != nil {
		t.Fatalf("NewInformer: %v", err)
	}
	defer inf.Deactivate()

	first, err := inf.Publish(int64(1))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	second, err := inf.Publish(int64(2))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if first.ID.ParticipantID != inf.ID() || second.ID.ParticipantID != inf.ID() {
		t.Error("events must carry the informer's participant ID")
	}
	if first.ID.SequenceNumber != 0 || second.ID.SequenceNumber != 1 {
		t.Errorf("sequence numbers %d, %d, want 0, 1",
			first.ID.SequenceNumber, second.ID.SequenceNumber)
	}
}

func TestPublishEvent_RejectsForeignScope(t *testing.T) {
	inf, err := NewInformer(scope.MustParse("/test/own/"), nil, inprocessConfig())
	if err != nil {
		t.Fatalf("NewInformer: %v", err)
	}
	defer inf.Deactivate()

	if err := inf.PublishEvent(event.New(scope.MustParse("/test/other/"), nil)); err == nil {
		t.Error("publishing outside the informer scope must fail")
	}
	if err := inf.PublishEvent(event.New(scope.MustParse("/test/own/sub/"), nil)); err != nil {
		t.Errorf("publishing on a sub-scope should work: %v", err)
	}
}

func TestInformer_TypeRestriction(t *testing.T) {
	inf, err := NewInformer(scope.MustParse("/test/typed/"), reflect.TypeOf(""), inprocessConfig())
	if err != nil {
		t.Fatalf("NewInformer: %v", err)
	}
	defer inf.Deactivate()

	if _, err := inf.Publish("fine"); err != nil {
		t.Errorf("string payload should pass: %v", err)
	}
	if _, err := inf.Publish(int64(7)); err == nil {
		t.Error("non-string payload must be rejected")
	}
}

func TestListener_FilterNarrowsDelivery(t *testing.T) {
	cfg := inprocessConfig()
	sc := scope.MustParse("/test/filtered/")

	l, err := NewListener(sc, cfg)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	defer l.Deactivate()

	inf, err := NewInformer(sc, nil, cfg)
	if err != nil {
		t.Fatalf("NewInformer: %v", err)
	}
	defer inf.Deactivate()

	other, err := NewInformer(sc, nil, cfg)
	if err != nil {
		t.Fatalf("NewInformer: %v", err)
	}
	defer other.Deactivate()

	received := make(chan *event.Event, 2)
	l.AddHandler(func(e *event.Event) { received <- e })
	l.AddFilter(filter.NewOrigin(inf.ID(), false))

	if _, err := other.Publish("unwanted"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, err := inf.Publish("wanted"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-received:
		if got.Data != "wanted" {
			t.Errorf("received %v, filter failed", got.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestTwoListenersGetIndependentEvents(t *testing.T) {
	cfg := inprocessConfig()
	sc := scope.MustParse("/test/shared/")

	first, err := NewListener(sc, cfg)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	defer first.Deactivate()
	second, err := NewListener(sc, cfg)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	defer second.Deactivate()

	fromFirst := make(chan *event.Event, 8)
	fromSecond := make(chan *event.Event, 8)
	first.AddHandler(func(e *event.Event) { fromFirst <- e })
	second.AddHandler(func(e *event.Event) { fromSecond <- e })

	inf, err := NewInformer(sc, nil, cfg)
	if err != nil {
		t.Fatalf("NewInformer: %v", err)
	}
	defer inf.Deactivate()

	for i := 0; i < 8; i++ {
		if _, err := inf.Publish(int64(i)); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	for i := 0; i < 8; i++ {
		select {
		case a := <-fromFirst:
			b := <-fromSecond
			if a == b {
				t.Fatal("listeners must not share one event instance")
			}
			if a.MetaData.DeliverTime.IsZero() || b.MetaData.DeliverTime.IsZero() {
				t.Error("deliver time was not stamped for both listeners")
			}
		case <-time.After(time.Second):
			t.Fatal("event was not delivered to both listeners")
		}
	}
}

func TestReader_ReadAndContext(t *testing.T) {
	cfg := inprocessConfig()
	sc := scope.MustParse("/test/reader/")

	r, err := NewReader(sc, cfg)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Deactivate()

	inf, err := NewInformer(sc, nil, cfg)
	if err != nil {
		t.Fatalf("NewInformer: %v", err)
	}
	defer inf.Deactivate()

	if _, err := inf.Publish("queued"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := r.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Data != "queued" {
		t.Errorf("read %v", got.Data)
	}

	short, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	if _, err := r.Read(short); err == nil {
		t.Error("Read on an empty queue must honor the context")
	}
}

func TestParticipantHooks(t *testing.T) {
	created := make(chan *Participant, 4)
	destroyed := make(chan *Participant, 4)
	OnParticipantCreation(func(p, parent *Participant) {
		select {
		case created <- p:
		default:
		}
	})
	OnParticipantDestruction(func(p *Participant) {
		select {
		case destroyed <- p:
		default:
		}
	})

	inf, err := NewInformer(scope.MustParse("/test/hooks/"), nil, inprocessConfig())
	if err != nil {
		t.Fatalf("NewInformer: %v", err)
	}

	select {
	case p := <-created:
		if p.Kind() != "informer" {
			t.Errorf("creation hook saw kind %q", p.Kind())
		}
	default:
		t.Fatal("creation hook did not fire")
	}

	inf.Deactivate()
	inf.Deactivate() // second call must be a no-op

	if len(destroyed) != 1 {
		t.Fatalf("destruction hook fired %d times, want 1", len(destroyed))
	}
}
