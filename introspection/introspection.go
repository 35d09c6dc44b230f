// Package introspection announces bus participants and answers
// introspection queries.
//
// Importing the package hooks it into the participant lifecycle: every
// participant whose configuration has introspection enabled is
// announced with a Hello event when created and a Bye event when
// deactivated, and the package answers surveys, targeted requests and
// pings from introspection tools. An echo method on the process scope
// lets tools estimate clock offset and round-trip time.
package introspection

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/rsbus/rsbus"
	"github.com/rsbus/rsbus/event"
	"github.com/rsbus/rsbus/patterns"
	"github.com/rsbus/rsbus/protocol"
	"github.com/rsbus/rsbus/scope"
)

var (
	baseScope         = scope.MustParse("/__rsb/introspection/")
	participantsScope = scope.MustParse("/__rsb/introspection/participants/")
	hostsScope        = scope.MustParse("/__rsb/introspection/hosts/")
)

const (
	surveyMethod  = "SURVEY"
	requestMethod = "REQUEST"
)

func logger() *slog.Logger {
	return slog.Default().With("component", "introspection")
}

type entry struct {
	kind   string
	scope  scope.Scope
	parent uuid.UUID
	hasPar bool
}

// sender owns the introspection participants of the process.
type sender struct {
	informer *rsbus.Informer
	listener *rsbus.Listener
	echo     *patterns.LocalServer

	host    *protocol.HostInfo
	process *protocol.ProcessInfo

	mu           sync.Mutex
	participants map[uuid.UUID]entry
}

var (
	senderMu     sync.Mutex
	globalSender *sender
)

func init() {
	rsbus.OnParticipantCreation(onCreation)
	rsbus.OnParticipantDestruction(onDestruction)
}

// exempt reports whether p must not be announced: introspection's own
// participants (anything below the reserved scope) and participants
// configured without introspection.
func exempt(p *rsbus.Participant) bool {
	if !p.Config().Introspection() {
		return true
	}
	sc := p.Scope()
	return sc.Equal(baseScope) || sc.IsSubScopeOf(baseScope)
}

func onCreation(p, parent *rsbus.Participant) {
	if exempt(p) {
		return
	}
	s, err := senderFor(p.Config())
	if err != nil {
		logger().Error("introspection unavailable", "error", err)
		return
	}
	s.add(p, parent)
}

func onDestruction(p *rsbus.Participant) {
	if exempt(p) {
		return
	}
	senderMu.Lock()
	s := globalSender
	senderMu.Unlock()
	if s != nil {
		s.remove(p)
	}
}

// senderFor returns the process-wide sender, building it on first use
// from cfg (with introspection disabled, so the sender's own
// participants stay silent).
func senderFor(cfg *rsbus.ParticipantConfig) (*sender, error) {
	senderMu.Lock()
	defer senderMu.Unlock()
	if globalSender != nil {
		return globalSender, nil
	}

	own := cfg.Clone()
	own.SetIntrospection(false)

	s := &sender{
		host:         hostInfo(),
		process:      processInfo(),
		participants: make(map[uuid.UUID]entry),
	}

	var err error
	if s.informer, err = rsbus.NewInformer(participantsScope, nil, own); err != nil {
		return nil, fmt.Errorf("introspection: %w", err)
	}
	if s.listener, err = rsbus.NewListener(participantsScope, own); err != nil {
		s.informer.Deactivate()
		return nil, fmt.Errorf("introspection: %w", err)
	}
	s.listener.AddHandler(s.handleQuery)

	echoScope := hostsScope.Concat(processScope(s.host.ID, s.process.ID))
	if s.echo, err = patterns.NewLocalServer(echoScope, own); err != nil {
		s.listener.Deactivate()
		s.informer.Deactivate()
		return nil, fmt.Errorf("introspection: %w", err)
	}
	if err := s.echo.AddEventMethod("echo", echoHandler); err != nil {
		s.echo.Deactivate()
		s.listener.Deactivate()
		s.informer.Deactivate()
		return nil, fmt.Errorf("introspection: %w", err)
	}

	globalSender = s
	return s, nil
}

// processScope is the sub-scope of the hosts scope identifying this
// process: /<host-id>/<pid>/.
func processScope(hostID, pid string) scope.Scope {
	return scope.MustParse("/" + componentSafe(hostID) + "/" + pid + "/")
}

// componentSafe maps arbitrary identifier text onto the scope component
// alphabet.
func componentSafe(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			b.WriteByte(c)
		default:
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}

func (s *sender) add(p, parent *rsbus.Participant) {
	e := entry{kind: p.Kind(), scope: p.Scope()}
	if parent != nil {
		e.parent = parent.ID()
		e.hasPar = true
	}
	s.mu.Lock()
	s.participants[p.ID()] = e
	s.mu.Unlock()

	s.sendHello(p.ID(), e, nil)
}

func (s *sender) remove(p *rsbus.Participant) {
	s.mu.Lock()
	_, known := s.participants[p.ID()]
	delete(s.participants, p.ID())
	s.mu.Unlock()
	if !known {
		return
	}

	id := p.ID()
	e := event.New(participantScope(id), &protocol.Bye{ID: id[:]})
	if err := s.informer.PublishEvent(e); err != nil {
		logger().Warn("bye publication failed", "participant", id.String(), "error", err)
	}
}

// participantScope is the sub-scope of the participants scope carrying
// announcements for one participant.
func participantScope(id uuid.UUID) scope.Scope {
	return participantsScope.Concat(scope.MustParse("/" + id.String() + "/"))
}

// sendHello announces one participant; a non-nil query links the
// announcement to the query event that asked for it.
func (s *sender) sendHello(id uuid.UUID, e entry, query *event.Event) {
	hello := &protocol.Hello{
		Kind:    e.kind,
		ID:      id[:],
		Scope:   e.scope.String(),
		Host:    s.host,
		Process: s.process,
	}
	if e.hasPar {
		hello.Parent = e.parent[:]
	}

	ev := event.New(participantScope(id), hello)
	if query != nil {
		ev.AddCause(query.ID)
	}
	if err := s.informer.PublishEvent(ev); err != nil {
		logger().Warn("hello publication failed", "participant", id.String(), "error", err)
	}
}

// handleQuery answers introspection queries arriving on the
// participants scope.
func (s *sender) handleQuery(q *event.Event) {
	switch {
	case q.Method == surveyMethod:
		s.mu.Lock()
		snapshot := make(map[uuid.UUID]entry, len(s.participants))
		for id, e := range s.participants {
			snapshot[id] = e
		}
		s.mu.Unlock()
		for id, e := range snapshot {
			s.sendHello(id, e, q)
		}

	case q.Method == requestMethod:
		id, ok := targetParticipant(q.Scope)
		if !ok {
			return
		}
		s.mu.Lock()
		e, known := s.participants[id]
		s.mu.Unlock()
		if known {
			s.sendHello(id, e, q)
		}

	case q.Data == "ping":
		id, ok := targetParticipant(q.Scope)
		s.mu.Lock()
		_, known := s.participants[id]
		s.mu.Unlock()
		if ok && known {
			pong := event.New(q.Scope, "pong")
			pong.AddCause(q.ID)
			if err := s.informer.PublishEvent(pong); err != nil {
				logger().Warn("pong publication failed", "error", err)
			}
		}
	}
}

// targetParticipant extracts the participant a query on a sub-scope of
// the participants scope addresses.
func targetParticipant(sc scope.Scope) (uuid.UUID, bool) {
	components := sc.Components()
	base := len(participantsScope.Components())
	if len(components) < base+1 {
		return uuid.UUID{}, false
	}
	id, err := uuid.Parse(components[base])
	if err != nil {
		return uuid.UUID{}, false
	}
	return id, true
}

// echoHandler answers the process echo method: the request payload
// comes back with the request's send and receive timestamps recorded as
// user times, letting the caller estimate clock offset.
func echoHandler(request *event.Event) (*event.Event, error) {
	reply := event.New(request.Scope, request.Data)
	reply.MetaData.SetUserTime("request.send", request.MetaData.SendTime)
	reply.MetaData.SetUserTime("request.receive", request.MetaData.ReceiveTime)
	return reply, nil
}
