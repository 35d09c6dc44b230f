package patterns

import (
	"fmt"
	"sync"

	"github.com/rsbus/rsbus"
	"github.com/rsbus/rsbus/event"
	"github.com/rsbus/rsbus/filter"
	"github.com/rsbus/rsbus/scope"
)

const (
	methodRequest = "REQUEST"
	methodReply   = "REPLY"

	// errorInfoKey marks a reply as failed; the reply payload then
	// carries the error message.
	errorInfoKey = "rsb:error?"
)

// Handler implements one server method. It receives the full request
// event and returns the reply payload.
type Handler func(request *event.Event) (reply any, err error)

// EventHandler implements one server method at the event level: it
// builds the complete reply event, so it can attach meta data. The
// reply scope, method and cause link are filled in by the server.
type EventHandler func(request *event.Event) (reply *event.Event, err error)

type localMethod struct {
	listener *rsbus.Listener
	informer *rsbus.Informer
}

// LocalServer exposes methods below one scope. Each method listens for
// request events on <scope>/<method> and answers with cause-linked
// reply events.
type LocalServer struct {
	scope scope.Scope
	cfg   *rsbus.ParticipantConfig

	mu      sync.Mutex
	methods map[string]*localMethod
	closed  bool
}

// CreateLocalServer creates a server on sc using the process-wide
// default configuration.
func CreateLocalServer(sc scope.Scope) (*LocalServer, error) {
	return NewLocalServer(sc, rsbus.DefaultConfig())
}

// NewLocalServer creates a server with an explicit configuration.
// Methods are added with AddMethod.
func NewLocalServer(sc scope.Scope, cfg *rsbus.ParticipantConfig) (*LocalServer, error) {
	return &LocalServer{
		scope:   sc,
		cfg:     cfg,
		methods: make(map[string]*localMethod),
	}, nil
}

// Scope returns the scope the server's methods live below.
func (s *LocalServer) Scope() scope.Scope { return s.scope }

// AddMethod exposes h under the given method name, which must be a
// valid scope component.
func (s *LocalServer) AddMethod(name string, h Handler) error {
	return s.AddEventMethod(name, func(request *event.Event) (*event.Event, error) {
		data, err := h(request)
		if err != nil {
			return nil, err
		}
		return event.New(request.Scope, data), nil
	})
}

// AddEventMethod exposes an event-level handler under the given method
// name.
func (s *LocalServer) AddEventMethod(name string, h EventHandler) error {
	msc, err := methodScope(s.scope, name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("patterns: server on %s already deactivated", s.scope)
	}
	if _, ok := s.methods[name]; ok {
		return fmt.Errorf("patterns: method %q already added", name)
	}

	informer, err := rsbus.NewInformer(msc, nil, s.cfg)
	if err != nil {
		return fmt.Errorf("patterns: method %q: %w", name, err)
	}
	listener, err := rsbus.NewListener(msc, s.cfg)
	if err != nil {
		informer.Deactivate()
		return fmt.Errorf("patterns: method %q: %w", name, err)
	}
	listener.AddFilter(filter.NewMethod(methodRequest, false))
	listener.AddHandler(func(request *event.Event) {
		handleRequest(informer, msc, h, request)
	})

	s.methods[name] = &localMethod{listener: listener, informer: informer}
	return nil
}

func handleRequest(informer *rsbus.Informer, msc scope.Scope, h EventHandler, request *event.Event) {
	reply, err := invoke(h, request)
	if err != nil || reply == nil {
		if err == nil {
			err = fmt.Errorf("handler returned no reply")
		}
		reply = event.New(msc, err.Error())
		reply.MetaData.SetUserInfo(errorInfoKey, "1")
	}
	reply.Scope = msc
	reply.Method = methodReply
	reply.AddCause(request.ID)

	if perr := informer.PublishEvent(reply); perr != nil {
		logger().Error("reply publication failed", "scope", msc.String(), "error", perr)
	}
}

// invoke runs the handler, turning a panic into an error reply so one
// bad request cannot kill the serving process.
func invoke(h EventHandler, request *event.Event) (reply *event.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(request)
}

// Deactivate removes all methods and tears their participants down.
func (s *LocalServer) Deactivate() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	methods := s.methods
	s.methods = make(map[string]*localMethod)
	s.mu.Unlock()

	for _, m := range methods {
		m.listener.Deactivate()
		m.informer.Deactivate()
	}
}

// methodScope appends a method name to a server scope, validating the
// name as a scope component.
func methodScope(sc scope.Scope, name string) (scope.Scope, error) {
	sub, err := scope.Parse("/" + name + "/")
	if err != nil || len(sub.Components()) != 1 {
		return scope.Scope{}, fmt.Errorf("patterns: bad method name %q", name)
	}
	return sc.Concat(sub), nil
}
