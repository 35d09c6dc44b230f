package patterns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rsbus/rsbus"
	"github.com/rsbus/rsbus/event"
	"github.com/rsbus/rsbus/filter"
	"github.com/rsbus/rsbus/scope"
)

func logger() *slog.Logger {
	return slog.Default().With("component", "patterns")
}

// CallError is a failure reported by the remote method itself, as
// opposed to a transport or timeout problem.
type CallError struct {
	Method  string
	Message string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("patterns: method %q failed: %s", e.Method, e.Message)
}

type remoteMethod struct {
	name     string
	informer *rsbus.Informer
	listener *rsbus.Listener

	mu      sync.Mutex
	pending map[event.ID]*Future
}

// RemoteServer calls the methods a LocalServer exposes below a scope.
// Method proxies are created lazily on first call and reused.
type RemoteServer struct {
	scope scope.Scope
	cfg   *rsbus.ParticipantConfig

	mu      sync.Mutex
	methods map[string]*remoteMethod
	closed  bool
}

// CreateRemoteServer creates a caller for the server on sc using the
// process-wide default configuration.
func CreateRemoteServer(sc scope.Scope) (*RemoteServer, error) {
	return NewRemoteServer(sc, rsbus.DefaultConfig())
}

// NewRemoteServer creates a caller with an explicit configuration.
func NewRemoteServer(sc scope.Scope, cfg *rsbus.ParticipantConfig) (*RemoteServer, error) {
	return &RemoteServer{
		scope:   sc,
		cfg:     cfg,
		methods: make(map[string]*remoteMethod),
	}, nil
}

// Scope returns the scope of the called server.
func (s *RemoteServer) Scope() scope.Scope { return s.scope }

// CallAsync publishes a request for the named method and returns a
// Future resolving to the reply event.
func (s *RemoteServer) CallAsync(method string, data any) (*Future, error) {
	m, err := s.methodProxy(method)
	if err != nil {
		return nil, err
	}

	request := event.New(m.informer.Scope(), data)
	request.Method = methodRequest

	fut := newFuture()
	// Publication and registration happen under the method lock so a
	// reply racing back cannot miss the pending entry.
	m.mu.Lock()
	if err := m.informer.PublishEvent(request); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.pending[request.ID] = fut
	m.mu.Unlock()
	return fut, nil
}

// Call performs a synchronous method call, returning the reply payload.
// Remote failures surface as *CallError.
func (s *RemoteServer) Call(ctx context.Context, method string, data any) (any, error) {
	fut, err := s.CallAsync(method, data)
	if err != nil {
		return nil, err
	}
	reply, err := fut.Get(ctx)
	if err != nil {
		return nil, err
	}
	return reply.Data, nil
}

func (s *RemoteServer) methodProxy(name string) (*remoteMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("patterns: caller on %s already deactivated", s.scope)
	}
	if m, ok := s.methods[name]; ok {
		return m, nil
	}

	msc, err := methodScope(s.scope, name)
	if err != nil {
		return nil, err
	}
	informer, err := rsbus.NewInformer(msc, nil, s.cfg)
	if err != nil {
		return nil, fmt.Errorf("patterns: method %q: %w", name, err)
	}
	listener, err := rsbus.NewListener(msc, s.cfg)
	if err != nil {
		informer.Deactivate()
		return nil, fmt.Errorf("patterns: method %q: %w", name, err)
	}

	m := &remoteMethod{
		name:     name,
		informer: informer,
		listener: listener,
		pending:  make(map[event.ID]*Future),
	}
	listener.AddFilter(filter.NewMethod(methodReply, false))
	listener.AddHandler(m.handleReply)

	s.methods[name] = m
	return m, nil
}

// handleReply matches a reply to its pending call via the request-ID
// cause. Replies to requests of other callers are ignored.
func (m *remoteMethod) handleReply(reply *event.Event) {
	m.mu.Lock()
	var fut *Future
	for _, cause := range reply.Causes() {
		if f, ok := m.pending[cause]; ok {
			fut = f
			delete(m.pending, cause)
			break
		}
	}
	m.mu.Unlock()
	if fut == nil {
		return
	}

	if v, ok := reply.MetaData.UserInfo(errorInfoKey); ok && v != "" {
		message, _ := reply.Data.(string)
		fut.fail(&CallError{Method: m.name, Message: message})
		return
	}
	fut.resolve(reply)
}

// Deactivate tears all method proxies down. Pending futures fail.
func (s *RemoteServer) Deactivate() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	methods := s.methods
	s.methods = make(map[string]*remoteMethod)
	s.mu.Unlock()

	for _, m := range methods {
		m.listener.Deactivate()
		m.informer.Deactivate()
		m.mu.Lock()
		for id, fut := range m.pending {
			delete(m.pending, id)
			fut.fail(errors.New("patterns: caller deactivated"))
		}
		m.mu.Unlock()
	}
}
