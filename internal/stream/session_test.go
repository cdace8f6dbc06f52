package stream

import (
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeConn struct {
	mu           sync.Mutex
	opts         *mqtt.ClientOptions
	connectErr   error
	subscribeErr error
	subscribed   []string
	handler      mqtt.MessageHandler
	disconnects  int
	connected    bool
	dials        int
}

func (f *fakeConn) Connect() mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr == nil {
		f.connected = true
	}
	return &fakeToken{err: f.connectErr}
}

func (f *fakeConn) Subscribe(topic string, qos byte, cb mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if qos != 0 {
		panic("bridge must subscribe at QoS 0")
	}
	f.subscribed = append(f.subscribed, topic)
	f.handler = cb
	return &fakeToken{err: f.subscribeErr}
}

func (f *fakeConn) Disconnect(quiesce uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.connected = false
}

func (f *fakeConn) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeConn) dialer() Dialer {
	return func(opts *mqtt.ClientOptions) conn {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.opts = opts
		f.dials++
		return f
	}
}

func (f *fakeConn) fireConnect() {
	f.mu.Lock()
	onConnect := f.opts.OnConnect
	f.mu.Unlock()
	onConnect(nil)
}

func (f *fakeConn) deliver(topic, payload string) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	handler(nil, &fakeMessage{topic: topic, payload: payload})
}

type fakeMessage struct {
	topic   string
	payload string
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return []byte(m.payload) }
func (m *fakeMessage) Ack()              {}

func newTestSession(t *testing.T, f *fakeConn, query string) *Session {
	t.Helper()
	values, err := url.ParseQuery(query)
	if err != nil {
		t.Fatal(err)
	}
	params := ParseParams(values, "test.broker.local")
	return NewSession(params, f.dialer(), time.Second)
}

func waitEvent(t *testing.T, s *Session) Event {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestSession_ConnectAndSubscribe(t *testing.T) {
	f := &fakeConn{}
	s := newTestSession(t, f, "topic=devices/x/telemetry")
	defer s.Close()

	s.Start()
	f.fireConnect()

	ev := waitEvent(t, s)
	if ev.Stage != StageConnected {
		t.Fatalf("expected connected event first, got %+v", ev)
	}
	if ev.Message != "mqtt://test.broker.local:1883" {
		t.Errorf("unexpected connected target: %v", ev.Message)
	}

	ev = waitEvent(t, s)
	if ev.Stage != StageSubscribed || ev.Message != "devices/x/telemetry" {
		t.Fatalf("expected subscribed event, got %+v", ev)
	}
	if s.State() != StateSubscribed {
		t.Errorf("expected StateSubscribed, got %v", s.State())
	}
	if f.dials != 1 {
		t.Errorf("exactly one MQTT client must be constructed per session, got %v", f.dials)
	}
}

func TestSession_StartIsSingleShot(t *testing.T) {
	f := &fakeConn{}
	s := newTestSession(t, f, "")
	defer s.Close()

	s.Start()
	s.Start()
	if f.dials != 1 {
		t.Errorf("duplicate Start must not dial again, dials = %v", f.dials)
	}
}

func TestSession_ConnectErrorIsDiagnosed(t *testing.T) {
	f := &fakeConn{connectErr: errors.New("Connection refused")}
	s := newTestSession(t, f, "")
	defer s.Close()

	s.Start()
	ev := waitEvent(t, s)
	if ev.Stage != StageError {
		t.Fatalf("expected error event, got %+v", ev)
	}
	if ev.Message != "mqtt connect: Connection refused" {
		t.Errorf("unexpected error message: %v", ev.Message)
	}

	// the session stays open; only the browser ends it
	select {
	case <-s.Done():
		t.Error("session must not close itself on a connect error")
	default:
	}
}

func TestSession_SubscribeErrorKeepsSessionOpen(t *testing.T) {
	f := &fakeConn{subscribeErr: errors.New("not authorized")}
	s := newTestSession(t, f, "topic=devices/%23")
	defer s.Close()

	s.Start()
	f.fireConnect()

	if ev := waitEvent(t, s); ev.Stage != StageConnected {
		t.Fatalf("expected connected, got %+v", ev)
	}
	ev := waitEvent(t, s)
	if ev.Stage != StageError {
		t.Fatalf("expected error event, got %+v", ev)
	}
	select {
	case <-s.Done():
		t.Error("a failed subscribe must not close the session")
	default:
	}
}

func TestSession_ForwardsMessagesInOrder(t *testing.T) {
	f := &fakeConn{}
	s := newTestSession(t, f, "topic=devices/x/telemetry")
	defer s.Close()

	s.Start()
	f.fireConnect()
	waitEvent(t, s) // connected
	waitEvent(t, s) // subscribed

	payloads := []string{`{"lat":30.1}`, `{"lat":30.2}`, `{"lat":30.3}`}
	for _, p := range payloads {
		f.deliver("devices/x/telemetry", p)
	}

	for i, want := range payloads {
		ev := waitEvent(t, s)
		if ev.Kind != KindTelemetry {
			t.Fatalf("event %d: expected telemetry, got %+v", i, ev)
		}
		if ev.Topic != "devices/x/telemetry" || ev.Payload != want {
			t.Errorf("event %d: got topic=%v payload=%v, want payload=%v", i, ev.Topic, ev.Payload, want)
		}
	}
}

func TestSession_ConnectionLostIsDiagnosed(t *testing.T) {
	f := &fakeConn{}
	s := newTestSession(t, f, "")
	defer s.Close()

	s.Start()
	f.opts.OnConnectionLost(nil, errors.New("EOF"))

	ev := waitEvent(t, s)
	if ev.Stage != StageError || ev.Message != "mqtt connection lost: EOF" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	f := &fakeConn{}
	s := newTestSession(t, f, "")
	s.Start()

	s.Close()
	s.Close()
	s.Close()

	if f.disconnects != 1 {
		t.Errorf("expected a single disconnect, got %v", f.disconnects)
	}
	if s.State() != StateClosed {
		t.Errorf("expected StateClosed, got %v", s.State())
	}
}

func TestSession_NoEventsAfterClose(t *testing.T) {
	f := &fakeConn{}
	s := newTestSession(t, f, "")
	s.Start()
	f.fireConnect()
	waitEvent(t, s) // connected
	waitEvent(t, s) // subscribed

	s.Close()

	// late callbacks from the MQTT client must not block or panic
	done := make(chan struct{})
	go func() {
		f.deliver("devices/late", "msg")
		f.opts.OnConnectionLost(nil, errors.New("late"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked after Close")
	}
	if s.State() != StateClosed {
		t.Errorf("closed is terminal, got state %v", s.State())
	}
}

func TestSession_CloseBeforeStart(t *testing.T) {
	f := &fakeConn{}
	s := newTestSession(t, f, "")
	s.Close()
	if f.disconnects != 0 {
		t.Error("nothing to disconnect before Start")
	}
}
