package stream

import (
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/k9trail/bridge/internal/utils"
)

// State tracks where a session is in its connection lifecycle.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateSubscribed
	StateError
	StateClosed
)

// Session bridges one MQTT subscription to one SSE client. It owns exactly
// one MQTT connection whose lifetime is bounded by the HTTP response: the
// handler closes the session when the browser goes away, and nothing is
// emitted after Close.
type Session struct {
	params         Params
	dial           Dialer
	connectTimeout time.Duration

	events chan Event
	closer chan struct{}
	state  atomic.Int32

	client    conn
	startOnce sync.Once
	closeOnce sync.Once
}

func NewSession(params Params, dial Dialer, connectTimeout time.Duration) *Session {
	return &Session{
		params:         params,
		dial:           dial,
		connectTimeout: connectTimeout,
		events:         make(chan Event, 100),
		closer:         make(chan struct{}),
	}
}

// Events returns the read-only channel of frames bound for the SSE stream.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Done is closed when the session has been torn down.
func (s *Session) Done() <-chan struct{} {
	return s.closer
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	// closed is terminal
	if s.State() == StateClosed {
		return
	}
	s.state.Store(int32(st))
}

// Start dials the broker. The connect result arrives asynchronously via
// the session's event channel; Start itself never blocks on the network.
func (s *Session) Start() {
	s.startOnce.Do(func() {
		log := logrus.WithField("prefix", "Session.Start")
		s.setState(StateConnecting)
		s.client = s.dial(s.clientOptions())
		token := s.client.Connect()
		utils.RunWithRecovery(func() {
			token.Wait()
			if err := token.Error(); err != nil {
				log.Infof("mqtt connect to %v failed: %v", s.params.BrokerURL(), err)
				mqttErrorsMetric.Inc()
				s.setState(StateError)
				s.emit(Errorf("mqtt connect: %v", err))
			}
		})
	})
}

// onConnect fires on the initial connect and again after every reconnect.
// The subscription does not survive a clean-session reconnect, so it is
// reissued each time.
func (s *Session) onConnect() {
	s.setState(StateConnected)
	s.emit(Connected(s.params.DisplayURI()))
	token := s.client.Subscribe(s.params.Topic, 0, s.onMessage)
	utils.RunWithRecovery(func() {
		token.Wait()
		if err := token.Error(); err != nil {
			mqttErrorsMetric.Inc()
			s.setState(StateError)
			s.emit(Errorf("mqtt subscribe %v: %v", s.params.Topic, err))
			return
		}
		s.setState(StateSubscribed)
		s.emit(Subscribed(s.params.Topic))
	})
}

func (s *Session) onMessage(_ mqtt.Client, m mqtt.Message) {
	s.emit(Telemetry(m.Topic(), string(m.Payload())))
}

func (s *Session) onConnectionLost(err error) {
	mqttErrorsMetric.Inc()
	s.setState(StateError)
	s.emit(Errorf("mqtt connection lost: %v", err))
}

func (s *Session) onReconnecting() {
	s.setState(StateConnecting)
	s.emit(Infof("reconnecting to %v", s.params.DisplayURI()))
}

// emit delivers an event unless the session is closed. Callbacks from the
// MQTT client may race with Close; the closer select keeps them from
// blocking forever on an abandoned channel.
func (s *Session) emit(ev Event) {
	select {
	case <-s.closer:
		return
	default:
	}
	select {
	case <-s.closer:
	case s.events <- ev:
	}
}

// Close tears the session down: unblocks emitters, then force-disconnects
// the MQTT client (quiesce 0 — no messages matter past this point). Safe to
// call any number of times, and a failing disconnect never propagates.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.closer)
		if c := s.client; c != nil {
			defer func() {
				if r := recover(); r != nil {
					logrus.WithField("prefix", "Session.Close").Errorf("mqtt disconnect: %v", r)
				}
			}()
			c.Disconnect(0)
		}
	})
}
