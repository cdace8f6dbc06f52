package stream

import (
	"crypto/tls"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// conn is the subset of mqtt.Client a session drives. paho's client
// satisfies it; tests substitute a fake.
type conn interface {
	Connect() mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
}

// Dialer constructs an MQTT connection from prepared client options.
type Dialer func(opts *mqtt.ClientOptions) conn

// PahoDialer is the production dialer.
func PahoDialer(opts *mqtt.ClientOptions) conn {
	return mqtt.NewClient(opts)
}

// clientOptions maps the request parameters onto paho client options.
// The initial connect is single-shot so a refused or unreachable broker
// surfaces as a diagnostic; once connected, the client reconnects on its
// own and every drop or retry is diagnosed separately.
func (s *Session) clientOptions() *mqtt.ClientOptions {
	p := s.params
	opts := mqtt.NewClientOptions().
		AddBroker(p.BrokerURL()).
		SetClientID(p.ClientID).
		SetKeepAlive(p.Keepalive).
		SetConnectTimeout(s.connectTimeout).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(false)

	if p.Username != "" {
		opts.SetUsername(p.Username)
		opts.SetPassword(p.Password)
	}
	if p.SSL && p.Insecure {
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
	}

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		s.onConnect()
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.onConnectionLost(err)
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		s.onReconnecting()
	})
	return opts
}
