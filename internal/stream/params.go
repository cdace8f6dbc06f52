package stream

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	defaultTopic         = "devices/#"
	defaultPlainPort     = 1883
	defaultTLSPort       = 8883
	defaultKeepaliveSecs = 30
)

// Params holds the per-request MQTT connection parameters. Every field is
// optional on the wire; parsing fills in the documented defaults.
type Params struct {
	Host      string
	Port      int
	Topic     string
	SSL       bool
	Insecure  bool
	Username  string
	Password  string
	Keepalive time.Duration
	ClientID  string
}

// ParseParams resolves the stream query parameters against their defaults.
// It never fails: an unparsable value falls back to its default.
func ParseParams(values url.Values, defaultHost string) Params {
	p := Params{
		Host:     values.Get("host"),
		Topic:    values.Get("topic"),
		Username: values.Get("user"),
		Password: values.Get("pass"),
		ClientID: values.Get("clientId"),
	}
	if p.Host == "" {
		p.Host = defaultHost
	}
	if p.Topic == "" {
		p.Topic = defaultTopic
	}
	p.SSL = parseBool(values.Get("ssl"))
	p.Insecure = p.SSL && parseBool(values.Get("insecure"))

	p.Port = parsePositiveInt(values.Get("port"), 0)
	if p.Port == 0 {
		if p.SSL {
			p.Port = defaultTLSPort
		} else {
			p.Port = defaultPlainPort
		}
	}

	keepalive := parsePositiveInt(values.Get("keepalive"), defaultKeepaliveSecs)
	p.Keepalive = time.Duration(keepalive) * time.Second

	if p.ClientID == "" {
		p.ClientID = "k9bridge-" + uuid.NewString()
	}
	return p
}

// BrokerURL is the dial URL in the form the MQTT client expects.
func (p Params) BrokerURL() string {
	scheme := "tcp"
	if p.SSL {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, p.Host, p.Port)
}

// DisplayURI is the broker target as shown to the browser in diagnostics.
func (p Params) DisplayURI() string {
	scheme := "mqtt"
	if p.SSL {
		scheme = "mqtts"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, p.Host, p.Port)
}

func parseBool(s string) bool {
	if s == "" {
		return false
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false
	}
	return v
}

func parsePositiveInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
