package stream

import (
	"fmt"
	"io"
	"time"

	"github.com/bytedance/sonic"
)

// Kind discriminates the payloads emitted on the SSE channel.
type Kind int

const (
	KindDiagnostic Kind = iota
	KindTelemetry
)

// Stage names the connection-lifecycle step a diagnostic event reports.
type Stage string

const (
	StageConnecting Stage = "connecting"
	StageConnected  Stage = "connected"
	StageSubscribed Stage = "subscribed"
	StageError      Stage = "error"
	StageInfo       Stage = "info"
)

// Event is one frame bound for the SSE stream: either a diagnostic
// describing the MQTT connection lifecycle or a forwarded telemetry message.
type Event struct {
	Kind    Kind
	Stage   Stage
	Message string
	Topic   string
	Payload string
}

func Connecting(target, topic string) Event {
	return Event{Kind: KindDiagnostic, Stage: StageConnecting, Message: target, Topic: topic}
}

func Connected(target string) Event {
	return Event{Kind: KindDiagnostic, Stage: StageConnected, Message: target}
}

func Subscribed(topic string) Event {
	return Event{Kind: KindDiagnostic, Stage: StageSubscribed, Message: topic}
}

func Errorf(format string, args ...interface{}) Event {
	return Event{Kind: KindDiagnostic, Stage: StageError, Message: fmt.Sprintf(format, args...)}
}

func Infof(format string, args ...interface{}) Event {
	return Event{Kind: KindDiagnostic, Stage: StageInfo, Message: fmt.Sprintf(format, args...)}
}

func Telemetry(topic, payload string) Event {
	return Event{Kind: KindTelemetry, Topic: topic, Payload: payload}
}

type telemetryBody struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
}

// Encode writes the event to w as a single SSE frame. Telemetry goes out as
// the default unnamed event; diagnostics are named "error" or "info" with a
// JSON body keyed by lifecycle stage.
func (e Event) Encode(w io.Writer) error {
	switch e.Kind {
	case KindTelemetry:
		data, err := sonic.Marshal(telemetryBody{Topic: e.Topic, Payload: e.Payload})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "data: %s\n\n", data)
		return err
	default:
		body := map[string]string{string(e.Stage): e.Message}
		if e.Stage == StageConnecting && e.Topic != "" {
			body["topic"] = e.Topic
		}
		data, err := sonic.Marshal(body)
		if err != nil {
			return err
		}
		name := "info"
		if e.Stage == StageError {
			name = "error"
		}
		_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
		return err
	}
}

// WriteKeepalive emits an SSE comment frame. Clients ignore comment lines,
// but intermediate proxies see traffic and keep the idle connection open.
func WriteKeepalive(w io.Writer, now time.Time) error {
	_, err := fmt.Fprintf(w, ": ping %d\n\n", now.UnixMilli())
	return err
}
