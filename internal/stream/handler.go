package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/k9trail/bridge/internal/presence"
	"github.com/k9trail/bridge/internal/utils"
)

var (
	activeStreamsMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "number_of_active_streams",
		Help: "The number of open MQTT-to-SSE stream sessions",
	})
	forwardedMessagesMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "number_of_forwarded_messages",
		Help: "The total number of MQTT messages forwarded as telemetry events",
	})
	mqttErrorsMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "number_of_mqtt_errors",
		Help: "The total number of MQTT connection, auth and subscribe errors",
	})
	keepalivesMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "number_of_keepalive_frames",
		Help: "The total number of SSE keepalive comment frames written",
	})
	badRequestMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "number_of_stream_bad_requests",
		Help: "The total number of stream requests rejected before streaming",
	})
)

type Handler struct {
	registry          presence.Registry
	realIP            *utils.RealIPExtractor
	defaultBrokerHost string
	keepaliveInterval time.Duration
	connectTimeout    time.Duration
	presenceTTL       time.Duration
	dial              Dialer
}

func NewHandler(registry presence.Registry, extractor *utils.RealIPExtractor, defaultBrokerHost string, keepaliveInterval, connectTimeout, presenceTTL time.Duration) *Handler {
	return &Handler{
		registry:          registry,
		realIP:            extractor,
		defaultBrokerHost: defaultBrokerHost,
		keepaliveInterval: keepaliveInterval,
		connectTimeout:    connectTimeout,
		presenceTTL:       presenceTTL,
		dial:              PahoDialer,
	}
}

// StreamHandler serves one MQTT-to-SSE bridge session for the lifetime of
// the request. Headers go out and flush before the broker dial starts, so
// the browser sees progress even against a slow or dead broker. Every error
// past that point travels in-band as a diagnostic event — the 200 is
// already on the wire.
func (h *Handler) StreamHandler(c echo.Context) error {
	log := logrus.WithField("prefix", "StreamHandler")
	_, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		badRequestMetric.Inc()
		return c.JSON(utils.HttpResError("streaming unsupported", http.StatusInternalServerError))
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache, no-transform")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Flush()

	params := ParseParams(c.QueryParams(), h.defaultBrokerHost)
	session := NewSession(params, h.dial, h.connectTimeout)

	if err := Connecting(params.DisplayURI(), params.Topic).Encode(c.Response()); err != nil {
		log.Errorf("failed to write connecting event: %v", err)
		return nil
	}
	c.Response().Flush()

	activeStreamsMetric.Inc()
	defer activeStreamsMetric.Dec()
	defer session.Close()

	ctx := c.Request().Context()
	info := presence.StreamInfo{
		ClientID:  params.ClientID,
		Broker:    params.DisplayURI(),
		Topic:     params.Topic,
		RemoteIP:  h.realIP.Extract(c.Request()),
		StartedAt: time.Now().UTC(),
	}
	if err := h.registry.Add(ctx, info, h.presenceTTL); err != nil {
		log.Warnf("failed to register stream presence: %v", err)
	}
	defer func() {
		// the request context is already canceled at teardown
		if err := h.registry.Remove(context.Background(), params.ClientID); err != nil {
			log.Debugf("failed to remove stream presence: %v", err)
		}
	}()

	session.Start()

	ticker := time.NewTicker(h.keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Infof("connection %v closed by client", params.ClientID)
			return nil
		case ev := <-session.Events():
			if err := ev.Encode(c.Response()); err != nil {
				log.Errorf("can't write event to connection: %v", err)
				return nil
			}
			c.Response().Flush()
			if ev.Kind == KindTelemetry {
				forwardedMessagesMetric.Inc()
			}
		case <-ticker.C:
			if err := WriteKeepalive(c.Response(), time.Now()); err != nil {
				log.Errorf("can't write keepalive to connection: %v", err)
				return nil
			}
			c.Response().Flush()
			keepalivesMetric.Inc()
			if err := h.registry.Touch(ctx, params.ClientID, h.presenceTTL); err != nil {
				log.Debugf("failed to refresh stream presence: %v", err)
			}
		}
	}
}

// ListStreamsHandler reports the live bridge sessions known to the
// presence registry.
func (h *Handler) ListStreamsHandler(c echo.Context) error {
	infos, err := h.registry.List(c.Request().Context())
	if err != nil {
		return c.JSON(utils.HttpResError(err.Error(), http.StatusInternalServerError))
	}
	return c.JSON(http.StatusOK, infos)
}
