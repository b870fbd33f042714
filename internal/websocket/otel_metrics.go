package websocket

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "commodities_research.websocket"

// OTelMetrics exports websocket telemetry through OpenTelemetry, ending
// up on the /metrics endpoint via the prometheus bridge.
type OTelMetrics struct {
	connectionsTotal   metric.Int64Counter
	connectionsActive  metric.Int64UpDownCounter
	connectionDuration metric.Float64Histogram

	messagesTotal metric.Int64Counter
	messageBytes  metric.Int64Counter

	broadcastsTotal metric.Int64Counter
	clientCount     metric.Int64Gauge
}

// NewOTelMetrics creates the websocket instrument set
func NewOTelMetrics() (*OTelMetrics, error) {
	meter := otel.Meter(meterName)

	connectionsTotal, err := meter.Int64Counter(
		"websocket_connections_total",
		metric.WithDescription("Total number of WebSocket connections"),
	)
	if err != nil {
		return nil, err
	}

	connectionsActive, err := meter.Int64UpDownCounter(
		"websocket_connections_active",
		metric.WithDescription("Number of active WebSocket connections"),
	)
	if err != nil {
		return nil, err
	}

	connectionDuration, err := meter.Float64Histogram(
		"websocket_connection_duration_seconds",
		metric.WithDescription("Duration of WebSocket connections"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	messagesTotal, err := meter.Int64Counter(
		"websocket_messages_total",
		metric.WithDescription("Total number of WebSocket messages"),
	)
	if err != nil {
		return nil, err
	}

	messageBytes, err := meter.Int64Counter(
		"websocket_message_bytes_total",
		metric.WithDescription("Total bytes of WebSocket messages"),
	)
	if err != nil {
		return nil, err
	}

	broadcastsTotal, err := meter.Int64Counter(
		"websocket_broadcasts_total",
		metric.WithDescription("Total number of WebSocket broadcast fan-outs"),
	)
	if err != nil {
		return nil, err
	}

	clientCount, err := meter.Int64Gauge(
		"websocket_client_count",
		metric.WithDescription("Current number of connected WebSocket clients"),
	)
	if err != nil {
		return nil, err
	}

	return &OTelMetrics{
		connectionsTotal:   connectionsTotal,
		connectionsActive:  connectionsActive,
		connectionDuration: connectionDuration,
		messagesTotal:      messagesTotal,
		messageBytes:       messageBytes,
		broadcastsTotal:    broadcastsTotal,
		clientCount:        clientCount,
	}, nil
}

// RecordConnection records a new connection
func (m *OTelMetrics) RecordConnection(ctx context.Context, clientID, remoteAddr string) {
	attrs := metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("remote_addr", remoteAddr),
	)
	m.connectionsTotal.Add(ctx, 1, attrs)
	m.connectionsActive.Add(ctx, 1)
}

// RecordDisconnection records a closed connection and its duration
func (m *OTelMetrics) RecordDisconnection(ctx context.Context, clientID string, duration time.Duration) {
	m.connectionsActive.Add(ctx, -1)
	m.connectionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordMessageSent records an outbound message
func (m *OTelMetrics) RecordMessageSent(ctx context.Context, clientID string, size int64) {
	attrs := metric.WithAttributes(
		attribute.String("direction", "outbound"),
		attribute.String("client_id", clientID),
	)
	m.messagesTotal.Add(ctx, 1, attrs)
	m.messageBytes.Add(ctx, size, attrs)
}

// RecordMessageReceived records an inbound message
func (m *OTelMetrics) RecordMessageReceived(ctx context.Context, clientID string, size int64) {
	attrs := metric.WithAttributes(
		attribute.String("direction", "inbound"),
		attribute.String("client_id", clientID),
	)
	m.messagesTotal.Add(ctx, 1, attrs)
	m.messageBytes.Add(ctx, size, attrs)
}

// RecordBroadcast records a broadcast fan-out and its outcome
func (m *OTelMetrics) RecordBroadcast(ctx context.Context, clientCount, successCount, failCount int64) {
	m.broadcastsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.Int64("client_count", clientCount),
		attribute.Int64("success_count", successCount),
		attribute.Int64("fail_count", failCount),
	))
}

// RecordClientCount records the current client count
func (m *OTelMetrics) RecordClientCount(ctx context.Context, count int64) {
	m.clientCount.Record(ctx, count)
}

var globalOTelMetrics *OTelMetrics

// InitOTelMetrics initializes the package-wide OpenTelemetry metrics.
// Until it runs, recording is a no-op.
func InitOTelMetrics() error {
	metrics, err := NewOTelMetrics()
	if err != nil {
		return err
	}
	globalOTelMetrics = metrics
	return nil
}

// GetOTelMetrics returns the package-wide instance, nil before init
func GetOTelMetrics() *OTelMetrics {
	return globalOTelMetrics
}
