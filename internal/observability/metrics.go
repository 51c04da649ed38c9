package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

const namespace = "social_realtime"

// Delivery paths for new_message fan-out.
const (
	DeliveryOrigin   = "origin"
	DeliveryRoom     = "room"
	DeliverySender   = "sender"
	DeliveryReceiver = "receiver"
	DeliveryDropped  = "dropped"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, matched route and status code.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by matched route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	grpcHandledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "grpc",
		Name:      "handled_total",
		Help:      "Unary gRPC calls by service, method and status code.",
	}, []string{"grpc_service", "grpc_method", "grpc_code"})

	wsConnections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "connections",
		Help:      "Open websocket connections by endpoint.",
	}, []string{"endpoint"})

	wsLifecycleTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "lifecycle_events_total",
		Help:      "Websocket connect, disconnect and error events by endpoint.",
	}, []string{"endpoint", "event"})

	wsInboundTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "inbound_events_total",
		Help:      "Client events received over websocket by type.",
	}, []string{"type"})

	authRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "rejections_total",
		Help:      "Rejected credentials by transport and reason.",
	}, []string{"transport", "reason"})

	messagesPersistedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "messages",
		Name:      "persisted_total",
		Help:      "Direct messages written to the message store.",
	})

	messageDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "messages",
		Name:      "deliveries_total",
		Help:      "new_message deliveries by target path.",
	}, []string{"path"})

	onlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "presence",
		Name:      "online_users",
		Help:      "Users with a registered live connection.",
	})

	amqpPublishErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "amqp",
		Name:      "publish_errors_total",
		Help:      "Domain events that could not be published.",
	})
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		grpcHandledTotal,
		wsConnections,
		wsLifecycleTotal,
		wsInboundTotal,
		authRejectionsTotal,
		messagesPersistedTotal,
		messageDeliveriesTotal,
		onlineUsers,
		amqpPublishErrorsTotal,
	)
}

// HTTPMetricsMiddleware records request counts and latency keyed by the matched route template.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func GRPCServerMetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		service, method := splitFullMethod(info.FullMethod)
		grpcHandledTotal.WithLabelValues(service, method, status.Code(err).String()).Inc()
		return resp, err
	}
}

// splitFullMethod splits "/pkg.Service/Method".
func splitFullMethod(fullMethod string) (string, string) {
	service, method, ok := strings.Cut(strings.TrimPrefix(fullMethod, "/"), "/")
	if !ok || service == "" || method == "" {
		return "unknown", "unknown"
	}
	return service, method
}

func IncWSActive(endpoint string) {
	wsConnections.WithLabelValues(endpoint).Inc()
}

func DecWSActive(endpoint string) {
	wsConnections.WithLabelValues(endpoint).Dec()
}

func IncWSEvent(endpoint, event string) {
	wsLifecycleTotal.WithLabelValues(endpoint, event).Inc()
}

func IncInboundEvent(eventType string) {
	wsInboundTotal.WithLabelValues(eventType).Inc()
}

func IncAuthRejection(transport, reason string) {
	authRejectionsTotal.WithLabelValues(transport, reason).Inc()
}

func IncMessagePersisted() {
	messagesPersistedTotal.Inc()
}

func IncMessageDelivery(path string) {
	messageDeliveriesTotal.WithLabelValues(path).Inc()
}

func SetOnlineUsers(n int) {
	onlineUsers.Set(float64(n))
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
