// Package feed broadcasts saved-snapshot summaries to websocket subscribers.
// Subscribers are read-only; inbound messages are drained and discarded.
package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"market-snapshot-lab/internal/domain"
	"market-snapshot-lab/internal/observability"
)

// SnapshotSummary is the wire shape of one broadcast event.
type SnapshotSummary struct {
	SnapshotID       string    `json:"snapshot_id"`
	Ticker           string    `json:"ticker"`
	Timestamp        time.Time `json:"timestamp"`
	AnalysisType     string    `json:"analysis_type"`
	MarketCondition  string    `json:"market_condition"`
	VolatilityRegime string    `json:"volatility_regime"`
	DataQualityScore float64   `json:"data_quality_score"`
}

type event struct {
	Type string          `json:"type"`
	Data SnapshotSummary `json:"data"`
}

// Hub fans events out to connected subscribers. The Run goroutine owns the
// client set; registration and broadcast go through channels.
type Hub struct {
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}
	logger     *zap.Logger
	upgrader   websocket.Upgrader
}

// NewHub creates a Hub. A nil logger is replaced with a no-op one.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Run owns the subscriber set until ctx is cancelled. Closing done unblocks
// any register or unregister send racing the shutdown.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			observability.DefaultMetrics.FeedSubscribers.Set(0)
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			observability.DefaultMetrics.FeedSubscribers.Set(float64(len(h.clients)))
			h.logger.Debug("feed subscriber connected", zap.String("remote", c.conn.RemoteAddr().String()))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			observability.DefaultMetrics.FeedSubscribers.Set(float64(len(h.clients)))

		case message := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- message:
					observability.DefaultMetrics.FeedEventsFanned.Inc()
				default:
					// Slow consumer, drop it.
					delete(h.clients, c)
					close(c.send)
					observability.DefaultMetrics.FeedDroppedClients.Inc()
					h.logger.Warn("dropping slow feed subscriber",
						zap.String("remote", c.conn.RemoteAddr().String()))
				}
			}
		}
	}
}

// BroadcastSnapshot queues a saved-snapshot summary for fan-out. Events are
// dropped when the hub's queue is full; the feed is best-effort.
func (h *Hub) BroadcastSnapshot(snap *domain.Snapshot) {
	data, err := json.Marshal(event{
		Type: "snapshot_saved",
		Data: SnapshotSummary{
			SnapshotID:       snap.ID,
			Ticker:           snap.Ticker,
			Timestamp:        snap.Timestamp,
			AnalysisType:     snap.AnalysisType.String(),
			MarketCondition:  snap.MarketCondition.String(),
			VolatilityRegime: snap.VolatilityRegime.String(),
			DataQualityScore: snap.DataQualityScore,
		},
	})
	if err != nil {
		h.logger.Warn("encode feed event", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("feed queue full, event dropped", zap.String("snapshot_id", snap.ID))
	}
}

// ServeWS upgrades an HTTP request to a feed subscription.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, 16)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
