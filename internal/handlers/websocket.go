package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sonar/internal/interfaces"
	"github.com/ternarybob/sonar/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope for every message pushed to clients
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// RunUpdate is the payload broadcast for run lifecycle events
type RunUpdate struct {
	RunID        string    `json:"run_id"`
	JobID        string    `json:"job_id"`
	BrandID      string    `json:"brand_id"`
	Type         string    `json:"type"`
	Status       string    `json:"status"`
	Trigger      string    `json:"trigger"`
	Stage        string    `json:"stage,omitempty"`
	Error        string    `json:"error,omitempty"`
	TotalQueries int       `json:"total_queries"`
	Succeeded    int       `json:"succeeded"`
	Failed       int       `json:"failed"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// ResultUpdate is the payload broadcast when an execution result changes state
type ResultUpdate struct {
	ResultID string `json:"result_id"`
	RunID    string `json:"run_id"`
	QueryID  string `json:"query_id"`
	Engine   string `json:"engine"`
	Provider string `json:"provider,omitempty"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// WebSocketHandler pushes run and result updates to connected clients.
// Each connection gets its own write mutex since gorilla connections do
// not allow concurrent writers.
type WebSocketHandler struct {
	logger           arbor.ILogger
	clients          map[*websocket.Conn]bool
	clientMutex      map[*websocket.Conn]*sync.Mutex
	mu               sync.RWMutex
	eventService     interfaces.EventService
	serverInstanceID string // Unique ID per startup - clients clear stale state on change
}

func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		eventService:     eventService,
		serverInstanceID: uuid.New().String(),
	}

	if eventService != nil {
		h.subscribeToRunEvents()
	}

	return h
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", clientCount)

	h.sendHello(conn)

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", remaining)
	}()

	// Read messages from client (keep connection alive)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// sendHello sends the server instance ID to a newly connected client
func (h *WebSocketHandler) sendHello(conn *websocket.Conn) {
	msg := WSMessage{
		Type: "hello",
		Payload: map[string]interface{}{
			"server_instance_id": h.serverInstanceID,
			"timestamp":          time.Now().Format(time.RFC3339),
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal hello message")
		return
	}

	h.mu.RLock()
	mutex := h.clientMutex[conn]
	h.mu.RUnlock()

	if mutex != nil {
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Msg("Failed to send hello")
		}
	}
}

// broadcast sends a message to all connected clients
func (h *WebSocketHandler) broadcast(msgType string, payload interface{}) {
	msg := WSMessage{
		Type:    msgType,
		Payload: payload,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msgType).Msg("Failed to marshal websocket message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Str("type", msgType).Msg("Failed to send message to client")
		}
	}
}

// BroadcastRunUpdate sends a run lifecycle update to all connected clients
func (h *WebSocketHandler) BroadcastRunUpdate(msgType string, run *models.JobRun) {
	if run == nil {
		return
	}

	h.broadcast(msgType, RunUpdate{
		RunID:        run.ID,
		JobID:        run.JobID,
		BrandID:      run.BrandID,
		Type:         string(run.Type),
		Status:       string(run.Status),
		Trigger:      string(run.Trigger),
		Stage:        run.Stage,
		Error:        run.Error,
		TotalQueries: run.TotalQueries,
		Succeeded:    run.Succeeded,
		Failed:       run.Failed,
		ScheduledFor: run.ScheduledFor,
	})
}

// BroadcastResultUpdate sends an execution result update to all connected clients
func (h *WebSocketHandler) BroadcastResultUpdate(result *models.ExecutionResult) {
	if result == nil {
		return
	}

	h.broadcast("result_updated", ResultUpdate{
		ResultID: result.ID,
		RunID:    result.RunID,
		QueryID:  result.QueryID,
		Engine:   result.Engine,
		Provider: result.Provider,
		Status:   string(result.Status),
		Error:    result.Error,
	})
}

// subscribeToRunEvents wires run and result events to client broadcasts
func (h *WebSocketHandler) subscribeToRunEvents() {
	runEvents := map[interfaces.EventType]string{
		interfaces.EventRunQueued:   "run_queued",
		interfaces.EventRunStarted:  "run_started",
		interfaces.EventRunFinished: "run_finished",
	}

	for eventType, msgType := range runEvents {
		msgType := msgType
		h.eventService.Subscribe(eventType, func(ctx context.Context, event interfaces.Event) error {
			run, ok := event.Payload.(*models.JobRun)
			if !ok {
				h.logger.Warn().Str("event", string(event.Type)).Msg("Invalid run event payload type")
				return nil
			}
			h.BroadcastRunUpdate(msgType, run)
			return nil
		})
	}

	h.eventService.Subscribe(interfaces.EventResultUpdated, func(ctx context.Context, event interfaces.Event) error {
		result, ok := event.Payload.(*models.ExecutionResult)
		if !ok {
			h.logger.Warn().Msg("Invalid result event payload type")
			return nil
		}
		h.BroadcastResultUpdate(result)
		return nil
	})
}
