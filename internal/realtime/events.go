// file: internal/realtime/events.go
// version: 1.2.0
// guid: 9c1e3a5b-7d9f-4b2e-a4c6-0e2a4c6e8a1b

// Package realtime pushes job and activity updates to connected browsers
// over Server-Sent Events.
package realtime

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// EventType defines the type of real-time event
type EventType string

const (
	EventJobStatus    EventType = "job.status"
	EventJobProgress  EventType = "job.progress"
	EventActivity     EventType = "activity"
	EventSystemStatus EventType = "system.status"
)

// Event represents a real-time event to send to clients
type Event struct {
	Type      EventType              `json:"type"`
	ID        string                 `json:"id"` // job id, empty for system-wide events
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Client represents a connected SSE client
type Client struct {
	ID      string
	Channel chan *Event
	Jobs    map[string]bool // Jobs this client is interested in
	mu      sync.RWMutex
}

// NewClient creates a new SSE client
func NewClient(id string) *Client {
	return &Client{
		ID:      id,
		Channel: make(chan *Event, 100),
		Jobs:    make(map[string]bool),
	}
}

// Subscribe subscribes the client to a job
func (c *Client) Subscribe(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Jobs[jobID] = true
	log.Printf("[DEBUG] Client %s subscribed to job %s", c.ID, jobID)
}

// Unsubscribe unsubscribes the client from a job
func (c *Client) Unsubscribe(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Jobs, jobID)
	log.Printf("[DEBUG] Client %s unsubscribed from job %s", c.ID, jobID)
}

// IsSubscribed checks if client is subscribed to a job
func (c *Client) IsSubscribed(jobID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Jobs[jobID]
}

// EventHub manages SSE connections and event distribution
type EventHub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewEventHub creates a new event hub
func NewEventHub() *EventHub {
	return &EventHub{
		clients: make(map[string]*Client),
	}
}

// RegisterClient registers a new client
func (h *EventHub) RegisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	log.Printf("[INFO] Client %s registered, total clients: %d", client.ID, len(h.clients))
}

// UnregisterClient removes a client
func (h *EventHub) UnregisterClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, exists := h.clients[clientID]; exists {
		close(client.Channel)
		delete(h.clients, clientID)
		log.Printf("[INFO] Client %s unregistered, remaining clients: %d", clientID, len(h.clients))
	}
}

// Broadcast sends an event to all subscribed clients
func (h *EventHub) Broadcast(event *Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		// Send to clients if:
		// 1. Event has no ID (system-wide events), OR
		// 2. Client has no subscriptions (wants all events), OR
		// 3. Client is subscribed to this specific job
		if event.ID == "" || len(client.Jobs) == 0 || client.IsSubscribed(event.ID) {
			select {
			case client.Channel <- event:
			default:
				log.Printf("[WARN] Client %s channel full, dropping event", client.ID)
			}
		}
	}
}

// SendJobStatus sends a job status change event
func (h *EventHub) SendJobStatus(jobID, title, status, detail, errMsg string) {
	data := map[string]interface{}{
		"job_id": jobID,
		"title":  title,
		"status": status,
	}
	if detail != "" {
		data["detail"] = detail
	}
	if errMsg != "" {
		data["error"] = errMsg
	}
	h.Broadcast(&Event{
		Type:      EventJobStatus,
		ID:        jobID,
		Timestamp: time.Now(),
		Data:      data,
	})
}

// SendJobProgress sends a job progress detail event
func (h *EventHub) SendJobProgress(jobID, detail string) {
	h.Broadcast(&Event{
		Type:      EventJobProgress,
		ID:        jobID,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"job_id": jobID,
			"detail": detail,
		},
	})
}

// SendActivity sends an activity feed event
func (h *EventHub) SendActivity(kind, title, detail, jobID string) {
	h.Broadcast(&Event{
		Type:      EventActivity,
		ID:        jobID,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"kind":   kind,
			"title":  title,
			"detail": detail,
			"job_id": jobID,
		},
	})
}

// SendSystemStatus sends a system status event
func (h *EventHub) SendSystemStatus(data map[string]interface{}) {
	h.Broadcast(&Event{
		Type:      EventSystemStatus,
		ID:        "",
		Timestamp: time.Now(),
		Data:      data,
	})
}

// GetClientCount returns the number of connected clients
func (h *EventHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleSSE handles Server-Sent Events connection
func (h *EventHub) HandleSSE(c *gin.Context) {
	// Set SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache, no-transform")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("X-Accel-Buffering", "no")

	// Create client
	clientID := fmt.Sprintf("client-%d", time.Now().UnixNano())
	client := NewClient(clientID)

	// Subscribe to a job if specified
	if jobID := c.Query("job"); jobID != "" {
		client.Subscribe(jobID)
	}

	// Register client
	h.RegisterClient(client)
	defer h.UnregisterClient(clientID)

	// Send initial connection event
	initialEvent := &Event{
		Type:      "connection.established",
		ID:        "",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"client_id": clientID,
		},
	}

	if data, err := json.Marshal(initialEvent); err == nil {
		_, _ = c.Writer.Write([]byte(fmt.Sprintf("data: %s\n\n", data)))
		c.Writer.Flush()
	}

	// Keep connection alive and stream events
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			log.Printf("[DEBUG] Client %s connection closed", clientID)
			return
		case event := <-client.Channel:
			// Marshal event to JSON
			data, err := json.Marshal(event)
			if err != nil {
				log.Printf("[ERROR] Error marshaling event: %v", err)
				continue
			}

			// Write SSE format: data: {json}\n\n
			_, err = c.Writer.Write([]byte(fmt.Sprintf("data: %s\n\n", data)))
			if err != nil {
				log.Printf("[WARN] Error writing to client %s: %v", clientID, err)
				return
			}

			// Flush immediately
			c.Writer.Flush()
		case <-ticker.C:
			// Send heartbeat
			heartbeat := map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now(),
			}
			if data, err := json.Marshal(heartbeat); err == nil {
				_, _ = c.Writer.Write([]byte(fmt.Sprintf("data: %s\n\n", data)))
				c.Writer.Flush()
			}
		}
	}
}
