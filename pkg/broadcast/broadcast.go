package broadcast

import (
	"sync"
	"time"

	"github.com/m3ntallyilll/rrfff/pkg/types"
)

// GlobalBroadcastService is the process-wide hub, assigned at startup.
var GlobalBroadcastService *BroadcastService

// BroadcastService fans tool logs out to connected websocket clients.
type BroadcastService struct {
	broadcastChan chan types.ToolLog
	clients       map[*Client]bool
	register      chan *Client
	unregister    chan *Client
	shutdown      chan bool
	mutex         sync.Mutex
}

// Client is one websocket subscriber. Conn stays opaque so the hub
// does not depend on the websocket package.
type Client struct {
	Conn interface{}
	Send chan types.ToolLog
}

// NewBroadcastService returns the singleton hub, creating it on first
// use.
func NewBroadcastService() *BroadcastService {
	if GlobalBroadcastService != nil {
		return GlobalBroadcastService
	}
	return &BroadcastService{
		broadcastChan: make(chan types.ToolLog, 100),
		clients:       make(map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		shutdown:      make(chan bool),
	}
}

// Start runs the hub loop until Close. A client whose buffer is full
// is dropped rather than allowed to stall the loop.
func (b *BroadcastService) Start(wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case client := <-b.register:
			b.mutex.Lock()
			b.clients[client] = true
			b.mutex.Unlock()
		case client := <-b.unregister:
			b.mutex.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client.Send)
			}
			b.mutex.Unlock()
		case <-b.shutdown:
			b.mutex.Lock()
			for client := range b.clients {
				delete(b.clients, client)
				close(client.Send)
			}
			b.mutex.Unlock()
			return
		case message := <-b.broadcastChan:
			b.mutex.Lock()
			for client := range b.clients {
				select {
				case client.Send <- message:
				default:
					delete(b.clients, client)
					close(client.Send)
				}
			}
			b.mutex.Unlock()
		}
	}
}

// SendLog broadcasts a log-typed entry. Entries are dropped when the
// hub is not draining, so callers never stall on logging.
func (b *BroadcastService) SendLog(name string, msg string, timestamp string) {
	b.send(types.ToolLog{
		ToolName:  name,
		Type:      "log",
		Message:   msg,
		Timestamp: timestamp,
	})
}

// SendMessage broadcasts a message-typed entry.
func (b *BroadcastService) SendMessage(name string, msg string, timestamp string) {
	b.send(types.ToolLog{
		ToolName:  name,
		Type:      "message",
		Message:   msg,
		Timestamp: timestamp,
	})
}

// Broadcast queues an arbitrary entry, keeping the caller's Type.
func (b *BroadcastService) Broadcast(log types.ToolLog) {
	b.send(log)
}

func (b *BroadcastService) send(log types.ToolLog) {
	select {
	case b.broadcastChan <- log:
	default:
	}
}

// RegisterClient subscribes a connection and returns its client handle.
func (b *BroadcastService) RegisterClient(conn interface{}) *Client {
	client := &Client{
		Conn: conn,
		Send: make(chan types.ToolLog, 256),
	}
	b.register <- client
	return client
}

// UnregisterClient drops a subscriber and closes its channel.
func (b *BroadcastService) UnregisterClient(client *Client) {
	b.unregister <- client
}

// ClientCount reports how many subscribers are connected.
func (b *BroadcastService) ClientCount() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.clients)
}

// Close shuts the hub down and closes every client channel.
func (b *BroadcastService) Close() {
	b.shutdown <- true
}

func GetTimeStr() string {
	return time.Now().Format("2006-01-02 15:04:05")
}
