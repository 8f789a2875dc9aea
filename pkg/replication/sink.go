package replication

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/RitoIssei/bot-mng-ns/internal/config"
	"github.com/RitoIssei/bot-mng-ns/internal/event_bus"
	"github.com/RitoIssei/bot-mng-ns/internal/metrics"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	writeWait        = 10 * time.Second
	handshakeTimeout = 10 * time.Second
	maxMessageSize   = 512 * 1024
)

var pingMessage = []byte(`{"action":"ping"}`)

// Sink mirrors records to one websocket subscriber. Delivery is at least once and may
// reorder records that had to be retried.
type Sink struct {
	url            string
	dialer         *websocket.Dialer
	queue          *Queue
	reconnectDelay time.Duration
	pingInterval   time.Duration
	retryDelay     time.Duration

	mu   sync.RWMutex
	conn *websocket.Conn
	// ready is closed while conn is up and replaced once it goes away.
	ready chan struct{}
	// writeMu serialises writes; a websocket connection supports one concurrent writer.
	writeMu sync.Mutex
}

func NewSink(cfg config.Replication) *Sink {
	return &Sink{
		url:            cfg.URL,
		dialer:         &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		queue:          NewQueue(cfg.QueueCapacity),
		reconnectDelay: cfg.ReconnectDelay,
		pingInterval:   cfg.PingInterval,
		retryDelay:     cfg.RetryDelay,
		ready:          make(chan struct{}),
	}
}

// Enqueue encodes record and queues it. It never blocks on the transport.
func (s *Sink) Enqueue(record map[string]any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("could not encode replication record: %w", err)
	}
	if s.queue.Push(data) {
		metrics.ReplicationRecordsTotal.WithLabelValues("dropped").Inc()
		log.Warn("replication queue full, dropped the oldest record")
	}
	log.Debugf("queued replication record: %s", data)
	return nil
}

// HandleRecord adapts bus events to Enqueue. The record's "key" names its kind.
func (s *Sink) HandleRecord(e event_bus.EventT[event_bus.ReplicationRecord]) error {
	record := make(map[string]any, len(e.Data.Record)+1)
	for k, v := range e.Data.Record {
		record[k] = v
	}
	record["key"] = e.Data.Kind
	return s.Enqueue(record)
}

// Subscribe wires the sink to ledger writes, batch deletions and confirmed records published
// on eventBus.
func (s *Sink) Subscribe(eventBus *event_bus.EventBus) (unsubscribe func()) {
	unsubscribeLedger := event_bus.SubscribeTyped(eventBus, event_bus.LedgerEntryWritten, s.HandleRecord)
	unsubscribeDeleted := event_bus.SubscribeTyped(eventBus, event_bus.LedgerBatchDeleted, s.HandleRecord)
	unsubscribeConfirmed := event_bus.SubscribeTyped(eventBus, event_bus.RecordConfirmed, s.HandleRecord)
	return func() {
		unsubscribeLedger()
		unsubscribeDeleted()
		unsubscribeConfirmed()
	}
}

func (s *Sink) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn != nil
}

func (s *Sink) Depth() int {
	return s.queue.Len()
}

// Run keeps the connection up, delivers queued records and sends keep-alive pings until
// ctx is done. Records still queued at that point are lost.
func (s *Sink) Run(ctx context.Context) error {
	if s.url == "" {
		log.Warn("replication url not configured, records will only be queued")
		<-ctx.Done()
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.connectLoop(ctx) })
	g.Go(func() error { return s.deliverLoop(ctx) })
	g.Go(func() error { return s.pingLoop(ctx) })

	stop := context.AfterFunc(ctx, s.closeConn)
	defer stop()

	err := g.Wait()
	log.Infof("replication sink stopped with %d record(s) queued", s.queue.Len())
	return err
}

func (s *Sink) connectLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		metrics.ReplicationReconnectsTotal.Inc()
		log.Infof("connecting to replication endpoint %s", s.url)
		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			log.Errorf("replication connection failed: %v", err)
		} else {
			log.Info("replication connection established")
			s.setConn(conn)
			if ctx.Err() != nil {
				s.closeConn()
				break
			}
			s.readUntilClosed(conn)
			s.closeConn()
			log.Warn("replication connection closed")
		}
		if !sleep(ctx, s.reconnectDelay) {
			break
		}
	}
	return nil
}

// readUntilClosed drains inbound messages so close frames and errors are noticed.
func (s *Sink) readUntilClosed(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Errorf("replication connection error: %v", err)
			}
			return
		}
		log.Debugf("replication endpoint says: %s", message)
	}
}

// deliverLoop only takes a record off the queue once a connection is up, so records queued
// while disconnected keep their order.
func (s *Sink) deliverLoop(ctx context.Context) error {
	for {
		if !s.awaitConn(ctx) {
			return nil
		}
		data, err := s.queue.Pop(ctx)
		if err != nil {
			return nil
		}

		if err := s.send(data); err != nil {
			log.Warnf("replication delivery failed, requeueing: %v", err)
			metrics.ReplicationRecordsTotal.WithLabelValues("requeued").Inc()
			if s.queue.Push(data) {
				metrics.ReplicationRecordsTotal.WithLabelValues("dropped").Inc()
			}
			if !sleep(ctx, s.retryDelay) {
				return nil
			}
			continue
		}
		metrics.ReplicationRecordsTotal.WithLabelValues("sent").Inc()
	}
}

func (s *Sink) pingLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !s.Connected() {
				continue
			}
			if err := s.send(pingMessage); err != nil {
				log.Warnf("replication ping failed: %v", err)
			}
		}
	}
}

func (s *Sink) send(data []byte) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return errNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		// Closing makes the reader return and the connect loop redial.
		_ = conn.Close()
		return err
	}
	return nil
}

func (s *Sink) awaitConn(ctx context.Context) bool {
	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()
	select {
	case <-ctx.Done():
		return false
	case <-ready:
		return true
	}
}

func (s *Sink) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	select {
	case <-s.ready:
	default:
		close(s.ready)
	}
	s.mu.Unlock()
	metrics.ReplicationConnected.Set(1)
}

func (s *Sink) closeConn() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	select {
	case <-s.ready:
		s.ready = make(chan struct{})
	default:
	}
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	metrics.ReplicationConnected.Set(0)
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
