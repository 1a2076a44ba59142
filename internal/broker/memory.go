package broker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

type memoryEntry struct {
	id   string
	body []byte
}

// MemoryQueue is an in-process peek-lock queue. Messages received but not
// completed return to the queue when their receiver closes or abandons them.
type MemoryQueue struct {
	mu        sync.Mutex
	ready     []memoryEntry
	inflight  map[string]memoryEntry
	notify    chan struct{}
	seq       int64
	completed int

	sendHook    func(body []byte) error
	receiveHook func() error
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		inflight: make(map[string]memoryEntry),
		notify:   make(chan struct{}),
	}
}

// Enqueue appends body to the queue and wakes any waiting receiver.
func (q *MemoryQueue) Enqueue(body []byte) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.enqueueLocked(body)
}

func (q *MemoryQueue) enqueueLocked(body []byte) string {
	q.seq++
	id := strconv.FormatInt(q.seq, 10)
	b := make([]byte, len(body))
	copy(b, body)
	q.ready = append(q.ready, memoryEntry{id: id, body: b})

	close(q.notify)
	q.notify = make(chan struct{})
	return id
}

// OnSend installs a hook run before every send; a non-nil error fails it.
func (q *MemoryQueue) OnSend(hook func(body []byte) error) {
	q.mu.Lock()
	q.sendHook = hook
	q.mu.Unlock()
}

// OnReceive installs a hook run before every receive.
func (q *MemoryQueue) OnReceive(hook func() error) {
	q.mu.Lock()
	q.receiveHook = hook
	q.mu.Unlock()
}

// Len is the number of messages available for receive.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready)
}

// InFlight is the number of locked, unsettled messages.
func (q *MemoryQueue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}

func (q *MemoryQueue) Completed() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.completed
}

// Bodies returns a copy of every ready message body in queue order.
func (q *MemoryQueue) Bodies() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([][]byte, 0, len(q.ready))
	for _, e := range q.ready {
		out = append(out, e.body)
	}
	return out
}

func (q *MemoryQueue) NewReceiver(ctx context.Context) (Receiver, error) {
	return &memoryReceiver{queue: q, held: make(map[string]struct{})}, nil
}

func (q *MemoryQueue) NewSender(ctx context.Context) (Sender, error) {
	return &memorySender{queue: q}, nil
}

func (q *MemoryQueue) Close(ctx context.Context) error {
	return nil
}

func (q *MemoryQueue) take(maxMessages int) []memoryEntry {
	n := maxMessages
	if n > len(q.ready) {
		n = len(q.ready)
	}
	taken := make([]memoryEntry, n)
	copy(taken, q.ready[:n])
	q.ready = q.ready[n:]
	for _, e := range taken {
		q.inflight[e.id] = e
	}
	return taken
}

func (q *MemoryQueue) settle(id string, requeue bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.inflight[id]
	if !ok {
		return fmt.Errorf("message %s is not locked by this receiver", id)
	}
	delete(q.inflight, id)

	if requeue {
		q.ready = append(q.ready, e)
		close(q.notify)
		q.notify = make(chan struct{})
		return nil
	}

	q.completed++
	return nil
}

type memoryReceiver struct {
	queue *MemoryQueue
	mu    sync.Mutex
	held  map[string]struct{}
}

func (r *memoryReceiver) Receive(ctx context.Context, maxMessages int, maxWait time.Duration) ([]*Message, error) {
	if maxMessages < 1 {
		return nil, fmt.Errorf("maxMessages must be positive, got %d", maxMessages)
	}

	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	q := r.queue
	for {
		q.mu.Lock()
		if q.receiveHook != nil {
			if err := q.receiveHook(); err != nil {
				q.mu.Unlock()
				return nil, err
			}
		}
		if len(q.ready) > 0 {
			taken := q.take(maxMessages)
			q.mu.Unlock()
			return r.hold(taken), nil
		}
		notify := q.notify
		q.mu.Unlock()

		select {
		case <-notify:
		case <-timer.C:
			return []*Message{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (r *memoryReceiver) hold(entries []memoryEntry) []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	msgs := make([]*Message, 0, len(entries))
	for _, e := range entries {
		r.held[e.id] = struct{}{}
		msgs = append(msgs, &Message{ID: e.id, Body: e.body, handle: e.id})
	}
	return msgs
}

func (r *memoryReceiver) release(msg *Message) (string, error) {
	id, ok := msg.handle.(string)
	if !ok {
		return "", fmt.Errorf("message %s was not received from a memory queue", msg.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.held[id]; !held {
		return "", fmt.Errorf("message %s already settled", id)
	}
	delete(r.held, id)
	return id, nil
}

func (r *memoryReceiver) Complete(ctx context.Context, msg *Message) error {
	id, err := r.release(msg)
	if err != nil {
		return err
	}
	return r.queue.settle(id, false)
}

func (r *memoryReceiver) Abandon(ctx context.Context, msg *Message) error {
	id, err := r.release(msg)
	if err != nil {
		return err
	}
	return r.queue.settle(id, true)
}

// Close abandons everything still held, mirroring lock expiry on a real queue.
func (r *memoryReceiver) Close(ctx context.Context) error {
	r.mu.Lock()
	ids := make([]string, 0, len(r.held))
	for id := range r.held {
		ids = append(ids, id)
	}
	r.held = make(map[string]struct{})
	r.mu.Unlock()

	for _, id := range ids {
		if err := r.queue.settle(id, true); err != nil {
			return err
		}
	}
	return nil
}

type memorySender struct {
	queue *MemoryQueue
}

func (s *memorySender) Send(ctx context.Context, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q := s.queue
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.sendHook != nil {
		if err := q.sendHook(body); err != nil {
			return err
		}
	}
	q.enqueueLocked(body)
	return nil
}

func (s *memorySender) Close(ctx context.Context) error {
	return nil
}
