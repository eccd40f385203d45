package server

import (
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/srasm/pkg/store"
)

// Frame is one message of the /inspect feed.
type Frame struct {
	// Type is "snapshot" for the first frame and "commit" afterwards.
	Type string `json:"type"`

	Slice    string `json:"slice,omitempty"`
	Revision uint64 `json:"revision,omitempty"`
	Value    any    `json:"value,omitempty"`

	State     map[string]any    `json:"state,omitempty"`
	Revisions map[string]uint64 `json:"revisions,omitempty"`
}

// inspector is one /inspect connection. Listeners enqueue frames without
// blocking the writer of the store; a single goroutine drains the queue.
type inspector struct {
	conn *websocket.Conn
	send chan Frame
	done chan struct{}
	once sync.Once

	// Commits seen before the snapshot frame is queued wait in pending.
	mu      sync.Mutex
	started bool
	pending []Frame
}

func newInspector(conn *websocket.Conn, queue int) *inspector {
	return &inspector{
		conn: conn,
		send: make(chan Frame, queue),
		done: make(chan struct{}),
	}
}

// push enqueues f. A client whose queue is full is disconnected.
func (in *inspector) push(f Frame) {
	select {
	case <-in.done:
	case in.send <- f:
	default:
		in.close()
	}
}

// commit queues a commit frame, holding it back until start has queued the
// snapshot.
func (in *inspector) commit(f Frame) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.started {
		in.pending = append(in.pending, f)
		return
	}
	in.push(f)
}

// start queues the snapshot, then the held commits it does not already
// cover.
func (in *inspector) start(snapshot Frame) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.push(snapshot)
	for _, f := range in.pending {
		if f.Revision > snapshot.Revisions[f.Slice] {
			in.push(f)
		}
	}
	in.pending = nil
	in.started = true
}

func (in *inspector) close() {
	in.once.Do(func() {
		close(in.done)
		_ = in.conn.Close()
	})
}

func (in *inspector) writeLoop(timeout time.Duration) error {
	for {
		select {
		case <-in.done:
			return nil
		case f := <-in.send:
			_ = in.conn.SetWriteDeadline(time.Now().Add(timeout))
			if err := in.conn.WriteJSON(f); err != nil {
				return err
			}
		}
	}
}

// readLoop discards client messages until the connection closes.
func (in *inspector) readLoop() {
	for {
		if _, _, err := in.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// handleInspect serves GET /inspect: a snapshot frame, then one frame per
// commit to any slice.
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "no store attached")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("inspect upgrade failed", "error", err)
		return
	}
	in := newInspector(conn, s.config.InspectQueue)

	s.inspectMu.Lock()
	s.inspectors[in] = struct{}{}
	s.inspectMu.Unlock()

	var unsubs []store.Unsubscribe
	defer func() {
		for _, u := range unsubs {
			u()
		}
		s.inspectMu.Lock()
		delete(s.inspectors, in)
		s.inspectMu.Unlock()
		in.close()
	}()

	// Subscribe before reading the snapshot so no commit is missed.
	for _, name := range s.store.Keys() {
		name := name
		u, err := s.store.SubscribeAny(name, func() {
			v, _ := s.store.GetAny(name)
			rev, _ := s.store.Revision(name)
			in.commit(Frame{Type: "commit", Slice: name, Revision: rev, Value: v})
		})
		if err != nil {
			s.logger.Error("inspect subscribe failed", "slice", name, "error", err)
			return
		}
		unsubs = append(unsubs, u)
	}

	// Revisions are read before the state, so a commit in between is sent
	// again as a commit frame rather than lost.
	snapshot := Frame{Type: "snapshot", Revisions: make(map[string]uint64)}
	for _, name := range s.store.Keys() {
		snapshot.Revisions[name], _ = s.store.Revision(name)
	}
	snapshot.State = s.store.Snapshot()
	in.start(snapshot)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("inspect writer panic", "panic", rec, "stack", string(debug.Stack()))
			}
			in.close()
		}()
		if err := in.writeLoop(s.config.InspectWriteTimeout); err != nil {
			s.logger.Debug("inspect write failed", "error", err)
		}
	}()

	s.logger.Debug("inspector connected", "remote", r.RemoteAddr)
	in.readLoop()
	s.logger.Debug("inspector disconnected", "remote", r.RemoteAddr)
}
