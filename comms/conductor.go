package comms

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/CodedInternet/gripperd/gripper"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

const (
	writeWait   = 10 * time.Second
	sendBacklog = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Conductor exposes the action servers of a device to websocket clients. Each
// connection talks to a single effector.
type Conductor struct {
	servers map[string]*gripper.Server
	clients *atomic.Int32
	seq     *atomic.Uint64
}

func NewConductor(servers map[string]*gripper.Server) *Conductor {
	return &Conductor{
		servers: servers,
		clients: atomic.NewInt32(0),
		seq:     atomic.NewUint64(0),
	}
}

func (c *Conductor) Server(name string) (*gripper.Server, bool) {
	s, ok := c.servers[name]
	return s, ok
}

func (c *Conductor) Names() []string {
	names := make([]string, 0, len(c.servers))
	for name := range c.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clients is the number of connected websocket clients.
func (c *Conductor) Clients() int {
	return int(c.clients.Load())
}

// ServeAction upgrades the request and runs the action protocol against server
// until the client goes away. Goals still open when it does are cancelled.
func (c *Conductor) ServeAction(w http.ResponseWriter, r *http.Request, server *gripper.Server) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	name := server.Executor().Name()
	cl := &client{
		conductor: c,
		conn:      conn,
		server:    server,
		logger:    log.WithFields(log.Fields{"effector": name, "remote": r.RemoteAddr}),
		send:      make(chan Message, sendBacklog),
		done:      make(chan struct{}),
		goals:     make(map[string]*gripper.ServerGoal),
	}

	c.clients.Inc()
	defer c.clients.Dec()

	cl.logger.Info("action client connected")
	cl.run()
	cl.logger.Info("action client disconnected")
}

func (c *Conductor) nextID(name string) string {
	return fmt.Sprintf("%s-%d", name, c.seq.Inc())
}

type client struct {
	conductor *Conductor
	conn      *websocket.Conn
	server    *gripper.Server
	logger    *log.Entry

	send chan Message
	done chan struct{}

	mu    sync.Mutex
	goals map[string]*gripper.ServerGoal
}

func (cl *client) run() {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		cl.writeLoop()
	}()

	cl.readLoop()
	close(cl.done)

	cl.mu.Lock()
	for _, g := range cl.goals {
		g.Cancel()
	}
	cl.mu.Unlock()

	wg.Wait()
	cl.conn.Close()
}

func (cl *client) readLoop() {
	for {
		var req Request
		if err := cl.conn.ReadJSON(&req); err != nil {
			if _, ok := err.(*websocket.CloseError); !ok {
				cl.logger.WithError(err).Debug("read failed")
			}
			return
		}

		switch req.Type {
		case TypeGoal:
			cl.submit(req)
		case TypeCancel:
			cl.cancel(req.ID)
		default:
			cl.push(statusMessage(req.ID, StatusError, fmt.Sprintf("unknown request type %q", req.Type)))
		}
	}
}

func (cl *client) writeLoop() {
	for {
		select {
		case <-cl.done:
			return
		case msg := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteJSON(msg); err != nil {
				cl.logger.WithError(err).Warn("write failed")
				return
			}
		}
	}
}

func (cl *client) submit(req Request) {
	if req.Command == nil {
		cl.push(statusMessage(req.ID, StatusRejected, "goal has no command"))
		return
	}

	id := req.ID
	if id == "" {
		id = cl.conductor.nextID(cl.server.Executor().Name())
	}

	cl.mu.Lock()
	_, dup := cl.goals[id]
	cl.mu.Unlock()
	if dup {
		cl.push(statusMessage(id, StatusRejected, "goal id already in use"))
		return
	}

	sink := &goalSink{client: cl, id: id, ready: make(chan struct{})}
	g, err := cl.server.Submit(req.Command.Goal(), sink)
	if err != nil {
		cl.push(statusMessage(id, StatusRejected, err.Error()))
		return
	}

	cl.mu.Lock()
	cl.goals[id] = g
	cl.mu.Unlock()

	cl.logger.WithFields(log.Fields{"goal_id": id, "position": req.Command.Position}).Debug("goal accepted")
	cl.push(statusMessage(id, StatusAccepted, ""))
	close(sink.ready)
}

func (cl *client) cancel(id string) {
	cl.mu.Lock()
	g, ok := cl.goals[id]
	cl.mu.Unlock()

	if !ok {
		cl.push(statusMessage(id, StatusError, "no such goal"))
		return
	}
	g.Cancel()
}

func (cl *client) forget(id string) {
	cl.mu.Lock()
	delete(cl.goals, id)
	cl.mu.Unlock()
}

// push queues a message for the writer. It gives up once the client is gone.
func (cl *client) push(msg Message) {
	select {
	case cl.send <- msg:
	case <-cl.done:
	}
}

// goalSink forwards one goal's feedback and result to its client. Nothing is
// sent before the goal's accepted status.
type goalSink struct {
	client *client
	id     string
	ready  chan struct{}
}

func (s *goalSink) wait() bool {
	select {
	case <-s.ready:
		return true
	case <-s.client.done:
		return false
	}
}

func (s *goalSink) PublishFeedback(fb gripper.FeedbackSnapshot) {
	if !s.wait() {
		return
	}
	// a slow client loses feedback, never results
	select {
	case s.client.send <- feedbackMessage(s.id, fb):
	default:
	}
}

func (s *goalSink) finish(status gripper.Status, result gripper.FeedbackSnapshot, reason string) {
	ok := s.wait()
	s.client.forget(s.id)
	if ok {
		s.client.push(resultMessage(s.id, status, result, reason))
	}
}

func (s *goalSink) SetSucceeded(result gripper.FeedbackSnapshot) {
	s.finish(gripper.Succeeded, result, "")
}

func (s *goalSink) SetAborted(result gripper.FeedbackSnapshot, reason string) {
	s.finish(gripper.Aborted, result, reason)
}

func (s *goalSink) SetPreempted(result gripper.FeedbackSnapshot) {
	s.finish(gripper.Preempted, result, "")
}
