package daemon

import (
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/google/uuid"

	"aether/internal/wire"
)

// Acceptor runs the control-plane listener on its own goroutine: accept a
// connection, read one SubscribeRequest, look up or create the topic,
// write one SubscribeResponse, close. One request/response per
// connection, matching the teacher's and the original's single-shot RPC
// shape — no keep-alive, no multiplexing.
type Acceptor struct {
	socketPath string
	registry   *Registry
	log        *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	done     chan struct{}
}

// NewAcceptor creates an Acceptor bound to socketPath once Start is
// called. Any stale socket file at that path is removed first.
func NewAcceptor(socketPath string, registry *Registry, log *slog.Logger) *Acceptor {
	if log == nil {
		log = slog.Default()
	}
	return &Acceptor{socketPath: socketPath, registry: registry, log: log}
}

// Start unlinks any stale socket file, binds, and begins accepting
// connections on a dedicated goroutine. It returns once the listener is
// bound; the accept loop itself runs asynchronously.
func (a *Acceptor) Start() error {
	if err := os.RemoveAll(a.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	ln, err := net.Listen("unix", a.socketPath)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.listener = ln
	a.done = make(chan struct{})
	a.mu.Unlock()

	go a.acceptLoop()
	a.log.Info("acceptor listening", "socket", a.socketPath)
	return nil
}

func (a *Acceptor) acceptLoop() {
	defer close(a.done)
	for {
		conn, err := a.listener.Accept()
		if err != nil {
			// Stop unlinked/closed the listener: this is the expected
			// exit path, not a failure worth logging loudly.
			a.log.Debug("acceptor stopped", "reason", err)
			return
		}
		a.handleConn(conn)
	}
}

// handleConn serves exactly one request/response pair and closes conn,
// regardless of outcome.
func (a *Acceptor) handleConn(conn net.Conn) {
	connID := uuid.NewString()
	defer conn.Close()

	reqBuf := make([]byte, wire.SubscribeRequestSize)
	if err := wire.ReadFull(conn, reqBuf); err != nil {
		a.log.Warn("control read failed", "conn", connID, "error", err)
		return
	}

	req, err := wire.DecodeSubscribeRequest(reqBuf)
	if err != nil {
		a.log.Warn("control decode failed", "conn", connID, "error", err)
		a.respond(conn, connID, wire.SubscribeResponse{Status: wire.StatusInternalError})
		return
	}

	name, capacity, err := a.registry.GetOrCreate(req.Topic)
	if err != nil {
		a.log.Error("topic creation failed", "conn", connID, "topic", req.Topic, "error", err)
		a.respond(conn, connID, wire.SubscribeResponse{Status: wire.StatusInternalError})
		return
	}

	a.respond(conn, connID, wire.SubscribeResponse{Status: wire.StatusOk, Capacity: capacity, ShmName: name})
}

func (a *Acceptor) respond(conn net.Conn, connID string, resp wire.SubscribeResponse) {
	buf, err := resp.Encode()
	if err != nil {
		a.log.Error("encode response failed", "conn", connID, "error", err)
		return
	}
	if err := wire.WriteFull(conn, buf); err != nil {
		a.log.Warn("control write failed", "conn", connID, "error", err)
	}
}

// Stop closes the listener (unblocking Accept in the acceptor goroutine),
// waits for the acceptor goroutine to exit, and removes the socket file.
func (a *Acceptor) Stop() error {
	a.mu.Lock()
	ln := a.listener
	done := a.done
	a.mu.Unlock()

	if ln == nil {
		return nil
	}

	closeErr := ln.Close()
	if done != nil {
		<-done
	}
	if err := os.RemoveAll(a.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return closeErr
}
