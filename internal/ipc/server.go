package ipc

import (
	"context"
	"fmt"
	"log"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"rsm-agent/internal/protocol"
)

// Handler answers one decoded request. Returning an error produces an
// ErrorResponse on the wire; the connection stays up either way.
type Handler func(ctx context.Context, req protocol.Message) (protocol.Message, error)

// Server is the background process's side of the local channel. It serves one
// connection at a time: the management client holds at most one session and
// the protocol is strictly request/response.
type Server struct {
	listener net.Listener
	handler  Handler
	logger   *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// StartServer serves connections from ln until Close. It returns immediately;
// the accept loop runs on its own goroutine.
func StartServer(ln net.Listener, handler Handler, logger *log.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{listener: ln, handler: handler, logger: logger, ctx: ctx, cancel: cancel}
	go s.acceptLoop()
	return s
}

// StartChannelServer binds the well-known local channel and serves it.
func StartChannelServer(handler Handler, logger *log.Logger) (*Server, error) {
	ln, err := ListenChannel()
	if err != nil {
		return nil, fmt.Errorf("listen local channel: %w", err)
	}
	return StartServer(ln, handler, logger), nil
}

func (s *Server) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.listener.Close()
	})
	return err
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			s.logger.Printf("ipc accept error: %v", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	for {
		body, err := ReadFrame(conn)
		if err != nil {
			// Client disconnected or the frame was unreadable; nothing more
			// can be exchanged on this connection.
			return
		}

		req, err := protocol.Decode(body)
		if err != nil {
			// The frame arrived intact, so the channel is still usable;
			// answer with an error envelope rather than dropping the client.
			s.respond(conn, protocol.NewErrorResponse("", err))
			continue
		}

		resp := s.dispatch(req)
		resp.SetCorrelation(req.Correlation())
		if !s.respond(conn, resp) {
			return
		}

		select {
		case <-s.ctx.Done():
			return
		default:
		}
	}
}

// dispatch never lets a handler failure escape without a well-formed error
// envelope; the client must always be able to tell "the service answered with
// an error" apart from "the transport died".
func (s *Server) dispatch(req protocol.Message) (resp protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("ipc handler panic on %s: %v", req.Kind(), r)
			errResp := protocol.NewErrorResponse(req.Correlation(), fmt.Errorf("handler panic: %v", r))
			errResp.StackTrace = string(debug.Stack())
			resp = errResp
		}
	}()

	resp, err := s.handler(s.ctx, req)
	if err != nil {
		s.logger.Printf("ipc request %s failed: %v", req.Kind(), err)
		return protocol.NewErrorResponse(req.Correlation(), err)
	}
	if resp == nil {
		return protocol.NewErrorResponse(req.Correlation(), fmt.Errorf("no response for %s", req.Kind()))
	}
	return resp
}

func (s *Server) respond(conn net.Conn, resp protocol.Message) bool {
	body, err := protocol.Encode(resp)
	if err != nil {
		s.logger.Printf("ipc encode %s: %v", resp.Kind(), err)
		fallback, ferr := protocol.Encode(protocol.NewErrorResponse(resp.Correlation(), err))
		if ferr != nil {
			return false
		}
		body = fallback
	}
	if err := WriteFrame(conn, body); err != nil {
		s.logger.Printf("ipc write response: %v", err)
		return false
	}
	return true
}
