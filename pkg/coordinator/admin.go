package coordinator

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/doghair/pkg/log"
	"github.com/cuemby/doghair/pkg/protocol"
)

// AdminServer exposes the operator surface: five imperative commands
// delivered as messages to the state core. Commands are fire-and-forget
// relative to their guards; the ack only confirms admission to the
// queue.
type AdminServer struct {
	coordinator *Coordinator
	logger      zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

// NewAdminServer creates an admin server for the coordinator
func NewAdminServer(c *Coordinator) *AdminServer {
	return &AdminServer{
		coordinator: c,
		logger:      log.WithComponent("admin"),
	}
}

// Start listens on addr and serves operator connections in the
// background.
func (s *AdminServer) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on admin address: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info().Str("addr", listener.Addr().String()).Msg("admin server listening")

	go func() {
		for {
			nc, err := listener.Accept()
			if err != nil {
				s.mu.Lock()
				closed := s.closed
				s.mu.Unlock()
				if !closed && !errors.Is(err, net.ErrClosed) {
					s.logger.Error().Err(err).Msg("admin accept failed")
				}
				return
			}
			go s.handleConn(protocol.NewConn(nc))
		}
	}()

	return nil
}

// Addr returns the bound admin address, or "" before Start.
func (s *AdminServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes the admin listener
func (s *AdminServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *AdminServer) handleConn(conn *protocol.Conn) {
	defer conn.Close()

	for {
		frame, err := conn.Recv()
		if err != nil {
			return
		}
		if frame.Type != protocol.FrameCommand {
			s.logger.Warn().Str("frame", protocol.TypeName(frame.Type)).Msg("unexpected admin frame")
			continue
		}

		var cmd protocol.Command
		if err := frame.Decode(&cmd); err != nil {
			s.logger.Error().Err(err).Msg("malformed admin command")
			s.ack(conn, false, "malformed command")
			continue
		}

		switch cmd.Name {
		case protocol.CommandStartCollect:
			s.coordinator.StartCollect()
			s.ack(conn, true, "start_collect submitted")
		case protocol.CommandStopCollect:
			s.coordinator.StopCollect()
			s.ack(conn, true, "stop_collect submitted")
		case protocol.CommandPull:
			s.coordinator.Pull()
			s.ack(conn, true, "pull submitted")
		case protocol.CommandStatus:
			report := s.coordinator.Status()
			if err := conn.Send(protocol.FrameStatus, report); err != nil {
				s.logger.Error().Err(err).Msg("failed to send status")
			}
		case protocol.CommandShutdown:
			s.coordinator.Shutdown()
			s.ack(conn, true, "shutdown submitted")
		default:
			s.logger.Warn().Str("command", cmd.Name).Msg("unknown admin command")
			s.ack(conn, false, "unknown command: "+cmd.Name)
		}
	}
}

func (s *AdminServer) ack(conn *protocol.Conn, ok bool, message string) {
	if err := conn.Send(protocol.FrameCommandAck, protocol.CommandAck{OK: ok, Message: message}); err != nil {
		s.logger.Debug().Err(err).Msg("failed to send command ack")
	}
}
