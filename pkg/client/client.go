package client

import (
	"fmt"
	"net"
	"time"

	"github.com/cuemby/doghair/pkg/protocol"
	"github.com/cuemby/doghair/pkg/types"
)

// requestTimeout bounds every admin exchange.
const requestTimeout = 10 * time.Second

// Client wraps an admin connection to a running coordinator for easy
// CLI usage
type Client struct {
	conn *protocol.Conn
}

// NewClient connects to the coordinator's admin address
func NewClient(addr string) (*Client, error) {
	nc, err := net.DialTimeout("tcp", addr, requestTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to coordinator: %w", err)
	}
	return &Client{conn: protocol.NewConn(nc)}, nil
}

// Close closes the client connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// StartCollect submits a start_collect command
func (c *Client) StartCollect() error {
	return c.command(protocol.CommandStartCollect)
}

// StopCollect submits a stop_collect command
func (c *Client) StopCollect() error {
	return c.command(protocol.CommandStopCollect)
}

// Pull submits a pull command
func (c *Client) Pull() error {
	return c.command(protocol.CommandPull)
}

// Shutdown submits a shutdown command
func (c *Client) Shutdown() error {
	return c.command(protocol.CommandShutdown)
}

// Status fetches the coordinator status report
func (c *Client) Status() (*types.StatusReport, error) {
	if err := c.conn.Send(protocol.FrameCommand, protocol.Command{Name: protocol.CommandStatus}); err != nil {
		return nil, fmt.Errorf("failed to send status command: %w", err)
	}

	frame, err := c.conn.RecvTimeout(requestTimeout)
	if err != nil {
		return nil, fmt.Errorf("no status reply: %w", err)
	}
	if frame.Type != protocol.FrameStatus {
		return nil, fmt.Errorf("unexpected %s reply to status", protocol.TypeName(frame.Type))
	}

	var report types.StatusReport
	if err := frame.Decode(&report); err != nil {
		return nil, err
	}
	return &report, nil
}

// command sends one fire-and-forget operator command and waits for the
// admission ack. The ack does not imply the command's guard passed;
// guard failures surface in the coordinator's log.
func (c *Client) command(name string) error {
	if err := c.conn.Send(protocol.FrameCommand, protocol.Command{Name: name}); err != nil {
		return fmt.Errorf("failed to send %s: %w", name, err)
	}

	frame, err := c.conn.RecvTimeout(requestTimeout)
	if err != nil {
		return fmt.Errorf("no ack for %s: %w", name, err)
	}
	if frame.Type != protocol.FrameCommandAck {
		return fmt.Errorf("unexpected %s reply to %s", protocol.TypeName(frame.Type), name)
	}

	var ack protocol.CommandAck
	if err := frame.Decode(&ack); err != nil {
		return err
	}
	if !ack.OK {
		return fmt.Errorf("coordinator rejected %s: %s", name, ack.Message)
	}
	return nil
}
