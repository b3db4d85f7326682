package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	convsyncv1 "github.com/matheus3301/convsync/internal/rpc/v1"
)

// Client wraps the gRPC connection to a profile daemon.
type Client struct {
	conn          *grpc.ClientConn
	Daemon        convsyncv1.DaemonServiceClient
	Conversations convsyncv1.ConversationServiceClient
}

// New dials the daemon's Unix domain socket and returns typed service clients.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}

	return &Client{
		conn:          conn,
		Daemon:        convsyncv1.NewDaemonServiceClient(conn),
		Conversations: convsyncv1.NewConversationServiceClient(conn),
	}, nil
}

// Probe reports whether a daemon answers on socketPath.
func Probe(socketPath string, timeout time.Duration) bool {
	c, err := New(socketPath)
	if err != nil {
		return false
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, err = c.Daemon.GetStatus(ctx, &convsyncv1.GetStatusRequest{})
	return err == nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
