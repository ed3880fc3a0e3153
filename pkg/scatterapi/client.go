package scatterapi

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client wraps a ClientConn dialed to a scatterapi server.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient wraps an already-dialed connection (grpc.NewClient /
// grpc.DialContext) as a scatterapi Client.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// StreamProfile requests the recomputed profile for params and returns a
// stream of points; call Recv in a loop until io.EOF.
func (c *Client) StreamProfile(ctx context.Context, params FitterParams) (*ProfileClientStream, error) {
	desc := &ServiceDesc.Streams[0]
	stream, err := c.conn.NewStream(ctx, desc, "/scatterapi.ScatterService/StreamProfile")
	if err != nil {
		return nil, fmt.Errorf("scatterapi: open stream: %w", err)
	}
	req, err := params.ToStruct()
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, fmt.Errorf("scatterapi: send FitterParams: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("scatterapi: close send: %w", err)
	}
	return &ProfileClientStream{stream: stream}, nil
}

// ProfileClientStream yields ScatteringPoints from a StreamProfile call.
type ProfileClientStream struct {
	stream grpc.ClientStream
}

// Recv returns the next point, or io.EOF when the stream completes.
func (s *ProfileClientStream) Recv() (ScatteringPoint, error) {
	var msg structpb.Struct
	if err := s.stream.RecvMsg(&msg); err != nil {
		if err == io.EOF {
			return ScatteringPoint{}, io.EOF
		}
		return ScatteringPoint{}, fmt.Errorf("scatterapi: receive point: %w", err)
	}
	return ScatteringPointFromStruct(&msg)
}
