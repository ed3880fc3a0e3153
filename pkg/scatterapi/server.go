package scatterapi

import (
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ProfileSource recomputes a scattering profile for a given free parameter
// set. cmd/saxsengine's profileSource, which recomputes through
// engine.Transform on each request, is the production implementation; tests
// can supply a fake.
type ProfileSource interface {
	Profile(params FitterParams) ([]ScatteringPoint, error)
}

// ScatterServer is the StreamProfile handler contract, the hand-rolled
// analogue of a protoc-gen-go-grpc server interface.
type ScatterServer interface {
	StreamProfile(params FitterParams, stream ProfileStream) error
}

// ProfileStream is what a StreamProfile implementation sends points
// through.
type ProfileStream interface {
	Send(ScatteringPoint) error
}

// scatterServer adapts a ProfileSource into a ScatterServer: it recomputes
// the whole profile eagerly and streams the resulting points onto the
// client's channel as they're ready.
type scatterServer struct {
	source ProfileSource
}

// NewServer builds the ScatterServer backing a Publisher from a
// ProfileSource.
func NewServer(source ProfileSource) ScatterServer {
	return &scatterServer{source: source}
}

func (s *scatterServer) StreamProfile(params FitterParams, stream ProfileStream) error {
	points, err := s.source.Profile(params)
	if err != nil {
		return fmt.Errorf("scatterapi: recompute profile: %w", err)
	}
	for _, p := range points {
		if err := stream.Send(p); err != nil {
			return fmt.Errorf("scatterapi: send point: %w", err)
		}
	}
	return nil
}

// grpcProfileStream adapts a grpc.ServerStream to ProfileStream, encoding
// each point as a structpb.Struct.
type grpcProfileStream struct {
	grpc.ServerStream
}

func (s *grpcProfileStream) Send(p ScatteringPoint) error {
	msg, err := p.ToStruct()
	if err != nil {
		return err
	}
	return s.ServerStream.SendMsg(msg)
}

func streamProfileHandler(srv interface{}, stream grpc.ServerStream) error {
	var req structpb.Struct
	if err := stream.RecvMsg(&req); err != nil {
		return fmt.Errorf("scatterapi: receive FitterParams: %w", err)
	}
	params, err := FitterParamsFromStruct(&req)
	if err != nil {
		return err
	}
	return srv.(ScatterServer).StreamProfile(params, &grpcProfileStream{ServerStream: stream})
}

// ServiceDesc is the hand-rolled equivalent of the protoc-gen-go-grpc
// _ScatterService_serviceDesc, registered on a *grpc.Server with
// RegisterScatterServiceServer.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "scatterapi.ScatterService",
	HandlerType: (*ScatterServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamProfile",
			Handler:       streamProfileHandler,
			ServerStreams: true,
		},
	},
	Metadata: "scatterapi.proto",
}

// RegisterScatterServiceServer registers srv as the ScatterService
// implementation on s.
func RegisterScatterServiceServer(s *grpc.Server, srv ScatterServer) {
	s.RegisterService(&ServiceDesc, srv)
}
