// Package scatterapi is a thin gRPC transport around the engine's Debye
// transform: an external fitter process pushes a free parameter set and
// receives the recomputed intensity curve, without
// linking internal/engine directly, the same broadcast-to-clients shape a
// streaming telemetry publisher would use, adapted from a per-frame
// broadcast to a per-request recompute-and-stream call.
//
// scatterapi.proto documents the wire contract. Messages are carried as
// google.golang.org/protobuf/types/known/structpb.Struct values rather than
// a protoc-gen-go-generated pair: this environment has no protoc, and
// hand-authoring a FileDescriptorProto-backed message by copying generated
// output risks a byte-for-byte mismatch that silently breaks wire
// compatibility. structpb.Struct is itself a real, compiler-generated
// protobuf message shipped by the protobuf module, so this keeps the
// service on genuine protobuf wire encoding without fabricating one.
package scatterapi

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// FitterParams is the free parameter set a fitter process supplies:
// {c_w, c_x, c_s, B_a, B_x}.
type FitterParams struct {
	Cw, Cx, Cs float64
	Ba, Bx     float64
}

// ScatteringPoint is a single (q, I(q)) sample of a recomputed profile.
type ScatteringPoint struct {
	Q         float64
	Intensity float64
}

// ToStruct encodes p as a protobuf Struct for wire transmission.
func (p FitterParams) ToStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"cw": p.Cw, "cx": p.Cx, "cs": p.Cs, "ba": p.Ba, "bx": p.Bx,
	})
}

// FitterParamsFromStruct decodes a protobuf Struct produced by ToStruct.
func FitterParamsFromStruct(s *structpb.Struct) (FitterParams, error) {
	if s == nil {
		return FitterParams{}, fmt.Errorf("scatterapi: nil FitterParams struct")
	}
	f := s.AsMap()
	get := func(key string) float64 {
		v, _ := f[key].(float64)
		return v
	}
	return FitterParams{Cw: get("cw"), Cx: get("cx"), Cs: get("cs"), Ba: get("ba"), Bx: get("bx")}, nil
}

// ToStruct encodes p as a protobuf Struct for wire transmission.
func (p ScatteringPoint) ToStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{"q": p.Q, "intensity": p.Intensity})
}

// ScatteringPointFromStruct decodes a protobuf Struct produced by ToStruct.
func ScatteringPointFromStruct(s *structpb.Struct) (ScatteringPoint, error) {
	if s == nil {
		return ScatteringPoint{}, fmt.Errorf("scatterapi: nil ScatteringPoint struct")
	}
	f := s.AsMap()
	q, _ := f["q"].(float64)
	i, _ := f["intensity"].(float64)
	return ScatteringPoint{Q: q, Intensity: i}, nil
}
