// Package rpc serves systems and ephemerides over gRPC. Messages are
// google.protobuf.Struct values carrying the same JSON shapes as the HTTP
// API, so the service needs no generated code.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/orrery/core"
	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/internal/sim"
	"github.com/signalsfoundry/orrery/kb"
	"github.com/signalsfoundry/orrery/model"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "orrery.v1.EphemerisService"

// EphemerisServer is the server API of ServiceName.
type EphemerisServer interface {
	// ListSystems returns {"systems": [name...]}.
	ListSystems(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// GetSystem takes {"name"} and returns the system's tree projection.
	GetSystem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// GetEphemeris takes {"name", "t"?, "mode"?} and returns the positions
	// of every node. t defaults to the current simulation time.
	GetEphemeris(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// AddSystem takes a system definition and returns the built projection.
	AddSystem(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Clock reports the current simulation time.
type Clock interface {
	Now() time.Time
}

// Service implements EphemerisServer on top of the kb and the tick engine.
type Service struct {
	kb     *kb.KnowledgeBase
	engine *sim.Engine
	clock  Clock
	log    logging.Logger
}

// NewService constructs the gRPC service.
func NewService(store *kb.KnowledgeBase, engine *sim.Engine, clock Clock, log logging.Logger) *Service {
	if log == nil {
		log = logging.Noop()
	}
	return &Service{kb: store, engine: engine, clock: clock, log: log}
}

// ListSystems implements EphemerisServer.
func (s *Service) ListSystems(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	names := s.kb.ListSystems()
	list := make([]any, len(names))
	for i, n := range names {
		list[i] = n
	}
	out, err := structpb.NewStruct(map[string]any{"systems": list})
	return out, ToStatusError(err)
}

// GetSystem implements EphemerisServer.
func (s *Service) GetSystem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, err := requiredString(req, "name")
	if err != nil {
		return nil, ToStatusError(err)
	}
	root, err := s.kb.GetSystem(name)
	if err != nil {
		return nil, ToStatusError(err)
	}
	out, err := toStruct(root)
	return out, ToStatusError(err)
}

// GetEphemeris implements EphemerisServer.
func (s *Service) GetEphemeris(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, err := requiredString(req, "name")
	if err != nil {
		return nil, ToStatusError(err)
	}
	root, err := s.kb.GetSystem(name)
	if err != nil {
		return nil, ToStatusError(err)
	}

	mode := s.engine.Mode()
	fields := req.GetFields()
	if v, ok := fields["mode"]; ok {
		if mode, err = core.ParsePropagationMode(v.GetStringValue()); err != nil {
			return nil, ToStatusError(fmt.Errorf("%w: %v", ErrInvalidArgument, err))
		}
	}
	t := sim.TimeValue(mode, s.engine.Epoch(), s.clock.Now())
	if v, ok := fields["t"]; ok {
		if _, isNum := v.GetKind().(*structpb.Value_NumberValue); !isNum {
			return nil, ToStatusError(fmt.Errorf("%w: t must be a number", ErrInvalidArgument))
		}
		t = v.GetNumberValue()
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, ToStatusError(fmt.Errorf("%w: t must be finite", ErrInvalidArgument))
		}
	}

	_, span := startChildSpan(ctx, "rpc.ComputeEphemeris", name,
		attribute.Float64("t", t),
		attribute.String("mode", mode.String()),
	)
	eph := core.ComputeEphemeris(name, root, t, mode)
	span.End()

	out, err := toStruct(eph)
	return out, ToStatusError(err)
}

// AddSystem implements EphemerisServer.
func (s *Service) AddSystem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	data, err := req.MarshalJSON()
	if err != nil {
		return nil, ToStatusError(fmt.Errorf("%w: %v", ErrInvalidArgument, err))
	}
	def, root, err := core.LoadDefinition(ctx, bytes.NewReader(data), core.WithBuildLogger(loggerFrom(ctx, s.log)))
	if err != nil {
		return nil, ToStatusError(fmt.Errorf("%w: %v", ErrInvalidArgument, err))
	}
	if err := s.engine.AddSystem(ctx, def.Name, root); err != nil {
		return nil, ToStatusError(err)
	}
	out, err := toStruct(root)
	return out, ToStatusError(err)
}

func requiredString(req *structpb.Struct, key string) (string, error) {
	v := req.GetFields()[key].GetStringValue()
	if v == "" {
		return "", fmt.Errorf("%w: %q is required", ErrInvalidArgument, key)
	}
	return v, nil
}

// toStruct converts any JSON-marshalable value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("convert response: %w", err)
	}
	return out, nil
}

// EphemerisFromStruct decodes a GetEphemeris response.
func EphemerisFromStruct(s *structpb.Struct) (model.Ephemeris, error) {
	var eph model.Ephemeris
	data, err := s.MarshalJSON()
	if err != nil {
		return eph, err
	}
	err = json.Unmarshal(data, &eph)
	return eph, err
}

// RegisterEphemerisServer registers srv on s.
func RegisterEphemerisServer(s grpc.ServiceRegistrar, srv EphemerisServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes ServiceName for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EphemerisServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListSystems", Handler: listSystemsHandler},
		{MethodName: "GetSystem", Handler: structHandler("GetSystem", EphemerisServer.GetSystem)},
		{MethodName: "GetEphemeris", Handler: structHandler("GetEphemeris", EphemerisServer.GetEphemeris)},
		{MethodName: "AddSystem", Handler: structHandler("AddSystem", EphemerisServer.AddSystem)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "orrery/v1/ephemeris.proto",
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func listSystemsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EphemerisServer).ListSystems(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("ListSystems")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EphemerisServer).ListSystems(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

type structMethod func(EphemerisServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func structHandler(method string, call structMethod) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(EphemerisServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(EphemerisServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}
