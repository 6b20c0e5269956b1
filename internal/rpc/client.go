package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/orrery/model"
)

// Client is a thin client for ServiceName.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// ListSystems returns the registered system names.
func (c *Client) ListSystems(ctx context.Context, opts ...grpc.CallOption) ([]string, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("ListSystems"), &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	var names []string
	for _, v := range out.GetFields()["systems"].GetListValue().GetValues() {
		names = append(names, v.GetStringValue())
	}
	return names, nil
}

// GetSystem returns the tree projection of the named system.
func (c *Client) GetSystem(ctx context.Context, name string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"name": name})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("GetSystem"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetEphemeris returns the positions of the named system. A nil t asks for
// the server's current simulation time; an empty mode uses the server's mode.
func (c *Client) GetEphemeris(ctx context.Context, name string, t *float64, mode string, opts ...grpc.CallOption) (model.Ephemeris, error) {
	req := map[string]any{"name": name}
	if t != nil {
		req["t"] = *t
	}
	if mode != "" {
		req["mode"] = mode
	}
	in, err := structpb.NewStruct(req)
	if err != nil {
		return model.Ephemeris{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("GetEphemeris"), in, out, opts...); err != nil {
		return model.Ephemeris{}, err
	}
	return EphemerisFromStruct(out)
}

// AddSystem submits a system definition and returns the built projection.
func (c *Client) AddSystem(ctx context.Context, def *model.SystemDefinition, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := toStruct(def)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("AddSystem"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
