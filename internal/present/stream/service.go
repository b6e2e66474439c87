package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/pothole.report/internal/dashboard"
	"github.com/banshee-data/pothole.report/internal/monitoring"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "roadreport.v1.Dashboard"

const streamFramesMethod = "/" + ServiceName + "/StreamFrames"

// DashboardServer is the server API for the Dashboard service. Requests and
// frames travel as google.protobuf.Struct so viewers need no generated code.
type DashboardServer interface {
	StreamFrames(req *structpb.Struct, stream grpc.ServerStream) error
}

var dashboardServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DashboardServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamFrames",
			Handler:       streamFramesHandler,
			ServerStreams: true,
		},
	},
	Metadata: "roadreport/v1/dashboard.proto",
}

func streamFramesHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(DashboardServer).StreamFrames(req, stream)
}

// RegisterDashboardServer registers srv with s.
func RegisterDashboardServer(s grpc.ServiceRegistrar, srv DashboardServer) {
	s.RegisterService(&dashboardServiceDesc, srv)
}

// server streams frames from a Publisher.
type server struct {
	publisher *Publisher
}

// StreamFrames sends every broadcast frame until the client goes away. The
// request may set "charts" to false to omit the rolling chart buffers.
func (s *server) StreamFrames(req *structpb.Struct, stream grpc.ServerStream) error {
	charts := true
	if v, ok := req.GetFields()["charts"]; ok {
		charts = v.GetBoolValue()
	}
	client := s.publisher.addClient(charts)
	if client == nil {
		return status.Errorf(codes.ResourceExhausted, "too many clients (max %d)", s.publisher.config.MaxClients)
	}
	defer s.publisher.removeClient(client.id)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.publisher.stopCh:
			return nil
		case frame := <-client.frameCh:
			msg, err := FrameToStruct(frame, client.charts)
			if err != nil {
				return status.Errorf(codes.Internal, "encode frame: %v", err)
			}
			if err := stream.SendMsg(msg); err != nil {
				monitoring.Logf("[Stream] Send error: %v", err)
				return err
			}
		}
	}
}

// FrameToStruct converts a frame to its wire form.
func FrameToStruct(frame dashboard.Frame, charts bool) (*structpb.Struct, error) {
	if !charts {
		frame.Charts = nil
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if !charts {
		delete(m, "charts")
	}
	return structpb.NewStruct(m)
}

// FrameFromStruct is the inverse of FrameToStruct.
func FrameFromStruct(s *structpb.Struct) (dashboard.Frame, error) {
	var frame dashboard.Frame
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return frame, err
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		return frame, fmt.Errorf("decode frame: %w", err)
	}
	return frame, nil
}

// Client consumes a Dashboard frame stream.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient connects to target. Pass grpc.WithTransportCredentials(...) and
// any other dial options explicitly.
func NewClient(target string, opts ...grpc.DialOption) (*Client, error) {
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }

// StreamFrames calls fn for each received frame until ctx is done, the
// server ends the stream, or fn returns an error.
func (c *Client) StreamFrames(ctx context.Context, charts bool, fn func(dashboard.Frame) error) error {
	stream, err := c.conn.NewStream(ctx, &dashboardServiceDesc.Streams[0], streamFramesMethod)
	if err != nil {
		return err
	}
	req, err := structpb.NewStruct(map[string]interface{}{"charts": charts})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(req); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			return err
		}
		frame, err := FrameFromStruct(msg)
		if err != nil {
			return err
		}
		if err := fn(frame); err != nil {
			return err
		}
	}
}
