package eventbus

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

// jsonCodec lets the gRPC transport carry plain JSON event payloads
// instead of protobuf, so the bridge needs no generated codec.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}
func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// FeedServer is the server-streaming contract the bridge exposes: one
// client connects and receives every bus event as it is published.
type FeedServer interface {
	Stream(Feed_StreamServer) error
}

type Feed_StreamServer interface {
	Send(*Event) error
	grpc.ServerStream
}

type feedStreamServer struct {
	grpc.ServerStream
}

func (x *feedStreamServer) Send(e *Event) error {
	return x.ServerStream.SendMsg(e)
}

func _Feed_Stream_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(FeedServer).Stream(&feedStreamServer{stream})
}

var feedServiceDesc = grpc.ServiceDesc{
	ServiceName: "scribecore.Feed",
	HandlerType: (*FeedServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Stream",
			Handler:       _Feed_Stream_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "eventbus/feed.proto",
}

func RegisterFeedServer(s *grpc.Server, srv FeedServer) {
	s.RegisterService(&feedServiceDesc, srv)
}

// Bridge forwards every event on a Bus to connected gRPC clients.
type Bridge struct {
	bus    *Bus
	mu     sync.Mutex
	server *grpc.Server
}

// NewBridge returns a bridge that mirrors bus over gRPC once Start runs.
func NewBridge(bus *Bus) *Bridge {
	return &Bridge{bus: bus}
}

// Stream implements FeedServer: it registers a bus subscription for the
// lifetime of the client connection and relays events as they arrive.
func (br *Bridge) Stream(stream Feed_StreamServer) error {
	id, ch := br.bus.Subscribe()
	defer br.bus.Unsubscribe(id)

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return status.Error(codes.Unavailable, "event bus subscription closed")
			}
			if err := stream.Send(&e); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return stream.Context().Err()
		}
	}
}

// Start listens on addr ("unix:/path", "npipe:\\.\pipe\name", or a bare
// TCP address) and serves the feed until the process exits or Stop is
// called. Runs in the caller's goroutine; callers typically `go` it.
func (br *Bridge) Start(addr string) error {
	lis, err := listenBridge(addr)
	if err != nil {
		return err
	}

	br.mu.Lock()
	server := grpc.NewServer(
		grpc.Creds(insecure.NewCredentials()),
		grpc.ForceServerCodec(jsonCodec{}),
	)
	RegisterFeedServer(server, br)
	br.server = server
	br.mu.Unlock()

	log.Printf("eventbus: gRPC feed listening on %s", addr)
	return server.Serve(lis)
}

// Stop gracefully shuts the bridge's gRPC server down, if started.
func (br *Bridge) Stop() {
	br.mu.Lock()
	defer br.mu.Unlock()
	if br.server != nil {
		br.server.GracefulStop()
	}
}

// DefaultAddr picks a platform-appropriate transport address when the
// caller has not configured one explicitly.
func DefaultAddr() string {
	if runtime.GOOS == "windows" {
		return `npipe:\\.\pipe\scribecore-events`
	}
	return "unix:/tmp/scribecore-events.sock"
}

func listenBridge(addr string) (net.Listener, error) {
	switch {
	case strings.HasPrefix(addr, "unix:"):
		path := strings.TrimPrefix(addr, "unix:")
		if err := removeIfExists(path); err != nil {
			return nil, err
		}
		return net.Listen("unix", path)
	case strings.HasPrefix(addr, "npipe:"):
		return listenPipe(strings.TrimPrefix(addr, "npipe:"))
	default:
		return net.Listen("tcp", addr)
	}
}

func removeIfExists(path string) error {
	if path == "" {
		return errors.New("eventbus: empty socket path")
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
