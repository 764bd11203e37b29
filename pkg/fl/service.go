package fl

import (
	"context"

	"google.golang.org/grpc"
)

const (
	commandServiceName    = "candlefl.v1.Command"
	subscriberServiceName = "candlefl.v1.Subscriber"
	publisherServiceName  = "candlefl.v1.Publisher"

	TrainMethod     = "/" + commandServiceName + "/Train"
	SubscribeMethod = "/" + subscriberServiceName + "/Subscribe"
	PublishMethod   = "/" + publisherServiceName + "/Publish"
)

// CommandServer starts training runs.
type CommandServer interface {
	Train(ctx context.Context, req *TrainRequest) (*TrainResponse, error)
}

// SubscriberServer hands each worker a long-lived stream of requests.
type SubscriberServer interface {
	Subscribe(req *Empty, stream Subscriber_SubscribeServer) error
}

// PublisherServer receives worker replies.
type PublisherServer interface {
	Publish(ctx context.Context, msg *WorkerMessage) (*Empty, error)
}

type Subscriber_SubscribeServer interface {
	Send(msg *CoordinatorMessage) error
	grpc.ServerStream
}

type Subscriber_SubscribeClient interface {
	Recv() (*CoordinatorMessage, error)
	grpc.ClientStream
}

var CommandServiceDesc = grpc.ServiceDesc{
	ServiceName: commandServiceName,
	HandlerType: (*CommandServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Train", Handler: trainHandler},
	},
	Metadata: "candlefl/v1/candlefl.proto",
}

var SubscriberServiceDesc = grpc.ServiceDesc{
	ServiceName: subscriberServiceName,
	HandlerType: (*SubscriberServer)(nil),
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "candlefl/v1/candlefl.proto",
}

var PublisherServiceDesc = grpc.ServiceDesc{
	ServiceName: publisherServiceName,
	HandlerType: (*PublisherServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Publish", Handler: publishHandler},
	},
	Metadata: "candlefl/v1/candlefl.proto",
}

func RegisterCommandServer(s grpc.ServiceRegistrar, srv CommandServer) {
	s.RegisterService(&CommandServiceDesc, srv)
}

func RegisterSubscriberServer(s grpc.ServiceRegistrar, srv SubscriberServer) {
	s.RegisterService(&SubscriberServiceDesc, srv)
}

func RegisterPublisherServer(s grpc.ServiceRegistrar, srv PublisherServer) {
	s.RegisterService(&PublisherServiceDesc, srv)
}

func trainHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(TrainRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CommandServer).Train(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: TrainMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CommandServer).Train(ctx, req.(*TrainRequest))
	}

	return interceptor(ctx, in, info, handler)
}

func publishHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(WorkerMessage)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PublisherServer).Publish(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PublishMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PublisherServer).Publish(ctx, req.(*WorkerMessage))
	}

	return interceptor(ctx, in, info, handler)
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}

	return srv.(SubscriberServer).Subscribe(in, &subscribeServer{stream})
}

type subscribeServer struct {
	grpc.ServerStream
}

func (s *subscribeServer) Send(msg *CoordinatorMessage) error {
	return s.ServerStream.SendMsg(msg)
}

// CommandClient is the client side of the Command service.
type CommandClient interface {
	Train(ctx context.Context, in *TrainRequest, opts ...grpc.CallOption) (*TrainResponse, error)
}

type SubscriberClient interface {
	Subscribe(ctx context.Context, in *Empty, opts ...grpc.CallOption) (Subscriber_SubscribeClient, error)
}

type PublisherClient interface {
	Publish(ctx context.Context, in *WorkerMessage, opts ...grpc.CallOption) (*Empty, error)
}

// callOpts forces the protocol codec on every call so a plain connection
// works without extra dial options.
func callOpts(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

type commandClient struct {
	cc grpc.ClientConnInterface
}

func NewCommandClient(cc grpc.ClientConnInterface) CommandClient {
	return &commandClient{cc: cc}
}

func (c *commandClient) Train(ctx context.Context, in *TrainRequest, opts ...grpc.CallOption) (*TrainResponse, error) {
	out := new(TrainResponse)
	if err := c.cc.Invoke(ctx, TrainMethod, in, out, callOpts(opts)...); err != nil {
		return nil, err
	}

	return out, nil
}

type subscriberClient struct {
	cc grpc.ClientConnInterface
}

func NewSubscriberClient(cc grpc.ClientConnInterface) SubscriberClient {
	return &subscriberClient{cc: cc}
}

func (c *subscriberClient) Subscribe(ctx context.Context, in *Empty, opts ...grpc.CallOption) (Subscriber_SubscribeClient, error) {
	stream, err := c.cc.NewStream(ctx, &SubscriberServiceDesc.Streams[0], SubscribeMethod, callOpts(opts)...)
	if err != nil {
		return nil, err
	}
	x := &subscribeClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}

	return x, nil
}

type subscribeClient struct {
	grpc.ClientStream
}

func (x *subscribeClient) Recv() (*CoordinatorMessage, error) {
	m := new(CoordinatorMessage)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}

	return m, nil
}

type publisherClient struct {
	cc grpc.ClientConnInterface
}

func NewPublisherClient(cc grpc.ClientConnInterface) PublisherClient {
	return &publisherClient{cc: cc}
}

func (c *publisherClient) Publish(ctx context.Context, in *WorkerMessage, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.cc.Invoke(ctx, PublishMethod, in, out, callOpts(opts)...); err != nil {
		return nil, err
	}

	return out, nil
}
