package network

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"

	"mcn/logx"
	"mcn/validator"
)

// GRPCServer exposes a validator over gRPC. The service descriptor is
// declared by hand: the wire messages are the canonical JSON protocol
// encoding, so there is no generated protobuf layer.
type GRPCServer struct {
	validator *validator.Validator
	server    *grpc.Server
}

func NewGRPCServer(v *validator.Validator) *GRPCServer {
	s := &GRPCServer{
		validator: v,
		server:    grpc.NewServer(grpc.ForceServerCodec(jsonCodec{})),
	}
	s.server.RegisterService(&validatorServiceDesc, s)
	return s
}

// Serve listens on addr and blocks serving requests.
func (s *GRPCServer) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	logx.Info("NETWORK", fmt.Sprintf("validator %s serving on %s", s.validator.Address(), addr))
	return s.server.Serve(lis)
}

func (s *GRPCServer) Stop() {
	s.server.GracefulStop()
}

var validatorServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*interface{})(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ProposeBlock", Handler: proposeBlockHandler},
		{MethodName: "HandleBlockCertificate", Handler: handleCertificateHandler},
		{MethodName: "CrossChainRequest", Handler: crossChainHandler},
		{MethodName: "RequestTimeout", Handler: requestTimeoutHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mcn/network",
}

func proposeBlockHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ProposeBlockRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(*GRPCServer)
	vote, err := s.validator.HandleProposal(ctx, in.Proposal)
	if err != nil {
		return nil, err
	}
	return &VoteResponse{Vote: vote}, nil
}

func handleCertificateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(HandleCertificateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(*GRPCServer)
	vote, err := s.validator.HandleCertificate(ctx, in.Cert, in.Block)
	if err != nil {
		return nil, err
	}
	return &VoteResponse{Vote: vote}, nil
}

func requestTimeoutHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(TimeoutRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(*GRPCServer)
	vote, err := s.validator.HandleTimeoutRequest(ctx, in.ChainID)
	if err != nil {
		return nil, err
	}
	return &VoteResponse{Vote: vote}, nil
}

func crossChainHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CrossChainRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(*GRPCServer)
	ack, err := s.validator.HandleCrossChain(ctx, in.Recipient, in.Origin, in.Bundles)
	if err != nil {
		return nil, err
	}
	return &CrossChainResponse{AckHeight: ack}, nil
}
