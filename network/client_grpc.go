package network

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"mcn/block"
	"mcn/consensus"
	"mcn/errors"
	"mcn/types"
)

const requestTimeout = 5 * time.Second

// GRPCClient implements the validator transport. Connections are cached per
// endpoint; transport failures surface as retriable errors for the
// synchronizer's round-bounded retry.
type GRPCClient struct {
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
	opts  []grpc.DialOption
}

func NewGRPCClient() *GRPCClient {
	return &GRPCClient{
		conns: make(map[string]*grpc.ClientConn),
		opts: []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
		},
	}
}

func (c *GRPCClient) conn(endpoint string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[endpoint]; ok {
		return conn, nil
	}
	conn, err := grpc.NewClient(endpoint, c.opts...)
	if err != nil {
		return nil, err
	}
	c.conns[endpoint] = conn
	return conn, nil
}

func (c *GRPCClient) invoke(ctx context.Context, endpoint, method string, in, out interface{}) error {
	conn, err := c.conn(endpoint)
	if err != nil {
		return errors.NewError(errors.ErrCodeTransport, err.Error())
	}
	rpcCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	if err := conn.Invoke(rpcCtx, fmt.Sprintf("/%s/%s", serviceName, method), in, out); err != nil {
		return errors.NewError(errors.ErrCodeTransport, err.Error())
	}
	return nil
}

func (c *GRPCClient) ProposeBlock(ctx context.Context, endpoint string, p *block.Proposal) (*consensus.Vote, error) {
	resp := new(VoteResponse)
	if err := c.invoke(ctx, endpoint, "ProposeBlock", &ProposeBlockRequest{Proposal: p}, resp); err != nil {
		return nil, err
	}
	if resp.Vote == nil {
		return nil, errors.NewError(errors.ErrCodeTransport, "validator returned no vote")
	}
	return resp.Vote, nil
}

func (c *GRPCClient) HandleBlockCertificate(ctx context.Context, endpoint string, cert *consensus.Cert, b *block.Block) (*consensus.Vote, error) {
	resp := new(VoteResponse)
	if err := c.invoke(ctx, endpoint, "HandleBlockCertificate", &HandleCertificateRequest{Cert: cert, Block: b}, resp); err != nil {
		return nil, err
	}
	return resp.Vote, nil
}

func (c *GRPCClient) CrossChainRequest(ctx context.Context, endpoint string, recipient, origin types.ChainID, bundles []types.MessageBundle) (uint64, error) {
	resp := new(CrossChainResponse)
	req := &CrossChainRequest{Recipient: recipient, Origin: origin, Bundles: bundles}
	if err := c.invoke(ctx, endpoint, "CrossChainRequest", req, resp); err != nil {
		return 0, err
	}
	return resp.AckHeight, nil
}

func (c *GRPCClient) RequestTimeout(ctx context.Context, endpoint string, chainID types.ChainID) (*consensus.Vote, error) {
	resp := new(VoteResponse)
	if err := c.invoke(ctx, endpoint, "RequestTimeout", &TimeoutRequest{ChainID: chainID}, resp); err != nil {
		return nil, err
	}
	if resp.Vote == nil {
		return nil, errors.NewError(errors.ErrCodeTransport, "validator returned no timeout vote")
	}
	return resp.Vote, nil
}

// Close tears down every cached connection.
func (c *GRPCClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for endpoint, conn := range c.conns {
		conn.Close()
		delete(c.conns, endpoint)
	}
}
