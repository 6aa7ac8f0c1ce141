package grpc

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

type Client struct {
	log  *slog.Logger
	conn *grpc.ClientConn
}

// NewClient dials addr lazily. Extra options are appended, which lets tests swap in a
// bufconn dialer.
func NewClient(log *slog.Logger, addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{log: log, conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) GetStock(ctx context.Context, productID int64) (*StockResponse, error) {
	out := new(StockResponse)
	if err := c.invoke(ctx, "GetStock", &GetStockRequest{ProductID: productID}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CheckAvailability(ctx context.Context, items []Item) (*CheckAvailabilityResponse, error) {
	out := new(CheckAvailabilityResponse)
	if err := c.invoke(ctx, "CheckAvailability", &CheckAvailabilityRequest{Items: items}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	md := metadata.MD{}
	otel.GetTextMapPropagator().Inject(ctx, metadataCarrier(md))
	ctx = metadata.NewOutgoingContext(ctx, md)
	return c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out)
}
