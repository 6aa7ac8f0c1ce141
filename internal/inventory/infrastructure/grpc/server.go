package grpc

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/dmehra2102/stock-reservation-engine/internal/inventory/application"
	"github.com/dmehra2102/stock-reservation-engine/internal/inventory/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Server is the read-only stock view offered to other services.
type Server struct {
	log    *slog.Logger
	ledger *application.Ledger
}

func NewServer(log *slog.Logger, ledger *application.Ledger) *Server {
	return &Server{log: log, ledger: ledger}
}

func (s *Server) GetStock(ctx context.Context, req *GetStockRequest) (*StockResponse, error) {
	if req.ProductID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "product_id must be positive")
	}
	p, err := s.ledger.Get(ctx, req.ProductID)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return &StockResponse{
		ProductID:        p.ID,
		Name:             p.Name,
		StockLevel:       p.StockLevel,
		ReservedStock:    p.ReservedStock,
		PriceCents:       p.PriceCents,
		ReorderThreshold: p.ReorderThreshold,
		LowStock:         p.IsLowStock(),
	}, nil
}

// CheckAvailability answers whether every item could be reserved right now. It reserves
// nothing.
func (s *Server) CheckAvailability(ctx context.Context, req *CheckAvailabilityRequest) (*CheckAvailabilityResponse, error) {
	if len(req.Items) == 0 {
		return nil, status.Error(codes.InvalidArgument, "items must not be empty")
	}
	resp := &CheckAvailabilityResponse{Available: true, Items: make([]ItemAvailability, 0, len(req.Items))}
	for _, item := range req.Items {
		if item.ProductID <= 0 || item.Quantity <= 0 {
			return nil, status.Errorf(codes.InvalidArgument, "invalid item for product %d", item.ProductID)
		}
		avail, ok, err := s.ledger.Available(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return nil, s.toStatus(err)
		}
		resp.Available = resp.Available && ok
		resp.Items = append(resp.Items, ItemAvailability{ProductID: item.ProductID, Requested: item.Quantity, Available: avail, OK: ok})
	}
	return resp, nil
}

func (s *Server) toStatus(err error) error {
	var unknown *domain.UnknownProductError
	if errors.As(err, &unknown) {
		return status.Error(codes.NotFound, err.Error())
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	s.log.Error("stock rpc failed", "err", err)
	return status.Error(codes.Internal, "internal error")
}

// NewGRPCServer returns a grpc.Server with the stock service registered.
func NewGRPCServer(log *slog.Logger, srv *Server) *grpc.Server {
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(traceInterceptor, logInterceptor(log)))
	RegisterStockServiceServer(gs, srv)
	return gs
}

func Run(addr string, gs *grpc.Server) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		_ = gs.Serve(lis)
	}()
	return nil
}

type metadataCarrier metadata.MD

func (c metadataCarrier) Get(key string) string {
	if v := metadata.MD(c).Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (c metadataCarrier) Set(key, val string) { metadata.MD(c).Set(key, val) }

func (c metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

var _ propagation.TextMapCarrier = metadataCarrier{}

func traceInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		ctx = otel.GetTextMapPropagator().Extract(ctx, metadataCarrier(md))
	}
	ctx, span := otel.Tracer("stock-grpc").Start(ctx, info.FullMethod)
	defer span.End()
	return handler(ctx, req)
}

func logInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		log.Debug("grpc call", "method", info.FullMethod, "code", status.Code(err).String())
		return resp, err
	}
}
