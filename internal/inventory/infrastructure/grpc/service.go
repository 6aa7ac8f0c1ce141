package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "stock.v1.StockService"

type GetStockRequest struct {
	ProductID int64 `json:"product_id"`
}

type StockResponse struct {
	ProductID        int64  `json:"product_id"`
	Name             string `json:"name"`
	StockLevel       int    `json:"stock_level"`
	ReservedStock    int    `json:"reserved_stock"`
	PriceCents       int64  `json:"price_cents"`
	ReorderThreshold int    `json:"reorder_threshold"`
	LowStock         bool   `json:"low_stock"`
}

type Item struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type CheckAvailabilityRequest struct {
	Items []Item `json:"items"`
}

type ItemAvailability struct {
	ProductID int64 `json:"product_id"`
	Requested int   `json:"requested"`
	Available int   `json:"available"`
	OK        bool  `json:"ok"`
}

type CheckAvailabilityResponse struct {
	Available bool               `json:"available"`
	Items     []ItemAvailability `json:"items"`
}

type StockServiceServer interface {
	GetStock(context.Context, *GetStockRequest) (*StockResponse, error)
	CheckAvailability(context.Context, *CheckAvailabilityRequest) (*CheckAvailabilityResponse, error)
}

func RegisterStockServiceServer(s grpc.ServiceRegistrar, srv StockServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StockServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStock", Handler: getStockHandler},
		{MethodName: "CheckAvailability", Handler: checkAvailabilityHandler},
	},
	Metadata: "stock/v1/stock.proto",
}

func getStockHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetStockRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StockServiceServer).GetStock(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetStock"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(StockServiceServer).GetStock(ctx, req.(*GetStockRequest))
	})
}

func checkAvailabilityHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CheckAvailabilityRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StockServiceServer).CheckAvailability(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/CheckAvailability"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(StockServiceServer).CheckAvailability(ctx, req.(*CheckAvailabilityRequest))
	})
}
