// Command stockctl queries the stock service over gRPC.
//
//	stockctl -addr localhost:50051 get 42
//	stockctl check 42:3 7:1
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	stockgrpc "github.com/dmehra2102/stock-reservation-engine/internal/inventory/infrastructure/grpc"
	"github.com/dmehra2102/stock-reservation-engine/pkg/logging"
)

func main() {
	addr := flag.String("addr", "localhost:50051", "stock service gRPC address")
	timeout := flag.Duration("timeout", 5*time.Second, "per-call timeout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: stockctl [flags] get <product-id> | check <id:qty>...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(*addr, *timeout, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "stockctl:", err)
		os.Exit(1)
	}
}

func run(addr string, timeout time.Duration, args []string) error {
	if len(args) < 2 {
		flag.Usage()
		return errors.New("missing command")
	}

	client, err := stockgrpc.NewClient(logging.New("error"), addr)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var out any
	switch args[0] {
	case "get":
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("product id %q: %w", args[1], err)
		}
		out, err = client.GetStock(ctx, id)
		if err != nil {
			return err
		}
	case "check":
		items, err := parseItems(args[1:])
		if err != nil {
			return err
		}
		out, err = client.CheckAvailability(ctx, items)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func parseItems(args []string) ([]stockgrpc.Item, error) {
	items := make([]stockgrpc.Item, 0, len(args))
	for _, a := range args {
		id, qty, ok := strings.Cut(a, ":")
		if !ok {
			return nil, fmt.Errorf("item %q: want id:qty", a)
		}
		pid, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("item %q: %w", a, err)
		}
		n, err := strconv.Atoi(qty)
		if err != nil {
			return nil, fmt.Errorf("item %q: %w", a, err)
		}
		items = append(items, stockgrpc.Item{ProductID: pid, Quantity: n})
	}
	return items, nil
}
