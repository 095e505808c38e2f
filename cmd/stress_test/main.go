package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/port"
)

const (
	productID     = int64(9001)
	initialStock  = 20
	totalBuyers   = 50
	unitsPerBuyer = 1
	queueSize     = 100
)

type productStore interface {
	port.ProductRepository
	port.ProductSeeder
}

// Races totalBuyers settlements for the same product. Set MYSQL_DSN to run
// against MySQL instead of the in-memory store.
func main() {
	ctx := context.Background()
	logger := zap.NewNop()

	store, err := openStore(ctx)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	if err := store.UpsertProduct(ctx, domain.Product{
		ID:        productID,
		Name:      "Stress Item",
		UnitPrice: 100000,
		Stock:     initialStock,
	}); err != nil {
		log.Fatalf("failed to set stock: %v", err)
	}

	sessions := storage.NewMemorySessionStore()
	validator := service.NewInventoryValidator(store, logger, nil)
	carts := service.NewCartService(store, sessions, nil, validator, logger, nil)
	checkout := service.NewCheckoutService(store, sessions, nil, validator,
		domain.ShippingPolicy{FreeShippingThreshold: 500000, FlatShippingFee: 15000}, queueSize, logger, nil)
	defer checkout.Close()

	// Drain the order queue in background
	go func() {
		for range checkout.GetOrderQueue() {
		}
	}()

	// Every buyer fills a cart while stock still looks plentiful
	customer := domain.CustomerInfo{Name: "Stress Buyer", Address: "Jl. Uji 1", Phone: "0800000000"}
	buyers := make([]domain.Session, totalBuyers)
	for i := range buyers {
		buyers[i] = domain.Session{VisitorID: fmt.Sprintf("buyer-%d", i)}
		for j := 0; j < unitsPerBuyer; j++ {
			if _, err := carts.Add(ctx, buyers[i], productID); err != nil {
				log.Fatalf("failed to fill cart: %v", err)
			}
		}
	}

	// Counters
	var successCount, conflictCount, emptyCount, otherCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for _, sess := range buyers {
		wg.Add(1)
		go func(sess domain.Session) {
			defer wg.Done()

			_, err := checkout.Settle(ctx, sess, customer)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrConcurrentStockConflict):
				conflictCount.Add(1)
			case errors.Is(err, domain.ErrEmptyCart):
				emptyCount.Add(1)
			default:
				otherCount.Add(1)
				log.Printf("%s: unexpected error: %v", sess.VisitorID, err)
			}
		}(sess)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	rejected := conflictCount.Load() + emptyCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Buyers:     %d\n", totalBuyers)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Conflicts:        %d\n", conflictCount.Load())
	fmt.Printf("Sold out:         %d\n", emptyCount.Load())
	fmt.Printf("Other errors:     %d\n", otherCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	expected := int32(initialStock / unitsPerBuyer)
	if success == expected && rejected == int32(totalBuyers)-expected {
		fmt.Printf("PASS: exactly %d settlements succeeded\n", expected)
	} else {
		fmt.Printf("FAIL: expected %d success/%d rejected, got %d/%d\n",
			expected, int32(totalBuyers)-expected, success, rejected)
	}

	// Verify final stock
	p, err := store.GetProduct(ctx, productID)
	if err != nil {
		log.Fatalf("failed to read final stock: %v", err)
	}
	fmt.Printf("Final Stock:      %d\n", p.Stock)

	if p.Stock == 0 {
		fmt.Println("PASS: stock depleted to 0, never negative")
	} else {
		fmt.Printf("FAIL: expected stock 0, got %d\n", p.Stock)
	}
}

func openStore(ctx context.Context) (productStore, error) {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		return storage.NewMemoryProductStore(), nil
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	adapter := storage.NewMySQLAdapter(db)
	if err := adapter.Migrate(ctx); err != nil {
		return nil, err
	}
	return adapter, nil
}
