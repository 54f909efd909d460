package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/garment_backend/config"
	"bitbucket.org/mmdatafocus/garment_backend/models"
)

// Rebuilds every finished product's derived counters from the sewing and
// packing ledgers. Safe to run at any time: the recompute is idempotent.
// Use after a manual data fix or a suspected counter drift.
func main() {
	productID := flag.Int("product-id", 0, "Optional: rebuild only one finished product.")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	config.ConnectRedisWithRetry()

	ctx := context.Background()

	var productIds []int
	if *productID > 0 {
		productIds = []int{*productID}
	} else {
		if err := db.WithContext(ctx).Model(&models.FinishedProduct{}).
			Order("id").Pluck("id", &productIds).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to list finished products: %v\n", err)
			os.Exit(1)
		}
	}
	if len(productIds) == 0 {
		fmt.Println("no finished products to rebuild")
		return
	}

	var failed int
	for _, id := range productIds {
		product, err := models.RecomputeFinishedProduct(ctx, id)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "product %d: %v\n", id, err)
			continue
		}
		fmt.Printf("product %d: sewn=%d packed=%d available=%d\n",
			product.ID, product.TotalSewn, product.TotalPacked, product.AvailableQty)
	}
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d products failed\n", failed, len(productIds))
		os.Exit(1)
	}
	fmt.Printf("rebuilt %d products\n", len(productIds))
}
