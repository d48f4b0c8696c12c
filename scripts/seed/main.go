package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/app"
	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/sales"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

type seedLine struct {
	product  string
	size     string
	quantity int64
	cost     string
}

var deliveries = []struct {
	supplier string
	invoice  string
	lines    []seedLine
}{
	{supplier: "Acme Textiles", invoice: "ACME-0001", lines: []seedLine{
		{"tee-basic", "S", 20, "6.50"},
		{"tee-basic", "M", 30, "6.50"},
		{"tee-basic", "L", 20, "6.75"},
	}},
	{supplier: "Northwind Denim", invoice: "NW-1182", lines: []seedLine{
		{"jeans-slim", "32", 12, "21.00"},
		{"jeans-slim", "34", 12, "21.00"},
	}},
	{supplier: "Acme Textiles", invoice: "ACME-0002", lines: []seedLine{
		{"tee-basic", "M", 25, "7.10"},
	}},
}

func main() {
	ctx := shared.ContextWithActor(context.Background(), "seed")

	if err := app.LoadDotEnv(); err != nil {
		log.Fatalf("load env file: %v", err)
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	backend, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer backend.Close()

	services, err := app.NewServices(ctx, cfg, backend, nil, nil, logger)
	if err != nil {
		log.Fatalf("init services: %v", err)
	}

	fmt.Println("→ Seeding owner capital...")
	if _, err := services.Ledger.AddAsset(ctx, ledger.AssetInput{
		Amount:      decimal.NewFromInt(5000),
		Target:      "Cash",
		Description: "Opening float",
	}); err != nil {
		log.Fatalf("seed capital: %v", err)
	}

	fmt.Println("→ Seeding stock entries...")
	for _, d := range deliveries {
		input := inventory.StockEntryInput{Supplier: d.supplier, InvoiceNumber: d.invoice, Location: "Back room"}
		for _, l := range d.lines {
			input.Lines = append(input.Lines, inventory.StockEntryLineInput{
				ProductID: l.product,
				Size:      l.size,
				Quantity:  l.quantity,
				UnitCost:  decimal.RequireFromString(l.cost),
			})
		}
		if _, err := services.Inventory.Receive(ctx, input, ""); err != nil {
			log.Fatalf("seed stock entry %s: %v", d.invoice, err)
		}
	}

	fmt.Println("→ Seeding sales...")
	sale, err := services.Sales.CreateSale(ctx, sales.SaleInput{
		PaymentMethod: sales.PaymentCash,
		Items: []sales.LineInput{
			{ProductID: "tee-basic", Size: "M", Quantity: 35, SellingPrice: decimal.RequireFromString("14.99")},
			{ProductID: "jeans-slim", Size: "32", Quantity: 2, SellingPrice: decimal.RequireFromString("49.00")},
		},
	})
	if err != nil {
		log.Fatalf("seed sale: %v", err)
	}
	if _, err := services.Sales.MarkCompleted(ctx, sale.ID); err != nil {
		log.Fatalf("complete sale: %v", err)
	}
	if _, err := services.Sales.CreateSale(ctx, sales.SaleInput{
		PaymentMethod: sales.PaymentCard,
		CustomerName:  "Walk-in",
		Discount:      decimal.NewFromInt(5),
		Items: []sales.LineInput{
			{ProductID: "tee-basic", Size: "L", Quantity: 3, SellingPrice: decimal.RequireFromString("15.99")},
		},
	}); err != nil {
		log.Fatalf("seed discounted sale: %v", err)
	}

	fmt.Println("→ Seeding return...")
	if _, err := services.Sales.CreateReturn(ctx, sales.ReturnInput{
		TransactionID: sale.ID,
		Items:         []sales.ReturnLineInput{{ProductID: "jeans-slim", Size: "32", Quantity: 1, Reason: "Wrong fit"}},
	}); err != nil {
		log.Fatalf("seed return: %v", err)
	}

	fmt.Println("→ Seeding expense...")
	if _, err := services.Ledger.RecordExpense(ctx, ledger.ExpenseInput{
		Amount:   decimal.NewFromInt(120),
		Category: "Utilities",
		PaidFrom: "Cash",
	}); err != nil {
		log.Fatalf("seed expense: %v", err)
	}

	drift, err := services.Ledger.Reconcile(ctx)
	if err != nil {
		log.Fatalf("reconcile: %v", err)
	}
	fmt.Printf("✓ Seed complete (%d ledger discrepancies)\n", len(drift))
}
