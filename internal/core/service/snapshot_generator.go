package service

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rl1809/stock-ingest/internal/core/domain"
)

type stockRange struct {
	min, max int
}

type category struct {
	name     string
	products []string
	stock    stockRange
}

var DefaultStores = []string{"Store-001", "Store-002", "Store-003"}

var categories = []category{
	{"Fruits & Vegetables", []string{"Apples", "Bananas", "Carrots", "Tomatoes", "Spinach"}, stockRange{20, 100}},
	{"Dairy", []string{"Milk", "Cheese", "Yogurt", "Butter", "Cream"}, stockRange{30, 120}},
	{"Bakery", []string{"Bread", "Buns", "Croissant", "Muffin", "Cake"}, stockRange{10, 50}},
	{"Beverages", []string{"Coke", "Orange Juice", "Water", "Coffee", "Tea"}, stockRange{50, 200}},
	{"Snacks", []string{"Chips", "Chocolate", "Nuts", "Biscuits", "Candy"}, stockRange{40, 150}},
}

// SnapshotGenerator produces synthetic snapshots for load and demo runs.
type SnapshotGenerator struct {
	rng    *rand.Rand
	stores []string
}

func NewSnapshotGenerator(seed uint64, stores []string) *SnapshotGenerator {
	if len(stores) == 0 {
		stores = DefaultStores
	}
	return &SnapshotGenerator{
		rng:    rand.New(rand.NewPCG(seed, seed)),
		stores: stores,
	}
}

// Generate returns lines records all stamped with at. SKUs look like
// FRU-APP-123: category and product prefixes plus a three digit suffix.
func (g *SnapshotGenerator) Generate(lines int, at time.Time) domain.Snapshot {
	records := make([]domain.InventoryRecord, 0, lines)
	for i := 0; i < lines; i++ {
		c := categories[g.rng.IntN(len(categories))]
		product := c.products[g.rng.IntN(len(c.products))]

		records = append(records, domain.InventoryRecord{
			StoreID:     g.stores[g.rng.IntN(len(g.stores))],
			SKU:         fmt.Sprintf("%s-%s-%d", prefix(c.name), prefix(product), 100+g.rng.IntN(900)),
			Category:    c.name,
			Product:     product,
			Quantity:    c.stock.min + g.rng.IntN(c.stock.max-c.stock.min+1),
			GeneratedAt: at.Truncate(time.Second),
		})
	}
	return domain.Snapshot{Records: records}
}

func prefix(s string) string {
	if len(s) > 3 {
		s = s[:3]
	}
	return strings.ToUpper(s)
}
