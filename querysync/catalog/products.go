package catalog

import (
	"github.com/brianvoe/gofakeit/v7"

	"github.com/arthur-debert/querysync/types"
)

// ProductCategories are the categories generated products are drawn from
var ProductCategories = []string{
	"electronics",
	"clothing",
	"books",
	"home",
	"sports",
	"beauty",
	"automotive",
	"toys",
}

var productRules = map[string]string{
	"category": `value == "all" || item.category == value`,
	"inStock":  `item.inStock == value`,
	"priceMin": `item.price >= value`,
	"priceMax": `item.price <= value`,
	"search":   `lower(item.name) contains lower(string(value)) || (item.description != nil && lower(item.description) contains lower(string(value)))`,
}

var productSortKeys = []string{"name", "price", "category", "inStock"}

// generateProducts creates count products. The same seed always yields the
// same products.
func generateProducts(f *gofakeit.Faker, count int) []types.Record {
	records := make([]types.Record, count)
	for i := range records {
		records[i] = types.Record{
			"id":          float64(i + 1),
			"name":        f.ProductName(),
			"category":    f.RandomString(ProductCategories),
			"price":       float64(f.Number(10, 2000)),
			"inStock":     f.Float64() < 0.8,
			"description": f.ProductDescription(),
		}
	}
	return records
}
