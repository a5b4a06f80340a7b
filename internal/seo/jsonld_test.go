package seo

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finitefield.org/storefront/internal/catalog"
)

func TestProductSchema(t *testing.T) {
	p := catalog.ProductSummary{
		Title:  "Maple Seal",
		Handle: "maple-seal",
		Price:  catalog.Money{Amount: decimal.NewFromInt(4200), CurrencyCode: "JPY"},
		Images: []catalog.ImageRef{{ID: "i1", URL: "https://cdn.test/maple.jpg"}},
	}
	m := Product(p, "https://shop.example.com/")
	assert.Equal(t, "https://shop.example.com/products/maple-seal", m["url"])
	assert.Equal(t, "https://cdn.test/maple.jpg", m["image"])
	offers, ok := m["offers"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "4200.00", offers["price"])
	assert.NotContains(t, m, "description")
}

func TestItemListSchema(t *testing.T) {
	c := catalog.ContentCollection{Title: "Rings", Products: []catalog.ProductSummary{
		{Title: "A", Handle: "a"}, {Title: "B", Handle: "b"},
	}}
	out := JSON(ItemList(c, ""))
	assert.Contains(t, out, `"position":2`)
	assert.Contains(t, out, `"url":"/products/b"`)
	assert.Contains(t, out, `"@type":"ItemList"`)
}
