package seo

import (
	"encoding/json"
	"strings"

	"finitefield.org/storefront/internal/catalog"
)

// JSON marshals v to a compact JSON string. It returns an empty string on error.
func JSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// Organization returns a minimal Organization schema.
func Organization(name, url, logoURL string) map[string]any {
	m := map[string]any{
		"@context": "https://schema.org",
		"@type":    "Organization",
		"name":     name,
	}
	if url != "" {
		m["url"] = url
	}
	if logoURL != "" {
		m["logo"] = logoURL
	}
	return m
}

// WebSite returns a minimal WebSite schema with optional SearchAction.
func WebSite(name, url, searchActionURL string) map[string]any {
	m := map[string]any{
		"@context": "https://schema.org",
		"@type":    "WebSite",
		"name":     name,
	}
	if url != "" {
		m["url"] = url
	}
	if searchActionURL != "" {
		m["potentialAction"] = map[string]any{
			"@type":       "SearchAction",
			"target":      searchActionURL + "{search_term_string}",
			"query-input": "required name=search_term_string",
		}
	}
	return m
}

// Product returns a product schema payload with its first image and price offer.
func Product(p catalog.ProductSummary, baseURL string) map[string]any {
	m := map[string]any{
		"@context": "https://schema.org",
		"@type":    "Product",
		"name":     p.Title,
		"url":      absolute(baseURL, p.URL()),
	}
	if p.Description != "" {
		m["description"] = p.Description
	}
	if img, ok := p.FirstImage(); ok {
		m["image"] = img.URL
	}
	if p.Price.CurrencyCode != "" {
		m["offers"] = map[string]any{
			"@type":         "Offer",
			"price":         p.Price.Amount.StringFixed(2),
			"priceCurrency": p.Price.CurrencyCode,
		}
	}
	return m
}

// ItemList describes a collection as an ordered list of product links.
func ItemList(c catalog.ContentCollection, baseURL string) map[string]any {
	el := make([]map[string]any, 0, len(c.Products))
	for i, p := range c.Products {
		el = append(el, map[string]any{
			"@type":    "ListItem",
			"position": i + 1,
			"url":      absolute(baseURL, p.URL()),
			"name":     p.Title,
		})
	}
	return map[string]any{
		"@context":        "https://schema.org",
		"@type":           "ItemList",
		"name":            c.Title,
		"itemListElement": el,
	}
}

func absolute(base, path string) string {
	if base == "" {
		return path
	}
	return strings.TrimRight(base, "/") + path
}
