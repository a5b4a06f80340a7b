package handlers

import (
	"strings"
	"time"

	"finitefield.org/storefront/internal/catalog"
	"finitefield.org/storefront/internal/format"
	"finitefield.org/storefront/internal/nav"
)

// AccountData is the account area view model.
type AccountData struct {
	Heading   string
	Section   string
	Nav       []nav.RenderedItem
	Customer  *catalog.Customer
	Orders    []OrderView
	Addresses []catalog.Address
}

// OrderView is a formatted order row.
type OrderView struct {
	Number string
	Date   string
	Status string
	Total  string
}

// BuildAccountData renders the account subpage at path for the loaded customer.
func BuildAccountData(c *catalog.Customer, path, lang string) AccountData {
	ad := AccountData{
		Heading:  c.Heading(),
		Section:  accountSection(path),
		Nav:      nav.AccountNav(path),
		Customer: c,
	}
	if c == nil {
		return ad
	}
	ad.Addresses = c.Addresses
	for _, o := range c.Orders {
		ad.Orders = append(ad.Orders, OrderView{
			Number: o.Number,
			Date:   orderDate(o.ProcessedAt, lang),
			Status: strings.ReplaceAll(strings.ToLower(o.Status), "_", " "),
			Total:  format.Money(o.Total, lang),
		})
	}
	return ad
}

func accountSection(path string) string {
	rest := strings.Trim(strings.TrimPrefix(path, "/account"), "/")
	section, _, _ := strings.Cut(rest, "/")
	switch section {
	case "profile", "addresses":
		return section
	}
	return "orders"
}

func orderDate(raw, lang string) string {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	return format.Date(t, lang)
}
