package handlers

import (
	"finitefield.org/storefront/internal/catalog"
	"finitefield.org/storefront/internal/format"
	"finitefield.org/storefront/internal/nav"
)

// FooterData is rendered once the footer menu settles.
type FooterData struct {
	Shop     catalog.Shop
	Menu     []nav.RenderedItem
	ImageURL string
}

// MenuData backs the support and mobile menus.
type MenuData struct {
	Items []nav.RenderedItem
}

// CartData is the cart aside.
type CartData struct {
	Count       int
	Subtotal    string
	CheckoutURL string
	Lines       []CartLineView
}

// CartLineView is a single cart row.
type CartLineView struct {
	Title    string
	Variant  string
	Href     string
	Quantity int
	Total    string
	Image    *catalog.ImageRef
}

// RecommendedData is the recommended products rail.
type RecommendedData struct {
	Cards []CardView
}

// BuildFooterData renders the footer menu relative to the shop's own domain.
func BuildFooterData(menu *catalog.Menu, shop catalog.Shop, path, imageURL string) FooterData {
	return FooterData{
		Shop:     shop,
		Menu:     nav.FromMenu(menu, path, shop.PrimaryDomainURL),
		ImageURL: imageURL,
	}
}

// BuildMenuData renders any secondary menu.
func BuildMenuData(menu *catalog.Menu, shop catalog.Shop, path string) MenuData {
	return MenuData{Items: nav.FromMenu(menu, path, shop.PrimaryDomainURL)}
}

// BuildCartData formats a cart snapshot. A nil cart renders as empty.
func BuildCartData(cart *catalog.Cart, lang string) CartData {
	if cart == nil {
		return CartData{}
	}
	cd := CartData{
		Count:       cart.TotalQuantity,
		Subtotal:    format.Money(cart.Subtotal, lang),
		CheckoutURL: cart.CheckoutURL,
	}
	for _, l := range cart.Lines {
		line := CartLineView{
			Title:    l.Product.Title,
			Variant:  l.Title,
			Href:     l.Product.URL(),
			Quantity: l.Quantity,
			Total:    format.Money(l.Cost, lang),
		}
		if line.Variant == line.Title {
			line.Variant = ""
		}
		if img, ok := l.Product.FirstImage(); ok {
			line.Image = &img
		}
		cd.Lines = append(cd.Lines, line)
	}
	return cd
}

// BuildRecommended renders the recommended rail with hover carousels.
func BuildRecommended(products []catalog.ProductSummary, lang string) RecommendedData {
	rd := RecommendedData{}
	for _, p := range products {
		rd.Cards = append(rd.Cards, productCard(p, CardView{Key: p.ID, Variant: "standard", Carousel: "hover"}, lang))
	}
	return rd
}
