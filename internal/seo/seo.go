package seo

type OpenGraph struct {
	Title       string
	Description string
	Image       string
	Type        string
}

type Twitter struct {
	Card  string
	Site  string
	Image string
}

type Meta struct {
	Title       string
	Description string
	Canonical   string
	OG          OpenGraph
	Twitter     Twitter
}

// ForShop builds the default page meta from the shop identity.
func ForShop(name, description, canonical string) Meta {
	return Meta{
		Title:       name,
		Description: description,
		Canonical:   canonical,
		OG:          OpenGraph{Title: name, Description: description, Type: "website"},
		Twitter:     Twitter{Card: "summary_large_image"},
	}
}
