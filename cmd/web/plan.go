package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"finitefield.org/storefront/internal/cache"
	"finitefield.org/storefront/internal/catalog"
	"finitefield.org/storefront/internal/commerce"
	"finitefield.org/storefront/internal/config"
	"finitefield.org/storefront/internal/sections"
	"finitefield.org/storefront/internal/viewport"
)

type planOutput struct {
	Mode     viewport.Mode    `json:"mode" yaml:"mode"`
	Sections []planSectionOut `json:"sections" yaml:"sections"`
}

type planSectionOut struct {
	Kind    string         `json:"kind" yaml:"kind"`
	Variant string         `json:"variant,omitempty" yaml:"variant,omitempty"`
	Title   string         `json:"title,omitempty" yaml:"title,omitempty"`
	Entries []planEntryOut `json:"entries" yaml:"entries"`
}

type planEntryOut struct {
	Key      string `json:"key" yaml:"key"`
	Title    string `json:"title" yaml:"title"`
	Variant  string `json:"variant" yaml:"variant"`
	Carousel string `json:"carousel" yaml:"carousel"`
	Images   int    `json:"images" yaml:"images"`
}

// newPlanCommand prints the homepage plan the server would assemble for a viewport width.
func newPlanCommand(envFile *string) *cobra.Command {
	var (
		width  int
		asJSON bool
		lang   string
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the assembled homepage plan for a viewport width",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(ctx, config.WithEnvFile(*envFile))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			services, err := commerce.New(cfg.Commerce, cache.NewMemory(), cfg.Cache.TTL, zap.NewNop())
			if err != nil {
				return err
			}
			if lang == "" {
				lang = cfg.Server.DefaultLocale
			}
			cols, err := services.Storefront.Collections(ctx, lang)
			if err != nil {
				return fmt.Errorf("load collections: %w", err)
			}
			home := catalog.SplitHomepage(cols)
			mode := viewport.NewClassifierFromHint(width, width > 0).Mode()
			plan := sections.Assemble(home.Featured, home.NewArrivals, home.Rest, mode)
			return writePlan(cmd.OutOrStdout(), plan, asJSON)
		},
	}
	cmd.Flags().IntVar(&width, "width", -1, "viewport width in CSS pixels (zero or less for unmeasured)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of YAML")
	cmd.Flags().StringVar(&lang, "lang", "", "catalog language (defaults to the configured locale)")
	return cmd
}

func writePlan(w io.Writer, plan sections.Plan, asJSON bool) error {
	out := planOutput{Mode: plan.Mode, Sections: []planSectionOut{}}
	for _, s := range plan.Sections {
		so := planSectionOut{Kind: string(s.Kind), Variant: string(s.Variant), Title: s.Title, Entries: []planEntryOut{}}
		for _, e := range s.Entries {
			eo := planEntryOut{Key: e.Key(), Variant: string(e.Variant), Carousel: string(e.Carousel)}
			switch {
			case e.Product != nil:
				eo.Title = e.Product.Title
				eo.Images = len(e.Product.DisplayImages())
			case e.Collection != nil:
				eo.Title = e.Collection.Title
				if e.Collection.HasImage() {
					eo.Images = 1
				}
			}
			so.Entries = append(so.Entries, eo)
		}
		out.Sections = append(out.Sections, so)
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}
