package main

import (
	"fmt"
	"html/template"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"finitefield.org/storefront/internal/i18n"
)

// renderer owns the parsed templates. In dev mode templates are reparsed on each render.
type renderer struct {
	dir   string
	dev   bool
	funcs template.FuncMap

	cached *template.Template
}

func newRenderer(dir string, dev bool, bundle *i18n.Bundle) (*renderer, error) {
	v := &renderer{
		dir: dir,
		dev: dev,
		funcs: template.FuncMap{
			"now": time.Now,
			"t":   bundle.T,
			"tf":  bundle.Tf,
			"add": func(a, b int) int { return a + b },
			"label": func(lang, key, fallback string) string {
				if key == "" {
					return fallback
				}
				return bundle.T(lang, key)
			},
		},
	}
	// parse once up front so broken templates fail at startup, dev mode included
	tc, err := v.parse()
	if err != nil {
		return nil, err
	}
	v.cached = tc
	return v, nil
}

func (v *renderer) parse() (*template.Template, error) {
	// ParseGlob doesn't support **, so walk the tree.
	var files []string
	if err := filepath.WalkDir(v.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".tmpl") {
			files = append(files, path)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no templates found under %s", v.dir)
	}
	return template.New("_root").Funcs(v.funcs).ParseFiles(files...)
}

func (v *renderer) templates() (*template.Template, error) {
	if v.dev {
		return v.parse()
	}
	return v.cached, nil
}
