package main

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"finitefield.org/storefront/internal/catalog"
	"finitefield.org/storefront/internal/commerce"
	"finitefield.org/storefront/internal/deferred"
	"finitefield.org/storefront/internal/handlers"
	mw "finitefield.org/storefront/internal/middleware"
	"finitefield.org/storefront/internal/observability"
)

// Deferred layout slots, in the order the layout declares them.
const (
	slotFooter      = "footer"
	slotSupportMenu = "supportMenu"
	slotMobileMenu  = "mobileMenu"
	slotCart        = "cart"
	slotRecommended = "recommended"
)

const liveHomePath = "/live/home"

// slotView is handed to a slot_<name> template once the slot settles.
type slotView struct {
	Name   string
	Lang   string
	Failed bool
	Value  any
}

// newPage fills the request scoped layout fields.
func (a *app) newPage(r *http.Request, header catalog.Header) handlers.PageData {
	lang := mw.Lang(r)
	pd := handlers.NewPageData(lang, r.URL.Path, header)
	pd.Analytics = a.analytics
	pd.LoggedIn = mw.LoggedIn(r)
	pd.CSRFToken = mw.CSRFToken(r)
	pd.Viewport = mw.Classifier(r).Mode()
	pd.Live = handlers.LiveData{Enabled: a.cfg.Live.Enabled, URL: liveHomePath}
	return pd
}

// declareSlots starts the layout's deferred queries. Missing menus and carts resolve to
// nil so the templates draw their empty state.
func (a *app) declareSlots(res *deferred.Resolver, r *http.Request, pd handlers.PageData, withRecommended bool) error {
	sf := a.services.Storefront
	cc := a.cfg.Commerce
	lang := pd.Lang
	cartID := mw.GetSession(r).CartID

	menu := func(handle string) func(ctx context.Context) (*catalog.Menu, error) {
		return func(ctx context.Context) (*catalog.Menu, error) {
			m, err := sf.Menu(ctx, handle, lang)
			if errors.Is(err, commerce.ErrNotFound) {
				return nil, nil
			}
			return m, err
		}
	}
	footer, support, mobile := menu(cc.FooterMenu), menu(cc.SupportMenu), menu(cc.MobileMenu)

	if _, err := res.Defer(slotFooter, func(ctx context.Context) (any, error) {
		m, err := footer(ctx)
		if err != nil {
			return nil, err
		}
		return handlers.BuildFooterData(m, pd.Shop, pd.Path, cc.FooterImageURL), nil
	}); err != nil {
		return err
	}
	if _, err := res.Defer(slotSupportMenu, func(ctx context.Context) (any, error) {
		m, err := support(ctx)
		if err != nil {
			return nil, err
		}
		return handlers.BuildMenuData(m, pd.Shop, pd.Path), nil
	}, slotFooter); err != nil {
		return err
	}
	if pd.MobileMenu {
		if _, err := res.Defer(slotMobileMenu, func(ctx context.Context) (any, error) {
			m, err := mobile(ctx)
			if err != nil {
				return nil, err
			}
			return handlers.BuildMenuData(m, pd.Shop, pd.Path), nil
		}, slotSupportMenu); err != nil {
			return err
		}
	}
	if _, err := res.Defer(slotCart, func(ctx context.Context) (any, error) {
		if strings.TrimSpace(cartID) == "" {
			return handlers.BuildCartData(nil, lang), nil
		}
		cart, err := sf.Cart(ctx, cartID)
		if errors.Is(err, commerce.ErrNotFound) {
			return handlers.BuildCartData(nil, lang), nil
		}
		if err != nil {
			return nil, err
		}
		return handlers.BuildCartData(cart, lang), nil
	}); err != nil {
		return err
	}
	if withRecommended {
		if _, err := res.Defer(slotRecommended, func(ctx context.Context) (any, error) {
			products, err := sf.Recommended(ctx, lang)
			if err != nil {
				return nil, err
			}
			return handlers.BuildRecommended(products, lang), nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// streamPage writes the layout shell and page content right away, then streams each
// deferred slot as a <template data-slot> block once it and its dependencies settle.
func (a *app) streamPage(w http.ResponseWriter, r *http.Request, status int, pd handlers.PageData, content string, withRecommended bool) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	t, err := a.views.templates()
	if err != nil {
		logger.Error("template parse error", zap.Error(err))
		http.Error(w, "template parse error", http.StatusInternalServerError)
		return
	}

	res := deferred.NewResolver(ctx, logger)
	defer res.Close()
	if err := a.declareSlots(res, r, pd, withRecommended); err != nil {
		logger.Error("declare slots", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// the shell is rendered in full before anything is written so template errors
	// still produce a clean 500
	var shell bytes.Buffer
	if err := t.ExecuteTemplate(&shell, "layout_open", pd); err != nil {
		logger.Error("render layout", zap.Error(err))
		http.Error(w, "template exec error", http.StatusInternalServerError)
		return
	}
	if err := t.ExecuteTemplate(&shell, content, pd); err != nil {
		logger.Error("render page", zap.String("template", content), zap.Error(err))
		http.Error(w, "template exec error", http.StatusInternalServerError)
		return
	}
	if err := t.ExecuteTemplate(&shell, "layout_footer", pd); err != nil {
		logger.Error("render layout footer", zap.Error(err))
		http.Error(w, "template exec error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	rc := http.NewResponseController(w)
	var writeMu sync.Mutex
	write := func(b []byte) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if _, err := w.Write(b); err != nil {
			return
		}
		_ = rc.Flush()
	}
	write(shell.Bytes())

	// a slot is written only after the blocks of its dependencies
	names := res.Names()
	written := make(map[string]chan struct{}, len(names))
	for _, name := range names {
		written[name] = make(chan struct{})
	}

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			defer close(written[name])
			var buf bytes.Buffer
			err := res.Render(ctx, name, func(s deferred.Settled) {
				o := s[name]
				view := slotView{Name: name, Lang: pd.Lang, Failed: o.State == deferred.Failed, Value: o.Value}
				buf.WriteString(`<template data-slot="` + template.HTMLEscapeString(name) + `">`)
				if err := t.ExecuteTemplate(&buf, "slot_"+name, view); err != nil {
					logger.Warn("render slot", zap.String("slot", name), zap.Error(err))
				}
				buf.WriteString("</template>\n")
			})
			if err != nil {
				// client went away or the request timed out
				return
			}
			if slot, ok := res.Slot(name); ok {
				for _, dep := range slot.DependsOn() {
					<-written[dep]
				}
			}
			write(buf.Bytes())
		}(name)
	}
	wg.Wait()

	var tail bytes.Buffer
	if err := t.ExecuteTemplate(&tail, "layout_close", pd); err != nil {
		logger.Error("render layout close", zap.Error(err))
		return
	}
	write(tail.Bytes())
}

// renderError draws an error page inside the layout.
func (a *app) renderError(w http.ResponseWriter, r *http.Request, status int, header catalog.Header, titleKey, bodyKey string) {
	pd := a.newPage(r, header)
	pd.Title = a.bundle.T(pd.Lang, titleKey)
	pd.Error = &handlers.ErrorData{Status: status, TitleKey: titleKey, BodyKey: bodyKey}
	a.streamPage(w, r, status, pd, "page_error", false)
}
