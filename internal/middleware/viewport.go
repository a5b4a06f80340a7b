package middleware

import (
	"context"
	"net/http"

	"finitefield.org/storefront/internal/viewport"
)

type viewportHint struct {
	width    int
	measured bool
}

// ViewportHint records the client's width hint so server rendering classifies the page
// the same way the browser will. It asks the browser for the Sec-CH-Viewport-Width
// client hint on subsequent requests.
func ViewportHint(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Accept-CH", "Sec-CH-Viewport-Width, Viewport-Width")
		w.Header().Add("Vary", "Sec-CH-Viewport-Width")
		width, ok := viewport.FromRequest(r)
		ctx := context.WithValue(r.Context(), ctxKeyViewport, viewportHint{width: width, measured: ok})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Viewport returns the width hint recorded by ViewportHint. Without the middleware or
// a usable hint it reports unmeasured.
func Viewport(r *http.Request) (int, bool) {
	h, ok := r.Context().Value(ctxKeyViewport).(viewportHint)
	if !ok {
		return viewport.FromRequest(r)
	}
	return h.width, h.measured
}

// Classifier seeds a page classifier from the request's width hint.
func Classifier(r *http.Request) *viewport.Classifier {
	return viewport.NewClassifierFromHint(Viewport(r))
}
