package main

import (
	"context"

	"github.com/potholemap/potholemap/internal/pagesession"
)

type contextKey string

const pageContextKey = contextKey("page")

func contextWithPage(ctx context.Context, page *pagesession.Page) context.Context {
	return context.WithValue(ctx, pageContextKey, page)
}

// pageFromContext returns the page loaded by requirePage.
func pageFromContext(ctx context.Context) *pagesession.Page {
	page, ok := ctx.Value(pageContextKey).(*pagesession.Page)
	if !ok {
		panic("page session missing from context")
	}
	return page
}
