package main

import (
	"log/slog"
	"net/http"

	"github.com/potholemap/potholemap/internal/errors"
)

func (app *application) serverError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		method = r.Method
		uri    = r.URL.RequestURI()
	)

	app.logger.LogAttrs(r.Context(), slog.LevelError, "server error",
		slog.String("method", method), slog.String("uri", uri), errors.SlogError(err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (app *application) clientError(w http.ResponseWriter, r *http.Request, status int) {
	var (
		method = r.Method
		uri    = r.URL.RequestURI()
	)

	app.logger.LogAttrs(r.Context(), slog.LevelDebug, http.StatusText(status),
		slog.String("method", method), slog.String("uri", uri))
	http.Error(w, http.StatusText(status), status)
}

func (app *application) notFound(w http.ResponseWriter, r *http.Request) {
	app.clientError(w, r, http.StatusNotFound)
}

// isHxRequest reports whether the request was issued by htmx and expects a partial.
func (app *application) isHxRequest(w http.ResponseWriter, r *http.Request) bool {
	return app.htmx.NewHandler(w, r).IsHxRequest()
}

// pageExpired sends the browser back to the map when its page session is gone, e.g. after a restart.
func (app *application) pageExpired(w http.ResponseWriter, r *http.Request) {
	app.logger.LogAttrs(r.Context(), slog.LevelDebug, "page session expired", slog.String("uri", r.URL.RequestURI()))
	if app.isHxRequest(w, r) {
		w.Header().Set("HX-Redirect", "/")
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
