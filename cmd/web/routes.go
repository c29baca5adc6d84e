package main

import (
	"net/http"
	"time"

	"github.com/justinas/alice"
	"github.com/potholemap/potholemap/ui"
)

func (app *application) routes(defaultTimeout time.Duration) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /static/", cacheForeverHeaders(http.FileServerFS(ui.Files)))
	mux.HandleFunc("GET /api/healthy", app.healthy)

	// Simulated 311 service. It is called server to server and carries no session.
	mux.HandleFunc("POST /api/311/reports", app.createServiceRequest)
	mux.HandleFunc("GET /api/311/status/{reportID}", app.serviceRequestStatus)

	dynamic := alice.New(app.sessionManager.LoadAndSave, app.noSurf, commonContext)
	mux.Handle("GET /{$}", dynamic.ThenFunc(app.home))
	mux.Handle("GET /reports/{reportID}/status", dynamic.ThenFunc(app.reportStatus))

	page := dynamic.Append(app.requirePage)
	mux.Handle("POST /markers/{markerID}/select", page.ThenFunc(app.selectMarker))
	mux.Handle("GET /workflow", page.ThenFunc(app.workflowPanel))
	mux.Handle("POST /workflow/proceed", page.ThenFunc(app.proceed))
	mux.Handle("POST /workflow/submit", page.ThenFunc(app.submitReport))
	mux.Handle("POST /workflow/close", page.ThenFunc(app.closeWorkflow))

	standard := alice.New(app.recoverPanic, app.logRequest, app.secureHeaders)
	return standard.Then(timeoutHandler(mux, defaultTimeout))
}
