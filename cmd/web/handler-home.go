package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/potholemap/potholemap/internal/errors"
	"github.com/potholemap/potholemap/internal/models"
	"github.com/potholemap/potholemap/internal/pagesession"
	"github.com/potholemap/potholemap/internal/potholeapi"
)

const loadErrorMessage = "The pothole reports could not be loaded. Please try again in a moment."

// mapMarker is the JSON representation of a marker consumed by the map script.
type mapMarker struct {
	ID          string  `json:"id"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Description string  `json:"description"`
	Submitted   bool    `json:"submitted"`
}

type mapBounds struct {
	South, West, North, East float64
}

type homeTemplateData struct {
	BaseTemplateData
	LoadError  string
	Center     models.Position
	Bounds     *mapBounds
	Markers    []markerItem
	MapMarkers []mapMarker
	Workflow   workflowView
}

// home renders the map of the browser session. The pothole listing is fetched when the session has no page yet,
// so reloading keeps the markers that were reported from this browser.
func (app *application) home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := app.currentPage(ctx)
	if err != nil {
		if page, err = app.pages.Create(ctx); err != nil {
			app.logger.LogAttrs(ctx, slog.LevelError, "failed to load pothole reports", errors.SlogError(err))
			app.render(w, r, loadErrorStatus(err), "home", homeTemplateData{
				BaseTemplateData: newBaseTemplateData(r),
				LoadError:        loadErrorMessage,
				Center:           models.Position{},
				Bounds:           nil,
				Markers:          nil,
				MapMarkers:       nil,
				Workflow:         workflowView{Kind: "idle"}, //nolint:exhaustruct // idle panel has no details.
			})
			return
		}
		app.sessionManager.Put(ctx, pageIDSessionKey, page.ID)
	}

	app.render(w, r, http.StatusOK, "home", newHomeTemplateData(r, page))
}

// currentPage returns the page stored in the session, if it is still alive.
func (app *application) currentPage(ctx context.Context) (*pagesession.Page, error) {
	pageID := app.sessionManager.GetString(ctx, pageIDSessionKey)
	if pageID == "" {
		return nil, pagesession.ErrNotFound
	}
	page, err := app.pages.Get(pageID)
	if err != nil {
		return nil, errors.Wrap(err, "get page")
	}
	return page, nil
}

func newHomeTemplateData(r *http.Request, page *pagesession.Page) homeTemplateData {
	markers := page.Board.Markers()
	data := homeTemplateData{
		BaseTemplateData: newBaseTemplateData(r),
		LoadError:        "",
		Center:           page.Board.Center(),
		Bounds:           nil,
		Markers:          make([]markerItem, 0, len(markers)),
		MapMarkers:       make([]mapMarker, 0, len(markers)),
		Workflow:         newWorkflowView(page, false),
	}
	if rect := page.Board.Bounds(); !rect.IsEmpty() {
		data.Bounds = &mapBounds{
			South: rect.Lo().Lat.Degrees(),
			West:  rect.Lo().Lng.Degrees(),
			North: rect.Hi().Lat.Degrees(),
			East:  rect.Hi().Lng.Degrees(),
		}
	}
	for _, m := range markers {
		data.Markers = append(data.Markers, markerItem{Marker: m, OOB: false})
		data.MapMarkers = append(data.MapMarkers, mapMarker{
			ID:          m.ID,
			Lat:         m.Position.Latitude,
			Lng:         m.Position.Longitude,
			Description: m.Description,
			Submitted:   m.ReportID != "",
		})
	}
	return data
}

// loadErrorStatus maps a failed listing fetch to the status of the error page.
func loadErrorStatus(err error) int {
	var (
		networkErr *potholeapi.NetworkError
		remoteErr  *potholeapi.RemoteError
	)
	if errors.As(err, &networkErr) || errors.As(err, &remoteErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
