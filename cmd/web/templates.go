package main

import (
	"net/http"

	"github.com/potholemap/potholemap/internal/contexthelpers"
)

type BaseTemplateData struct {
	CurrentPath string
}

func newBaseTemplateData(r *http.Request) BaseTemplateData {
	return BaseTemplateData{
		CurrentPath: contexthelpers.CurrentPath(r.Context()),
	}
}

type errorTemplateData struct {
	BaseTemplateData
	Title   string
	Message string
}
