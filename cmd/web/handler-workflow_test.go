package main

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/potholemap/potholemap/internal/e2etest"
	"github.com/potholemap/potholemap/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func workflowIn(kind string) func(*goquery.Document) bool {
	return func(doc *goquery.Document) bool {
		return doc.Find("#workflow.workflow--" + kind).Length() == 1
	}
}

func Test_application_reportPothole(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	backend := newFakeBackend(t)
	server := startTestServer(t, backend)
	client := server.Client()

	doc, err := client.GetDoc(ctx, "/")
	require.NoError(t, err)

	// Select the marker and wait for the analysis.
	_, err = client.SubmitForm(ctx, doc, "/markers/111/select", nil)
	require.NoError(t, err)
	doc, err = client.PollDoc(ctx, "/", workflowIn("analysis_positive"))
	require.NoError(t, err)
	panel := doc.Find("#workflow")
	assert.Contains(t, panel.Find(".workflow__result").Text(), "Pothole detected (2 detections)")
	assert.Equal(t, backend.URL+"/images/111-annotated.png", panel.Find("img.workflow__image").AttrOr("src", ""))

	// Open the form.
	doc, err = client.SubmitForm(ctx, doc, "/workflow/proceed", nil)
	require.NoError(t, err)
	require.True(t, workflowIn("form_open")(doc))
	assert.Equal(t, "medium", doc.Find("input[name=severity][checked]").AttrOr("value", ""))

	// A blank description is refused before anything is sent.
	doc, err = client.SubmitForm(ctx, doc, "/workflow/submit", url.Values{
		"description": {"   "},
		"severity":    {"high"},
	})
	require.NoError(t, err)
	require.True(t, workflowIn("form_open")(doc))
	assert.Equal(t, "Please provide a description of the pothole.",
		strings.TrimSpace(doc.Find("#workflow .workflow__error").Text()))

	// Submit for real.
	_, err = client.SubmitForm(ctx, doc, "/workflow/submit", url.Values{
		"description":    {"Deep pothole in the bike lane"},
		"severity":       {"high"},
		"reporter_name":  {" Jo "},
		"reporter_email": {"jo@example.com"},
	})
	require.NoError(t, err)
	doc, err = client.PollDoc(ctx, "/", workflowIn("submitted"))
	require.NoError(t, err)

	message := doc.Find("#workflow .workflow__result--submitted").Text()
	assert.Contains(t, message, "Report submitted successfully! Report ID: 311-")
	assert.Contains(t, message, "Estimated resolution: 5-7 business days")
	assert.Equal(t, 1, doc.Find("li#marker-item-111.marker--submitted").Length())
	assert.Equal(t, 0, doc.Find("li#marker-item-222.marker--submitted").Length(), "only the selected marker changes")

	statusHref, ok := doc.Find("li#marker-item-111 a.marker__report").Attr("href")
	require.True(t, ok)

	// The 311 service tracks the report.
	statusDoc, err := client.GetDoc(ctx, statusHref)
	require.NoError(t, err)
	assert.Equal(t, "submitted", strings.TrimSpace(statusDoc.Find(".report-status__status").Text()))
	assert.Contains(t, statusDoc.Text(), "High - Severe damage, safety hazard")
	assert.Contains(t, statusDoc.Text(), "5-7 business days")

	// Closing keeps the submitted marker.
	doc, err = client.SubmitForm(ctx, doc, "/workflow/close", nil)
	require.NoError(t, err)
	require.True(t, workflowIn("idle")(doc))
	assert.Equal(t, 1, doc.Find("li#marker-item-111.marker--submitted").Length())

	// Selecting the reported marker again points at the existing report instead of filing another one.
	analyses := backend.analyses.Load()
	csrfToken, err := e2etest.ExtractCSRFToken(doc, "/markers/111/select")
	require.NoError(t, err)
	resp, err := client.HxPost(ctx, "/markers/111/select", csrfToken, nil)
	require.NoError(t, err)
	partial := readPartial(t, resp, http.StatusConflict)
	assert.True(t, workflowIn("idle")(partial))
	assert.Equal(t, statusHref, partial.Find(".workflow__notice a.workflow__report").AttrOr("href", ""))
	assert.Equal(t, analyses, backend.analyses.Load(), "no new analysis")
}

func Test_application_negativeAnalysis_htmx(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server := startTestServer(t, newFakeBackend(t))
	client := server.Client()

	doc, err := client.GetDoc(ctx, "/")
	require.NoError(t, err)
	csrfToken, err := e2etest.ExtractCSRFToken(doc, "/markers/222/select")
	require.NoError(t, err)

	resp, err := client.HxPost(ctx, "/markers/222/select", csrfToken, nil)
	require.NoError(t, err)
	partial := readPartial(t, resp, http.StatusOK)
	assert.Equal(t, 0, partial.Find("header.site-header").Length(), "htmx gets the panel only")
	assert.Equal(t, 1, partial.Find("#workflow").Length())

	var panel *goquery.Document
	require.Eventually(t, func() bool {
		panel, err = client.HxGetDoc(ctx, "/workflow")
		return err == nil && workflowIn("analysis_negative")(panel)
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, workflow.MessageNoPothole, strings.TrimSpace(panel.Find(".workflow__result--negative").Text()))
	assert.Equal(t, 0, panel.Find("form[action='/workflow/proceed']").Length())
	_, polling := panel.Find("#workflow").Attr("hx-get")
	assert.False(t, polling, "settled panels stop polling")

	// Proceeding without a detection is refused and the panel stays as it is.
	resp, err = client.HxPost(ctx, "/workflow/proceed", csrfToken, nil)
	require.NoError(t, err)
	partial = readPartial(t, resp, http.StatusConflict)
	assert.True(t, workflowIn("analysis_negative")(partial))

	resp, err = client.HxPost(ctx, "/workflow/close", csrfToken, nil)
	require.NoError(t, err)
	partial = readPartial(t, resp, http.StatusOK)
	assert.True(t, workflowIn("idle")(partial))
}

func Test_application_unknownMarker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server := startTestServer(t, newFakeBackend(t))
	client := server.Client()

	doc, err := client.GetDoc(ctx, "/")
	require.NoError(t, err)
	csrfToken, err := e2etest.ExtractCSRFToken(doc, "/markers/111/select")
	require.NoError(t, err)

	resp, err := client.HxPost(ctx, "/markers/333/select", csrfToken, nil)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func Test_application_csrf(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server := startTestServer(t, newFakeBackend(t))
	client := server.Client()

	_, err := client.GetDoc(ctx, "/")
	require.NoError(t, err)

	resp, err := client.PostForm(ctx, "/workflow/close", url.Values{}, nil)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func Test_application_expiredPage(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server := startTestServer(t, newFakeBackend(t))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL()+"/workflow", nil)
	require.NoError(t, err)
	req.Header.Set("HX-Request", "true")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("HX-Redirect"))

	// Without htmx the browser is sent to the map, which starts a new page.
	doc, err := server.Client().GetDoc(ctx, "/workflow")
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Find("li.marker").Length())
}

func readPartial(t *testing.T, resp *http.Response, wantStatus int) *goquery.Document {
	t.Helper()
	defer func(Body io.ReadCloser) {
		assert.NoError(t, Body.Close())
	}(resp.Body)
	require.Equal(t, wantStatus, resp.StatusCode)
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)
	return doc
}
