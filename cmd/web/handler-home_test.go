package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_application_home(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	backend := newFakeBackend(t)
	server := startTestServer(t, backend)
	client := server.Client()

	doc, err := client.GetDoc(ctx, "/")
	require.NoError(t, err)

	items := doc.Find("li.marker")
	require.Equal(t, 2, items.Length(), "malformed records are left out")
	// Newest first.
	assert.Equal(t, "222", items.First().AttrOr("data-marker-id", ""))
	assert.Contains(t, items.Last().Text(), "Pothole on BROADWAY")
	assert.Equal(t, 1, doc.Find("form[action='/markers/111/select'] input[name=csrf_token]").Length())
	assert.Equal(t, 1, doc.Find("#workflow.workflow--idle").Length())

	mapEl := doc.Find("#map")
	south, err := strconv.ParseFloat(mapEl.AttrOr("data-south", ""), 64)
	require.NoError(t, err)
	north, err := strconv.ParseFloat(mapEl.AttrOr("data-north", ""), 64)
	require.NoError(t, err)
	assert.InDelta(t, 40.7128, south, 1e-9)
	assert.InDelta(t, 40.73, north, 1e-9)

	var markers []mapMarker
	require.NoError(t, json.Unmarshal([]byte(doc.Find("#markers-data").Text()), &markers))
	require.Len(t, markers, 2)
	assert.False(t, markers[0].Submitted)

	// The listing is fetched once per browser session.
	backend.listingDown.Store(true)
	doc, err = client.GetDoc(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Find("li.marker").Length())
}

func Test_application_home_backendDown(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	backend := newFakeBackend(t)
	backend.listingDown.Store(true)
	server := startTestServer(t, backend)

	resp, err := server.Client().Get(ctx, "/")
	require.NoError(t, err)
	defer func(Body io.ReadCloser) {
		assert.NoError(t, Body.Close())
	}(resp.Body)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, doc.Find(".load-error").Text(), "Could not load pothole reports")
	assert.Equal(t, 0, doc.Find("li.marker").Length())

	// A later visit retries.
	backend.listingDown.Store(false)
	doc, err = server.Client().GetDoc(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Find("li.marker").Length())
}

func Test_secureHeaders(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server := startTestServer(t, newFakeBackend(t))

	resp, err := server.Client().Get(ctx, "/")
	require.NoError(t, err)
	defer func(Body io.ReadCloser) {
		assert.NoError(t, Body.Close())
	}(resp.Body)
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)

	nonce, ok := doc.Find("script[src='/static/map.js']").Attr("nonce")
	require.True(t, ok)
	require.NotEmpty(t, nonce)
	assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "'nonce-"+nonce+"'")
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "deny", resp.Header.Get("X-Frame-Options"))

	static, err := server.Client().Get(ctx, "/static/map.js")
	require.NoError(t, err)
	defer func(Body io.ReadCloser) {
		assert.NoError(t, Body.Close())
	}(static.Body)
	require.Equal(t, http.StatusOK, static.StatusCode)
	assert.True(t, strings.HasPrefix(static.Header.Get("Cache-Control"), "public"))
}
