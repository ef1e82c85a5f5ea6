// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package patents provides the patent-metadata collaborator clients:
// a per-URL document fetcher and an IPC classifier.
package patents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrFetchFailed indicates a document could not be retrieved or parsed.
var ErrFetchFailed = errors.New("patent fetch failed")

// Document is the fetched text of one patent, split into the sections
// downstream scoring consumes.
type Document struct {
	Abstract    string `json:"abstract"`
	Description string `json:"description"`
	Claims      string `json:"claims"`
}

// Fetcher retrieves patent document text by URL.
type Fetcher interface {
	Fetch(ctx context.Context, docURL string) (Document, error)
}

// HTTPFetcher fetches patent pages over HTTP and extracts the abstract,
// description, and claims sections.
//
// Description:
//
//	When an extractor service URL is configured (PATENT_FETCHER_URL),
//	the page URL is posted there and the service returns the sections as
//	JSON. Without one, the page itself is fetched and sectioned with a
//	best-effort HTML scan; that path is crude but keeps single-binary
//	deployments working.
type HTTPFetcher struct {
	httpClient *http.Client
	serviceURL string
}

// NewHTTPFetcher creates a fetcher. serviceURL may be empty.
func NewHTTPFetcher(serviceURL string) *HTTPFetcher {
	return &HTTPFetcher{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		serviceURL: strings.TrimSuffix(serviceURL, "/"),
	}
}

// Fetch implements the Fetcher interface.
func (f *HTTPFetcher) Fetch(ctx context.Context, docURL string) (Document, error) {
	if _, err := url.ParseRequestURI(docURL); err != nil {
		return Document{}, fmt.Errorf("%w: invalid url %q", ErrFetchFailed, docURL)
	}

	if f.serviceURL != "" {
		return f.fetchViaService(ctx, docURL)
	}
	return f.fetchDirect(ctx, docURL)
}

// fetchViaService delegates extraction to the configured service.
func (f *HTTPFetcher) fetchViaService(ctx context.Context, docURL string) (Document, error) {
	payload, err := json.Marshal(map[string]string{"url": docURL})
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		f.serviceURL+"/v1/patent/extract", strings.NewReader(string(payload)))
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Document{}, fmt.Errorf("%w: extractor returned status %d", ErrFetchFailed, resp.StatusCode)
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return doc, nil
}

// fetchDirect pulls the page and sections it locally.
func (f *HTTPFetcher) fetchDirect(ctx context.Context, docURL string) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Document{}, fmt.Errorf("%w: page returned status %d", ErrFetchFailed, resp.StatusCode)
	}

	// Patent pages run long; description bodies past this point add
	// little to relevance judgment.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	doc := sectionHTML(string(body))
	if doc.Abstract == "" && doc.Description == "" && doc.Claims == "" {
		slog.Warn("no patent sections found in page", "url", docURL)
		return Document{}, fmt.Errorf("%w: no sections in %s", ErrFetchFailed, docURL)
	}
	return doc, nil
}

// sectionHTML extracts abstract/description/claims from a patent page.
// Google Patents marks sections with itemprop attributes; other sources
// degrade to whatever sections match.
func sectionHTML(page string) Document {
	return Document{
		Abstract:    extractSection(page, `itemprop="abstract"`),
		Description: extractSection(page, `itemprop="description"`),
		Claims:      extractSection(page, `itemprop="claims"`),
	}
}

// extractSection returns the tag-stripped text of the element carrying
// the marker attribute.
func extractSection(page, marker string) string {
	idx := strings.Index(page, marker)
	if idx == -1 {
		return ""
	}
	start := strings.Index(page[idx:], ">")
	if start == -1 {
		return ""
	}
	start += idx + 1

	// Take the section body up to the next section marker or a bounded
	// window, then strip tags.
	end := len(page)
	if next := strings.Index(page[start:], `itemprop="`); next != -1 {
		end = start + next
	}
	if end-start > 64<<10 {
		end = start + 64<<10
	}

	return strings.TrimSpace(stripTags(page[start:end]))
}

// stripTags removes HTML tags, collapsing them to spaces.
func stripTags(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inTag := false
	lastSpace := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		case !inTag:
			if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
				if !lastSpace {
					b.WriteRune(' ')
					lastSpace = true
				}
			} else {
				b.WriteRune(r)
				lastSpace = false
			}
		}
	}
	return b.String()
}

var _ Fetcher = (*HTTPFetcher)(nil)
