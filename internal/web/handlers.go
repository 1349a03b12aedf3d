// Package web serves the public story gallery and the admin curation
// interface.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/medbrief/newsroom/internal/logger"
	"github.com/medbrief/newsroom/internal/provenance"
	"github.com/medbrief/newsroom/internal/pubmed"
	"github.com/medbrief/newsroom/internal/readability"
	"github.com/medbrief/newsroom/internal/record"
	"github.com/medbrief/newsroom/internal/storage"
	"github.com/medbrief/newsroom/internal/story"
)

// searchRetmax is how many PMIDs an admin search requests. Curation reviews
// one page of results at a time, so the cap stays small.
const searchRetmax = 20

// Fixed messages for upstream failures. The underlying errors may embed
// request URLs carrying API keys, so they go to the log, never the page.
const (
	msgSearchFailed   = "PubMed request failed. Please try again."
	msgFetchFailed    = "PubMed fetch failed. Please try again."
	msgRecordNotFound = "Record not found for that PMID."
	msgPMIDRequired   = "PMID required"
	msgRankNotNumber  = "Featured rank must be a number."
	msgSaveFailed     = "Saving the story failed. Please try again."
	msgNoPassword     = "ADMIN_PASSWORD is not configured."
	msgWrongPassword  = "Incorrect password."
)

// handlers carries the collaborators the route handlers share.
type handlers struct {
	store    *storage.DB
	pubmed   *pubmed.Client
	stories  *story.Generator
	sessions *SessionManager
	log      logger.Logger
	tmpl     *template.Template
	now      func() float64
	started  time.Time

	css string
	js  string
}

func (h *handlers) page() page {
	return page{CSSVersion: h.css, JSVersion: h.js}
}

func redirect(w http.ResponseWriter, r *http.Request, target string) {
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *handlers) internalError(w http.ResponseWriter, what string, err error) {
	h.log.Error(what, logger.Error(err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

// safeNext restricts a post-login redirect target to local paths, so the
// next parameter cannot bounce a curator to another site.
func safeNext(next string) string {
	const fallback = "/admin/search"
	candidate := strings.TrimSpace(next)
	if candidate == "" {
		return fallback
	}
	parsed, err := url.Parse(candidate)
	if err != nil {
		return fallback
	}
	if parsed.Scheme != "" || parsed.Host != "" {
		return fallback
	}
	if !strings.HasPrefix(parsed.Path, "/") || strings.HasPrefix(parsed.Path, "//") {
		return fallback
	}
	return candidate
}

// decodeStory parses a stored story document. Rows predating the current
// schema decode into an empty story rather than failing the page.
func decodeStory(raw json.RawMessage) story.Story {
	var s story.Story
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return story.Story{Paragraphs: []string{}}
	}
	return s
}

// Public site

type galleryCard struct {
	PMID             string
	Headline         string
	Standfirst       string
	Journal          string
	Year             string
	SearchTerm       string
	ArticlePublished string
}

type galleryPage struct {
	page
	Artifacts []galleryCard
}

func (h *handlers) handleGallery(w http.ResponseWriter, r *http.Request) {
	artifacts, err := h.store.ListArtifacts(r.Context(), true)
	if err != nil {
		h.internalError(w, "listing published artifacts", err)
		return
	}

	cards := make([]galleryCard, 0, len(artifacts))
	for _, artifact := range artifacts {
		meta := metadataForDisplay(provenance.DecodeSnapshot(artifact.Metadata))
		cards = append(cards, galleryCard{
			PMID:             artifact.PMID,
			Headline:         artifact.Headline,
			Standfirst:       artifact.Standfirst,
			Journal:          meta.Journal,
			Year:             meta.Year,
			SearchTerm:       meta.SearchTermDisplay,
			ArticlePublished: meta.PubDateDisplay,
		})
	}
	h.render(w, http.StatusOK, "index.html", galleryPage{page: h.page(), Artifacts: cards})
}

type storyPage struct {
	page
	NotFound        bool
	PMID            string
	Headline        string
	Standfirst      string
	Paragraphs      []string
	WhatHappensNext string
	Metadata        MetadataView
	PublishedAt     string
}

func (h *handlers) handleStory(w http.ResponseWriter, r *http.Request) {
	pmid := chi.URLParam(r, "pmid")
	artifact, err := h.store.GetArtifact(r.Context(), pmid)
	if err != nil {
		h.internalError(w, "loading artifact", err)
		return
	}
	if artifact == nil || !artifact.Published() {
		h.render(w, http.StatusNotFound, "story.html", storyPage{page: h.page(), NotFound: true, PMID: pmid})
		return
	}

	st := decodeStory(artifact.Story)
	h.render(w, http.StatusOK, "story.html", storyPage{
		page:            h.page(),
		PMID:            artifact.PMID,
		Headline:        artifact.Headline,
		Standfirst:      artifact.Standfirst,
		Paragraphs:      st.Paragraphs,
		WhatHappensNext: st.WhatHappensNext,
		Metadata:        metadataForDisplay(provenance.DecodeSnapshot(artifact.Metadata)),
		PublishedAt:     formatDate(artifact.PublishedAt),
	})
}

type healthzResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

func (h *handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(healthzResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(h.started).Seconds(),
	})
}

// Admin session

type loginPage struct {
	page
	Next  string
	Error string
}

func (h *handlers) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "login.html", loginPage{
		page: h.page(),
		Next: safeNext(r.URL.Query().Get("next")),
	})
}

func (h *handlers) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirect(w, r, "/admin/login")
		return
	}
	next := safeNext(r.PostFormValue("next"))

	if !h.sessions.Enabled() {
		h.render(w, http.StatusInternalServerError, "login.html", loginPage{
			page: h.page(), Next: next, Error: msgNoPassword,
		})
		return
	}
	if !h.sessions.VerifyPassword(r.PostFormValue("password")) {
		h.render(w, http.StatusUnauthorized, "login.html", loginPage{
			page: h.page(), Next: next, Error: msgWrongPassword,
		})
		return
	}

	token, err := h.sessions.Issue()
	if err != nil {
		h.internalError(w, "issuing session token", err)
		return
	}
	h.sessions.SetCookie(w, token)
	redirect(w, r, next)
}

func (h *handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.ClearCookie(w)
	redirect(w, r, "/admin/login")
}

func (h *handlers) handleAdminRoot(w http.ResponseWriter, r *http.Request) {
	redirect(w, r, "/admin/search")
}

// Admin search and generation

type searchResult struct {
	PMID             string
	Title            string
	Abstract         string
	Journal          string
	Year             string
	DOI              string
	PublicationTypes []string
	Readability      string
	HasArtifact      bool
	IsPublished      bool
}

type searchPage struct {
	page
	Term        string
	Sort        string
	Results     []searchResult
	SearchRanAt string
	Error       string
	Message     string
}

func (h *handlers) handleAdminSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	term := strings.TrimSpace(q.Get("term"))
	sortOrder := strings.ToLower(strings.TrimSpace(q.Get("sort")))
	if sortOrder == "" {
		sortOrder = "readability"
	}

	data := searchPage{
		page:    h.page(),
		Term:    term,
		Sort:    sortOrder,
		Error:   q.Get("error"),
		Message: q.Get("message"),
	}

	if term != "" {
		// Stamp the search time now; the generate form carries it into the
		// artifact's provenance metadata.
		data.SearchRanAt = strconv.FormatFloat(h.now(), 'f', -1, 64)

		results, err := h.searchResults(r.Context(), term, sortOrder)
		if err != nil {
			h.log.Error("admin search failed", logger.String("term", term), logger.Error(err))
			data.Error = msgSearchFailed
		} else {
			data.Results = results
		}
	}
	h.render(w, http.StatusOK, "search.html", data)
}

func (h *handlers) searchResults(ctx context.Context, term, sortOrder string) ([]searchResult, error) {
	pmids, err := h.pubmed.SearchPrimaryResearch(ctx, term, searchRetmax)
	if err != nil {
		return nil, err
	}
	records, err := h.pubmed.FetchRecords(ctx, pmids, pubmed.FetchOptions{Require: pubmed.RequireFull()})
	if err != nil {
		return nil, err
	}

	scores := map[string]float64{}
	if sortOrder == "readability" {
		scores, err = h.store.GetScores(ctx, pmids)
		if err != nil {
			return nil, err
		}
		var unscored []record.Record
		for _, rec := range records {
			if _, ok := scores[rec.PMID]; !ok {
				unscored = append(unscored, rec)
			}
		}
		if fresh := readability.ScoreRecords(unscored); len(fresh) > 0 {
			if err := h.store.UpsertScores(ctx, fresh); err != nil {
				return nil, err
			}
			for pmid, score := range fresh {
				scores[pmid] = score
			}
		}
		sort.SliceStable(records, func(i, j int) bool {
			return scoreOrMin(scores, records[i].PMID) > scoreOrMin(scores, records[j].PMID)
		})
	}

	results := make([]searchResult, 0, len(records))
	for _, rec := range records {
		if rec.PMID == "" {
			continue
		}
		artifact, err := h.store.GetArtifact(ctx, rec.PMID)
		if err != nil {
			return nil, err
		}
		res := searchResult{
			PMID:             rec.PMID,
			Title:            rec.Title,
			Abstract:         rec.Abstract,
			Journal:          rec.Journal,
			Year:             rec.Year,
			DOI:              rec.DOI,
			PublicationTypes: rec.PublicationTypes,
			HasArtifact:      artifact != nil,
			IsPublished:      artifact != nil && artifact.Published(),
		}
		if score, ok := scores[rec.PMID]; ok {
			res.Readability = fmt.Sprintf("%.3f", score)
		}
		results = append(results, res)
	}
	return results, nil
}

func scoreOrMin(scores map[string]float64, pmid string) float64 {
	if score, ok := scores[pmid]; ok {
		return score
	}
	return math.Inf(-1)
}

// redirectSearch sends the curator back to the search page, preserving the
// term and sort so the results re-render around the flash message.
func (h *handlers) redirectSearch(w http.ResponseWriter, r *http.Request, term, sortOrder, errMsg string) {
	v := url.Values{}
	if term != "" {
		v.Set("term", term)
	}
	if sortOrder != "" {
		v.Set("sort", sortOrder)
	}
	if errMsg != "" {
		v.Set("error", errMsg)
	}
	target := "/admin/search"
	if encoded := v.Encode(); encoded != "" {
		target += "?" + encoded
	}
	redirect(w, r, target)
}

func (h *handlers) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.redirectSearch(w, r, "", "", msgPMIDRequired)
		return
	}
	pmid := strings.TrimSpace(r.PostFormValue("pmid"))
	term := strings.TrimSpace(r.PostFormValue("term"))
	sortOrder := strings.ToLower(strings.TrimSpace(r.PostFormValue("sort")))
	ranAt := provenance.CoerceEpoch(r.PostFormValue("search_ran_at"))
	regenerate := r.PostFormValue("regenerate") != ""

	if pmid == "" {
		h.redirectSearch(w, r, "", "", msgPMIDRequired)
		return
	}
	ctx := r.Context()

	rec, err := h.store.GetRecord(ctx, pmid)
	if err != nil {
		h.log.Error("loading cached record", logger.String("pmid", pmid), logger.Error(err))
		h.redirectSearch(w, r, term, sortOrder, msgFetchFailed)
		return
	}
	if rec == nil {
		records, err := h.pubmed.FetchRecords(ctx, []string{pmid}, pubmed.FetchOptions{Require: pubmed.RequireFull()})
		if err != nil {
			h.log.Error("PubMed fetch failed", logger.String("pmid", pmid), logger.Error(err))
			h.redirectSearch(w, r, term, sortOrder, msgFetchFailed)
			return
		}
		if len(records) > 0 {
			rec = &records[0]
		}
	}
	if rec == nil {
		h.redirectSearch(w, r, term, sortOrder, msgRecordNotFound)
		return
	}

	enriched := h.enrichPublicationDate(ctx, *rec)
	prompt := h.stories.Prompt(enriched)

	st, err := h.stories.Generate(ctx, enriched, prompt, regenerate)
	if err != nil {
		storiesGenerated.WithLabelValues("error").Inc()
		h.log.Error("story generation failed", logger.String("pmid", pmid), logger.Error(err))
		h.redirectSearch(w, r, term, sortOrder, err.Error())
		return
	}
	storiesGenerated.WithLabelValues("ok").Inc()

	source := provenance.SearchSourceUnknown
	if term != "" {
		source = provenance.SearchSourceCurator
	}
	metadata, err := provenance.BuildSnapshot(enriched, term, ranAt, source).Encode()
	if err != nil {
		h.internalError(w, "encoding metadata snapshot", err)
		return
	}
	storyJSON, err := json.Marshal(st)
	if err != nil {
		h.internalError(w, "encoding story", err)
		return
	}

	if err := h.store.UpsertArtifact(ctx, storage.Artifact{
		PMID:       pmid,
		Headline:   st.Headline,
		Standfirst: st.Standfirst,
		Story:      storyJSON,
		PromptText: prompt,
		Abstract:   enriched.Abstract,
		Metadata:   metadata,
	}); err != nil {
		h.log.Error("saving artifact", logger.String("pmid", pmid), logger.Error(err))
		h.redirectSearch(w, r, term, sortOrder, msgSaveFailed)
		return
	}
	redirect(w, r, "/admin/artifact/"+url.PathEscape(pmid))
}

// enrichPublicationDate refetches a record that carries no publication date.
// Cached rows never carry the date triple, so generating from the cache
// would otherwise always fall back to the bare year. Enrichment is best
// effort: on a fetch failure the original record is used as-is.
func (h *handlers) enrichPublicationDate(ctx context.Context, rec record.Record) record.Record {
	if rec.HasPubDate() {
		return rec
	}
	records, err := h.pubmed.FetchRecords(ctx, []string{rec.PMID}, pubmed.FetchOptions{ForceRefresh: true})
	if err != nil {
		h.log.Warn("publication date enrichment fetch failed",
			logger.String("pmid", rec.PMID), logger.Error(err))
		return rec
	}
	if len(records) == 0 {
		return rec
	}
	return records[0]
}

// Admin artifact review and publishing

type artifactPage struct {
	page
	NotFound        bool
	PMID            string
	Headline        string
	Standfirst      string
	Paragraphs      []string
	WhatHappensNext string
	Metadata        MetadataView
	Published       bool
	PublishedAt     string
	FeaturedRank    string
	CreatedAt       string
	PromptText      string
	Abstract        string
	Message         string
}

func (h *handlers) handleAdminArtifact(w http.ResponseWriter, r *http.Request) {
	pmid := chi.URLParam(r, "pmid")
	message := r.URL.Query().Get("message")

	artifact, err := h.store.GetArtifact(r.Context(), pmid)
	if err != nil {
		h.internalError(w, "loading artifact", err)
		return
	}
	if artifact == nil {
		h.render(w, http.StatusNotFound, "artifact.html", artifactPage{
			page: h.page(), NotFound: true, PMID: pmid, Message: message,
		})
		return
	}

	st := decodeStory(artifact.Story)
	data := artifactPage{
		page:            h.page(),
		PMID:            artifact.PMID,
		Headline:        artifact.Headline,
		Standfirst:      artifact.Standfirst,
		Paragraphs:      st.Paragraphs,
		WhatHappensNext: st.WhatHappensNext,
		Metadata:        metadataForDisplay(provenance.DecodeSnapshot(artifact.Metadata)),
		Published:       artifact.Published(),
		PublishedAt:     formatDate(artifact.PublishedAt),
		CreatedAt:       formatDatetime(&artifact.CreatedAt),
		PromptText:      artifact.PromptText,
		Abstract:        artifact.Abstract,
		Message:         message,
	}
	if artifact.FeaturedRank != nil {
		data.FeaturedRank = strconv.Itoa(*artifact.FeaturedRank)
	}
	h.render(w, http.StatusOK, "artifact.html", data)
}

func (h *handlers) handlePublish(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirect(w, r, "/admin/gallery?error="+url.QueryEscape(msgPMIDRequired))
		return
	}
	pmid := strings.TrimSpace(r.PostFormValue("pmid"))
	if pmid == "" {
		redirect(w, r, "/admin/gallery?error="+url.QueryEscape(msgPMIDRequired))
		return
	}

	var rank *int
	if text := strings.TrimSpace(r.PostFormValue("featured_rank")); text != "" {
		n, err := strconv.Atoi(text)
		if err != nil {
			redirect(w, r, "/admin/artifact/"+url.PathEscape(pmid)+"?message="+url.QueryEscape(msgRankNotNumber))
			return
		}
		rank = &n
	}

	if err := h.store.PublishArtifact(r.Context(), pmid, rank); err != nil {
		h.internalError(w, "publishing artifact", err)
		return
	}
	redirect(w, r, "/admin/gallery?message=Published")
}

func (h *handlers) handleFeature(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirect(w, r, "/admin/gallery?error="+url.QueryEscape(msgPMIDRequired))
		return
	}
	pmid := strings.TrimSpace(r.PostFormValue("pmid"))
	if pmid == "" {
		redirect(w, r, "/admin/gallery?error="+url.QueryEscape(msgPMIDRequired))
		return
	}

	var rank *int
	if text := strings.TrimSpace(r.PostFormValue("featured_rank")); text != "" {
		n, err := strconv.Atoi(text)
		if err != nil {
			redirect(w, r, "/admin/gallery?error="+url.QueryEscape("Featured rank must be a number"))
			return
		}
		rank = &n
	}

	if err := h.store.UpdateFeaturedRank(r.Context(), pmid, rank); err != nil {
		h.internalError(w, "updating featured rank", err)
		return
	}
	redirect(w, r, "/admin/gallery?message=Updated")
}

func (h *handlers) handleUnpublish(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirect(w, r, "/admin/gallery?error="+url.QueryEscape(msgPMIDRequired))
		return
	}
	pmid := strings.TrimSpace(r.PostFormValue("pmid"))
	if pmid == "" {
		redirect(w, r, "/admin/gallery?error="+url.QueryEscape(msgPMIDRequired))
		return
	}

	if err := h.store.UnpublishArtifact(r.Context(), pmid); err != nil {
		h.internalError(w, "unpublishing artifact", err)
		return
	}
	redirect(w, r, "/admin/gallery?message=Unpublished")
}

type adminGalleryEntry struct {
	PMID            string
	Headline        string
	Journal         string
	Year            string
	SearchTerm      string
	PublicationDate string
	FeaturedRank    string
	PublishedAt     string
}

type adminGalleryPage struct {
	page
	Artifacts []adminGalleryEntry
	Message   string
	Error     string
}

func (h *handlers) handleAdminGallery(w http.ResponseWriter, r *http.Request) {
	artifacts, err := h.store.ListArtifacts(r.Context(), true)
	if err != nil {
		h.internalError(w, "listing published artifacts", err)
		return
	}

	entries := make([]adminGalleryEntry, 0, len(artifacts))
	for _, artifact := range artifacts {
		meta := metadataForDisplay(provenance.DecodeSnapshot(artifact.Metadata))
		entry := adminGalleryEntry{
			PMID:            artifact.PMID,
			Headline:        artifact.Headline,
			Journal:         meta.Journal,
			Year:            meta.Year,
			SearchTerm:      meta.SearchTermDisplay,
			PublicationDate: meta.PubDateDisplay,
			PublishedAt:     formatDate(artifact.PublishedAt),
		}
		if entry.PublishedAt == "" {
			entry.PublishedAt = "Unknown"
		}
		if artifact.FeaturedRank != nil {
			entry.FeaturedRank = strconv.Itoa(*artifact.FeaturedRank)
		}
		entries = append(entries, entry)
	}
	h.render(w, http.StatusOK, "gallery.html", adminGalleryPage{
		page:      h.page(),
		Artifacts: entries,
		Message:   r.URL.Query().Get("message"),
		Error:     r.URL.Query().Get("error"),
	})
}
