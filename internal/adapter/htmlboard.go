package adapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/amishk599/autoapply/internal/model"
)

const maxPageBytes = 5 << 20

// Selectors locate posting fields on a board's HTML pages. Item, Title and
// Link are read from search result pages, Description from detail pages.
type Selectors struct {
	Item        string
	Title       string
	Company     string
	Location    string
	Link        string
	Description string
}

// HTMLBoardConfig describes a server-rendered job board.
type HTMLBoardConfig struct {
	Site    string
	Company string // used when Selectors.Company is empty or finds nothing
	// SearchURL has {query} and {page} placeholders.
	SearchURL string
	// LoginURL is the page holding the login form. Empty means no login.
	LoginURL     string
	UserField    string
	PassField    string
	RequireLogin bool
	Selectors    Selectors
}

// Credentials looks up a site's login.
type Credentials interface {
	Credentials(site string) (username, password string, err error)
}

// Renderer returns the HTML of a page after its scripts have run.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// blockMarkers are phrases of anti-bot interstitials.
var blockMarkers = []string{
	"captcha",
	"unusual traffic",
	"access denied",
	"are you a robot",
	"verify you are human",
}

// HTMLBoardAdapter scrapes a job board by CSS selectors, optionally behind a
// form login whose cookies live in the session.
type HTMLBoardAdapter struct {
	cfg      HTMLBoardConfig
	base     *http.Client
	creds    Credentials
	renderer Renderer
}

// NewHTMLBoardAdapter creates an adapter. creds may be nil for boards without
// login and renderer may be nil to fetch pages over plain HTTP.
func NewHTMLBoardAdapter(cfg HTMLBoardConfig, client *http.Client, creds Credentials, renderer Renderer) *HTMLBoardAdapter {
	if cfg.UserField == "" {
		cfg.UserField = "username"
	}
	if cfg.PassField == "" {
		cfg.PassField = "password"
	}
	return &HTMLBoardAdapter{cfg: cfg, base: client, creds: creds, renderer: renderer}
}

func (a *HTMLBoardAdapter) Site() string { return a.cfg.Site }

// Login opens a cookie session and, when a login URL is configured, submits
// the board's login form with the stored credentials. Missing credentials
// or a rejected login is a SiteAuth error.
func (a *HTMLBoardAdapter) Login(ctx context.Context) (*model.Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	sess := &model.Session{Site: a.cfg.Site, Jar: jar, CreatedAt: time.Now().UTC()}
	if a.cfg.LoginURL == "" {
		if a.cfg.RequireLogin {
			return nil, model.SiteAuth(a.cfg.Site+": login required but no login URL configured", nil)
		}
		return sess, nil
	}

	if a.creds == nil {
		return nil, model.SiteAuth(a.cfg.Site+": no credential store", nil)
	}
	user, pass, err := a.creds.Credentials(a.cfg.Site)
	if err != nil {
		return nil, model.SiteAuth(a.cfg.Site+": credentials unavailable", err)
	}

	page, err := a.get(ctx, sess, a.cfg.LoginURL, true)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("%s parse login page: %w", a.cfg.Site, err)
	}
	form := loginForm(doc)
	if form == nil {
		return nil, model.SiteAuth(a.cfg.Site+": no login form on "+a.cfg.LoginURL, nil)
	}

	values := url.Values{}
	form.Find("input[name]").Each(func(_ int, in *goquery.Selection) {
		name, _ := in.Attr("name")
		if typ, _ := in.Attr("type"); typ == "submit" || typ == "button" {
			return
		}
		v, _ := in.Attr("value")
		values.Set(name, v)
	})
	values.Set(a.cfg.UserField, user)
	values.Set(a.cfg.PassField, pass)

	action, _ := form.Attr("action")
	target, err := resolveURL(a.cfg.LoginURL, action)
	if err != nil {
		return nil, fmt.Errorf("%s login action: %w", a.cfg.Site, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%s login request: %w", a.cfg.Site, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", randomUserAgent())
	body, err := a.do(a.clientFor(sess), req, true)
	if err != nil {
		return nil, err
	}

	after, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err == nil && loginForm(after) != nil {
		return nil, model.SiteAuth(a.cfg.Site+": login rejected", nil)
	}
	return sess, nil
}

// Search fetches one result page. A page with no result items ends the listing.
func (a *HTMLBoardAdapter) Search(ctx context.Context, sess *model.Session, query string, page int) ([]model.RawPosting, error) {
	pageURL := strings.NewReplacer(
		"{query}", url.QueryEscape(query),
		"{page}", strconv.Itoa(page),
	).Replace(a.cfg.SearchURL)

	body, err := a.fetch(ctx, sess, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s parse results: %w", a.cfg.Site, err)
	}

	items := doc.Find(a.cfg.Selectors.Item)
	if items.Length() == 0 {
		return nil, nil
	}

	sel := a.cfg.Selectors
	now := time.Now().UTC()
	postings := make([]model.RawPosting, 0, items.Length())
	seen := make(map[string]bool)
	items.Each(func(_ int, item *goquery.Selection) {
		link := item
		if sel.Link != "" {
			link = item.Find(sel.Link).First()
		}
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		abs, err := resolveURL(pageURL, href)
		if err != nil {
			return
		}
		abs = canonicalURL(abs)
		if seen[abs] {
			return
		}
		seen[abs] = true

		title := cleanText(item.Find(sel.Title).First().Text())
		if title == "" {
			title = cleanText(link.Text())
		}
		if title == "" {
			return
		}

		company := a.cfg.Company
		if sel.Company != "" {
			if c := cleanText(item.Find(sel.Company).First().Text()); c != "" {
				company = c
			}
		}
		var location string
		if sel.Location != "" {
			location = cleanText(item.Find(sel.Location).First().Text())
		}

		postings = append(postings, model.RawPosting{
			Site:       a.cfg.Site,
			ExternalID: abs,
			URL:        abs,
			Title:      title,
			Company:    company,
			Location:   location,
			ScrapedAt:  now,
		})
	})
	return postings, nil
}

// FetchDetail loads a posting page; id is its absolute URL.
func (a *HTMLBoardAdapter) FetchDetail(ctx context.Context, sess *model.Session, id string) (model.RawPosting, error) {
	body, err := a.fetch(ctx, sess, id)
	if err != nil {
		return model.RawPosting{}, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return model.RawPosting{}, fmt.Errorf("%s parse detail: %w", a.cfg.Site, err)
	}

	raw := model.RawPosting{
		Site:       a.cfg.Site,
		ExternalID: id,
		URL:        canonicalURL(id),
		Title:      cleanText(doc.Find("h1").First().Text()),
		Company:    a.cfg.Company,
		ScrapedAt:  time.Now().UTC(),
	}
	if desc := doc.Find(a.cfg.Selectors.Description).First(); desc.Length() > 0 {
		if h, err := desc.Html(); err == nil {
			raw.Description = extractText(h, id)
		}
	}
	if raw.Description == "" {
		return model.RawPosting{}, fmt.Errorf("%s: no description at %s", a.cfg.Site, id)
	}
	return raw, nil
}

// fetch returns a page's HTML, through the renderer when one is configured.
func (a *HTMLBoardAdapter) fetch(ctx context.Context, sess *model.Session, pageURL string) (string, error) {
	if a.renderer == nil {
		return a.get(ctx, sess, pageURL, false)
	}
	body, err := a.renderer.Render(ctx, pageURL)
	if err != nil {
		return "", model.TransientNetwork(a.cfg.Site+": render "+pageURL, err)
	}
	if blocked(body) {
		return "", model.TransientNetwork(a.cfg.Site+": anti-bot challenge at "+pageURL, nil)
	}
	return body, nil
}

func (a *HTMLBoardAdapter) get(ctx context.Context, sess *model.Session, pageURL string, loggingIn bool) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("%s request: %w", a.cfg.Site, err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("User-Agent", randomUserAgent())
	return a.do(a.clientFor(sess), req, loggingIn)
}

func (a *HTMLBoardAdapter) do(client *http.Client, req *http.Request, loggingIn bool) (string, error) {
	what := a.cfg.Site + " " + req.URL.Path
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", what, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if loggingIn || a.cfg.RequireLogin {
			return "", model.SiteAuth(what+" rejected the session", statusError(resp, what))
		}
		return "", statusError(resp, what)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", statusError(resp, what)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("%s read: %w", what, err)
	}
	body := string(data)
	if blocked(body) {
		return "", model.TransientNetwork(what+": anti-bot challenge", nil)
	}
	return body, nil
}

func (a *HTMLBoardAdapter) clientFor(sess *model.Session) *http.Client {
	c := &http.Client{Timeout: 30 * time.Second}
	if a.base != nil {
		c.Transport = a.base.Transport
		c.Timeout = a.base.Timeout
	}
	if sess != nil {
		c.Jar = sess.Jar
	}
	return c
}

// blocked reports whether the visible text of a page is an anti-bot
// interstitial. Script and style bodies are not inspected.
func blocked(page string) bool {
	text := strings.ToLower(strictPolicy.Sanitize(page))
	if len(text) > 4096 {
		return false
	}
	for _, m := range blockMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// loginForm returns the first form containing a password input.
func loginForm(doc *goquery.Document) *goquery.Selection {
	form := doc.Find("form").FilterFunction(func(_ int, f *goquery.Selection) bool {
		return f.Find(`input[type="password"]`).Length() > 0
	}).First()
	if form.Length() == 0 {
		return nil
	}
	return form
}

func resolveURL(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}
