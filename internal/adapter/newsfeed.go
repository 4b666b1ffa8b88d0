package adapter

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/fundflow/fundflow/internal/model"
	"github.com/fundflow/fundflow/internal/resilience"
)

// Newsfeed is the final-fallback identity hunter: when a project is on no
// tracker, news search still surfaces its official website and a working
// description. Lowest trust weight in the registry.
type Newsfeed struct {
	coverage
	http    *httpClient
	baseURL string
	apiKey  string
	trust   float64
}

type newsEnvelope struct {
	Articles []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		Content     string `json:"content"`
	} `json:"articles"`
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"')]+`)

// trackerHosts are link shapes that never point at a project's own site.
var trackerHosts = []string{
	"twitter.com", "x.com", "t.me", "medium.com", "youtube.com",
	"globenewswire", "prnewswire", "cryptorank", "coingecko", "coindesk",
	"cointelegraph", "news.",
}

// NewNewsfeed creates the news-search fallback adapter.
func NewNewsfeed(baseURL, apiKey string, trust float64) *Newsfeed {
	if baseURL == "" {
		baseURL = "https://newsapi.org/v2"
	}
	return &Newsfeed{
		coverage: newCoverage(
			model.FieldWebsite,
			model.FieldDescription,
		),
		// News search endpoints drop requests under load far more often than
		// the trackers, so this adapter retries transient failures.
		http: newHTTPClient("newsfeed", 15*time.Second, 0.5).withRetry(resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     4 * time.Second,
		}),
		baseURL: baseURL,
		apiKey:  apiKey,
		trust:   trust,
	}
}

func (n *Newsfeed) Name() string         { return "newsfeed" }
func (n *Newsfeed) TrustWeight() float64 { return n.trust }

// Fetch searches recent news for the project and mines article text for an
// official-looking website. No articles is a negative result.
func (n *Newsfeed) Fetch(ctx context.Context, slug string) (*model.CandidateRecord, error) {
	name := strings.ReplaceAll(slug, "-", " ")

	q := url.Values{}
	q.Set("q", `"`+name+`" crypto`)
	q.Set("apiKey", n.apiKey)
	q.Set("pageSize", "10")

	var env newsEnvelope
	if err := n.http.getJSON(ctx, n.baseURL+"/everything?"+q.Encode(), &env); err != nil {
		if resilience.IsNotFound(err) {
			return &model.CandidateRecord{Source: n.Name(), ObservedAt: time.Now().UTC()}, nil
		}
		return nil, err
	}

	rec := &model.CandidateRecord{Source: n.Name(), ObservedAt: time.Now().UTC()}
	compact := strings.ReplaceAll(slug, "-", "")

	for _, art := range env.Articles {
		text := art.URL + " " + art.Title + " " + art.Description + " " + art.Content
		for _, found := range urlPattern.FindAllString(text, -1) {
			found = strings.TrimRight(found, ".,)/")
			if !looksOfficial(found, compact) {
				continue
			}
			if rec.Fields == nil {
				rec.Fields = map[string]any{}
			}
			if _, ok := rec.Fields[model.FieldWebsite]; !ok {
				rec.Fields[model.FieldWebsite] = found
			}
		}
		if art.Description != "" && rec.Fields[model.FieldDescription] == nil &&
			strings.Contains(strings.ToLower(art.Description), name) {
			if rec.Fields == nil {
				rec.Fields = map[string]any{}
			}
			rec.Fields[model.FieldDescription] = art.Description
		}
	}

	return rec, nil
}

// looksOfficial filters out trackers and social hosts and requires the
// project's compact name to appear in the host.
func looksOfficial(link, compactName string) bool {
	lower := strings.ToLower(link)
	for _, host := range trackerHosts {
		if strings.Contains(lower, host) {
			return false
		}
	}
	return strings.Contains(strings.ReplaceAll(lower, "-", ""), compactName)
}
