package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fundflow/fundflow/internal/model"
	"github.com/fundflow/fundflow/internal/resilience"
)

// CoinGecko supplies token status and community stats for listed assets.
// Projects without a listed token come back as a clean negative result.
type CoinGecko struct {
	coverage
	http    *httpClient
	baseURL string
	trust   float64
}

type cgCoin struct {
	ID          string `json:"id"`
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Description struct {
		EN string `json:"en"`
	} `json:"description"`
	Links struct {
		Homepage []string `json:"homepage"`
		ReposURL struct {
			Github []string `json:"github"`
		} `json:"repos_url"`
		TwitterScreenName string `json:"twitter_screen_name"`
	} `json:"links"`
	CommunityData struct {
		TwitterFollowers *int `json:"twitter_followers"`
	} `json:"community_data"`
	Categories    []string `json:"categories"`
	CountryOrigin string   `json:"country_origin"`
}

// NewCoinGecko creates the CoinGecko adapter. An API key is optional; when
// present it is sent as the pro header.
func NewCoinGecko(baseURL, apiKey string, trust float64) *CoinGecko {
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}
	c := &CoinGecko{
		coverage: newCoverage(
			model.FieldHasToken,
			model.FieldTokenSymbol,
			model.FieldWebsite,
			model.FieldDescription,
			model.FieldCategory,
			model.FieldTwitterHandle,
			model.FieldTwitterFollowers,
			model.FieldGithubURL,
			model.FieldCountry,
		),
		http:    newHTTPClient("coingecko", 10*time.Second, 0.5),
		baseURL: baseURL,
		trust:   trust,
	}
	if apiKey != "" {
		c.http.setHeader("x-cg-pro-api-key", apiKey)
	}
	return c
}

func (c *CoinGecko) Name() string         { return "coingecko" }
func (c *CoinGecko) TrustWeight() float64 { return c.trust }

// Fetch looks the slug up as a CoinGecko coin id. CoinGecko ids are
// lowercase hyphenated names, which is exactly our slug normalization, so a
// direct lookup covers the common case and a 404 is the negative result.
func (c *CoinGecko) Fetch(ctx context.Context, slug string) (*model.CandidateRecord, error) {
	var coin cgCoin
	endpoint := fmt.Sprintf(
		"%s/coins/%s?localization=false&tickers=false&market_data=false&community_data=true",
		c.baseURL, slug,
	)
	if err := c.http.getJSON(ctx, endpoint, &coin); err != nil {
		if resilience.IsNotFound(err) {
			return &model.CandidateRecord{Source: c.Name(), ObservedAt: time.Now().UTC()}, nil
		}
		return nil, err
	}

	rec := &model.CandidateRecord{
		Source:     c.Name(),
		ObservedAt: time.Now().UTC(),
		Fields: map[string]any{
			model.FieldHasToken: true,
		},
	}
	if coin.Symbol != "" {
		rec.Fields[model.FieldTokenSymbol] = strings.ToUpper(coin.Symbol)
	}
	if len(coin.Links.Homepage) > 0 && coin.Links.Homepage[0] != "" {
		rec.Fields[model.FieldWebsite] = coin.Links.Homepage[0]
	}
	if desc := strings.TrimSpace(coin.Description.EN); desc != "" {
		rec.Fields[model.FieldDescription] = desc
	}
	if len(coin.Categories) > 0 && coin.Categories[0] != "" {
		rec.Fields[model.FieldCategory] = coin.Categories[0]
	}
	if coin.Links.TwitterScreenName != "" {
		rec.Fields[model.FieldTwitterHandle] = coin.Links.TwitterScreenName
	}
	if coin.CommunityData.TwitterFollowers != nil {
		rec.Fields[model.FieldTwitterFollowers] = *coin.CommunityData.TwitterFollowers
	}
	if repos := coin.Links.ReposURL.Github; len(repos) > 0 && repos[0] != "" {
		rec.Fields[model.FieldGithubURL] = repos[0]
	}
	if coin.CountryOrigin != "" {
		rec.Fields[model.FieldCountry] = coin.CountryOrigin
	}

	return rec, nil
}
