package adapter

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/fundflow/fundflow/internal/model"
	"github.com/fundflow/fundflow/internal/resilience"
)

// GitHub measures developer velocity: stars, forks, and 30-day commit
// activity. It is the hardest signal in the pipeline and carries the highest
// trust weight.
type GitHub struct {
	coverage
	http    *httpClient
	baseURL string
	trust   float64
}

type ghRepo struct {
	Name            string    `json:"name"`
	FullName        string    `json:"full_name"`
	StargazersCount int       `json:"stargazers_count"`
	ForksCount      int       `json:"forks_count"`
	PushedAt        time.Time `json:"pushed_at"`
}

// NewGitHub creates the GitHub adapter. A token raises the rate limit but is
// optional.
func NewGitHub(baseURL, token string, trust float64) *GitHub {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	g := &GitHub{
		coverage: newCoverage(
			model.FieldGithubStars,
			model.FieldGithubForks,
			model.FieldCommitVelocity30d,
			model.FieldGithubURL,
		),
		http:    newHTTPClient("github", 10*time.Second, 1),
		baseURL: baseURL,
		trust:   trust,
	}
	if token != "" {
		g.http.setHeader("Authorization", "token "+token)
	}
	return g
}

func (g *GitHub) Name() string         { return "github" }
func (g *GitHub) TrustWeight() float64 { return g.trust }

// Fetch treats the slug as a GitHub organization, resolves its most-starred
// recently-pushed repository, and measures commit velocity over 30 days.
func (g *GitHub) Fetch(ctx context.Context, slug string) (*model.CandidateRecord, error) {
	repo, err := g.resolveOrgRepo(ctx, slug)
	if err != nil {
		if resilience.IsNotFound(err) {
			return &model.CandidateRecord{Source: g.Name(), ObservedAt: time.Now().UTC()}, nil
		}
		return nil, err
	}

	rec := &model.CandidateRecord{
		Source:     g.Name(),
		ObservedAt: time.Now().UTC(),
		Fields: map[string]any{
			model.FieldGithubStars: repo.StargazersCount,
			model.FieldGithubForks: repo.ForksCount,
			model.FieldGithubURL:   "https://github.com/" + repo.FullName,
		},
	}

	// Commit velocity is a second call; its failure degrades the record
	// rather than discarding the stars already in hand.
	if velocity, err := g.commitVelocity(ctx, repo.FullName); err == nil {
		rec.Fields[model.FieldCommitVelocity30d] = velocity
	}

	return rec, nil
}

func (g *GitHub) resolveOrgRepo(ctx context.Context, org string) (*ghRepo, error) {
	var repos []ghRepo
	endpoint := fmt.Sprintf("%s/orgs/%s/repos?sort=pushed&per_page=10", g.baseURL, url.PathEscape(org))
	if err := g.http.getJSON(ctx, endpoint, &repos); err != nil {
		return nil, err
	}
	if len(repos) == 0 {
		return nil, resilience.ErrNotFoundUpstream
	}

	best := repos[0]
	for _, r := range repos[1:] {
		if r.StargazersCount > best.StargazersCount {
			best = r
		}
	}
	return &best, nil
}

func (g *GitHub) commitVelocity(ctx context.Context, fullName string) (int, error) {
	since := time.Now().UTC().AddDate(0, 0, -30).Format(time.RFC3339)
	endpoint := fmt.Sprintf("%s/repos/%s/commits?since=%s&per_page=100",
		g.baseURL, fullName, url.QueryEscape(since))

	var commits []struct {
		SHA string `json:"sha"`
	}
	if err := g.http.getJSON(ctx, endpoint, &commits); err != nil {
		return 0, err
	}
	return len(commits), nil
}

// CodeSignal maps a commit velocity to the qualitative developer-health label
// used in report summaries.
func CodeSignal(velocity30d int) string {
	switch {
	case velocity30d > 50:
		return "industrial grade shipping"
	case velocity30d > 10:
		return "actively maintained"
	case velocity30d > 0:
		return "maintenance mode"
	default:
		return "stale repository"
	}
}
