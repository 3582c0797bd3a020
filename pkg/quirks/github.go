package quirks

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/go-github/v80/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"linkcheck/pkg/models"
	"linkcheck/pkg/uri"
)

var githubPattern = regexp.MustCompile(`^(www\.)?github\.com$`)

// GithubChecker retries failed github.com links through the API when a
// token is present. Repository pages that respond 404 or 429 to a plain GET
// (rate limiting, private-but-accessible repos) can still resolve through an
// authenticated repository lookup.
type GithubChecker struct {
	client *github.Client
	log    *logrus.Entry
}

// NewGithubChecker returns nil when token is empty, in which case failed
// github.com links keep their plain-request status.
func NewGithubChecker(token string, log *logrus.Entry) *GithubChecker {
	if token == "" {
		return nil
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	hc := oauth2.NewClient(context.Background(), ts)
	return &GithubChecker{client: github.NewClient(hc), log: log}
}

// Matches reports whether the URI points at a github.com owner/repo path the
// API can answer for.
func (g *GithubChecker) Matches(u *uri.Uri) bool {
	if g == nil || u.Kind() != uri.KindWebsite {
		return false
	}
	if !githubPattern.MatchString(u.Host()) {
		return false
	}
	owner, repo := splitRepoPath(u.Path())
	return owner != "" && repo != ""
}

// Check resolves the link through the repositories API.
func (g *GithubChecker) Check(ctx context.Context, u *uri.Uri) models.Status {
	owner, repo := splitRepoPath(u.Path())
	_, resp, err := g.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		code := 0
		if resp != nil {
			code = resp.StatusCode
		}
		g.log.WithFields(logrus.Fields{"owner": owner, "repo": repo, "code": code}).Debug("GitHub API lookup failed")
		if code == http.StatusNotFound {
			return models.ErrorStatus(err, "github repository not found")
		}
		return models.ErrorStatus(err, "github API error")
	}
	return models.Ok(http.StatusOK)
}

// splitRepoPath extracts "owner/repo" from a github.com path, dropping any
// deeper tree/blob/issue segments.
func splitRepoPath(path string) (owner, repo string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", ""
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git")
}
