// Package githubsource reads stack files through the GitHub contents API.
package githubsource

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"

	gogithub "github.com/google/go-github/v68/github"

	"github.com/nathantilsley/chart-stack/internal/stack/domain"
)

// Adapter implements ports.SourcePort for a single repository and ref.
type Adapter struct {
	client *gogithub.Client
	owner  string
	repo   string
	ref    string
}

// New creates a GitHub source. repository is "owner/name".
func New(client *gogithub.Client, repository, ref string) (*Adapter, error) {
	owner, name, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("github repository %q must have the form owner/name", repository)
	}
	return &Adapter{client: client, owner: owner, repo: name, ref: ref}, nil
}

// ReadFile fetches path at the configured ref.
func (a *Adapter) ReadFile(ctx context.Context, p string) ([]byte, error) {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")

	fileContent, _, resp, err := a.client.Repositories.GetContents(ctx, a.owner, a.repo, p, &gogithub.RepositoryContentGetOptions{
		Ref: a.ref,
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, domain.NewNotFoundError("file", fmt.Sprintf("%s/%s@%s:%s", a.owner, a.repo, a.ref, p))
		}
		return nil, fmt.Errorf("fetching %s: %w", p, err)
	}
	if fileContent == nil {
		return nil, fmt.Errorf("%s in %s/%s is a directory", p, a.owner, a.repo)
	}

	content, err := fileContent.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", p, err)
	}
	return []byte(content), nil
}
