// Package codehost talks to the code-hosting provider (GitHub). Read
// operations are exposed directly; every write operation is only reachable
// through internal/writegate, which enforces the approval check before
// delegating here (§4.6, Gate1).
package codehost

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/workflowforge/internal/config"
	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// Client is the narrow set of code-host operations the stage workers and
// the write gate need. It is implemented by *GitHubClient and by fakes in
// tests.
type Client interface {
	GetFileContents(ctx context.Context, owner, repo, path, ref string) ([]byte, error)
	GetBranch(ctx context.Context, owner, repo, branch string) (sha string, err error)
	ListWorkflowRuns(ctx context.Context, owner, repo, headSha string) ([]WorkflowRun, error)

	CreateBranch(ctx context.Context, owner, repo, branch, fromSha string) error
	UpdateFile(ctx context.Context, owner, repo, path, branch, message string, content []byte) error
	OpenPullRequest(ctx context.Context, owner, repo, head, base, title, body string) (number int, err error)
	DispatchWorkflow(ctx context.Context, owner, repo, workflowFile, ref string, inputs map[string]interface{}) error
}

// WorkflowRun is the subset of a CI run's state the orchestrator cares
// about: did it finish, and did it pass.
type WorkflowRun struct {
	ID         int64
	Status     string
	Conclusion string
	HTMLURL    string
}

// GitHubClient implements Client against the real GitHub API, wrapped with
// exponential-backoff retry (retry.go) and a circuit breaker + rate limiter
// (ratelimit.go).
type GitHubClient struct {
	gh      *github.Client
	retry   *RetryConfig
	limiter *OutboundLimiter
}

// NewGitHubClient authenticates with a personal access token or GitHub App
// installation token and wraps the resulting client with retry and
// rate-limiting middleware.
func NewGitHubClient(ctx context.Context, token config.Secret, limiter *OutboundLimiter) (*GitHubClient, error) {
	if !token.IsSet() {
		return nil, fmt.Errorf("codehost: GitHub token not set")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token.Value()})
	tc := oauth2.NewClient(ctx, ts)

	if limiter == nil {
		limiter = NewOutboundLimiter(DefaultLimiterConfig())
	}
	return &GitHubClient{gh: github.NewClient(tc), retry: DefaultRetryConfig(), limiter: limiter}, nil
}

func (c *GitHubClient) GetFileContents(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	var content []byte
	err := c.limiter.Do(ctx, fmt.Sprintf("get-file:%s/%s/%s@%s", owner, repo, path, ref), func() error {
		return c.withRetry(ctx, func() (*github.Response, error) {
			fileContent, _, resp, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
			if err != nil {
				return resp, err
			}
			decoded, err := fileContent.GetContent()
			if err != nil {
				return resp, fmt.Errorf("decoding file contents: %w", err)
			}
			content = []byte(decoded)
			return resp, nil
		})
	})
	return content, err
}

func (c *GitHubClient) GetBranch(ctx context.Context, owner, repo, branch string) (string, error) {
	var sha string
	err := c.limiter.Do(ctx, fmt.Sprintf("get-branch:%s/%s/%s", owner, repo, branch), func() error {
		return c.withRetry(ctx, func() (*github.Response, error) {
			b, resp, err := c.gh.Repositories.GetBranch(ctx, owner, repo, branch, 1)
			if err != nil {
				return resp, err
			}
			if b.Commit != nil {
				sha = b.Commit.GetSHA()
			}
			return resp, nil
		})
	})
	return sha, err
}

func (c *GitHubClient) ListWorkflowRuns(ctx context.Context, owner, repo, headSha string) ([]WorkflowRun, error) {
	var out []WorkflowRun
	err := c.limiter.Do(ctx, fmt.Sprintf("list-runs:%s/%s@%s", owner, repo, headSha), func() error {
		return c.withRetry(ctx, func() (*github.Response, error) {
			runs, resp, err := c.gh.Actions.ListRepositoryWorkflowRuns(ctx, owner, repo, &github.ListWorkflowRunsOptions{HeadSHA: headSha})
			if err != nil {
				return resp, err
			}
			out = out[:0]
			for _, r := range runs.WorkflowRuns {
				out = append(out, WorkflowRun{ID: r.GetID(), Status: r.GetStatus(), Conclusion: r.GetConclusion(), HTMLURL: r.GetHTMLURL()})
			}
			return resp, nil
		})
	})
	return out, err
}

func (c *GitHubClient) CreateBranch(ctx context.Context, owner, repo, branch, fromSha string) error {
	ref := "refs/heads/" + branch
	return c.limiter.Do(ctx, fmt.Sprintf("create-branch:%s/%s/%s", owner, repo, branch), func() error {
		return c.withRetry(ctx, func() (*github.Response, error) {
			_, resp, err := c.gh.Git.CreateRef(ctx, owner, repo, &github.Reference{
				Ref:    &ref,
				Object: &github.GitObject{SHA: &fromSha},
			})
			return resp, err
		})
	})
}

func (c *GitHubClient) UpdateFile(ctx context.Context, owner, repo, path, branch, message string, content []byte) error {
	return c.limiter.Do(ctx, fmt.Sprintf("update-file:%s/%s/%s@%s", owner, repo, path, branch), func() error {
		return c.withRetry(ctx, func() (*github.Response, error) {
			existing, _, getResp, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: branch})
			opts := &github.RepositoryContentFileOptions{
				Message: &message,
				Content: content,
				Branch:  &branch,
			}
			if err == nil && existing != nil {
				opts.SHA = existing.SHA
			}
			_, resp, err := c.gh.Repositories.UpdateFile(ctx, owner, repo, path, opts)
			if err != nil {
				return resp, err
			}
			_ = getResp
			return resp, nil
		})
	})
}

// OpenPullRequest creates a pull request for head against base, unless one
// is already open for that head branch, in which case it returns the
// existing PR number. This makes PR creation idempotent under retries and
// orchestrator re-delivery of the same apply_patches job (§5).
func (c *GitHubClient) OpenPullRequest(ctx context.Context, owner, repo, head, base, title, body string) (int, error) {
	var number int
	err := c.limiter.Do(ctx, fmt.Sprintf("open-pr:%s/%s/%s->%s", owner, repo, head, base), func() error {
		return c.withRetry(ctx, func() (*github.Response, error) {
			existing, resp, err := c.gh.PullRequests.List(ctx, owner, repo, &github.PullRequestListOptions{
				Head:  fmt.Sprintf("%s:%s", owner, head),
				Base:  base,
				State: "open",
			})
			if err != nil {
				return resp, err
			}
			if len(existing) > 0 {
				number = existing[0].GetNumber()
				return resp, nil
			}

			pr, createResp, err := c.gh.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
				Title: &title,
				Head:  &head,
				Base:  &base,
				Body:  &body,
			})
			if err != nil {
				return createResp, err
			}
			number = pr.GetNumber()
			return createResp, nil
		})
	})
	return number, err
}

func (c *GitHubClient) DispatchWorkflow(ctx context.Context, owner, repo, workflowFile, ref string, inputs map[string]interface{}) error {
	return c.limiter.Do(ctx, fmt.Sprintf("dispatch:%s/%s/%s@%s", owner, repo, workflowFile, ref), func() error {
		return c.withRetry(ctx, func() (*github.Response, error) {
			resp, err := c.gh.Actions.CreateWorkflowDispatchEventByFileName(ctx, owner, repo, workflowFile, github.CreateWorkflowDispatchEventRequest{
				Ref:    ref,
				Inputs: inputs,
			})
			return resp, err
		})
	})
}
