package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/paoliniluis/similarity/pkg/apperrors"
	"github.com/paoliniluis/similarity/pkg/config"
	"github.com/paoliniluis/similarity/pkg/embedding"
	"github.com/paoliniluis/similarity/pkg/models"
	"github.com/paoliniluis/similarity/pkg/repositories"
	"github.com/paoliniluis/similarity/pkg/search"
)

// githubIssue is the subset of the GitHub issues API payload we consume.
// The pull_request key only appears on PRs, which the issues endpoint
// also returns.
type githubIssue struct {
	Number      int       `json:"number"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	State       string    `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	PullRequest *struct{} `json:"pull_request,omitempty"`
	User        struct {
		Login string `json:"login"`
	} `json:"user"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

// GitHubWorker monitors the upstream repository for new issues, comments
// with likely duplicates, and stores each new issue with embeddings.
type GitHubWorker struct {
	cfg        *config.GitHubConfig
	issueRepo  repositories.IssueRepository
	searcher   *search.Engine
	embeddings *embedding.Service
	client     *http.Client
	logger     *zap.Logger
}

// NewGitHubWorker builds a GitHubWorker.
func NewGitHubWorker(
	cfg *config.GitHubConfig,
	issueRepo repositories.IssueRepository,
	searcher *search.Engine,
	embeddings *embedding.Service,
	logger *zap.Logger,
) *GitHubWorker {
	return &GitHubWorker{
		cfg:        cfg,
		issueRepo:  issueRepo,
		searcher:   searcher,
		embeddings: embeddings,
		client:     &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

var _ Worker = (*GitHubWorker)(nil)

func (w *GitHubWorker) Name() string { return "github_issues" }

// RunCycle fetches issues newer than the latest stored one, runs the
// duplicate search on each before persisting it, and comments when
// sufficiently similar issues exist.
func (w *GitHubWorker) RunCycle(ctx context.Context) (int, error) {
	latest, err := w.issueRepo.LatestNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read latest issue number: %w", err)
	}

	newIssues, err := w.fetchNewIssues(ctx, latest)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, issue := range newIssues {
		if issue.User.Login == "github-actions[bot]" {
			w.logger.Info("skipping bot-created issue", zap.Int("number", issue.Number))
			continue
		}
		if err := w.processIssue(ctx, &issue); err != nil {
			w.logger.Error("failed to process issue",
				zap.Int("number", issue.Number),
				zap.Error(err))
			continue
		}
		processed++
	}
	return processed, nil
}

// fetchNewIssues pages through open issues newest-first, stopping at the
// first already-stored number. Pull requests are filtered out.
func (w *GitHubWorker) fetchNewIssues(ctx context.Context, latestKnown int) ([]githubIssue, error) {
	var newIssues []githubIssue

	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/repos/%s/%s/issues?state=open&sort=created&direction=desc&per_page=100&page=%d",
			w.cfg.APIBase, w.cfg.RepoOwner, w.cfg.RepoName, page)

		var pageIssues []githubIssue
		if err := w.getJSON(ctx, url, &pageIssues); err != nil {
			return nil, fmt.Errorf("failed to fetch issues page %d: %w", page, err)
		}
		if len(pageIssues) == 0 {
			break
		}

		foundExisting := false
		for _, issue := range pageIssues {
			if issue.Number <= latestKnown {
				foundExisting = true
				break
			}
			if issue.PullRequest != nil {
				continue
			}
			newIssues = append(newIssues, issue)
		}
		if foundExisting {
			break
		}
	}
	return newIssues, nil
}

// processIssue searches for duplicates before the issue enters the corpus
// so it cannot match itself, comments if any pass the threshold, then
// persists the issue with title and body embeddings.
func (w *GitHubWorker) processIssue(ctx context.Context, issue *githubIssue) error {
	text := issue.Title + "\n\n" + issue.Body
	similar, err := w.searcher.SimilarIssues(ctx, text, "")
	if err != nil {
		w.logger.Warn("duplicate search failed",
			zap.Int("number", issue.Number),
			zap.Error(err))
	} else if len(similar) > 0 {
		if err := w.postDuplicateComment(ctx, issue.Number, issue.User.Login, similar); err != nil {
			w.logger.Error("failed to post duplicate comment",
				zap.Int("number", issue.Number),
				zap.Error(err))
		}
	}
	return w.saveIssue(ctx, issue)
}

func (w *GitHubWorker) saveIssue(ctx context.Context, gh *githubIssue) error {
	labels := make([]string, len(gh.Labels))
	for i, l := range gh.Labels {
		labels[i] = l.Name
	}

	issue := &models.Issue{
		Number:    gh.Number,
		Title:     gh.Title,
		Body:      gh.Body,
		State:     gh.State,
		Labels:    labels,
		UserLogin: gh.User.Login,
		CreatedAt: gh.CreatedAt,
		UpdatedAt: gh.UpdatedAt,
	}
	if err := w.issueRepo.Create(ctx, issue); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			w.logger.Info("issue already stored", zap.Int("number", gh.Number))
			return nil
		}
		return err
	}

	// Title and body embeddings are written right away; the summary
	// embedding follows once the summary worker has produced one.
	if issue.Title != "" {
		if vec, err := w.embeddings.Embed(ctx, issue.Title); err == nil {
			if err := w.issueRepo.PatchEmbedding(ctx, issue.ID, "title_embedding", vec); err != nil {
				w.logger.Warn("failed to store title embedding", zap.Int64("id", issue.ID), zap.Error(err))
			}
		} else {
			w.logger.Warn("title embedding failed", zap.Int("number", gh.Number), zap.Error(err))
		}
	}
	if issue.Body != "" {
		if vec, err := w.embeddings.Embed(ctx, issue.Body); err == nil {
			if err := w.issueRepo.PatchEmbedding(ctx, issue.ID, "issue_embedding", vec); err != nil {
				w.logger.Warn("failed to store body embedding", zap.Int64("id", issue.ID), zap.Error(err))
			}
		} else {
			w.logger.Warn("body embedding failed", zap.Int("number", gh.Number), zap.Error(err))
		}
	}

	w.logger.Info("saved issue", zap.Int("number", issue.Number))
	return nil
}

// postDuplicateComment comments on the issue with every match above the
// configured threshold. No matches above the bar means no comment.
func (w *GitHubWorker) postDuplicateComment(ctx context.Context, issueNumber int, creator string, similar []models.SimilarIssue) error {
	var high []models.SimilarIssue
	for _, s := range similar {
		if s.SimilarityScore > w.cfg.CommentThreshold {
			high = append(high, s)
		}
	}
	if len(high) == 0 {
		w.logger.Info("no duplicates above comment threshold", zap.Int("number", issueNumber))
		return nil
	}
	if w.cfg.Token == "" {
		w.logger.Warn("no GitHub token configured, cannot post comments")
		return nil
	}

	body := fmt.Sprintf("🤖 Hi @%s! Our bot has found potential duplicates of this issue:\n\n", creator)
	for _, s := range high {
		body += fmt.Sprintf("- [#%d: %s](%s) - %.1f%% similar\n", s.Number, s.Title, s.URL, s.SimilarityScore*100)
	}

	payload, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments",
		w.cfg.APIBase, w.cfg.RepoOwner, w.cfg.RepoName, issueNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "token "+w.cfg.Token)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("comment request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("comment returned %d: %s", resp.StatusCode, respBody)
	}
	w.logger.Info("posted duplicate comment",
		zap.Int("number", issueNumber),
		zap.Int("matches", len(high)))
	return nil
}

func (w *GitHubWorker) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if w.cfg.Token != "" {
		req.Header.Set("Authorization", "token "+w.cfg.Token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request returned %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
