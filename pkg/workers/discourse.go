package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/paoliniluis/similarity/pkg/apperrors"
	"github.com/paoliniluis/similarity/pkg/config"
	"github.com/paoliniluis/similarity/pkg/embedding"
	"github.com/paoliniluis/similarity/pkg/models"
	"github.com/paoliniluis/similarity/pkg/repositories"
	"github.com/paoliniluis/similarity/pkg/search"
)

// discourseTopic is one entry of the /latest.json topic list.
type discourseTopic struct {
	ID        int       `json:"id"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// discourseTopicList is the paging envelope of /latest.json.
type discourseTopicList struct {
	TopicList struct {
		Topics        []discourseTopic `json:"topics"`
		MoreTopicsURL string           `json:"more_topics_url"`
		PerPage       int              `json:"per_page"`
	} `json:"topic_list"`
}

// TopicPost is one post of a forum conversation as returned by the
// Discourse API.
type TopicPost struct {
	Username string `json:"username"`
	Cooked   string `json:"cooked"`
}

// discourseConversation is the post stream of /t/{slug}/{id}.json.
type discourseConversation struct {
	PostStream struct {
		Posts []TopicPost `json:"posts"`
	} `json:"post_stream"`
}

// DiscourseWorker monitors the forum for new topics and stores each one
// with its combined conversation text and embedding.
type DiscourseWorker struct {
	cfg           *config.DiscourseConfig
	discourseRepo repositories.DiscourseRepository
	searcher      *search.Engine
	embeddings    *embedding.Service
	client        *http.Client
	logger        *zap.Logger
}

// NewDiscourseWorker builds a DiscourseWorker.
func NewDiscourseWorker(
	cfg *config.DiscourseConfig,
	discourseRepo repositories.DiscourseRepository,
	searcher *search.Engine,
	embeddings *embedding.Service,
	logger *zap.Logger,
) *DiscourseWorker {
	return &DiscourseWorker{
		cfg:           cfg,
		discourseRepo: discourseRepo,
		searcher:      searcher,
		embeddings:    embeddings,
		client:        &http.Client{Timeout: 30 * time.Second},
		logger:        logger,
	}
}

var _ Worker = (*DiscourseWorker)(nil)

func (w *DiscourseWorker) Name() string { return "discourse_posts" }

// RunCycle fetches topics newer than the latest stored topic id, pulls
// each topic's full conversation, and persists it with an embedding.
func (w *DiscourseWorker) RunCycle(ctx context.Context) (int, error) {
	latest, err := w.discourseRepo.LatestTopicID(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read latest topic id: %w", err)
	}

	newTopics, err := w.fetchNewTopics(ctx, latest)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, topic := range newTopics {
		if err := w.processTopic(ctx, &topic); err != nil {
			w.logger.Error("failed to process topic",
				zap.Int("topic_id", topic.ID),
				zap.Error(err))
			continue
		}
		processed++
	}
	return processed, nil
}

// fetchNewTopics pages through /latest.json newest-first until it meets a
// known topic id, an empty page, or the page limit.
func (w *DiscourseWorker) fetchNewTopics(ctx context.Context, latestKnown int) ([]discourseTopic, error) {
	var newTopics []discourseTopic

	for page := 0; page < w.cfg.MaxPages; page++ {
		url := w.cfg.BaseURL + "/latest.json?order=desc"
		if page > 0 {
			url += fmt.Sprintf("&page=%d", page)
		}

		var list discourseTopicList
		if err := w.getJSON(ctx, url, &list); err != nil {
			return nil, fmt.Errorf("failed to fetch topics page %d: %w", page, err)
		}
		topics := list.TopicList.Topics
		if len(topics) == 0 {
			break
		}

		foundExisting := false
		for _, topic := range topics {
			if topic.ID <= latestKnown {
				foundExisting = true
				break
			}
			newTopics = append(newTopics, topic)
		}
		if foundExisting {
			break
		}

		perPage := list.TopicList.PerPage
		if perPage == 0 {
			perPage = 30
		}
		if list.TopicList.MoreTopicsURL == "" && len(topics) < perPage {
			break
		}
	}
	return newTopics, nil
}

func (w *DiscourseWorker) processTopic(ctx context.Context, topic *discourseTopic) error {
	url := fmt.Sprintf("%s/t/%s/%d.json", w.cfg.BaseURL, topic.Slug, topic.ID)
	var conversation discourseConversation
	if err := w.getJSON(ctx, url, &conversation); err != nil {
		return fmt.Errorf("failed to fetch conversation: %w", err)
	}

	combined := CombineTopicPosts(topic.Title, conversation.PostStream.Posts)

	post := &models.DiscoursePost{
		TopicID:      topic.ID,
		Title:        topic.Title,
		Slug:         topic.Slug,
		Conversation: combined,
		CreatedAt:    topic.CreatedAt,
	}
	if err := w.discourseRepo.Create(ctx, post); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			w.logger.Info("topic already stored", zap.Int("topic_id", topic.ID))
			return nil
		}
		return err
	}

	if vec, err := w.embeddings.Embed(ctx, combined); err == nil {
		if err := w.discourseRepo.PatchEmbedding(ctx, post.ID, "conversation_embedding", vec); err != nil {
			w.logger.Warn("failed to store conversation embedding", zap.Int64("id", post.ID), zap.Error(err))
		}
	} else {
		w.logger.Warn("conversation embedding failed", zap.Int("topic_id", topic.ID), zap.Error(err))
	}

	// Surface related known issues in the log for forum moderators.
	if similar, err := w.searcher.SimilarIssues(ctx, topic.Title+"\n\n"+combined, ""); err == nil && len(similar) > 0 {
		w.logger.Info("found similar issues for topic",
			zap.Int("topic_id", topic.ID),
			zap.Int("matches", len(similar)))
	}

	w.logger.Info("saved topic", zap.Int("topic_id", topic.ID))
	return nil
}

var (
	anchorPattern     = regexp.MustCompile(`(?s)<a\s+href=["']([^"']+)["'][^>]*>([^<]+)</a>`)
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	controlPattern    = regexp.MustCompile("[\x00-\x08\x0B\x0C\x0E-\x1F]")
	blankLinesPattern = regexp.MustCompile(`\n\s*\n`)
	spacesPattern     = regexp.MustCompile(` +`)
)

// decodeCookedHTML turns a Discourse "cooked" HTML fragment into plain
// text. Links are kept in a readable form since they often carry the
// actual answer.
func decodeCookedHTML(cooked string) string {
	if cooked == "" {
		return ""
	}
	text := anchorPattern.ReplaceAllString(cooked, "[LINK: $2 -> $1]")
	text = tagPattern.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	text = controlPattern.ReplaceAllString(text, "")
	text = blankLinesPattern.ReplaceAllString(text, "\n\n")
	text = spacesPattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// CombineTopicPosts renders a topic title and all its posts, in order,
// into a single text suitable for storage and embedding.
func CombineTopicPosts(title string, posts []TopicPost) string {
	if len(posts) == 0 {
		return title
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n\n", title)
	for i, post := range posts {
		text := decodeCookedHTML(post.Cooked)
		if text == "" {
			continue
		}
		username := post.Username
		if username == "" {
			username = "Unknown"
		}
		fmt.Fprintf(&b, "Post %d (by %s):\n%s\n\n", i+1, username, text)
	}
	return strings.TrimSpace(b.String())
}

func (w *DiscourseWorker) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "MetabaseDuplicateFinder/1.0")
	if w.cfg.APIKey != "" && w.cfg.APIUsername != "" {
		req.Header.Set("Api-Key", w.cfg.APIKey)
		req.Header.Set("Api-Username", w.cfg.APIUsername)
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
