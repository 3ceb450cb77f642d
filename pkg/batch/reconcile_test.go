package batch

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/paoliniluis/similarity/pkg/apperrors"
	"github.com/paoliniluis/similarity/pkg/models"
	"github.com/paoliniluis/similarity/pkg/repositories"
)

type fakeQuestionRepo struct {
	questions []*models.Question
	nextID    int64
	updates   int
}

var _ repositories.QuestionRepository = (*fakeQuestionRepo)(nil)

func (f *fakeQuestionRepo) find(sourceType models.SourceType, sourceID int64, question string) *models.Question {
	for _, q := range f.questions {
		if q.SourceType == sourceType && q.SourceID == sourceID &&
			strings.EqualFold(q.Question, question) {
			return q
		}
	}
	return nil
}

func (f *fakeQuestionRepo) Insert(ctx context.Context, q *models.Question) error {
	if f.find(q.SourceType, q.SourceID, q.Question) != nil {
		return apperrors.ErrAlreadyExists
	}
	f.nextID++
	q.ID = f.nextID
	f.questions = append(f.questions, q)
	return nil
}

func (f *fakeQuestionRepo) GetByIDs(ctx context.Context, ids []int64) ([]*models.Question, error) {
	return nil, nil
}

func (f *fakeQuestionRepo) GetBySourceAndQuestion(ctx context.Context, sourceType models.SourceType, sourceID int64, question string) (*models.Question, error) {
	if q := f.find(sourceType, sourceID, question); q != nil {
		return q, nil
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeQuestionRepo) UpdateAnswer(ctx context.Context, id int64, answer string) error {
	for _, q := range f.questions {
		if q.ID == id {
			q.Answer = answer
			f.updates++
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (f *fakeQuestionRepo) PatchEmbedding(ctx context.Context, id int64, column string, vec []float32) error {
	return nil
}

func (f *fakeQuestionRepo) ScanMissingEmbeddings(ctx context.Context, limit int) ([]repositories.QuestionEmbeddingWork, error) {
	return nil, nil
}

type fakeVocabulary struct {
	concepts map[string]string
}

var _ Vocabulary = (*fakeVocabulary)(nil)

func (f *fakeVocabulary) FindRelevant(ctx context.Context, text string) ([]models.RelevantKeyword, error) {
	return nil, nil
}

func (f *fakeVocabulary) UpsertExtracted(ctx context.Context, concept, definition string) error {
	if f.concepts == nil {
		f.concepts = make(map[string]string)
	}
	f.concepts[concept] = definition
	return nil
}

func (f *fakeVocabulary) MergeAnswers(ctx context.Context, question, existing, incoming string) (string, error) {
	return existing + " | " + incoming, nil
}

func questionOrchestrator(t *testing.T, repo repositories.QuestionRepository) *Orchestrator {
	t.Helper()
	return &Orchestrator{
		questionRepo: repo,
		vocabulary:   &fakeVocabulary{},
		logger:       zaptest.NewLogger(t),
	}
}

func TestApplyQuestions_InsertsNewPairs(t *testing.T) {
	repo := &fakeQuestionRepo{}
	o := questionOrchestrator(t, repo)
	bp := &models.BatchProcess{OperationType: OpCreateQuestions, TableName: "issues"}

	err := o.applyQuestions(context.Background(), bp, 7, &entityResult{
		Questions: []qaPair{{Question: "How do I share a dashboard?", Answer: "Use public links."}},
	})
	require.NoError(t, err)
	require.Len(t, repo.questions, 1)
	assert.Equal(t, "Use public links.", repo.questions[0].Answer)
}

func TestApplyQuestions_MergesDuplicateAnswers(t *testing.T) {
	repo := &fakeQuestionRepo{}
	o := questionOrchestrator(t, repo)
	bp := &models.BatchProcess{OperationType: OpCreateQuestions, TableName: "issues"}

	require.NoError(t, repo.Insert(context.Background(), &models.Question{
		SourceType: models.SourceIssue,
		SourceID:   7,
		Question:   "How do I share a dashboard?",
		Answer:     "Use public links.",
	}))

	err := o.applyQuestions(context.Background(), bp, 7, &entityResult{
		Questions: []qaPair{{Question: "how do i share a dashboard?", Answer: "Enable public sharing first."}},
	})
	require.NoError(t, err)
	require.Len(t, repo.questions, 1, "duplicate question is not inserted twice")
	assert.Equal(t, "Use public links. | Enable public sharing first.", repo.questions[0].Answer)
	assert.Equal(t, 1, repo.updates)
}

func TestApplyQuestions_DuplicateNoopCases(t *testing.T) {
	repo := &fakeQuestionRepo{}
	o := questionOrchestrator(t, repo)
	bp := &models.BatchProcess{OperationType: OpCreateQuestions, TableName: "issues"}

	require.NoError(t, repo.Insert(context.Background(), &models.Question{
		SourceType: models.SourceIssue,
		SourceID:   7,
		Question:   "How do I share a dashboard?",
		Answer:     "Use public links.",
	}))

	t.Run("identical answer", func(t *testing.T) {
		err := o.applyQuestions(context.Background(), bp, 7, &entityResult{
			Questions: []qaPair{{Question: "How do I share a dashboard?", Answer: "Use public links."}},
		})
		require.NoError(t, err)
		assert.Zero(t, repo.updates)
	})

	t.Run("blank incoming answer", func(t *testing.T) {
		err := o.applyQuestions(context.Background(), bp, 7, &entityResult{
			Questions: []qaPair{{Question: "How do I share a dashboard?", Answer: "   "}},
		})
		require.NoError(t, err)
		assert.Zero(t, repo.updates)
	})
}

func TestApplyQuestions_EmptyStoredAnswerTakesIncoming(t *testing.T) {
	repo := &fakeQuestionRepo{}
	o := questionOrchestrator(t, repo)
	bp := &models.BatchProcess{OperationType: OpCreateQuestions, TableName: "issues"}

	require.NoError(t, repo.Insert(context.Background(), &models.Question{
		SourceType: models.SourceIssue,
		SourceID:   7,
		Question:   "How do I share a dashboard?",
	}))

	err := o.applyQuestions(context.Background(), bp, 7, &entityResult{
		Questions: []qaPair{{Question: "How do I share a dashboard?", Answer: "Use public links."}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Use public links.", repo.questions[0].Answer)
	assert.Equal(t, 1, repo.updates)
}
