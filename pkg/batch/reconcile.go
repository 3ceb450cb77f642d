package batch

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/paoliniluis/similarity/pkg/apperrors"
	"github.com/paoliniluis/similarity/pkg/llm"
	"github.com/paoliniluis/similarity/pkg/models"
)

// resultLine is one JSONL line of a provider results file.
type resultLine struct {
	CustomID string          `json:"custom_id"`
	Error    json.RawMessage `json:"error"`
	Response struct {
		Body struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		} `json:"body"`
	} `json:"response"`
}

// entityResult is the per-entity payload recovered from a model response.
// Fields not relevant to the operation stay zero.
type entityResult struct {
	ID              json.RawMessage `json:"id"`
	Summary         string          `json:"summary"`
	ReportedVersion *string         `json:"reported_version"`
	StackTraceFile  *string         `json:"stack_trace_file"`
	Questions       []qaPair        `json:"questions"`
	Concepts        []conceptPair   `json:"concepts"`
}

type qaPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type conceptPair struct {
	Concept    string `json:"concept"`
	Definition string `json:"definition"`
}

// containerKeys are the wrapper keys models put around result arrays
// despite being asked for a bare structure.
var containerKeys = []string{"results", "issues", "documents", "conversations", "items", "entries"}

// Reconcile parses a downloaded results file and applies every recoverable
// entity result to the database. Malformed responses are salvaged where
// possible and counted as failures where not; one bad line never aborts
// the rest.
func (o *Orchestrator) Reconcile(ctx context.Context, bp *models.BatchProcess, resultsPath string) (int, int, error) {
	f, err := os.Open(resultsPath)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open results file: %w", err)
	}
	defer f.Close()

	processed := 0
	failed := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var result resultLine
		if err := json.Unmarshal([]byte(line), &result); err != nil {
			o.logger.Error("failed to parse results line", zap.Error(err))
			failed++
			continue
		}

		ok, bad := o.reconcileLine(ctx, bp, &result)
		processed += ok
		failed += bad
	}
	if err := scanner.Err(); err != nil {
		return processed, failed, fmt.Errorf("failed to read results file: %w", err)
	}
	return processed, failed, nil
}

func (o *Orchestrator) reconcileLine(ctx context.Context, bp *models.BatchProcess, result *resultLine) (processed, failed int) {
	log := o.logger.With(zap.String("custom_id", result.CustomID))

	if len(result.Error) > 0 && string(result.Error) != "null" {
		log.Error("provider reported request error", zap.ByteString("error", result.Error))
		return 0, 1
	}

	if len(result.Response.Body.Choices) == 0 {
		log.Error("result carries no choices")
		return 0, 1
	}
	content := strings.TrimSpace(result.Response.Body.Choices[0].Message.Content)
	if len(content) < 10 {
		log.Error("response content too short")
		return 0, 1
	}
	if llm.LooksTruncated(content) {
		log.Warn("response appears truncated")
	}

	entityResults, err := parseEntityResults(content)
	if err != nil {
		log.Error("failed to recover entity results", zap.Error(err))
		return 0, 1
	}

	submittedIDs, err := ParseCustomID(result.CustomID)
	if err != nil {
		log.Error("invalid custom_id", zap.Error(err))
		return 0, 1
	}
	submitted := make(map[int64]bool, len(submittedIDs))
	for _, id := range submittedIDs {
		submitted[id] = true
	}

	for _, er := range entityResults {
		entityID, err := coerceID(er.ID)
		if err != nil {
			log.Error("missing or invalid entity id in result", zap.Error(err))
			failed++
			continue
		}
		if !submitted[entityID] {
			log.Error("entity id not in submitted batch", zap.Int64("entity_id", entityID))
			failed++
			continue
		}

		if err := o.applyEntity(ctx, bp, entityID, &er); err != nil {
			log.Error("failed to apply entity result",
				zap.Int64("entity_id", entityID),
				zap.Error(err))
			failed++
			continue
		}
		processed++
	}
	return processed, failed
}

// parseEntityResults runs the recovery ladder over model output: strict
// parse, container unwrap, single-object wrap, then fragment salvage.
func parseEntityResults(content string) ([]entityResult, error) {
	payload := llm.ExtractJSON(content)

	var asList []entityResult
	if err := json.Unmarshal([]byte(payload), &asList); err == nil {
		return asList, nil
	}

	var asObject map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &asObject); err == nil {
		for _, key := range containerKeys {
			raw, ok := asObject[key]
			if !ok {
				continue
			}
			if err := json.Unmarshal(raw, &asList); err == nil {
				return asList, nil
			}
		}
		// A single entity result arrives as a bare object.
		var single entityResult
		if err := json.Unmarshal([]byte(payload), &single); err == nil {
			return []entityResult{single}, nil
		}
	}

	// Malformed output: salvage object-shaped fragments that carry an id.
	var recovered []entityResult
	for _, fragment := range llm.RecoverObjects(content) {
		var er entityResult
		if err := json.Unmarshal(fragment, &er); err != nil {
			continue
		}
		if len(er.ID) == 0 {
			continue
		}
		recovered = append(recovered, er)
	}
	if len(recovered) > 0 {
		return recovered, nil
	}
	return nil, errors.New("no parseable entity results in response")
}

// coerceID accepts both numeric and string ids from model output.
func coerceID(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 {
		return 0, errors.New("missing id")
	}

	var asNumber int64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		id, err := strconv.ParseInt(strings.TrimSpace(asString), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid id %q", asString)
		}
		return id, nil
	}
	return 0, fmt.Errorf("unparseable id %s", raw)
}

// applyEntity commits one entity result according to the batch operation.
func (o *Orchestrator) applyEntity(ctx context.Context, bp *models.BatchProcess, entityID int64, er *entityResult) error {
	switch bp.OperationType {
	case OpSummarize:
		return o.applySummary(ctx, bp.TableName, entityID, er)
	case OpCreateQuestions, OpQuestionsAndConcepts:
		return o.applyQuestions(ctx, bp, entityID, er)
	default:
		return fmt.Errorf("unknown operation %q", bp.OperationType)
	}
}

func (o *Orchestrator) applySummary(ctx context.Context, table string, entityID int64, er *entityResult) error {
	switch table {
	case "issues":
		return o.issueRepo.PatchSummary(ctx, entityID, er.Summary, er.ReportedVersion, er.StackTraceFile)
	case "discourse_posts":
		return o.discourseRepo.PatchSummary(ctx, entityID, er.Summary)
	case "metabase_docs":
		return o.docRepo.PatchSummary(ctx, entityID, er.Summary)
	default:
		return fmt.Errorf("unknown table %q", table)
	}
}

// mergeDuplicateAnswer folds a re-extracted answer into the stored row
// instead of dropping it. Merge failures keep the stored answer.
func (o *Orchestrator) mergeDuplicateAnswer(ctx context.Context, sourceType models.SourceType, sourceID int64, qa *qaPair) error {
	if strings.TrimSpace(qa.Answer) == "" {
		return nil
	}

	existing, err := o.questionRepo.GetBySourceAndQuestion(ctx, sourceType, sourceID, qa.Question)
	if err != nil {
		return err
	}
	if existing.Answer == qa.Answer {
		return nil
	}
	if strings.TrimSpace(existing.Answer) == "" {
		return o.questionRepo.UpdateAnswer(ctx, existing.ID, qa.Answer)
	}

	merged, err := o.vocabulary.MergeAnswers(ctx, qa.Question, existing.Answer, qa.Answer)
	if err != nil {
		o.logger.Warn("answer merge failed, keeping stored answer",
			zap.String("question", qa.Question),
			zap.Error(err))
		return nil
	}
	if strings.TrimSpace(merged) == "" || merged == existing.Answer {
		return nil
	}
	return o.questionRepo.UpdateAnswer(ctx, existing.ID, merged)
}

func (o *Orchestrator) applyQuestions(ctx context.Context, bp *models.BatchProcess, entityID int64, er *entityResult) error {
	sourceType, err := models.SourceTypeForTable(bp.TableName)
	if err != nil {
		return err
	}

	for _, qa := range er.Questions {
		if strings.TrimSpace(qa.Question) == "" {
			continue
		}
		q := &models.Question{
			SourceType: sourceType,
			SourceID:   entityID,
			Question:   qa.Question,
			Answer:     qa.Answer,
		}
		if err := o.questionRepo.Insert(ctx, q); err != nil {
			if errors.Is(err, apperrors.ErrAlreadyExists) {
				if err := o.mergeDuplicateAnswer(ctx, sourceType, entityID, &qa); err != nil {
					return err
				}
				continue
			}
			return err
		}
	}

	if bp.OperationType == OpQuestionsAndConcepts {
		for _, concept := range er.Concepts {
			if strings.TrimSpace(concept.Concept) == "" {
				continue
			}
			definition := concept.Definition
			if strings.TrimSpace(definition) == "" {
				definition = fmt.Sprintf("Concept extracted from %s %d", bp.TableName, entityID)
			}
			if err := o.vocabulary.UpsertExtracted(ctx, concept.Concept, definition); err != nil {
				return err
			}
		}
	}
	return nil
}
