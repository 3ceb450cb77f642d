package batch

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/paoliniluis/similarity/pkg/models"
)

// CheckPending polls every submitted batch and advances its lifecycle:
// status updates, result download and reconciliation on completion,
// terminal failure recording otherwise.
func (o *Orchestrator) CheckPending(ctx context.Context) error {
	pending, err := o.batchRepo.ListPending(ctx)
	if err != nil {
		return err
	}

	for _, bp := range pending {
		if err := o.checkOne(ctx, bp); err != nil {
			o.logger.Error("batch check failed",
				zap.String("batch_id", bp.BatchID),
				zap.Error(err))
		}
	}
	return nil
}

func (o *Orchestrator) checkOne(ctx context.Context, bp *models.BatchProcess) error {
	providerBatch, err := o.provider.GetBatch(ctx, bp.BatchID)
	if err != nil {
		return err
	}

	if !models.IsLegalBatchTransition(bp.Status, providerBatch.Status) {
		o.logger.Warn("provider reported unexpected batch status",
			zap.String("batch_id", bp.BatchID),
			zap.String("from", bp.Status),
			zap.String("to", providerBatch.Status))
	}

	switch providerBatch.Status {
	case models.BatchStatusCompleted:
		return o.complete(ctx, bp, providerBatch)

	case models.BatchStatusFailed, models.BatchStatusExpired, models.BatchStatusCancelled:
		o.logger.Warn("batch ended without results",
			zap.String("batch_id", bp.BatchID),
			zap.String("status", providerBatch.Status))
		return o.batchRepo.SetError(ctx, bp.BatchID, providerBatch.Status,
			fmt.Sprintf("provider reported terminal status %q", providerBatch.Status))

	default:
		if providerBatch.Status != bp.Status {
			return o.batchRepo.UpdateStatus(ctx, bp.BatchID, providerBatch.Status)
		}
		return nil
	}
}

func (o *Orchestrator) complete(ctx context.Context, bp *models.BatchProcess, providerBatch *ProviderBatch) error {
	if providerBatch.OutputFileID == "" {
		return o.batchRepo.SetError(ctx, bp.BatchID, models.BatchStatusProcessingFailed,
			"batch completed without an output file")
	}

	resultsPath := filepath.Join(o.receivedDir(), fmt.Sprintf("results_%s.jsonl", bp.BatchID))
	if err := o.provider.DownloadFileContent(ctx, providerBatch.OutputFileID, resultsPath); err != nil {
		return err
	}
	if err := o.batchRepo.MarkReceived(ctx, bp.BatchID, resultsPath); err != nil {
		return err
	}

	processed, failed, err := o.Reconcile(ctx, bp, resultsPath)
	if err != nil {
		if setErr := o.batchRepo.SetError(ctx, bp.BatchID, models.BatchStatusProcessingFailed, err.Error()); setErr != nil {
			o.logger.Error("failed to record reconciliation failure", zap.Error(setErr))
		}
		return err
	}
	o.logger.Info("batch reconciled",
		zap.String("batch_id", bp.BatchID),
		zap.Int("processed", processed),
		zap.Int("failed", failed))

	// Provider-side cleanup is best effort; local results are kept.
	for _, fileID := range []string{providerBatch.InputFileID, providerBatch.OutputFileID, providerBatch.ErrorFileID} {
		if fileID == "" {
			continue
		}
		if err := o.provider.DeleteFile(ctx, fileID); err != nil {
			o.logger.Warn("failed to delete provider file",
				zap.String("file_id", fileID),
				zap.Error(err))
		}
	}
	return nil
}
