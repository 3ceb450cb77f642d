// Package batch orchestrates asynchronous enrichment through an
// OpenAI-compatible batch API: request file construction, submission,
// polling and result reconciliation.
package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paoliniluis/similarity/pkg/config"
	"github.com/paoliniluis/similarity/pkg/retry"
)

// ProviderBatch is the provider's view of a batch job.
type ProviderBatch struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	InputFileID  string `json:"input_file_id"`
	OutputFileID string `json:"output_file_id"`
	ErrorFileID  string `json:"error_file_id"`
}

// ProviderClient talks to the files and batches endpoints of an
// OpenAI-compatible API.
type ProviderClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewProviderClient builds a client for the configured batch API.
func NewProviderClient(cfg *config.BatchConfig) *ProviderClient {
	timeout := time.Duration(cfg.HTTPTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &ProviderClient{
		baseURL: strings.TrimSuffix(cfg.APIBase, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *ProviderClient) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return c.client.Do(req)
}

// UploadFile uploads a JSONL request file with purpose=batch and returns
// the provider file id.
func (c *ProviderClient) UploadFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open batch file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("purpose", "batch"); err != nil {
		return "", fmt.Errorf("failed to write purpose field: %w", err)
	}
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("failed to copy batch file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	// The body is buffered so retried attempts resend the same payload.
	payload := body.Bytes()
	return retry.DoWithResult(ctx, retry.DefaultConfig(), func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/files", bytes.NewReader(payload))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())

		resp, err := c.do(req)
		if err != nil {
			return "", fmt.Errorf("file upload failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return "", fmt.Errorf("file upload returned %d: %s", resp.StatusCode, msg)
		}

		var uploaded struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
			return "", fmt.Errorf("failed to decode upload response: %w", err)
		}
		return uploaded.ID, nil
	})
}

// CreateBatch starts a batch job over an uploaded request file.
func (c *ProviderClient) CreateBatch(ctx context.Context, inputFileID string) (*ProviderBatch, error) {
	payload, err := json.Marshal(map[string]string{
		"input_file_id":     inputFileID,
		"endpoint":          "/v1/chat/completions",
		"completion_window": "24h",
	})
	if err != nil {
		return nil, err
	}

	return retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*ProviderBatch, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/batches", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.do(req)
		if err != nil {
			return nil, fmt.Errorf("batch creation failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("batch creation returned %d: %s", resp.StatusCode, body)
		}

		var batch ProviderBatch
		if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
			return nil, fmt.Errorf("failed to decode batch response: %w", err)
		}
		return &batch, nil
	})
}

// GetBatch polls a batch job's status.
func (c *ProviderClient) GetBatch(ctx context.Context, batchID string) (*ProviderBatch, error) {
	return retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*ProviderBatch, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/batches/"+batchID, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.do(req)
		if err != nil {
			return nil, fmt.Errorf("batch status request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("batch status returned %d: %s", resp.StatusCode, body)
		}

		var batch ProviderBatch
		if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
			return nil, fmt.Errorf("failed to decode batch status: %w", err)
		}
		return &batch, nil
	})
}

// DownloadFileContent streams a provider file to a local path.
func (c *ProviderClient) DownloadFileContent(ctx context.Context, fileID, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}

	// os.Create truncates, so a retried attempt restarts the file.
	return retry.Do(ctx, retry.DefaultConfig(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/files/"+fileID+"/content", nil)
		if err != nil {
			return err
		}

		resp, err := c.do(req)
		if err != nil {
			return fmt.Errorf("file download failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("file download returned %d: %s", resp.StatusCode, body)
		}

		out, err := os.Create(destPath)
		if err != nil {
			return fmt.Errorf("failed to create results file: %w", err)
		}
		defer out.Close()

		if _, err := io.Copy(out, resp.Body); err != nil {
			return fmt.Errorf("failed to write results file: %w", err)
		}
		return nil
	})
}

// DeleteFile removes a provider file. A 404 counts as success since the
// goal is the file being gone.
func (c *ProviderClient) DeleteFile(ctx context.Context, fileID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v1/files/"+fileID, nil)
	if err != nil {
		return err
	}

	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("file deletion failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("file deletion returned %d: %s", resp.StatusCode, body)
	}
	return nil
}
