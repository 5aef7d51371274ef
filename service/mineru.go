package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/AnTengye/contractrisk/config"
	"github.com/AnTengye/contractrisk/extract"
	"github.com/AnTengye/contractrisk/pkg/logger"
)

// URLSigner publishes a stored file to a remote service
type URLSigner interface {
	PresignedURL(ctx context.Context, key string) (string, error)
}

// MineruService is a PDF extraction backend delegating to the MinerU API
type MineruService struct {
	config     *config.MineruConfig
	httpClient *http.Client
	urls       URLSigner
}

// MineruTaskRequest asks MinerU to parse the document at URL
type MineruTaskRequest struct {
	URL          string `json:"url"`
	ModelVersion string `json:"model_version"`
	DataID       string `json:"data_id,omitempty"`
}

// mineruResponse is the envelope of every MinerU API answer. Code 0 is success.
type mineruResponse[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
	TraceID string `json:"trace_id,omitempty"`
	Data    T      `json:"data"`
}

func (r *mineruResponse[T]) err() error {
	if r.Code == 0 {
		return nil
	}
	if r.TraceID != "" {
		return fmt.Errorf("MinerU API error %d: %s (trace %s)", r.Code, r.Message, r.TraceID)
	}
	return fmt.Errorf("MinerU API error %d: %s", r.Code, r.Message)
}

// MineruTaskState is the lifecycle state MinerU reports for a task
type MineruTaskState string

const (
	MineruPending    MineruTaskState = "pending"
	MineruRunning    MineruTaskState = "running"
	MineruConverting MineruTaskState = "converting"
	MineruDone       MineruTaskState = "done"
	MineruFailed     MineruTaskState = "failed"
)

// MineruTaskStatus is one poll of a task
type MineruTaskStatus struct {
	TaskID          string          `json:"task_id"`
	DataID          string          `json:"data_id"`
	State           MineruTaskState `json:"state"`
	FullZipURL      string          `json:"full_zip_url,omitempty"`
	ErrorMsg        string          `json:"err_msg,omitempty"`
	ExtractProgress struct {
		ExtractedPages int `json:"extracted_pages"`
		TotalPages     int `json:"total_pages"`
	} `json:"extract_progress"`
}

type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func NewMineruService(cfg *config.MineruConfig, urls URLSigner) *MineruService {
	return &MineruService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		urls: urls,
	}
}

// Extract publishes the stored PDF, waits for MinerU to parse it and
// returns the markdown text of the result.
func (s *MineruService) Extract(ctx context.Context, doc extract.Document) (string, error) {
	pdfURL, err := s.urls.PresignedURL(ctx, doc.Key)
	if err != nil {
		return "", err
	}

	// keys are tenant/contract/filename
	taskID, err := s.CreateTask(ctx, pdfURL, path.Base(path.Dir(doc.Key)))
	if err != nil {
		return "", err
	}
	logger.Info(ctx, "mineru task created", "task_id", taskID, "key", doc.Key)

	status, err := s.waitForTask(ctx, taskID)
	if err != nil {
		return "", err
	}
	return s.FetchZipText(ctx, status.FullZipURL)
}

// CreateTask submits a document URL and returns the MinerU task id. dataID
// is echoed back by MinerU and ties the task to a contract.
func (s *MineruService) CreateTask(ctx context.Context, pdfURL, dataID string) (string, error) {
	body, err := json.Marshal(MineruTaskRequest{
		URL:          pdfURL,
		ModelVersion: s.config.ModelVersion,
		DataID:       dataID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIURL+"/extract/task", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp mineruResponse[struct {
		TaskID string `json:"task_id"`
	}]
	if err := mineruCall(s, req, &resp); err != nil {
		return "", err
	}
	if resp.Data.TaskID == "" {
		return "", errors.New("MinerU returned no task id")
	}
	return resp.Data.TaskID, nil
}

// GetTaskStatus polls a task once
func (s *MineruService) GetTaskStatus(ctx context.Context, taskID string) (*MineruTaskStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIURL+"/extract/task/"+url.PathEscape(taskID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var resp mineruResponse[MineruTaskStatus]
	if err := mineruCall(s, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// mineruCall sends an authenticated API request and decodes the envelope into out
func mineruCall[T any](s *MineruService, req *http.Request, out *mineruResponse[T]) error {
	req.Header.Set("Authorization", "Bearer "+s.config.APIToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}
	return out.err()
}

// waitForTask polls until the task is done, failed, or out of attempts.
// Transient poll errors are retried.
func (s *MineruService) waitForTask(ctx context.Context, taskID string) (*MineruTaskStatus, error) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	var lastErr error
	for attempt := 1; attempt <= s.config.MaxPolls; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		status, err := s.GetTaskStatus(ctx, taskID)
		if err != nil {
			logger.Warn(ctx, "mineru poll failed", "task_id", taskID, "attempt", attempt, "error", err)
			lastErr = err
			continue
		}

		switch status.State {
		case MineruDone:
			if status.FullZipURL == "" {
				return nil, errors.New("MinerU task finished without a result archive")
			}
			return status, nil
		case MineruFailed:
			return nil, fmt.Errorf("MinerU task failed: %s", status.ErrorMsg)
		default:
			logger.Debug(ctx, "mineru task in progress",
				"task_id", taskID,
				"state", status.State,
				"extracted_pages", status.ExtractProgress.ExtractedPages,
				"total_pages", status.ExtractProgress.TotalPages,
			)
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("MinerU task polling timeout: %w", lastErr)
	}
	return nil, errors.New("MinerU task polling timeout")
}

// FetchZipText downloads the result archive and returns full.md, falling
// back to the text items of content_list.json.
func (s *MineruService) FetchZipText(ctx context.Context, zipURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, zipURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download ZIP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download ZIP: status %d", resp.StatusCode)
	}

	zipData, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read ZIP: %w", err)
	}

	zipReader, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		return "", fmt.Errorf("failed to open ZIP: %w", err)
	}

	var contentList *zip.File
	for _, file := range zipReader.File {
		switch {
		case strings.HasSuffix(file.Name, "full.md"):
			content, err := readZipFile(file)
			if err != nil {
				return "", err
			}
			return string(content), nil
		case strings.HasSuffix(file.Name, "content_list.json"):
			contentList = file
		}
	}

	if contentList == nil {
		return "", errors.New("no full.md or content_list.json in MinerU result")
	}

	content, err := readZipFile(contentList)
	if err != nil {
		return "", err
	}
	var items []contentItem
	if err := json.Unmarshal(content, &items); err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", contentList.Name, err)
	}

	var b strings.Builder
	for _, item := range items {
		if item.Type == "text" && item.Text != "" {
			b.WriteString(item.Text)
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

func readZipFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", file.Name, err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file.Name, err)
	}
	return content, nil
}
