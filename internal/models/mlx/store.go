package mlx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const DefaultBaseURL = "https://huggingface.co"

var (
	ErrUnknownModel = errors.New("unknown model")
	ErrNotInstalled = errors.New("model not installed")
	// ErrUnauthorized is returned when Hugging Face refuses the download.
	ErrUnauthorized = errors.New("hugging face denied access (check HF_TOKEN)")
)

// ProgressFunc is called during download with bytes downloaded and total
type ProgressFunc func(file string, downloaded, total int64)

type Store struct {
	Dir     string
	BaseURL string
	Token   string
	Client  *http.Client
}

// NewStore creates a store rooted at dir, or the default models directory
// when dir is empty.
func NewStore(dir, token string) (*Store, error) {
	if dir == "" {
		d, err := DefaultModelsDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get models directory: %w", err)
		}
		dir = d
	}
	return &Store{Dir: dir, BaseURL: DefaultBaseURL, Token: token, Client: http.DefaultClient}, nil
}

// Path returns the directory of a model, or empty string for unknown IDs.
func (s *Store) Path(modelID string) string {
	if GetModel(modelID) == nil {
		return ""
	}
	return filepath.Join(s.Dir, dirName(modelID))
}

// IsInstalled reports whether every file of the model is present.
func (s *Store) IsInstalled(modelID string) bool {
	info := GetModel(modelID)
	if info == nil {
		return false
	}
	dir := s.Path(modelID)
	for _, f := range info.Files {
		st, err := os.Stat(filepath.Join(dir, f))
		if err != nil || st.Size() == 0 {
			return false
		}
	}
	return true
}

// ListInstalled returns IDs of installed catalog models
func (s *Store) ListInstalled() []string {
	var installed []string
	for _, m := range models {
		if s.IsInstalled(m.ID) {
			installed = append(installed, m.ID)
		}
	}
	return installed
}

// Ensure returns the model directory, downloading the model first if it is
// not installed yet.
func (s *Store) Ensure(ctx context.Context, modelID string, onProgress ProgressFunc) (string, error) {
	if GetModel(modelID) == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	if s.IsInstalled(modelID) {
		return s.Path(modelID), nil
	}
	if err := s.Download(ctx, modelID, onProgress); err != nil {
		return "", err
	}
	return s.Path(modelID), nil
}

// Download fetches every file of the model. Files are written to a temp
// name and renamed once complete, so an interrupted download never looks
// installed. A partial temp file left by an earlier attempt is resumed.
func (s *Store) Download(ctx context.Context, modelID string, onProgress ProgressFunc) error {
	info := GetModel(modelID)
	if info == nil {
		return fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}

	dir := s.Path(modelID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	for _, file := range info.Files {
		dest := filepath.Join(dir, file)
		if st, err := os.Stat(dest); err == nil && st.Size() > 0 {
			continue
		}
		if err := s.downloadFile(ctx, info, file, dest, onProgress); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) DownloadURL(info *ModelInfo, file string) string {
	base := strings.TrimRight(s.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return fmt.Sprintf("%s/%s/resolve/main/%s", base, info.Repo, file)
}

func (s *Store) downloadFile(ctx context.Context, info *ModelInfo, file, destPath string, onProgress ProgressFunc) error {
	tempPath := destPath + ".downloading"
	out, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	var done bool
	defer func() {
		out.Close()
		// keep partial data for the next attempt, drop empty leftovers
		if st, err := os.Stat(tempPath); !done && err == nil && st.Size() == 0 {
			os.Remove(tempPath)
		}
	}()

	st, err := out.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat temp file: %w", err)
	}
	offset := st.Size()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.DownloadURL(info, file), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", file, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s/%s: %s", ErrUnauthorized, info.Repo, file, resp.Status)
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
	case resp.StatusCode == http.StatusOK:
		// server ignored the range, start over
		if err := out.Truncate(0); err != nil {
			return fmt.Errorf("failed to reset temp file: %w", err)
		}
		offset = 0
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		out.Truncate(0)
		return fmt.Errorf("download of %s could not be resumed, retry to start over", file)
	default:
		return fmt.Errorf("download of %s failed with status: %s", file, resp.Status)
	}

	total := info.SizeBytes
	if resp.ContentLength >= 0 {
		total = offset + resp.ContentLength
	}
	if offset > 0 && onProgress != nil {
		onProgress(file, offset, total)
	}

	downloaded := offset
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return fmt.Errorf("failed to write: %w", err)
			}
			downloaded += int64(n)
			if onProgress != nil {
				onProgress(file, downloaded, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("failed to read: %w", readErr)
		}
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tempPath, destPath); err != nil {
		return fmt.Errorf("failed to finalize download: %w", err)
	}
	done = true
	return nil
}

// Remove deletes a downloaded model
func (s *Store) Remove(modelID string) error {
	if GetModel(modelID) == nil {
		return fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	if !s.IsInstalled(modelID) {
		return fmt.Errorf("%w: %s", ErrNotInstalled, modelID)
	}
	if err := os.RemoveAll(s.Path(modelID)); err != nil {
		return fmt.Errorf("failed to remove model: %w", err)
	}
	return nil
}
