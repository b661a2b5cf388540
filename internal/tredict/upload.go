package tredict

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/sstent/zwiftsync/internal/upload"
)

// Upload sends the activity file at path with notes as a multipart form.
func (c *Client) Upload(ctx context.Context, path, notes string) error {
	if !c.IsAccessTokenValid() {
		return &upload.Error{Path: path, Message: "access token is not valid"}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return &upload.Error{Path: path, Err: err}
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return &upload.Error{Path: path, Err: err}
	}
	if _, err := part.Write(data); err != nil {
		return &upload.Error{Path: path, Err: err}
	}
	if notes != "" {
		if err := writer.WriteField("notes", notes); err != nil {
			return &upload.Error{Path: path, Err: err}
		}
	}
	if err := writer.Close(); err != nil {
		return &upload.Error{Path: path, Err: err}
	}

	// The body is passed as bytes so retries can resend it.
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, body.Bytes())
	if err != nil {
		return &upload.Error{Path: path, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &upload.Error{Path: path, Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return &upload.Error{
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    apiMessage(respBody, resp.Status),
		}
	}

	c.log.WithField("status", resp.StatusCode).
		WithField("upload_id", gjson.GetBytes(respBody, "_id").String()).
		Debug("Tredict accepted upload")
	return nil
}

// apiMessage extracts the error text from a Tredict error response.
func apiMessage(body []byte, fallback string) string {
	for _, key := range []string{"message", "error_description", "error", "errors.0.message"} {
		if v := gjson.GetBytes(body, key); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	if len(body) > 0 && len(body) < 200 && !gjson.ValidBytes(body) {
		return string(bytes.TrimSpace(body))
	}
	return fallback
}
