package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
)

// SubmitVideo uploads one video file as a multipart/form-data request.
// The form field name "video" matches the server's upload handler.
// The server's acknowledgement message (if any) is returned.
//
// The body is streamed through an io.Pipe so large files are never
// buffered in memory. There is no retry: a partially-consumed reader
// cannot safely be resent.
func (c *Client) SubmitVideo(ctx context.Context, name string, r io.Reader, size int64) (string, error) {
	name = NormalizeName(name)

	c.logger.Info("submitting video",
		slog.String("name", name),
		slog.Int64("size", size),
	)

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	go func() {
		part, err := form.CreateFormFile("video", name)
		if err != nil {
			pw.CloseWithError(fmt.Errorf("api: creating form file: %w", err))
			return
		}

		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(fmt.Errorf("api: reading %s: %w", name, err))
			return
		}

		pw.CloseWithError(form.Close())
	}()

	resp, err := c.do(ctx, http.MethodPost, "/upload", form.FormDataContentType(), pr, true)
	if err != nil {
		// Unblock the writer goroutine if the request failed mid-stream.
		pr.CloseWithError(err)

		return "", err
	}
	defer resp.Body.Close()

	var ack struct {
		Message string `json:"message"`
	}
	if decErr := json.NewDecoder(resp.Body).Decode(&ack); decErr != nil {
		// Acknowledgement body is optional.
		return "", nil //nolint:nilerr // empty acknowledgement is fine
	}

	c.logger.Debug("video submitted",
		slog.String("name", name),
	)

	return ack.Message, nil
}
