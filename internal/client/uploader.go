package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/ayushdsd/spotlight-sub000/internal/models"
)

// Upload is one file waiting to be attached to a message
type Upload struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// Uploader hands a file to the attachment host and returns its url and type
type Uploader interface {
	Upload(ctx context.Context, u Upload) (models.Attachment, error)
}

// HTTPUploader posts files as multipart/form-data to an upload endpoint that
// answers with {"url": ..., "media_type": ...}.
type HTTPUploader struct {
	Endpoint   string
	Token      string
	FieldName  string
	HTTPClient *http.Client
}

// NewHTTPUploader creates an uploader for endpoint
func NewHTTPUploader(endpoint, token string) *HTTPUploader {
	return &HTTPUploader{
		Endpoint:   endpoint,
		Token:      token,
		FieldName:  "file",
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// Upload sends the file and returns the hosted attachment
func (u *HTTPUploader) Upload(ctx context.Context, up Upload) (models.Attachment, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, u.FieldName, up.Name))
	if up.ContentType != "" {
		header.Set("Content-Type", up.ContentType)
	}
	part, err := form.CreatePart(header)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := io.Copy(part, up.Body); err != nil {
		return models.Attachment{}, fmt.Errorf("failed to read file: %w", err)
	}
	if err := form.Close(); err != nil {
		return models.Attachment{}, fmt.Errorf("failed to finish form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.Endpoint, &buf)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	if u.Token != "" {
		req.Header.Set("Authorization", "Bearer "+u.Token)
	}

	httpClient := u.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("failed to upload file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return models.Attachment{}, fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
	}

	var att models.Attachment
	if err := json.NewDecoder(resp.Body).Decode(&att); err != nil {
		return models.Attachment{}, fmt.Errorf("failed to decode upload response: %w", err)
	}
	if att.URL == "" {
		return models.Attachment{}, errors.New("upload response has no url")
	}
	if att.MediaType == "" {
		att.MediaType = up.ContentType
	}
	return att, nil
}
