package backend

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	pkgerrors "github.com/praktis/pricecompare/pkg/errors"
)

const maxImageBytes int64 = 2 << 20

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

// FetchImage downloads a product image from an absolute URL (usually the
// merchant CDN, not the backend). It returns the bytes and a file extension
// derived from the response content type. Unsupported types are DEPENDENCY
// errors so callers can skip the picture.
func (c *Client) FetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	if c == nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeDependency, "backend client not configured")
	}
	imageURL = strings.TrimSpace(imageURL)
	if !strings.HasPrefix(imageURL, "http://") && !strings.HasPrefix(imageURL, "https://") {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "image url must be absolute")
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build image request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(reqCtx, err) {
			return nil, "", pkgerrors.Wrap(pkgerrors.CodeTimeout, err, "image request timed out")
		}
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute image request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("image request failed with status %d", resp.StatusCode))
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	ext, ok := imageExtensions[strings.ToLower(mediaType)]
	if !ok {
		return nil, "", pkgerrors.New(pkgerrors.CodeDependency, "unsupported image type").
			WithDetails(map[string]any{"content_type": mediaType})
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read image body")
	}
	if int64(len(data)) > maxImageBytes {
		return nil, "", pkgerrors.New(pkgerrors.CodeDependency, "image exceeds size limit")
	}
	return data, ext, nil
}
