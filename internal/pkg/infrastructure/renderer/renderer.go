// Package renderer implements the document rendering backend client.
// The backend receives a merge context and a template identifier and
// returns finished document bytes; all layout happens there.
package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bouttier/mapentity/pkg/mapentity/serializers"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type httpRenderer struct {
	endpoint   string
	httpClient http.Client
}

func New(endpoint string) serializers.Renderer {
	return &httpRenderer{
		endpoint: endpoint,
		httpClient: http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (r *httpRenderer) RenderDocument(ctx context.Context, template string, mergeContext map[string]any) ([]byte, error) {
	body, err := json.Marshal(struct {
		Template     string         `json:"template"`
		MergeContext map[string]any `json:"mergeContext"`
	}{Template: template, MergeContext: mergeContext})

	if err != nil {
		return nil, fmt.Errorf("marshalling error (%w)", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("unable to create new request (%w)", err)
	}

	req.Header.Add("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request (%w)", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rendering backend returned status %d", resp.StatusCode)
	}

	document, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered document (%w)", err)
	}

	return document, nil
}
