// Package apicall provides the node that performs an outbound HTTP call.
package apicall

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/taskhive/flowengine/pkg/models"
	"github.com/taskhive/flowengine/pkg/protocol"
	"github.com/taskhive/flowengine/pkg/template"
)

type Processor struct {
	client protocol.HTTPDoer
}

func NewProcessor(client protocol.HTTPDoer) *Processor {
	return &Processor{client: client}
}

func (p *Processor) Type() models.NodeType {
	return models.NodeTypeAPICall
}

// Process resolves URL/body/headers and performs the call. Any response
// status of 400 or above is a node failure subject to the retry policy;
// 2xx/3xx succeed with {status, data} output.
func (p *Processor) Process(ctx context.Context, execution *models.Execution, node *models.Node) (*protocol.Result, error) {
	config := node.Config

	rawURL, _ := config["url"].(string)
	url := template.Resolve(rawURL, execution.Variables, execution.Context)

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	method = strings.ToUpper(method)

	var reqBody io.Reader

	if rawBody, ok := config["body"].(string); ok && rawBody != "" {
		reqBody = strings.NewReader(template.Resolve(rawBody, execution.Variables, execution.Context))
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if headers, ok := config["headers"].(map[string]any); ok {
		for key, raw := range headers {
			if value, ok := raw.(string); ok {
				req.Header.Set(key, template.Resolve(value, execution.Variables, execution.Context))
			}
		}
	}

	if reqBody != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var data any = string(respBody)

	var jsonBody any
	if err := json.Unmarshal(respBody, &jsonBody); err == nil {
		data = jsonBody
	}

	return &protocol.Result{
		Output: map[string]any{
			"status": resp.StatusCode,
			"data":   data,
		},
	}, nil
}

// Schema constrains api_call node configs at template save time.
func Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"url"},
		"properties": map[string]any{
			"url":     map[string]any{"type": "string", "minLength": 1},
			"method":  map[string]any{"type": "string"},
			"body":    map[string]any{"type": "string"},
			"headers": map[string]any{"type": "object"},
		},
	}
}
