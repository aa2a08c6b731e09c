package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ModelClient calls a TensorFlow Serving REST endpoint hosting the item model.
// Labels are loaded once and shared read-only between requests.
type ModelClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	labels     []string
	inputSize  int
}

// NewModelClient constructs a client for {baseURL}/v1/models/{model}:predict.
func NewModelClient(httpClient *http.Client, baseURL, model string, labels []string) (*ModelClient, error) {
	if strings.TrimSpace(baseURL) == "" || strings.TrimSpace(model) == "" {
		return nil, errors.New("classifier: base URL and model name are required")
	}
	if len(labels) == 0 {
		return nil, errors.New("classifier: labels are required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &ModelClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		labels:     labels,
		inputSize:  DefaultInputSize,
	}, nil
}

type predictRequest struct {
	Instances []Tensor `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float64 `json:"predictions"`
	Error       string      `json:"error"`
}

// Classify returns the arg-max label of the model output.
func (c *ModelClient) Classify(ctx context.Context, image []byte) (Prediction, error) {
	tensor, err := Preprocess(image, c.inputSize)
	if err != nil {
		return Prediction{}, err
	}

	body, err := json.Marshal(predictRequest{Instances: []Tensor{tensor}})
	if err != nil {
		return Prediction{}, fmt.Errorf("classify: encode: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/models/%s:predict", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Prediction{}, fmt.Errorf("classify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return Prediction{}, fmt.Errorf("%w: http %s: %s", ErrUnavailable, resp.Status, strings.TrimSpace(string(b)))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Prediction{}, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	if out.Error != "" {
		return Prediction{}, fmt.Errorf("%w: %s", ErrUnavailable, out.Error)
	}
	if len(out.Predictions) == 0 || len(out.Predictions[0]) == 0 {
		return Prediction{}, fmt.Errorf("%w: empty predictions", ErrUnavailable)
	}

	scores := out.Predictions[0]
	best := 0
	for i, s := range scores {
		if s > scores[best] {
			best = i
		}
	}
	if best >= len(c.labels) {
		return Prediction{}, fmt.Errorf("%w: class %d has no label", ErrUnavailable, best)
	}
	return Prediction{Label: c.labels[best], Confidence: scores[best]}, nil
}
