// internal/search/agent/nlu.go
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	apperrors "search-orchestrator/internal/common/errors"
	httpclient "search-orchestrator/internal/common/http"
	"search-orchestrator/internal/models"
)

// nluResponseSchema guards against upstream shape drift: an invalid NLU
// response falls back to the rule path instead of poisoning the plan.
const nluResponseSchema = `{
	"type": "object",
	"properties": {
		"module": {"type": "string"},
		"target": {"type": "string", "enum": ["items", "stores"]},
		"entities": {
			"type": "object",
			"properties": {
				"query":      {"type": "string"},
				"store_name": {"type": "string"},
				"veg":        {"type": "integer", "minimum": 0, "maximum": 2},
				"open_now":   {"type": "boolean"},
				"rating_min": {"type": "number"},
				"price_min":  {"type": "number"},
				"price_max":  {"type": "number"},
				"radius_km":  {"type": "number"},
				"brands":     {"type": "array", "items": {"type": "string"}}
			}
		}
	},
	"required": ["entities"]
}`

type nluResponse struct {
	Module   string `json:"module"`
	Target   string `json:"target"`
	Entities struct {
		Query     string   `json:"query"`
		StoreName string   `json:"store_name"`
		Veg       int      `json:"veg"`
		OpenNow   bool     `json:"open_now"`
		RatingMin *float64 `json:"rating_min"`
		PriceMin  *float64 `json:"price_min"`
		PriceMax  *float64 `json:"price_max"`
		RadiusKm  float64  `json:"radius_km"`
		Brands    []string `json:"brands"`
	} `json:"entities"`
}

// NLUClient calls the external intent service.
type NLUClient struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *httpclient.Client
	schema  *gojsonschema.Schema
}

func NewNLUClient(baseURL, apiKey string, timeout time.Duration) (*NLUClient, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(nluResponseSchema))
	if err != nil {
		return nil, fmt.Errorf("compile NLU response schema: %w", err)
	}
	return &NLUClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: timeout,
		client:  httpclient.NewClient(timeout),
		schema:  schema,
	}, nil
}

// Parse posts the text and normalizes the validated response into a
// plan.
func (c *NLUClient) Parse(ctx context.Context, text string, geo *models.GeoPoint) (*models.SearchPlan, error) {
	payload := map[string]interface{}{"text": text}
	if geo != nil && !geo.IsZero() {
		payload["context"] = map[string]interface{}{
			"lat": geo.Lat,
			"lon": geo.Lon,
		}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	res, err := c.client.PostJSON(ctx, c.baseURL+"/v1/parse", headers, payload)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, apperrors.NewNLUServiceTimeoutError()
		}
		return nil, apperrors.NewNLUServiceFailedError(err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, apperrors.NewNLUServiceFailedError(err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, apperrors.NewNLUServiceFailedError(fmt.Errorf("status %d", res.StatusCode))
	}

	validation, err := c.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, apperrors.NewNLUServiceFailedError(err)
	}
	if !validation.Valid() {
		return nil, apperrors.NewNLUServiceFailedError(fmt.Errorf("response failed schema validation: %v", validation.Errors()))
	}

	var resp nluResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, apperrors.NewNLUServiceFailedError(err)
	}
	return normalizeNLU(&resp, geo), nil
}

// normalizeNLU maps the service response onto the same plan shape the
// rule parser produces.
func normalizeNLU(resp *nluResponse, geo *models.GeoPoint) *models.SearchPlan {
	plan := &models.SearchPlan{
		Query:     normalizePhrase(resp.Entities.Query),
		StoreName: normalizePhrase(resp.Entities.StoreName),
		OpenNow:   resp.Entities.OpenNow,
		RatingMin: resp.Entities.RatingMin,
		PriceMin:  resp.Entities.PriceMin,
		PriceMax:  resp.Entities.PriceMax,
		RadiusKm:  resp.Entities.RadiusKm,
		Brands:    resp.Entities.Brands,
		Geo:       geo,
		Target:    models.TargetItems,
	}

	if resp.Target == string(models.TargetStores) {
		plan.Target = models.TargetStores
	}
	if resp.Module != "" {
		plan.Module = models.ModuleSelector{Type: resp.Module}
	}
	switch resp.Entities.Veg {
	case 1:
		plan.Veg = models.VegOnly
	case 2:
		plan.Veg = models.NonVegOnly
	}
	return plan
}
