// internal/search/engine/engine.go

// Package engine adapts structured query bodies to the Elasticsearch
// transport and parses responses into tolerant hit records.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"search-orchestrator/internal/common/database"
	apperrors "search-orchestrator/internal/common/errors"
	"search-orchestrator/internal/common/logger"
	"search-orchestrator/internal/models"
)

// IndexedSearch pairs one query body with its target index for a
// multi-search call.
type IndexedSearch struct {
	Index string
	Body  map[string]interface{}
}

// Engine is the search-engine boundary consumed by the merge and
// fan-out layers.
type Engine interface {
	Search(ctx context.Context, index string, body map[string]interface{}, geo *models.GeoPoint) (*Result, error)
	MultiSearch(ctx context.Context, searches []IndexedSearch, geo *models.GeoPoint) ([]*Result, error)
}

// Adapter implements Engine over the shared Elasticsearch client.
type Adapter struct {
	es     *database.ElasticsearchClient
	logger logger.Logger
}

func NewAdapter(es *database.ElasticsearchClient, log logger.Logger) *Adapter {
	return &Adapter{
		es:     es,
		logger: log.WithFields(map[string]interface{}{"component": "search-engine"}),
	}
}

// Search runs one query against one index. When the body carries a
// vector clause and the engine rejects it, the query retries keyword-only
// and the degrade is logged; vector search is an enhancement, never a
// dependency.
func (a *Adapter) Search(ctx context.Context, index string, body map[string]interface{}, geo *models.GeoPoint) (*Result, error) {
	result, err := a.searchOnce(ctx, index, body, geo)
	if err == nil {
		return result, nil
	}

	if _, hasKNN := body["knn"]; hasKNN {
		a.logger.WithError(err).Warn("vector search failed, retrying keyword-only", map[string]interface{}{
			"index": index,
		})
		keyword := make(map[string]interface{}, len(body))
		for k, v := range body {
			keyword[k] = v
		}
		delete(keyword, "knn")
		return a.searchOnce(ctx, index, keyword, geo)
	}
	return nil, err
}

func (a *Adapter) searchOnce(ctx context.Context, index string, body map[string]interface{}, geo *models.GeoPoint) (*Result, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.NewSearchQueryFailedError(index, err)
	}

	res, err := a.es.SearchIndex(ctx, index, bytes.NewReader(encoded))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, apperrors.NewSearchTimeoutError(index)
		}
		return nil, apperrors.NewSearchEngineUnavailableError(err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, apperrors.NewSearchEngineUnavailableError(err)
	}
	if res.IsError() {
		if res.StatusCode == 404 {
			return nil, apperrors.NewIndexNotFoundError(index)
		}
		return nil, apperrors.NewSearchQueryFailedError(index, fmt.Errorf("status %s", res.Status()))
	}

	result, err := parseResponse(raw, geo, isGeoSorted(body))
	if err != nil {
		return nil, apperrors.NewSearchQueryFailedError(index, err)
	}
	return result, nil
}

// MultiSearch fans one logical query out to several indices in a single
// round trip. The result slice is positional: searches[i] produced
// results[i], and a failed branch yields a nil entry rather than
// failing the call.
func (a *Adapter) MultiSearch(ctx context.Context, searches []IndexedSearch, geo *models.GeoPoint) ([]*Result, error) {
	if len(searches) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	for _, s := range searches {
		header, err := json.Marshal(map[string]interface{}{"index": s.Index})
		if err != nil {
			return nil, apperrors.NewSearchQueryFailedError(s.Index, err)
		}
		body, err := json.Marshal(s.Body)
		if err != nil {
			return nil, apperrors.NewSearchQueryFailedError(s.Index, err)
		}
		buf.Write(header)
		buf.WriteByte('\n')
		buf.Write(body)
		buf.WriteByte('\n')
	}

	res, err := a.es.Msearch(ctx, &buf)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, apperrors.NewSearchTimeoutError("msearch")
		}
		return nil, apperrors.NewSearchEngineUnavailableError(err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, apperrors.NewSearchEngineUnavailableError(err)
	}
	if res.IsError() {
		return nil, apperrors.NewSearchQueryFailedError("msearch", fmt.Errorf("status %s", res.Status()))
	}

	var multi msearchResponse
	if err := json.Unmarshal(raw, &multi); err != nil {
		return nil, apperrors.NewSearchQueryFailedError("msearch", err)
	}

	results := make([]*Result, len(searches))
	for i, rawResp := range multi.Responses {
		if i >= len(searches) {
			break
		}
		var probe struct {
			Error json.RawMessage `json:"error"`
		}
		if err := json.Unmarshal(rawResp, &probe); err == nil && len(probe.Error) > 0 {
			a.logger.Warn("multi-search branch failed, treating as empty", map[string]interface{}{
				"index": searches[i].Index,
				"error": string(probe.Error),
			})
			continue
		}
		parsed, err := parseResponse(rawResp, geo, isGeoSorted(searches[i].Body))
		if err != nil {
			a.logger.WithError(err).Warn("multi-search branch unparseable, treating as empty", map[string]interface{}{
				"index": searches[i].Index,
			})
			continue
		}
		results[i] = parsed
	}
	return results, nil
}

// isGeoSorted reports whether the body's primary sort is geo distance,
// which makes the first sort value a distance we can reuse.
func isGeoSorted(body map[string]interface{}) bool {
	sortSpec, ok := body["sort"].([]interface{})
	if !ok || len(sortSpec) == 0 {
		return false
	}
	first, ok := sortSpec[0].(map[string]interface{})
	if !ok {
		return false
	}
	_, geo := first["_geo_distance"]
	return geo
}
