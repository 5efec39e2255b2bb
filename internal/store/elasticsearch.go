package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"kuraberu-broadcast/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ElasticsearchDirectory serves directory lookups from a franchise index whose
// service_areas field is a keyword array.
type ElasticsearchDirectory struct {
	client *elasticsearch.Client
	index  string
	size   int
}

func NewElasticsearchDirectory(client *elasticsearch.Client, index string) *ElasticsearchDirectory {
	return &ElasticsearchDirectory{client: client, index: index, size: 1000}
}

type esFranchise struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Email        string   `json:"email"`
	Active       bool     `json:"active"`
	ServiceAreas []string `json:"service_areas"`
}

type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			Source esFranchise `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

func buildAreaQuery(area string, size int) map[string]interface{} {
	return map[string]interface{}{
		"size": size,
		"sort": []interface{}{map[string]interface{}{"id": "asc"}},
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"active": true}},
					map[string]interface{}{
						"wildcard": map[string]interface{}{
							"service_areas": map[string]interface{}{
								"value": "*" + wildcardEscaper.Replace(area) + "*",
							},
						},
					},
				},
			},
		},
	}
}

func (d *ElasticsearchDirectory) ActiveInArea(ctx context.Context, area string) ([]models.Franchise, error) {
	body, err := json.Marshal(buildAreaQuery(area, d.size))
	if err != nil {
		return nil, fmt.Errorf("%w: encode query: %v", ErrQueryFailed, err)
	}

	req := esapi.SearchRequest{
		Index: []string{d.index},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, d.client)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrQueryFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: search failed: %s", ErrQueryFailed, res.Status())
	}

	var parsed esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode search response: %v", ErrQueryFailed, err)
	}

	out := make([]models.Franchise, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		src := hit.Source
		out = append(out, models.Franchise{
			ID:           src.ID,
			Name:         src.Name,
			Email:        src.Email,
			Active:       src.Active,
			ServiceAreas: src.ServiceAreas,
		})
	}
	return out, nil
}
