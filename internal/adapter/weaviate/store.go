package weaviate

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"pdc/backend/internal/vector"
	"pdc/backend/internal/worker"
)

// Store mirrors committed captures into the CapturedContent class so
// downstream search can query them. It is not the system of record.
type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

func (s *Store) StoreItem(ctx context.Context, item worker.IndexedItem) error {
	_, err := s.client.Data().Creator().
		WithClassName(vector.ClassName).
		WithProperties(map[string]interface{}{
			"content":       item.Content,
			"contentItemId": item.ContentItemID,
			"contentHash":   item.ContentHash,
			"source":        item.Source,
			"modelVersion":  item.ModelVersion,
		}).
		WithVector(item.Vector).
		Do(ctx)
	return err
}

func (s *Store) DeleteByContentItemID(ctx context.Context, contentItemID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassName).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"contentItemId"}).
			WithOperator(filters.Equal).
			WithValueString(contentItemID)).
		Do(ctx)
	return err
}

func (s *Store) Count(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(vector.ClassName).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors)
	}

	if agg, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if classes, ok := agg[vector.ClassName].([]interface{}); ok && len(classes) > 0 {
			if props, ok := classes[0].(map[string]interface{}); ok {
				if meta, ok := props["meta"].(map[string]interface{}); ok {
					if count, ok := meta["count"].(float64); ok {
						return int(count), nil
					}
				}
			}
		}
	}
	return 0, nil
}
