package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dgallion1/entlabel/internal/pathstore"
)

const documentsPrefix = "entlabel/documents"

// PathstoreStore keeps documents as JSON values in a pathstore service,
// one node per document under entlabel/documents/{id}.
type PathstoreStore struct {
	client *pathstore.Client
}

func NewPathstoreStore(client *pathstore.Client) *PathstoreStore {
	return &PathstoreStore{client: client}
}

func documentKey(id string) string {
	return documentsPrefix + "/" + id
}

func (s *PathstoreStore) Put(ctx context.Context, doc *Document) error {
	now := time.Now().UTC()
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}
	if existing, err := s.Get(ctx, doc.ID); err == nil {
		doc.CreatedAt = existing.CreatedAt
	} else if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}

	stored := *doc
	stored.Entities = nonNil(doc.Entities)
	return s.client.PutNode(ctx, documentKey(doc.ID), pathstore.NodeRequest{
		Value:  stored,
		Source: "entlabel",
	})
}

func (s *PathstoreStore) Get(ctx context.Context, id string) (*Document, error) {
	node, err := s.client.GetNode(ctx, documentKey(id))
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, ErrNotFound
	}
	var doc Document
	if err := json.Unmarshal(node.Value, &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	return &doc, nil
}

func (s *PathstoreStore) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.client.DeleteNode(ctx, documentKey(id))
}

func (s *PathstoreStore) List(ctx context.Context, limit int) ([]*Document, error) {
	nodes, err := s.client.ListChildren(ctx, documentsPrefix, 0)
	if err != nil {
		return nil, err
	}
	docs := make([]*Document, 0, len(nodes))
	for _, n := range nodes {
		var doc Document
		if err := json.Unmarshal(n.Value, &doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", n.Key, err)
		}
		docs = append(docs, &doc)
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].UpdatedAt.After(docs[j].UpdatedAt)
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (s *PathstoreStore) Close() error {
	s.client.Close()
	return nil
}
