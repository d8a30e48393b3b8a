package store

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"text/template"
)

//go:embed schema.sql
var schemaSQL string

var schemaTemplate = template.Must(template.New("schema").Parse(schemaSQL))

// Schema renders the DDL for the configured embedding width.
func (s *Store) Schema() (string, error) {
	var buf bytes.Buffer
	if err := schemaTemplate.Execute(&buf, struct{ Dims int }{Dims: s.dims}); err != nil {
		return "", fmt.Errorf("render schema: %w", err)
	}
	return buf.String(), nil
}

// Migrate creates the tables, indexes and find_similar_articles function if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	ddl, err := s.Schema()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
