package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

// identifiable is the subset of models.IBase the insert helper needs.
// Declared locally to keep this package free of a models dependency.
type identifiable interface {
	GenIDIfEmpty()
	GenID()
}

// InsertOne inserts a document, generating a fresh SixID for it and retrying
// with a new ID on duplicate-key collisions. Returns the document with its
// final ID set.
func InsertOne(ctx context.Context, collection *mongo.Collection, doc interface{}) (interface{}, error) {
	ident, ok := doc.(identifiable)
	if !ok {
		return nil, fmt.Errorf("document %T does not support ID generation", doc)
	}

	ident.GenIDIfEmpty()

	firstAttempt := true
	operation := func() error {
		if !firstAttempt {
			// Collision: regenerate before retrying
			ident.GenID()
		}
		firstAttempt = false
		_, insertErr := collection.InsertOne(ctx, doc)
		return insertErr
	}

	if err := Try(operation); err != nil {
		return nil, fmt.Errorf("failed to insert document into %s after retries: %w", collection.Name(), err)
	}
	return doc, nil
}
