package repository

import (
	"context"

	"github.com/portfolio/backend/internal/docstore"
	"github.com/portfolio/backend/internal/model"
)

// ContactCollection is the collection holding contact messages.
const ContactCollection = "message"

// ContactRepository defines the persistence interface for contact messages.
// It is defined here (in repository) to avoid an import cycle with service.
type ContactRepository interface {
	Save(ctx context.Context, msg *model.ContactMessage) error
	List(ctx context.Context, opts model.ContactListOptions) ([]*model.ContactMessage, error)
}

// DocContactRepository stores contact messages as documents.
type DocContactRepository struct {
	store docstore.Store
}

// NewDocContactRepository creates a DocContactRepository backed by the given store.
func NewDocContactRepository(store docstore.Store) *DocContactRepository {
	return &DocContactRepository{store: store}
}

// Ensure DocContactRepository implements ContactRepository at compile time.
var _ ContactRepository = (*DocContactRepository)(nil)

// Save inserts a new document and populates msg.ID and timestamps from the
// stored record.
func (r *DocContactRepository) Save(ctx context.Context, msg *model.ContactMessage) error {
	doc, err := r.store.CreateDocument(ctx, ContactCollection, map[string]any{
		"name":    msg.Name,
		"email":   msg.Email,
		"message": msg.Message,
		"source":  msg.Source,
	})
	if err != nil {
		return err
	}
	*msg = *toContactMessage(doc)
	return nil
}

// List returns contact messages newest first, optionally filtered by source.
func (r *DocContactRepository) List(ctx context.Context, opts model.ContactListOptions) ([]*model.ContactMessage, error) {
	var filter docstore.Filter
	if opts.Source != "" {
		filter = docstore.Filter{"source": opts.Source}
	}

	docs, err := r.store.GetDocuments(ctx, ContactCollection, filter, opts.Limit)
	if err != nil {
		return nil, err
	}

	messages := make([]*model.ContactMessage, 0, len(docs))
	for _, doc := range docs {
		messages = append(messages, toContactMessage(doc))
	}
	return messages, nil
}

func toContactMessage(doc docstore.Document) *model.ContactMessage {
	return &model.ContactMessage{
		ID:        doc.ID(),
		Name:      doc.String("name"),
		Email:     doc.String("email"),
		Message:   doc.String("message"),
		Source:    doc.String("source"),
		CreatedAt: doc.Time(docstore.FieldCreatedAt),
		UpdatedAt: doc.Time(docstore.FieldUpdatedAt),
	}
}
