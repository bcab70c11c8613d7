package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/glowmart/api/internal/domain"
	pfirestore "github.com/glowmart/api/internal/platform/firestore"
)

const (
	feedbackCollection = "feedback"

	defaultFeedbackPageSize = 20
	maxFeedbackPageSize     = 100
)

// FeedbackRepository persists sanitised product reviews.
type FeedbackRepository struct {
	feedback *pfirestore.BaseRepository[feedbackDocument]
}

// NewFeedbackRepository constructs a FeedbackRepository.
func NewFeedbackRepository(provider *pfirestore.Provider) (*FeedbackRepository, error) {
	if provider == nil {
		return nil, errors.New("feedback repository requires firestore provider")
	}
	return &FeedbackRepository{
		feedback: pfirestore.NewBaseRepository[feedbackDocument](provider, feedbackCollection),
	}, nil
}

// Insert creates a new feedback document.
func (r *FeedbackRepository) Insert(ctx context.Context, feedback domain.Feedback) (domain.Feedback, error) {
	if r == nil || r.feedback == nil {
		return domain.Feedback{}, errors.New("feedback repository not initialised")
	}
	id := strings.TrimSpace(feedback.ID)
	if id == "" {
		return domain.Feedback{}, errors.New("feedback insert: id is required")
	}

	doc := feedbackDocument{
		ProductRef: strings.TrimSpace(feedback.ProductRef),
		AccountRef: strings.TrimSpace(feedback.AccountRef),
		Rating:     feedback.Rating,
		Body:       feedback.Body,
		CreatedAt:  feedback.CreatedAt.UTC(),
	}
	ref, err := r.feedback.DocumentRef(ctx, id)
	if err != nil {
		return domain.Feedback{}, err
	}
	if _, err := ref.Create(ctx, doc); err != nil {
		return domain.Feedback{}, pfirestore.WrapError("feedback.insert", err)
	}
	return doc.toDomain(id), nil
}

// ListByProduct returns a product's reviews, newest first.
func (r *FeedbackRepository) ListByProduct(ctx context.Context, productRef string, pager domain.Pagination) (domain.CursorPage[domain.Feedback], error) {
	if r == nil || r.feedback == nil {
		return domain.CursorPage[domain.Feedback]{}, errors.New("feedback repository not initialised")
	}
	productRef = strings.TrimSpace(productRef)
	if productRef == "" {
		return domain.CursorPage[domain.Feedback]{}, errors.New("feedback list: product ref is required")
	}

	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = defaultFeedbackPageSize
	}
	if pageSize > maxFeedbackPageSize {
		pageSize = maxFeedbackPageSize
	}

	cursorTime, hasCursor, err := decodeTimeCursor(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Feedback]{}, pfirestore.WrapError("feedback.list", err)
	}

	docs, err := r.feedback.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("productRef", "==", productRef).OrderBy("createdAt", firestore.Desc)
		if hasCursor {
			q = q.StartAfter(cursorTime)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Feedback]{}, err
	}

	items := make([]domain.Feedback, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}

	var nextToken string
	if len(items) > pageSize {
		items = items[:pageSize]
		nextToken, err = encodeTimeCursor(items[len(items)-1].CreatedAt)
		if err != nil {
			return domain.CursorPage[domain.Feedback]{}, pfirestore.WrapError("feedback.list", err)
		}
	}

	return domain.CursorPage[domain.Feedback]{Items: items, NextPageToken: nextToken}, nil
}

type feedbackDocument struct {
	ProductRef string    `firestore:"productRef"`
	AccountRef string    `firestore:"accountRef"`
	Rating     int       `firestore:"rating"`
	Body       string    `firestore:"body"`
	CreatedAt  time.Time `firestore:"createdAt"`
}

func (d feedbackDocument) toDomain(id string) domain.Feedback {
	return domain.Feedback{
		ID:         id,
		ProductRef: d.ProductRef,
		AccountRef: d.AccountRef,
		Rating:     d.Rating,
		Body:       d.Body,
		CreatedAt:  d.CreatedAt,
	}
}
