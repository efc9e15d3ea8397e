package service

import (
	"context"
	"time"

	"github.com/GTDGit/gtd_catalog/internal/models"
)

// BrandStore is the persistence boundary for canonical brands. Lookups
// that find nothing return (nil, nil), except GetByCode which returns
// utils.ErrBrandNotFound.
type BrandStore interface {
	FindActiveByProviderRef(ctx context.Context, provider, rawCode string) (*models.Brand, error)
	FindActiveBySlug(ctx context.Context, slug string) (*models.Brand, error)
	GetByCode(ctx context.Context, code string) (*models.Brand, error)
	Create(ctx context.Context, b *models.Brand) error
	Save(ctx context.Context, b *models.Brand) error
	ListActive(ctx context.Context) ([]models.Brand, error)
	ListPaged(ctx context.Context, search string, activeOnly bool, page, limit int) ([]models.Brand, int, error)
	Deactivate(ctx context.Context, code, mergedInto string) error
	ListInactiveCodes(ctx context.Context, mergedOnly bool) ([]string, error)
	DeleteInactive(ctx context.Context, codes []string) (int, error)
}

// ProductStore is the persistence boundary for catalog products.
type ProductStore interface {
	GetByCodes(ctx context.Context, codes []string) (map[string]*models.Product, error)
	Upsert(ctx context.Context, p *models.Product) error
	ListByBrand(ctx context.Context, brandKey string) ([]models.Product, error)
	ActiveCodesByBrand(ctx context.Context, provider, brandKey string) ([]string, error)
	DeactivateMissing(ctx context.Context, provider string, seen []string) (int, error)
	Exists(ctx context.Context, code string) (bool, error)
	Repoint(ctx context.Context, oldCode, newCode, brandCode string) error
}

// RunLocker grants exclusive runs across processes. Acquire returns
// utils.ErrRunInProgress when name is already held.
type RunLocker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), err error)
}

// SummaryCache keeps the last sync summary per provider.
type SummaryCache interface {
	SaveLastSync(ctx context.Context, summary *models.SyncSummary) error
	LastSync(ctx context.Context, provider string) (*models.SyncSummary, error)
}

// AuditPublisher ships sync summaries and merge records to downstream consumers.
type AuditPublisher interface {
	PublishSyncSummary(ctx context.Context, summary *models.SyncSummary) error
	PublishMerge(ctx context.Context, mode models.MergeMode, record models.MergeRecord) error
}

// NopAuditPublisher drops every audit event.
type NopAuditPublisher struct{}

func (NopAuditPublisher) PublishSyncSummary(context.Context, *models.SyncSummary) error { return nil }
func (NopAuditPublisher) PublishMerge(context.Context, models.MergeMode, models.MergeRecord) error {
	return nil
}
