package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_catalog/internal/config"
	"github.com/GTDGit/gtd_catalog/internal/metrics"
	"github.com/GTDGit/gtd_catalog/internal/models"
	"github.com/GTDGit/gtd_catalog/internal/utils"
)

// SyncLockName is the run lock shared by every sync trigger.
const SyncLockName = "sync"

// SyncObserver receives every event of every run, in addition to the
// caller's own channel. Observe must not block.
type SyncObserver interface {
	Observe(ev models.SyncEvent)
}

// CatalogSyncService reconciles a provider catalog into the canonical
// brand and product collections.
type CatalogSyncService struct {
	brands    BrandStore
	products  ProductStore
	resolver  *BrandResolver
	providers *ProviderRegistry
	images    ImageStore
	rules     *PurchaseRules
	cfg       config.CatalogConfig

	locker   RunLocker
	summary  SummaryCache
	audit    AuditPublisher
	metrics  *metrics.CatalogMetrics
	observer SyncObserver
	now      func() time.Time
}

// NewCatalogSyncService constructs a CatalogSyncService. Optional
// collaborators are attached with the Set* methods.
func NewCatalogSyncService(
	brands BrandStore,
	products ProductStore,
	providers *ProviderRegistry,
	images ImageStore,
	rules *PurchaseRules,
	cfg config.CatalogConfig,
) *CatalogSyncService {
	if images == nil {
		images = NopImageStore{}
	}
	if rules == nil {
		rules = DefaultPurchaseRules()
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 25
	}
	return &CatalogSyncService{
		brands:    brands,
		products:  products,
		resolver:  NewBrandResolver(brands, cfg.PlaceholderIcon),
		providers: providers,
		images:    images,
		rules:     rules,
		cfg:       cfg,
		audit:     NopAuditPublisher{},
		now:       time.Now,
	}
}

// SetLocker makes runs exclusive through locker.
func (s *CatalogSyncService) SetLocker(locker RunLocker) { s.locker = locker }

// SetSummaryCache stores each run summary in cache.
func (s *CatalogSyncService) SetSummaryCache(cache SummaryCache) { s.summary = cache }

// SetAuditPublisher publishes each run summary through p.
func (s *CatalogSyncService) SetAuditPublisher(p AuditPublisher) {
	if p == nil {
		p = NopAuditPublisher{}
	}
	s.audit = p
}

// SetMetrics records run metrics on m.
func (s *CatalogSyncService) SetMetrics(m *metrics.CatalogMetrics) { s.metrics = m }

// SetObserver mirrors every event to o.
func (s *CatalogSyncService) SetObserver(o SyncObserver) { s.observer = o }

// DefaultProvider returns the provider code used when a request names none.
func (s *CatalogSyncService) DefaultProvider() string { return s.cfg.DefaultProvider }

// LastSummary returns the cached summary of the last run for provider.
func (s *CatalogSyncService) LastSummary(ctx context.Context, provider string) (*models.SyncSummary, error) {
	if s.summary == nil {
		return nil, nil
	}
	if provider == "" {
		provider = s.cfg.DefaultProvider
	}
	return s.summary.LastSync(ctx, provider)
}

// syncRun carries the mutable state of one invocation.
type syncRun struct {
	ctx      context.Context
	events   chan<- models.SyncEvent
	provider CatalogProvider
	summary  models.SyncSummary
	seen     map[string]struct{}
	owners   map[string]string
}

// Sync runs one reconciliation of opts.Provider. Events are sent on events
// (which may be nil) in processing order, and events is closed when Sync
// returns. Only a failed brand-list fetch, a store failure or cancellation
// end the run early; cancelled runs skip deactivation. The returned summary
// is non-nil whenever the run started.
func (s *CatalogSyncService) Sync(ctx context.Context, opts models.SyncOptions, events chan<- models.SyncEvent) (*models.SyncSummary, error) {
	if events != nil {
		defer close(events)
	}

	code := opts.Provider
	if code == "" {
		code = s.cfg.DefaultProvider
	}
	provider, err := s.providers.Get(code)
	if err != nil {
		return nil, err
	}

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, SyncLockName, s.cfg.LockTTL)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	deactivate := true
	if opts.DeactivateMissing != nil {
		deactivate = *opts.DeactivateMissing
	}
	markup := s.cfg.DefaultMarkupPercent
	if opts.MarkupPercent != nil {
		markup = *opts.MarkupPercent
	}

	run := &syncRun{
		ctx:      ctx,
		events:   events,
		provider: provider,
		seen:     make(map[string]struct{}),
		owners:   make(map[string]string),
		summary: models.SyncSummary{
			RunID:     uuid.New().String(),
			Provider:  code,
			StartedAt: s.now(),
		},
	}

	log.Info().
		Str("run_id", run.summary.RunID).
		Str("provider", code).
		Bool("deactivate_missing", deactivate).
		Float64("markup", markup).
		Msg("Catalog sync started")

	s.emit(run, models.SyncStartEvent{
		Type:              models.SyncEventStart,
		RunID:             run.summary.RunID,
		Provider:          code,
		StartedAt:         run.summary.StartedAt,
		DeactivateMissing: deactivate,
		GlobalMarkup:      markup,
	})

	err = s.run(run, deactivate, markup)
	s.finish(run, err)
	return &run.summary, err
}

func (s *CatalogSyncService) run(run *syncRun, deactivate bool, markup float64) error {
	ctx := run.ctx

	upstream, err := run.provider.ListBrands(ctx)
	if err != nil {
		return fmt.Errorf("list brands: %w", errors.Join(utils.ErrProviderUnavailable, err))
	}
	s.emit(run, models.SyncBrandsEvent{Type: models.SyncEventBrands, Count: len(upstream)})

	for i, ub := range upstream {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.syncBrand(run, ub, i+1, len(upstream), markup); err != nil {
			return err
		}
	}

	if !deactivate {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	seen := make([]string, 0, len(run.seen))
	for code := range run.seen {
		seen = append(seen, code)
	}
	n, err := s.products.DeactivateMissing(ctx, run.summary.Provider, seen)
	if err != nil {
		return fmt.Errorf("deactivate missing products: %w", err)
	}
	run.summary.Deactivated = n
	return nil
}

func (s *CatalogSyncService) syncBrand(run *syncRun, ub models.UpstreamBrand, index, total int, markup float64) error {
	ctx := run.ctx
	provider := run.summary.Provider

	brand, outcome, err := s.resolver.Resolve(ctx, provider, ub.Key, ub.Name, markup)
	if errors.Is(err, utils.ErrBrandRefRequired) {
		run.summary.Skipped++
		s.warn(run, ub.Key, "", "brand", "skipped: brand has no usable code or name")
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve brand %q: %w", ub.Key, err)
	}

	effMarkup := markup
	if brand.DefaultMarkupPercent != nil {
		effMarkup = *brand.DefaultMarkupPercent
	}

	s.emit(run, models.SyncBrandStartEvent{
		Type:      models.SyncEventBrandStart,
		Key:       ub.Key,
		Canonical: brand.Code,
		Name:      brand.Name,
		Index:     index,
		Total:     total,
	})

	products, perr := run.provider.ListBrandProducts(ctx, ub.Key)
	if perr != nil {
		s.warn(run, ub.Key, brand.Code, "products", "products fetch failed: "+perr.Error())
	}
	variations, verr := run.provider.ListVariations(ctx, ub.Key)
	if verr != nil {
		s.warn(run, ub.Key, brand.Code, "variations", "variations fetch failed: "+verr.Error())
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if perr != nil && verr != nil {
		// Keep the brand's current products alive through an upstream outage.
		codes, err := s.products.ActiveCodesByBrand(ctx, provider, brand.Code)
		if err != nil {
			return fmt.Errorf("protect products of %s: %w", brand.Code, err)
		}
		for _, c := range codes {
			run.seen[c] = struct{}{}
		}
	}

	merged := mergeVariations(products, variations)
	codes := make([]string, 0, len(merged))
	for _, m := range merged {
		codes = append(codes, utils.ProductCode(brand.Code, m.ProviderProductCode))
	}
	existing, err := s.products.GetByCodes(ctx, codes)
	if err != nil {
		return fmt.Errorf("load products of %s: %w", brand.Code, err)
	}

	totalProducts := len(merged)
	for j, item := range merged {
		if err := ctx.Err(); err != nil {
			return err
		}
		code := codes[j]
		ex := existing[code]
		if owner := productOwner(run, ex, code); owner != "" && owner != brand.Code {
			// Product codes are brand-scoped; a clash means two brands
			// hyphenate to the same code.
			run.summary.Skipped++
			s.warn(run, ub.Key, brand.Code, "conflict",
				fmt.Sprintf("product %s skipped: code already owned by brand %s", code, owner))
			continue
		}
		run.seen[code] = struct{}{}
		run.owners[code] = brand.Code

		hash := Fingerprint(item.Name, item.Cost, item.ProviderProductCode)
		if ex != nil && ex.Hash == hash && ex.IsActive {
			run.summary.Unchanged++
		} else {
			p := s.buildProduct(ctx, brand, item, code, hash, effMarkup, provider, ex)
			if err := s.products.Upsert(ctx, p); err != nil {
				return fmt.Errorf("upsert product %s: %w", code, err)
			}
			run.summary.Upserted++
		}

		processed := j + 1
		if processed%s.cfg.ProgressEvery == 0 && processed < totalProducts {
			s.progress(run, ub.Key, brand.Code, processed, totalProducts)
		}
	}
	s.progress(run, ub.Key, brand.Code, totalProducts, totalProducts)

	run.summary.Brands++
	s.emit(run, models.SyncBrandDoneEvent{
		Type:          models.SyncEventBrandDone,
		Key:           ub.Key,
		Canonical:     brand.Code,
		Products:      totalProducts,
		UpsertedBrand: outcome != ResolveMatched,
	})
	return nil
}

// productOwner returns the brand that already holds code, either earlier in
// this run or in the store.
func productOwner(run *syncRun, existing *models.Product, code string) string {
	if owner, ok := run.owners[code]; ok {
		return owner
	}
	if existing != nil {
		return existing.BrandKey
	}
	return ""
}

// buildProduct maps a merged upstream entry onto the stored product shape.
func (s *CatalogSyncService) buildProduct(
	ctx context.Context,
	brand *models.Brand,
	item mergedProduct,
	code, hash string,
	markup float64,
	provider string,
	existing *models.Product,
) *models.Product {
	p := &models.Product{
		Code:         code,
		Name:         item.Name,
		Cost:         item.Cost,
		Price:        SellPrice(item.Cost, markup),
		Provider:     provider,
		ProviderCode: item.ProviderProductCode,
		BrandKey:     brand.Code,
		GameCode:     brand.Code,
		Category:     brand.Code,
		Icon:         s.productIcon(ctx, item.Image, code),
		Hash:         hash,
		IsActive:     true,
		ProductMeta:  item.Meta,
	}
	if existing != nil {
		p.CustomPrice = existing.CustomPrice
		if existing.CustomPrice {
			p.Price = existing.Price
		}
		// Ignored by the upsert on conflict; carried for completeness.
		p.PurchaseMode = existing.PurchaseMode
		p.PurchaseFields = existing.PurchaseFields
	} else {
		p.PurchaseMode, p.PurchaseFields = s.rules.Resolve(brand.Code)
	}
	return p
}

func (s *CatalogSyncService) productIcon(ctx context.Context, image, code string) string {
	if image == "" {
		return s.cfg.PlaceholderIcon
	}
	if !s.images.ShouldCopyRemote(image) {
		return image
	}
	folder := path.Join(s.cfg.ImageFolder, "products")
	newURL, err := s.images.CopyImageToCDN(ctx, image, folder, code)
	if err != nil || newURL == "" {
		log.Warn().Err(err).Str("product", code).Str("image", image).Msg("Image copy failed, keeping remote URL")
		return image
	}
	return newURL
}

func (s *CatalogSyncService) progress(run *syncRun, key, canonical string, processed, total int) {
	pct := 100
	if total > 0 {
		pct = processed * 100 / total
	}
	s.emit(run, models.SyncBrandProgressEvent{
		Type:          models.SyncEventBrandProgress,
		Key:           key,
		Canonical:     canonical,
		Processed:     processed,
		TotalProducts: total,
		Pct:           pct,
	})
}

func (s *CatalogSyncService) warn(run *syncRun, key, canonical, kind, msg string) {
	run.summary.Warnings++
	s.metrics.SyncWarning(run.summary.Provider, kind)
	log.Warn().
		Str("run_id", run.summary.RunID).
		Str("brand_key", key).
		Str("canonical", canonical).
		Msg(msg)
	s.emit(run, models.SyncBrandWarnEvent{
		Type:      models.SyncEventBrandWarn,
		Key:       key,
		Canonical: canonical,
		Message:   msg,
	})
}

// emit delivers ev to the observer and the run's channel. Delivery to the
// channel gives up once the run's context is done.
func (s *CatalogSyncService) emit(run *syncRun, ev models.SyncEvent) {
	if s.observer != nil {
		s.observer.Observe(ev)
	}
	if run.events == nil {
		return
	}
	select {
	case run.events <- ev:
	case <-run.ctx.Done():
	}
}

// finish emits the terminal event and records the run.
func (s *CatalogSyncService) finish(run *syncRun, err error) {
	sum := &run.summary
	elapsed := s.now().Sub(sum.StartedAt)
	sum.DurationMs = elapsed.Milliseconds()
	sum.Active = len(run.seen)

	result := "ok"
	switch {
	case err == nil:
		s.emit(run, models.SyncDoneEvent{
			Type:        models.SyncEventDone,
			DurationMs:  sum.DurationMs,
			Brands:      sum.Brands,
			Upserted:    sum.Upserted,
			Active:      sum.Active,
			Deactivated: sum.Deactivated,
			Unchanged:   sum.Unchanged,
			Skipped:     sum.Skipped,
			Warnings:    sum.Warnings,
		})
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		result = "cancelled"
		sum.Cancelled = true
		sum.Error = err.Error()
	default:
		result = "error"
		sum.Error = err.Error()
		s.emit(run, models.SyncErrorEvent{Type: models.SyncEventError, Message: err.Error()})
	}

	s.metrics.ObserveSync(sum.Provider, result, elapsed, sum.Upserted, sum.Deactivated)

	logEvent := log.Info()
	if result != "ok" {
		logEvent = log.Warn().Str("error", sum.Error)
	}
	logEvent.
		Str("run_id", sum.RunID).
		Str("provider", sum.Provider).
		Str("result", result).
		Int("brands", sum.Brands).
		Int("upserted", sum.Upserted).
		Int("unchanged", sum.Unchanged).
		Int("active", sum.Active).
		Int("deactivated", sum.Deactivated).
		Int("warnings", sum.Warnings).
		Int64("duration_ms", sum.DurationMs).
		Msg("Catalog sync finished")

	// The run context may already be cancelled; bookkeeping uses its own.
	bg, cancel := context.WithTimeout(context.WithoutCancel(run.ctx), 5*time.Second)
	defer cancel()
	if s.summary != nil {
		if cerr := s.summary.SaveLastSync(bg, sum); cerr != nil {
			log.Warn().Err(cerr).Str("run_id", sum.RunID).Msg("Failed to cache sync summary")
		}
	}
	if perr := s.audit.PublishSyncSummary(bg, sum); perr != nil {
		log.Warn().Err(perr).Str("run_id", sum.RunID).Msg("Failed to publish sync summary")
	}
}
