package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"

	"github.com/GTDGit/gtd_catalog/internal/config"
	"github.com/GTDGit/gtd_catalog/internal/models"
	"github.com/GTDGit/gtd_catalog/internal/utils"
)

type syncFixture struct {
	svc      *CatalogSyncService
	brands   *memBrands
	products *memProducts
	provider *fakeProvider
	audit    *recordingAudit
	summary  *memSummaryCache
}

func testCatalogConfig() config.CatalogConfig {
	return config.CatalogConfig{
		DefaultMarkupPercent: 10,
		PlaceholderIcon:      testPlaceholder,
		ProgressEvery:        25,
		DefaultProvider:      "vcgamers",
		LockTTL:              time.Minute,
		ImageFolder:          "catalog",
	}
}

func newSyncFixture(images ImageStore) *syncFixture {
	f := &syncFixture{
		brands:   newMemBrands(),
		products: newMemProducts(),
		provider: newFakeProvider("vcgamers"),
		audit:    &recordingAudit{},
		summary:  &memSummaryCache{},
	}
	f.svc = NewCatalogSyncService(f.brands, f.products, NewProviderRegistry(f.provider), images, nil, testCatalogConfig())
	f.svc.SetAuditPublisher(f.audit)
	f.svc.SetSummaryCache(f.summary)
	return f
}

// standardCatalog installs two brands with a few products each.
func (f *syncFixture) standardCatalog() {
	f.provider.brands = []models.UpstreamBrand{
		{Key: "MLBB", Name: "Mobile Legends"},
		{Key: "FF", Name: "Free Fire"},
	}
	f.provider.products["MLBB"] = []models.UpstreamProduct{
		{ProviderProductCode: "ML86", Name: "86 Diamonds", Cost: 19000},
		{ProviderProductCode: "ML172", Name: "172 Diamonds", Cost: 38000},
	}
	f.provider.products["FF"] = []models.UpstreamProduct{
		{ProviderProductCode: "FF100", Name: "100 Diamonds", Cost: 14000},
	}
}

func runSync(t *testing.T, ctx context.Context, svc *CatalogSyncService, opts models.SyncOptions) (*models.SyncSummary, []models.SyncEvent, error) {
	t.Helper()
	events := make(chan models.SyncEvent, 4096)
	summary, err := svc.Sync(ctx, opts, events)
	var out []models.SyncEvent
	for ev := range events {
		out = append(out, ev)
	}
	return summary, out, err
}

func eventTypes(events []models.SyncEvent) []models.SyncEventType {
	out := make([]models.SyncEventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.EventType())
	}
	return out
}

func countType(events []models.SyncEvent, typ models.SyncEventType) int {
	n := 0
	for _, ev := range events {
		if ev.EventType() == typ {
			n++
		}
	}
	return n
}

func TestSyncCreatesBrandsAndProducts(t *testing.T) {
	f := newSyncFixture(nil)
	f.standardCatalog()

	summary, events, err := runSync(t, context.Background(), f.svc, models.SyncOptions{})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if summary.Brands != 2 || summary.Upserted != 3 || summary.Active != 3 || summary.Unchanged != 0 || summary.Deactivated != 0 {
		t.Errorf("unexpected summary: %+v", summary)
	}

	want := []models.SyncEventType{
		models.SyncEventStart, models.SyncEventBrands,
		models.SyncEventBrandStart, models.SyncEventBrandProgress, models.SyncEventBrandDone,
		models.SyncEventBrandStart, models.SyncEventBrandProgress, models.SyncEventBrandDone,
		models.SyncEventDone,
	}
	got := eventTypes(events)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("event order:\n got %v\nwant %v", got, want)
	}
	if done, ok := events[len(events)-1].(models.SyncDoneEvent); !ok || done.Upserted != 3 || done.Active != 3 {
		t.Errorf("unexpected done event: %+v", events[len(events)-1])
	}
	if bd, ok := events[4].(models.SyncBrandDoneEvent); !ok || !bd.UpsertedBrand || bd.Canonical != "mobile-legends" {
		t.Errorf("brand:done should report the created brand: %+v", events[4])
	}

	p := f.products.get("mobile-legends-ml86")
	if p == nil {
		t.Fatal("product mobile-legends-ml86 missing")
	}
	if p.Price != SellPrice(19000, 10) || p.Cost != 19000 || !p.IsActive {
		t.Errorf("unexpected pricing: %+v", p)
	}
	if p.BrandKey != "mobile-legends" || p.GameCode != "mobile-legends" || p.Category != "mobile-legends" {
		t.Errorf("ownership fields should follow the canonical brand: %+v", p)
	}
	if p.Icon != testPlaceholder {
		t.Errorf("missing image should fall back to placeholder, got %q", p.Icon)
	}
	if p.PurchaseMode != models.PurchaseModeUserIDZone || len(p.PurchaseFields) != 2 {
		t.Errorf("mobile legends should need user and zone ids: %q %+v", p.PurchaseMode, p.PurchaseFields)
	}
	if ff := f.products.get("free-fire-ff100"); ff == nil || ff.PurchaseMode != models.PurchaseModeUserID {
		t.Errorf("free fire product should use the single id schema: %+v", ff)
	}

	if len(f.audit.summaries) != 1 || f.audit.summaries[0].RunID != summary.RunID {
		t.Errorf("summary should be published once: %+v", f.audit.summaries)
	}
	last, _ := f.svc.LastSummary(context.Background(), "")
	if last == nil || last.RunID != summary.RunID {
		t.Errorf("last summary should be cached: %+v", last)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	f := newSyncFixture(nil)
	f.standardCatalog()
	ctx := context.Background()

	if _, _, err := runSync(t, ctx, f.svc, models.SyncOptions{}); err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	upserts, saves, creates := f.products.upserts, f.brands.saves, f.brands.creates

	summary, events, err := runSync(t, ctx, f.svc, models.SyncOptions{})
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if summary.Upserted != 0 || summary.Unchanged != 3 || summary.Deactivated != 0 || summary.Active != 3 {
		t.Errorf("unexpected second summary: %+v", summary)
	}
	if f.products.upserts != upserts || f.brands.saves != saves || f.brands.creates != creates {
		t.Errorf("second run should not write: upserts %d->%d saves %d->%d creates %d->%d",
			upserts, f.products.upserts, saves, f.brands.saves, creates, f.brands.creates)
	}
	for _, ev := range events {
		if bd, ok := ev.(models.SyncBrandDoneEvent); ok && bd.UpsertedBrand {
			t.Errorf("matched brand reported as upserted: %+v", bd)
		}
	}
}

func TestSyncUpdatesChangedProduct(t *testing.T) {
	f := newSyncFixture(nil)
	f.standardCatalog()
	ctx := context.Background()
	runSync(t, ctx, f.svc, models.SyncOptions{})

	f.provider.products["FF"][0].Cost = 15000
	summary, _, err := runSync(t, ctx, f.svc, models.SyncOptions{})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if summary.Upserted != 1 || summary.Unchanged != 2 {
		t.Errorf("only the changed product should be written: %+v", summary)
	}
	if p := f.products.get("free-fire-ff100"); p.Cost != 15000 || p.Price != SellPrice(15000, 10) {
		t.Errorf("product not updated: %+v", p)
	}
}

func TestSyncDeactivatesMissingProducts(t *testing.T) {
	f := newSyncFixture(nil)
	f.standardCatalog()
	ctx := context.Background()
	runSync(t, ctx, f.svc, models.SyncOptions{})

	// A product of another provider must never be touched.
	f.products.seed(models.Product{Code: "other-x", Provider: "digiflazz", BrandKey: "other", IsActive: true})

	f.provider.products["MLBB"] = f.provider.products["MLBB"][:1]
	summary, _, err := runSync(t, ctx, f.svc, models.SyncOptions{DeactivateMissing: boolPtr(false)})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if summary.Deactivated != 0 || !f.products.get("mobile-legends-ml172").IsActive {
		t.Errorf("deactivation disabled but product was deactivated: %+v", summary)
	}

	summary, _, err = runSync(t, ctx, f.svc, models.SyncOptions{})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if summary.Deactivated != 1 || summary.Active != 2 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	gone := f.products.get("mobile-legends-ml172")
	if gone.IsActive {
		t.Error("missing product should be inactive")
	}
	if gone.Cost != 38000 || gone.Name != "172 Diamonds" {
		t.Errorf("deactivation must leave other fields alone: %+v", gone)
	}
	if !f.products.get("other-x").IsActive {
		t.Error("other provider's product was deactivated")
	}

	// The product comes back unchanged upstream; it must be reactivated.
	f.standardCatalog()
	summary, _, err = runSync(t, ctx, f.svc, models.SyncOptions{})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !f.products.get("mobile-legends-ml172").IsActive || summary.Upserted != 1 {
		t.Errorf("returning product should be reactivated: %+v", summary)
	}
}

func TestSyncBrandListFailureIsFatal(t *testing.T) {
	f := newSyncFixture(nil)
	f.provider.brandsErr = errors.New("upstream 503")
	f.products.seed(models.Product{Code: "mobile-legends-ml86", Provider: "vcgamers", BrandKey: "mobile-legends", IsActive: true})

	summary, events, err := runSync(t, context.Background(), f.svc, models.SyncOptions{})
	if !errors.Is(err, utils.ErrProviderUnavailable) {
		t.Fatalf("err = %v, want ErrProviderUnavailable", err)
	}
	if summary == nil || summary.Error == "" {
		t.Errorf("summary should carry the error: %+v", summary)
	}
	got := eventTypes(events)
	if len(got) != 2 || got[0] != models.SyncEventStart || got[1] != models.SyncEventError {
		t.Errorf("expected start then error, got %v", got)
	}
	if !f.products.get("mobile-legends-ml86").IsActive {
		t.Error("a failed run must not deactivate anything")
	}
}

func TestSyncDegradedBrandFetches(t *testing.T) {
	f := newSyncFixture(nil)
	f.standardCatalog()
	ctx := context.Background()
	runSync(t, ctx, f.svc, models.SyncOptions{})

	// Products fail but variations still answer: only what variations list survives.
	f.provider.productErr["FF"] = errors.New("timeout")
	f.provider.variations["FF"] = []models.UpstreamVariation{{ProviderProductCode: "FF100", Name: "100 Diamonds", Cost: 14000}}
	// Both feeds fail: existing products are kept alive.
	f.provider.productErr["MLBB"] = errors.New("timeout")
	f.provider.varErr["MLBB"] = errors.New("timeout")

	summary, events, err := runSync(t, ctx, f.svc, models.SyncOptions{})
	if err != nil {
		t.Fatalf("degraded fetches must not fail the run: %v", err)
	}
	if summary.Warnings != 3 || countType(events, models.SyncEventBrandWarn) != 3 {
		t.Errorf("expected 3 warnings, got %d (events %v)", summary.Warnings, eventTypes(events))
	}
	if summary.Deactivated != 0 {
		t.Errorf("nothing should be deactivated: %+v", summary)
	}
	for _, code := range []string{"mobile-legends-ml86", "mobile-legends-ml172", "free-fire-ff100"} {
		if !f.products.get(code).IsActive {
			t.Errorf("%s should still be active", code)
		}
	}
	if eventTypes(events)[len(events)-1] != models.SyncEventDone {
		t.Error("degraded run should still end with done")
	}
}

func TestSyncProgressEvents(t *testing.T) {
	f := newSyncFixture(nil)
	f.provider.brands = []models.UpstreamBrand{{Key: "PUBG", Name: "PUBG Mobile"}}
	for i := 0; i < 60; i++ {
		f.provider.products["PUBG"] = append(f.provider.products["PUBG"], models.UpstreamProduct{
			ProviderProductCode: fmt.Sprintf("UC%02d", i),
			Name:                fmt.Sprintf("%d UC", i),
			Cost:                int64(1000 + i),
		})
	}

	_, events, err := runSync(t, context.Background(), f.svc, models.SyncOptions{})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	var processed []int
	for _, ev := range events {
		if p, ok := ev.(models.SyncBrandProgressEvent); ok {
			processed = append(processed, p.Processed)
			if p.TotalProducts != 60 {
				t.Errorf("total = %d, want 60", p.TotalProducts)
			}
			if p.Processed == 60 && p.Pct != 100 {
				t.Errorf("final pct = %d", p.Pct)
			}
		}
	}
	if fmt.Sprint(processed) != "[25 50 60]" {
		t.Errorf("progress marks = %v, want [25 50 60]", processed)
	}
}

func TestSyncKeepsCustomPriceAndPurchaseSchema(t *testing.T) {
	f := newSyncFixture(nil)
	f.standardCatalog()
	ctx := context.Background()
	runSync(t, ctx, f.svc, models.SyncOptions{})

	p := f.products.get("mobile-legends-ml86")
	p.CustomPrice = true
	p.Price = 25000
	p.PurchaseMode = models.PurchaseModeNone
	p.PurchaseFields = models.PurchaseFields{}
	f.products.seed(*p)

	f.provider.products["MLBB"][0].Cost = 20000
	if _, _, err := runSync(t, ctx, f.svc, models.SyncOptions{}); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	got := f.products.get("mobile-legends-ml86")
	if got.Cost != 20000 {
		t.Errorf("cost should follow upstream, got %d", got.Cost)
	}
	if got.Price != 25000 || !got.CustomPrice {
		t.Errorf("custom price should be kept, got %d custom=%v", got.Price, got.CustomPrice)
	}
	if got.PurchaseMode != models.PurchaseModeNone || len(got.PurchaseFields) != 0 {
		t.Errorf("purchase schema should only be set on insert: %q %+v", got.PurchaseMode, got.PurchaseFields)
	}
}

func TestSyncUsesBrandMarkup(t *testing.T) {
	f := newSyncFixture(nil)
	f.brands.seed(models.Brand{
		Code:                 "free-fire",
		Name:                 "Free Fire",
		Aliases:              pq.StringArray{"free-fire"},
		ProviderRefs:         models.ProviderRefs{"vcgamers": {"ff"}},
		DefaultMarkupPercent: floatPtr(20),
		IsActive:             true,
	})
	f.standardCatalog()

	if _, _, err := runSync(t, context.Background(), f.svc, models.SyncOptions{MarkupPercent: floatPtr(5)}); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if p := f.products.get("free-fire-ff100"); p.Price != SellPrice(14000, 20) {
		t.Errorf("brand markup should win, price = %d", p.Price)
	}
	if p := f.products.get("mobile-legends-ml86"); p.Price != SellPrice(19000, 5) {
		t.Errorf("run markup should apply to new brands, price = %d", p.Price)
	}
}

func TestSyncSkipsUnresolvableBrand(t *testing.T) {
	f := newSyncFixture(nil)
	f.standardCatalog()
	f.provider.brands = append(f.provider.brands, models.UpstreamBrand{Key: "", Name: "Nameless"})

	summary, _, err := runSync(t, context.Background(), f.svc, models.SyncOptions{})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if summary.Skipped != 1 || summary.Warnings != 1 || summary.Brands != 2 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestSyncCopiesImages(t *testing.T) {
	images := &fakeImages{}
	f := newSyncFixture(images)
	f.standardCatalog()
	f.provider.products["FF"][0].Image = "http://vendor.example/ff100.png"
	f.provider.products["MLBB"][0].Image = "https://cdn.test/already.png"

	if _, _, err := runSync(t, context.Background(), f.svc, models.SyncOptions{}); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if got := f.products.get("free-fire-ff100").Icon; got != "https://cdn.test/catalog/products/free-fire-ff100.png" {
		t.Errorf("remote image should be copied, icon = %q", got)
	}
	if got := f.products.get("mobile-legends-ml86").Icon; got != "https://cdn.test/already.png" {
		t.Errorf("cdn image should be kept, icon = %q", got)
	}

	images.fail = true
	f.provider.products["FF"][0].Cost = 1
	runSync(t, context.Background(), f.svc, models.SyncOptions{})
	if got := f.products.get("free-fire-ff100").Icon; got != "http://vendor.example/ff100.png" {
		t.Errorf("failed copy should keep the remote url, icon = %q", got)
	}
}

func TestSyncCancellationSkipsDeactivation(t *testing.T) {
	f := newSyncFixture(nil)
	f.standardCatalog()
	f.products.seed(models.Product{Code: "legacy-x", Provider: "vcgamers", BrandKey: "legacy", IsActive: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.provider.onProducts = func(key string) {
		if key == "FF" {
			cancel()
		}
	}

	summary, _, err := runSync(t, ctx, f.svc, models.SyncOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if !summary.Cancelled || summary.Deactivated != 0 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if !f.products.get("legacy-x").IsActive {
		t.Error("cancelled run must not deactivate")
	}
	if f.products.get("free-fire-ff100") != nil {
		t.Error("brand processed after cancellation")
	}
	if len(f.audit.summaries) != 1 || !f.audit.summaries[0].Cancelled {
		t.Errorf("cancelled summary should still be published: %+v", f.audit.summaries)
	}
}

func TestSyncRejectsConcurrentRun(t *testing.T) {
	f := newSyncFixture(nil)
	f.standardCatalog()
	locker := newMemLocker()
	f.svc.SetLocker(locker)

	release, err := locker.Acquire(context.Background(), SyncLockName, time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	summary, events, err := runSync(t, context.Background(), f.svc, models.SyncOptions{})
	if !errors.Is(err, utils.ErrRunInProgress) || summary != nil || len(events) != 0 {
		t.Fatalf("expected ErrRunInProgress with no events, got %v %+v %v", err, summary, eventTypes(events))
	}

	release()
	if _, _, err := runSync(t, context.Background(), f.svc, models.SyncOptions{}); err != nil {
		t.Fatalf("Sync after release: %v", err)
	}
}

func TestSyncUnknownProvider(t *testing.T) {
	f := newSyncFixture(nil)
	_, events, err := runSync(t, context.Background(), f.svc, models.SyncOptions{Provider: "nope"})
	if !errors.Is(err, utils.ErrUnknownProvider) || len(events) != 0 {
		t.Errorf("err = %v events = %d", err, len(events))
	}
}

func TestSyncStoreFailureIsFatal(t *testing.T) {
	f := newSyncFixture(nil)
	f.standardCatalog()
	f.products.failOn["upsert:free-fire-ff100"] = errStore

	summary, events, err := runSync(t, context.Background(), f.svc, models.SyncOptions{})
	if !errors.Is(err, errStore) {
		t.Fatalf("err = %v, want store error", err)
	}
	if summary.Deactivated != 0 || eventTypes(events)[len(events)-1] != models.SyncEventError {
		t.Errorf("store failure should end with an error event and no deactivation: %+v", summary)
	}
}

func TestSyncObserverSeesEveryEvent(t *testing.T) {
	f := newSyncFixture(nil)
	f.standardCatalog()
	obs := &recordingObserver{}
	f.svc.SetObserver(obs)

	summary, err := f.svc.Sync(context.Background(), models.SyncOptions{}, nil)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if summary.Upserted != 3 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if len(obs.events) != 9 || obs.events[len(obs.events)-1].EventType() != models.SyncEventDone {
		t.Errorf("observer got %v", eventTypes(obs.events))
	}
}

type recordingObserver struct {
	events []models.SyncEvent
}

func (o *recordingObserver) Observe(ev models.SyncEvent) { o.events = append(o.events, ev) }

func TestSyncSkipsProductCodeOwnedByAnotherBrand(t *testing.T) {
	f := newSyncFixture(nil)
	f.provider.brands = []models.UpstreamBrand{
		{Key: "A", Name: "Alpha"},
		{Key: "AB", Name: "Alpha Beta"},
	}
	f.provider.products["A"] = []models.UpstreamProduct{{ProviderProductCode: "beta-c", Name: "Beta C", Cost: 1000}}
	f.provider.products["AB"] = []models.UpstreamProduct{{ProviderProductCode: "c", Name: "C", Cost: 2000}}

	summary, events, err := runSync(t, context.Background(), f.svc, models.SyncOptions{})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if summary.Upserted != 1 || summary.Skipped != 1 || summary.Warnings != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	p := f.products.get("alpha-beta-c")
	if p == nil || p.BrandKey != "alpha" || p.ProviderCode != "beta-c" || p.Cost != 1000 {
		t.Fatalf("first brand should keep the code: %+v", p)
	}
	var warned bool
	for _, ev := range events {
		if w, ok := ev.(models.SyncBrandWarnEvent); ok && w.Canonical == "alpha-beta" && strings.Contains(w.Message, "alpha-beta-c") {
			warned = true
		}
	}
	if !warned {
		t.Errorf("expected a conflict warning for alpha-beta, got %v", eventTypes(events))
	}

	again, _, err := runSync(t, context.Background(), f.svc, models.SyncOptions{})
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if again.Upserted != 0 || again.Unchanged != 1 || again.Skipped != 1 {
		t.Errorf("rerun should leave the owner untouched: %+v", again)
	}
	if p := f.products.get("alpha-beta-c"); p.BrandKey != "alpha" || p.Cost != 1000 || !p.IsActive {
		t.Errorf("product flipped owners on rerun: %+v", p)
	}
}
