package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GTDGit/gtd_catalog/internal/models"
	"github.com/GTDGit/gtd_catalog/internal/utils"
)

// memBrands is an in-memory BrandStore with the same contract as the
// Postgres repository.
type memBrands struct {
	mu     sync.Mutex
	byCode map[string]*models.Brand
	clock  time.Time

	saves   int
	creates int
	failOn  map[string]error // "save:<code>", "deactivate:<code>"
}

func newMemBrands() *memBrands {
	return &memBrands{
		byCode: map[string]*models.Brand{},
		clock:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		failOn: map[string]error{},
	}
}

func (m *memBrands) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

// seed stores b as given, stamping CreatedAt when unset.
func (m *memBrands) seed(b models.Brand) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = m.tick()
	}
	if b.ProviderRefs == nil {
		b.ProviderRefs = models.ProviderRefs{}
	}
	b.UpdatedAt = b.CreatedAt
	m.byCode[b.Code] = b.Clone()
}

func (m *memBrands) get(code string) *models.Brand {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.byCode[code]; ok {
		return b.Clone()
	}
	return nil
}

func (m *memBrands) sorted() []*models.Brand {
	out := make([]*models.Brand, 0, len(m.byCode))
	for _, b := range m.byCode {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Code < out[j].Code
	})
	return out
}

func (m *memBrands) FindActiveByProviderRef(_ context.Context, provider, rawCode string) (*models.Brand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.sorted() {
		if b.IsActive && b.ProviderRefs.Has(provider, rawCode) {
			return b.Clone(), nil
		}
	}
	return nil, nil
}

func (m *memBrands) FindActiveBySlug(_ context.Context, slug string) (*models.Brand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.sorted() {
		if !b.IsActive {
			continue
		}
		if b.HasAlias(slug) || b.Code == slug || utils.Slugify(b.Name) == slug {
			return b.Clone(), nil
		}
	}
	return nil, nil
}

func (m *memBrands) GetByCode(_ context.Context, code string) (*models.Brand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.byCode[code]
	if !ok {
		return nil, utils.ErrBrandNotFound
	}
	return b.Clone(), nil
}

func (m *memBrands) Create(_ context.Context, b *models.Brand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byCode[b.Code]; ok {
		return utils.ErrBrandExists
	}
	m.creates++
	b.CreatedAt = m.tick()
	b.UpdatedAt = b.CreatedAt
	m.byCode[b.Code] = b.Clone()
	return nil
}

func (m *memBrands) Save(_ context.Context, b *models.Brand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOn["save:"+b.Code]; err != nil {
		return err
	}
	old, ok := m.byCode[b.Code]
	if !ok {
		return utils.ErrBrandNotFound
	}
	m.saves++
	c := b.Clone()
	c.CreatedAt = old.CreatedAt
	c.UpdatedAt = m.tick()
	m.byCode[b.Code] = c
	return nil
}

func (m *memBrands) ListActive(_ context.Context) ([]models.Brand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Brand
	for _, b := range m.sorted() {
		if b.IsActive {
			out = append(out, *b.Clone())
		}
	}
	return out, nil
}

func (m *memBrands) ListPaged(_ context.Context, search string, activeOnly bool, page, limit int) ([]models.Brand, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []models.Brand
	for _, b := range m.sorted() {
		if activeOnly && !b.IsActive {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(b.Name), strings.ToLower(search)) {
			continue
		}
		all = append(all, *b.Clone())
	}
	start := (page - 1) * limit
	if start > len(all) {
		start = len(all)
	}
	end := min(start+limit, len(all))
	return all[start:end], len(all), nil
}

func (m *memBrands) Deactivate(_ context.Context, code, mergedInto string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOn["deactivate:"+code]; err != nil {
		return err
	}
	b, ok := m.byCode[code]
	if !ok {
		return utils.ErrBrandNotFound
	}
	b.IsActive = false
	into := mergedInto
	b.MergedInto = &into
	return nil
}

func (m *memBrands) ListInactiveCodes(_ context.Context, mergedOnly bool) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, b := range m.sorted() {
		if b.IsActive {
			continue
		}
		if mergedOnly && (b.MergedInto == nil || *b.MergedInto == "") {
			continue
		}
		out = append(out, b.Code)
	}
	return out, nil
}

func (m *memBrands) DeleteInactive(_ context.Context, codes []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range codes {
		if b, ok := m.byCode[c]; ok && !b.IsActive {
			delete(m.byCode, c)
			n++
		}
	}
	return n, nil
}

// memProducts is an in-memory ProductStore mirroring the repository's
// upsert and repoint rules.
type memProducts struct {
	mu      sync.Mutex
	byCode  map[string]*models.Product
	upserts int
	failOn  map[string]error // "upsert:<code>", "repoint:<old>"
}

func newMemProducts() *memProducts {
	return &memProducts{byCode: map[string]*models.Product{}, failOn: map[string]error{}}
}

func (m *memProducts) seed(p models.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	m.byCode[p.Code] = &cp
}

func (m *memProducts) get(code string) *models.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.byCode[code]; ok {
		cp := *p
		return &cp
	}
	return nil
}

func (m *memProducts) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byCode)
}

func (m *memProducts) GetByCodes(_ context.Context, codes []string) (map[string]*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]*models.Product{}
	for _, c := range codes {
		if p, ok := m.byCode[c]; ok {
			cp := *p
			out[c] = &cp
		}
	}
	return out, nil
}

func (m *memProducts) Upsert(_ context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOn["upsert:"+p.Code]; err != nil {
		return err
	}
	m.upserts++
	old, ok := m.byCode[p.Code]
	if !ok {
		cp := *p
		m.byCode[p.Code] = &cp
		return nil
	}
	next := *p
	next.CustomPrice = old.CustomPrice
	if old.CustomPrice {
		next.Price = old.Price
	}
	next.PurchaseMode = old.PurchaseMode
	next.PurchaseFields = old.PurchaseFields
	next.CreatedAt = old.CreatedAt
	if next.SLA == nil {
		next.SLA = old.SLA
	}
	if next.IsNew == nil {
		next.IsNew = old.IsNew
	}
	if next.VariationActive == nil {
		next.VariationActive = old.VariationActive
	}
	m.byCode[p.Code] = &next
	return nil
}

func (m *memProducts) ListByBrand(_ context.Context, brandKey string) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Product
	for _, p := range m.byCode {
		if p.BrandKey == brandKey {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *memProducts) ActiveCodesByBrand(_ context.Context, provider, brandKey string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, p := range m.byCode {
		if p.Provider == provider && p.BrandKey == brandKey && p.IsActive {
			out = append(out, p.Code)
		}
	}
	return out, nil
}

func (m *memProducts) DeactivateMissing(_ context.Context, provider string, seen []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keep := map[string]bool{}
	for _, c := range seen {
		keep[c] = true
	}
	n := 0
	for _, p := range m.byCode {
		if p.Provider == provider && p.IsActive && !keep[p.Code] {
			p.IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *memProducts) Exists(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byCode[code]
	return ok, nil
}

func (m *memProducts) Repoint(_ context.Context, oldCode, newCode, brandCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOn["repoint:"+oldCode]; err != nil {
		return err
	}
	if _, taken := m.byCode[newCode]; taken {
		return utils.ErrProductCodeTaken
	}
	p, ok := m.byCode[oldCode]
	if !ok {
		return nil
	}
	delete(m.byCode, oldCode)
	p.Code = newCode
	p.BrandKey = brandCode
	p.GameCode = brandCode
	p.Category = brandCode
	m.byCode[newCode] = p
	return nil
}

// fakeProvider serves a fixed catalog per brand key.
type fakeProvider struct {
	code       string
	brands     []models.UpstreamBrand
	brandsErr  error
	products   map[string][]models.UpstreamProduct
	variations map[string][]models.UpstreamVariation
	productErr map[string]error
	varErr     map[string]error

	// onProducts runs before each product fetch; tests use it to cancel.
	onProducts func(brandKey string)
}

func newFakeProvider(code string) *fakeProvider {
	return &fakeProvider{
		code:       code,
		products:   map[string][]models.UpstreamProduct{},
		variations: map[string][]models.UpstreamVariation{},
		productErr: map[string]error{},
		varErr:     map[string]error{},
	}
}

func (p *fakeProvider) Code() string { return p.code }

func (p *fakeProvider) ListBrands(context.Context) ([]models.UpstreamBrand, error) {
	if p.brandsErr != nil {
		return nil, p.brandsErr
	}
	return append([]models.UpstreamBrand(nil), p.brands...), nil
}

func (p *fakeProvider) ListBrandProducts(_ context.Context, key string) ([]models.UpstreamProduct, error) {
	if p.onProducts != nil {
		p.onProducts(key)
	}
	if err := p.productErr[key]; err != nil {
		return nil, err
	}
	return append([]models.UpstreamProduct(nil), p.products[key]...), nil
}

func (p *fakeProvider) ListVariations(_ context.Context, key string) ([]models.UpstreamVariation, error) {
	if err := p.varErr[key]; err != nil {
		return nil, err
	}
	return append([]models.UpstreamVariation(nil), p.variations[key]...), nil
}

// memLocker grants each name to one holder at a time.
type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocker() *memLocker { return &memLocker{held: map[string]bool{}} }

func (l *memLocker) Acquire(_ context.Context, name string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return nil, utils.ErrRunInProgress
	}
	l.held[name] = true
	return func() {
		l.mu.Lock()
		delete(l.held, name)
		l.mu.Unlock()
	}, nil
}

// recordingAudit keeps every published record.
type recordingAudit struct {
	mu        sync.Mutex
	summaries []models.SyncSummary
	merges    []models.MergeRecord
}

func (a *recordingAudit) PublishSyncSummary(_ context.Context, s *models.SyncSummary) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summaries = append(a.summaries, *s)
	return nil
}

func (a *recordingAudit) PublishMerge(_ context.Context, _ models.MergeMode, r models.MergeRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.merges = append(a.merges, r)
	return nil
}

// memSummaryCache keeps the last summary per provider.
type memSummaryCache struct {
	mu   sync.Mutex
	last map[string]models.SyncSummary
}

func (c *memSummaryCache) SaveLastSync(_ context.Context, s *models.SyncSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		c.last = map[string]models.SyncSummary{}
	}
	c.last[s.Provider] = *s
	return nil
}

func (c *memSummaryCache) LastSync(_ context.Context, provider string) (*models.SyncSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.last[provider]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// fakeImages rewrites remote URLs under a CDN prefix, optionally failing.
type fakeImages struct {
	fail   bool
	copied []string
}

func (f *fakeImages) ShouldCopyRemote(rawURL string) bool {
	return strings.HasPrefix(rawURL, "http") && !strings.HasPrefix(rawURL, "https://cdn.test/")
}

func (f *fakeImages) CopyImageToCDN(_ context.Context, rawURL, folder, slug string) (string, error) {
	if f.fail {
		return "", errors.New("upload failed")
	}
	f.copied = append(f.copied, rawURL)
	return "https://cdn.test/" + folder + "/" + slug + ".png", nil
}

var errStore = errors.New("store unavailable")

func boolPtr(v bool) *bool { return &v }
func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string { return &v }
func intPtr(v int) *int { return &v }
