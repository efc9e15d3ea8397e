package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_catalog/internal/config"
	"github.com/GTDGit/gtd_catalog/internal/metrics"
	"github.com/GTDGit/gtd_catalog/internal/models"
	"github.com/GTDGit/gtd_catalog/internal/utils"
)

// MergeLockName is the run lock taken by non-dry merges.
const MergeLockName = "merge"

// BrandMergeService finds canonical brands that describe the same entity and
// folds the duplicates into one survivor.
type BrandMergeService struct {
	brands   BrandStore
	products ProductStore
	cfg      config.CatalogConfig
	locker   RunLocker
	audit    AuditPublisher
	metrics  *metrics.CatalogMetrics
}

// NewBrandMergeService constructs a BrandMergeService.
func NewBrandMergeService(brands BrandStore, products ProductStore, cfg config.CatalogConfig) *BrandMergeService {
	return &BrandMergeService{
		brands:   brands,
		products: products,
		cfg:      cfg,
		audit:    NopAuditPublisher{},
	}
}

// SetLocker makes non-dry merges exclusive through locker.
func (s *BrandMergeService) SetLocker(locker RunLocker) { s.locker = locker }

// SetAuditPublisher publishes each applied merge record through p.
func (s *BrandMergeService) SetAuditPublisher(p AuditPublisher) {
	if p == nil {
		p = NopAuditPublisher{}
	}
	s.audit = p
}

// SetMetrics records merge metrics on m.
func (s *BrandMergeService) SetMetrics(m *metrics.CatalogMetrics) { s.metrics = m }

// mergeGroup is one grouping key with its members in collection order.
type mergeGroup struct {
	provider string
	ref      string
	members  []string
}

// mergeState is the in-memory view of active brands during one invocation.
// Absorbed brands point at their survivor so later groups follow them.
// Dry runs also track simulated product moves: claimed codes now exist,
// vacated codes no longer do, and moved holds products per new owner.
type mergeState struct {
	byCode   map[string]*models.Brand
	order    map[string]int
	absorbed map[string]string
	claimed  map[string]bool
	vacated  map[string]bool
	moved    map[string][]models.Product
}

// Merge detects duplicate groups with mode and merges up to opts.Limit of
// them. With opts.DryRun nothing is written and the returned records are
// what a live run would do from the current state.
func (s *BrandMergeService) Merge(ctx context.Context, mode models.MergeMode, opts models.MergeOptions) (*models.MergeResult, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("mode %q: %w", mode, utils.ErrInvalidMergeMode)
	}

	if !opts.DryRun && s.locker != nil {
		release, err := s.locker.Acquire(ctx, MergeLockName, s.cfg.LockTTL)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	active, err := s.brands.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active brands: %w", err)
	}

	st := &mergeState{
		byCode:   make(map[string]*models.Brand, len(active)),
		order:    make(map[string]int, len(active)),
		absorbed: make(map[string]string),
		claimed:  make(map[string]bool),
		vacated:  make(map[string]bool),
		moved:    make(map[string][]models.Product),
	}
	for i := range active {
		b := active[i].Clone()
		if b.ProviderRefs == nil {
			b.ProviderRefs = models.ProviderRefs{}
		}
		st.byCode[b.Code] = b
		st.order[b.Code] = i
	}

	groups := buildGroups(mode, active, opts.Provider)
	result := &models.MergeResult{
		OK:            true,
		Dry:           opts.DryRun,
		Mode:          mode,
		Merges:        []models.MergeRecord{},
		GroupsScanned: len(groups),
	}

	for _, g := range groups {
		members := st.live(g.members)
		if len(members) < 2 {
			continue
		}
		result.MergeGroups++
		if opts.Limit > 0 && len(result.Merges) >= opts.Limit {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		rec, err := s.mergeGroup(ctx, st, mode, g, members, opts.DryRun)
		if err != nil {
			return result, err
		}
		result.Merges = append(result.Merges, rec)
	}

	log.Info().
		Str("mode", string(mode)).
		Bool("dry", opts.DryRun).
		Int("groups_scanned", result.GroupsScanned).
		Int("merge_groups", result.MergeGroups).
		Int("merged", len(result.Merges)).
		Msg("Brand merge finished")
	return result, nil
}

// live maps members through earlier absorptions and drops repeats,
// preserving collection order.
func (st *mergeState) live(codes []string) []*models.Brand {
	seen := make(map[string]bool, len(codes))
	out := make([]*models.Brand, 0, len(codes))
	for _, code := range codes {
		for {
			next, ok := st.absorbed[code]
			if !ok {
				break
			}
			code = next
		}
		if seen[code] {
			continue
		}
		b, ok := st.byCode[code]
		if !ok {
			continue
		}
		seen[code] = true
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return st.order[out[i].Code] < st.order[out[j].Code] })
	return out
}

func (s *BrandMergeService) mergeGroup(
	ctx context.Context,
	st *mergeState,
	mode models.MergeMode,
	g mergeGroup,
	members []*models.Brand,
	dry bool,
) (models.MergeRecord, error) {
	survivor := pickSurvivor(members, s.cfg.PlaceholderIcon)
	losers := make([]*models.Brand, 0, len(members)-1)
	for _, m := range members {
		if m.Code != survivor.Code {
			losers = append(losers, m)
		}
	}

	merged := unionMetadata(survivor, losers, s.cfg.PlaceholderIcon)
	rec := models.MergeRecord{
		Provider:      g.provider,
		Ref:           g.ref,
		CanonicalCode: survivor.Code,
		DupeCodes:     make([]string, 0, len(losers)),
	}
	for _, l := range losers {
		rec.DupeCodes = append(rec.DupeCodes, l.Code)
	}

	if !dry {
		if err := s.brands.Save(ctx, merged); err != nil {
			return rec, fmt.Errorf("save survivor %s: %w", survivor.Code, err)
		}
	}

	for _, l := range losers {
		n, err := s.repointProducts(ctx, st, l.Code, survivor.Code, dry)
		rec.ProductsChanged += n
		if err != nil {
			return rec, err
		}
		if !dry {
			if err := s.brands.Deactivate(ctx, l.Code, survivor.Code); err != nil {
				return rec, fmt.Errorf("deactivate %s: %w", l.Code, err)
			}
		}
	}

	st.byCode[survivor.Code] = merged
	for _, l := range losers {
		delete(st.byCode, l.Code)
		st.absorbed[l.Code] = survivor.Code
	}

	s.metrics.BrandMerged(string(mode), dry, rec.ProductsChanged)
	log.Info().
		Str("mode", string(mode)).
		Str("canonical", rec.CanonicalCode).
		Strs("dupes", rec.DupeCodes).
		Int("products_changed", rec.ProductsChanged).
		Bool("dry", dry).
		Msg("Brand group merged")

	if !dry {
		if err := s.audit.PublishMerge(ctx, mode, rec); err != nil {
			log.Warn().Err(err).Str("canonical", rec.CanonicalCode).Msg("Failed to publish merge record")
		}
	}
	return rec, nil
}

// repointProducts moves loser's products under survivor and returns how many
// moved (or would move). Products whose new code is taken are left alone.
func (s *BrandMergeService) repointProducts(ctx context.Context, st *mergeState, loser, survivor string, dry bool) (int, error) {
	products, err := s.products.ListByBrand(ctx, loser)
	if err != nil {
		return 0, fmt.Errorf("list products of %s: %w", loser, err)
	}
	if dry {
		products = st.simulatedProducts(loser, products)
	}

	prefix := loser + "-"
	changed := 0
	for _, p := range products {
		if !strings.HasPrefix(p.Code, prefix) {
			continue
		}
		newCode := survivor + "-" + strings.TrimPrefix(p.Code, prefix)
		if st.claimed[newCode] {
			continue
		}
		if !st.vacated[newCode] {
			taken, err := s.products.Exists(ctx, newCode)
			if err != nil {
				return changed, fmt.Errorf("check product %s: %w", newCode, err)
			}
			if taken {
				continue
			}
		}
		if dry {
			st.simulateMove(p, newCode, survivor)
			changed++
			continue
		}
		if err := s.products.Repoint(ctx, p.Code, newCode, survivor); err != nil {
			if errors.Is(err, utils.ErrProductCodeTaken) {
				continue
			}
			return changed, fmt.Errorf("repoint %s: %w", p.Code, err)
		}
		changed++
	}
	if dry {
		delete(st.moved, loser)
	}
	return changed, nil
}

// simulatedProducts returns what brand would own after earlier dry moves:
// stored products that were not moved away plus products moved in.
func (st *mergeState) simulatedProducts(brand string, stored []models.Product) []models.Product {
	out := make([]models.Product, 0, len(stored)+len(st.moved[brand]))
	for _, p := range stored {
		if !st.vacated[p.Code] {
			out = append(out, p)
		}
	}
	return append(out, st.moved[brand]...)
}

func (st *mergeState) simulateMove(p models.Product, newCode, survivor string) {
	delete(st.claimed, p.Code)
	st.vacated[p.Code] = true
	delete(st.vacated, newCode)
	st.claimed[newCode] = true
	p.Code = newCode
	p.BrandKey = survivor
	p.GameCode = survivor
	p.Category = survivor
	st.moved[survivor] = append(st.moved[survivor], p)
}

// buildGroups returns every grouping key in first-appearance order.
func buildGroups(mode models.MergeMode, brands []models.Brand, provider string) []mergeGroup {
	index := map[string]int{}
	var groups []mergeGroup
	add := func(key, prov, ref, code string) {
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, mergeGroup{provider: prov, ref: ref})
		}
		for _, m := range groups[i].members {
			if m == code {
				return
			}
		}
		groups[i].members = append(groups[i].members, code)
	}

	for _, b := range brands {
		switch mode {
		case models.MergeModeProviderRef:
			for _, prov := range b.ProviderRefs.Providers() {
				if provider != "" && prov != provider {
					continue
				}
				for _, raw := range b.ProviderRefs[prov] {
					ref := strings.ToLower(strings.TrimSpace(raw))
					if ref == "" {
						continue
					}
					add(prov+"\x00"+ref, prov, ref, b.Code)
				}
			}
		case models.MergeModeCodeCase:
			ref := strings.ToLower(b.Code)
			add(ref, "", ref, b.Code)
		case models.MergeModeNameNorm:
			ref := utils.Slugify(b.Name)
			if ref == "" {
				continue
			}
			add(ref, "", ref, b.Code)
		}
	}
	return groups
}

// pickSurvivor scores each member: one point each for a real icon, a
// developer, a publisher and any home flag, plus up to half a point for age.
// The first highest score in collection order wins.
func pickSurvivor(members []*models.Brand, placeholderIcon string) *models.Brand {
	bonus := ageBonus(members)
	best := members[0]
	bestScore := -1.0
	for _, m := range members {
		score := bonus[m.Code]
		if hasIcon(m, placeholderIcon) {
			score++
		}
		if m.Developer != "" {
			score++
		}
		if m.Publisher != "" {
			score++
		}
		if m.HasAnyFlag() {
			score++
		}
		if score > bestScore {
			best, bestScore = m, score
		}
	}
	return best
}

// ageBonus ranks distinct creation times: the oldest gets 0.5, the newest 0.
func ageBonus(members []*models.Brand) map[string]float64 {
	var times []time.Time
	for _, m := range members {
		dup := false
		for _, t := range times {
			if t.Equal(m.CreatedAt) {
				dup = true
				break
			}
		}
		if !dup {
			times = append(times, m.CreatedAt)
		}
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	out := make(map[string]float64, len(members))
	if len(times) < 2 {
		return out
	}
	for _, m := range members {
		for rank, t := range times {
			if t.Equal(m.CreatedAt) {
				out[m.Code] = 0.5 * float64(len(times)-1-rank) / float64(len(times)-1)
				break
			}
		}
	}
	return out
}

func hasIcon(b *models.Brand, placeholderIcon string) bool {
	return b.Icon != "" && b.Icon != placeholderIcon
}

// unionMetadata returns a copy of survivor carrying the union of aliases and
// provider refs of the whole group, with unset display fields and home
// flags filled from the first loser that has them.
func unionMetadata(survivor *models.Brand, losers []*models.Brand, placeholderIcon string) *models.Brand {
	out := survivor.Clone()

	refs := models.ProviderRefs{}
	for _, b := range append([]*models.Brand{survivor}, losers...) {
		for _, a := range b.Aliases {
			out.AddAlias(a)
		}
		for _, prov := range b.ProviderRefs.Providers() {
			for _, raw := range b.ProviderRefs[prov] {
				refs.Add(prov, raw)
			}
		}
	}
	out.ProviderRefs = refs

	for _, l := range losers {
		if !hasIcon(out, placeholderIcon) && hasIcon(l, placeholderIcon) {
			out.Icon = l.Icon
		}
		if out.Developer == "" {
			out.Developer = l.Developer
		}
		if out.Publisher == "" {
			out.Publisher = l.Publisher
		}
		out.Featured = out.Featured || l.Featured
		out.NewRelease = out.NewRelease || l.NewRelease
		out.Voucher = out.Voucher || l.Voucher
		out.PulsaTagihan = out.PulsaTagihan || l.PulsaTagihan
		out.Entertainment = out.Entertainment || l.Entertainment
		out.FeaturedOrder = firstInt(out.FeaturedOrder, l.FeaturedOrder)
		out.NewReleaseOrder = firstInt(out.NewReleaseOrder, l.NewReleaseOrder)
		out.VoucherOrder = firstInt(out.VoucherOrder, l.VoucherOrder)
		out.PulsaTagihanOrder = firstInt(out.PulsaTagihanOrder, l.PulsaTagihanOrder)
		out.EntertainmentOrder = firstInt(out.EntertainmentOrder, l.EntertainmentOrder)
	}
	return out
}

func firstInt(current, candidate *int) *int {
	if current != nil || candidate == nil {
		return current
	}
	v := *candidate
	return &v
}
