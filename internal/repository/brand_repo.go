package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/GTDGit/gtd_catalog/internal/models"
	"github.com/GTDGit/gtd_catalog/internal/utils"
)

// BrandRepository handles data access for canonical brands.
type BrandRepository struct {
	db *sqlx.DB
}

// NewBrandRepository creates a new BrandRepository.
func NewBrandRepository(db *sqlx.DB) *BrandRepository {
	return &BrandRepository{db: db}
}

// normalizedName mirrors utils.Slugify in SQL.
const normalizedName = `trim(both '-' from regexp_replace(lower(name), '[^a-z0-9]+', '-', 'g'))`

// FindActiveByProviderRef returns the active brand whose provider_refs[provider]
// contains rawCode, compared case-insensitively. It returns nil when none exists.
func (r *BrandRepository) FindActiveByProviderRef(ctx context.Context, provider, rawCode string) (*models.Brand, error) {
	const q = `
        SELECT * FROM brands
        WHERE is_active = true
          AND EXISTS (
              SELECT 1 FROM jsonb_array_elements_text(COALESCE(provider_refs -> $1, '[]'::jsonb)) AS ref
              WHERE lower(ref) = lower($2)
          )
        ORDER BY created_at, code
        LIMIT 1`
	return r.getOne(ctx, q, provider, rawCode)
}

// FindActiveBySlug returns the first active brand whose aliases, code or
// normalized name equals slug.
func (r *BrandRepository) FindActiveBySlug(ctx context.Context, slug string) (*models.Brand, error) {
	q := `
        SELECT * FROM brands
        WHERE is_active = true
          AND ($1 = ANY(aliases) OR code = $1 OR ` + normalizedName + ` = $1)
        ORDER BY created_at, code
        LIMIT 1`
	return r.getOne(ctx, q, slug)
}

// GetByCode returns a brand regardless of its status.
func (r *BrandRepository) GetByCode(ctx context.Context, code string) (*models.Brand, error) {
	b, err := r.getOne(ctx, `SELECT * FROM brands WHERE code = $1 LIMIT 1`, code)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, utils.ErrBrandNotFound
	}
	return b, nil
}

// Create inserts a new brand. A duplicate code yields utils.ErrBrandExists.
func (r *BrandRepository) Create(ctx context.Context, b *models.Brand) error {
	const q = `
        INSERT INTO brands (
            code, name, icon, developer, publisher, aliases, provider_refs, default_markup_percent,
            featured, featured_order, new_release, new_release_order, voucher, voucher_order,
            pulsa_tagihan, pulsa_tagihan_order, entertainment, entertainment_order,
            is_active, merged_into, created_at, updated_at
        ) VALUES (
            :code, :name, :icon, :developer, :publisher, :aliases, :provider_refs, :default_markup_percent,
            :featured, :featured_order, :new_release, :new_release_order, :voucher, :voucher_order,
            :pulsa_tagihan, :pulsa_tagihan_order, :entertainment, :entertainment_order,
            :is_active, :merged_into, NOW(), NOW()
        )
        RETURNING created_at, updated_at`

	stmt, err := r.db.PrepareNamedContext(ctx, q)
	if err != nil {
		return err
	}
	defer stmt.Close()

	if err := stmt.QueryRowxContext(ctx, b).Scan(&b.CreatedAt, &b.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return utils.ErrBrandExists
		}
		return err
	}
	return nil
}

// Save updates every mutable column of an existing brand.
func (r *BrandRepository) Save(ctx context.Context, b *models.Brand) error {
	const q = `
        UPDATE brands SET
            name = :name,
            icon = :icon,
            developer = :developer,
            publisher = :publisher,
            aliases = :aliases,
            provider_refs = :provider_refs,
            default_markup_percent = :default_markup_percent,
            featured = :featured,
            featured_order = :featured_order,
            new_release = :new_release,
            new_release_order = :new_release_order,
            voucher = :voucher,
            voucher_order = :voucher_order,
            pulsa_tagihan = :pulsa_tagihan,
            pulsa_tagihan_order = :pulsa_tagihan_order,
            entertainment = :entertainment,
            entertainment_order = :entertainment_order,
            is_active = :is_active,
            merged_into = :merged_into,
            updated_at = NOW()
        WHERE code = :code`

	res, err := r.db.NamedExecContext(ctx, q, b)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return utils.ErrBrandNotFound
	}
	return nil
}

// ListActive returns every active brand in collection order.
func (r *BrandRepository) ListActive(ctx context.Context) ([]models.Brand, error) {
	const q = `SELECT * FROM brands WHERE is_active = true ORDER BY created_at, code`
	stmt, err := r.db.PreparexContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	var brands []models.Brand
	if err := stmt.SelectContext(ctx, &brands); err != nil {
		return nil, err
	}
	return brands, nil
}

// ListPaged returns brands filtered by search (ILIKE on code or name) and
// status, with pagination, along with the total count.
func (r *BrandRepository) ListPaged(ctx context.Context, search string, activeOnly bool, page, limit int) ([]models.Brand, int, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	offset := (page - 1) * limit

	const baseWhere = `WHERE ($1 = '' OR code ILIKE '%' || $1 || '%' OR name ILIKE '%' || $1 || '%')
        AND ($2 = false OR is_active = true)`

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(1) FROM brands `+baseWhere, search, activeOnly); err != nil {
		return nil, 0, err
	}

	var brands []models.Brand
	listQuery := `SELECT * FROM brands ` + baseWhere + ` ORDER BY created_at, code LIMIT $3 OFFSET $4`
	if err := r.db.SelectContext(ctx, &brands, listQuery, search, activeOnly, limit, offset); err != nil {
		return nil, 0, err
	}
	return brands, total, nil
}

// Deactivate marks a brand as absorbed into mergedInto.
func (r *BrandRepository) Deactivate(ctx context.Context, code, mergedInto string) error {
	const q = `UPDATE brands SET is_active = false, merged_into = $2, updated_at = NOW() WHERE code = $1`
	_, err := r.db.ExecContext(ctx, q, code, mergedInto)
	return err
}

// ListInactiveCodes returns codes of inactive brands. With mergedOnly, only
// brands that were absorbed by a merge are returned.
func (r *BrandRepository) ListInactiveCodes(ctx context.Context, mergedOnly bool) ([]string, error) {
	const q = `
        SELECT code FROM brands
        WHERE is_active = false
          AND ($1 = false OR merged_into IS NOT NULL)
        ORDER BY created_at, code`
	var codes []string
	if err := r.db.SelectContext(ctx, &codes, q, mergedOnly); err != nil {
		return nil, err
	}
	return codes, nil
}

// DeleteInactive permanently removes the given brands, re-checking that each
// one is still inactive and owns no products.
func (r *BrandRepository) DeleteInactive(ctx context.Context, codes []string) (int, error) {
	if len(codes) == 0 {
		return 0, nil
	}
	const q = `
        DELETE FROM brands b
        WHERE b.is_active = false
          AND b.code = ANY($1)
          AND NOT EXISTS (SELECT 1 FROM products p WHERE p.brand_key = b.code)`
	res, err := r.db.ExecContext(ctx, q, pq.Array(codes))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *BrandRepository) getOne(ctx context.Context, q string, args ...any) (*models.Brand, error) {
	stmt, err := r.db.PreparexContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	var b models.Brand
	if err := stmt.GetContext(ctx, &b, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "duplicate key")
}
