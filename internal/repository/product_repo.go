package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/GTDGit/gtd_catalog/internal/models"
	"github.com/GTDGit/gtd_catalog/internal/utils"
)

// ProductRepository handles data access for catalog products.
type ProductRepository struct {
	db *sqlx.DB
}

// NewProductRepository creates a new ProductRepository.
func NewProductRepository(db *sqlx.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByCodes returns the stored products among codes, keyed by code.
func (r *ProductRepository) GetByCodes(ctx context.Context, codes []string) (map[string]*models.Product, error) {
	out := make(map[string]*models.Product, len(codes))
	if len(codes) == 0 {
		return out, nil
	}
	const q = `SELECT * FROM products WHERE code = ANY($1)`
	var products []models.Product
	if err := r.db.SelectContext(ctx, &products, q, pq.Array(codes)); err != nil {
		return nil, err
	}
	for i := range products {
		out[products[i].Code] = &products[i]
	}
	return out, nil
}

// Upsert inserts or updates a product by code. On conflict, a custom price is
// preserved and the purchase schema and creation time are never touched;
// meta annotations are only replaced when new values are present.
func (r *ProductRepository) Upsert(ctx context.Context, p *models.Product) error {
	const q = `
        INSERT INTO products (
            code, name, cost, price, custom_price, provider, provider_code, brand_key, game_code,
            category, icon, hash, is_active, purchase_mode, purchase_fields,
            meta_sla, meta_is_new, meta_variation_active, created_at, updated_at
        ) VALUES (
            :code, :name, :cost, :price, :custom_price, :provider, :provider_code, :brand_key, :game_code,
            :category, :icon, :hash, :is_active, :purchase_mode, :purchase_fields,
            :meta_sla, :meta_is_new, :meta_variation_active, NOW(), NOW()
        )
        ON CONFLICT (code) DO UPDATE SET
            name = EXCLUDED.name,
            cost = EXCLUDED.cost,
            price = CASE WHEN products.custom_price THEN products.price ELSE EXCLUDED.price END,
            provider = EXCLUDED.provider,
            provider_code = EXCLUDED.provider_code,
            brand_key = EXCLUDED.brand_key,
            game_code = EXCLUDED.game_code,
            category = EXCLUDED.category,
            icon = EXCLUDED.icon,
            hash = EXCLUDED.hash,
            is_active = EXCLUDED.is_active,
            meta_sla = COALESCE(EXCLUDED.meta_sla, products.meta_sla),
            meta_is_new = COALESCE(EXCLUDED.meta_is_new, products.meta_is_new),
            meta_variation_active = COALESCE(EXCLUDED.meta_variation_active, products.meta_variation_active),
            updated_at = NOW()`

	stmt, err := r.db.PrepareNamedContext(ctx, q)
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, p)
	return err
}

// ListByBrand returns every product owned by brandKey, in code order.
func (r *ProductRepository) ListByBrand(ctx context.Context, brandKey string) ([]models.Product, error) {
	const q = `SELECT * FROM products WHERE brand_key = $1 ORDER BY code`
	stmt, err := r.db.PreparexContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	var products []models.Product
	if err := stmt.SelectContext(ctx, &products, brandKey); err != nil {
		return nil, err
	}
	return products, nil
}

// ActiveCodesByBrand returns the active product codes of provider owned by brandKey.
func (r *ProductRepository) ActiveCodesByBrand(ctx context.Context, provider, brandKey string) ([]string, error) {
	const q = `SELECT code FROM products WHERE provider = $1 AND brand_key = $2 AND is_active = true`
	var codes []string
	if err := r.db.SelectContext(ctx, &codes, q, provider, brandKey); err != nil {
		return nil, err
	}
	return codes, nil
}

// DeactivateMissing marks every active product of provider whose code is not
// in seen as inactive and returns how many rows changed. Other columns are
// left as they were at the last sync.
func (r *ProductRepository) DeactivateMissing(ctx context.Context, provider string, seen []string) (int, error) {
	const q = `
        UPDATE products SET is_active = false, updated_at = NOW()
        WHERE provider = $1
          AND is_active = true
          AND NOT (code = ANY($2))`
	if seen == nil {
		seen = []string{} // a NULL array would match nothing
	}
	res, err := r.db.ExecContext(ctx, q, provider, pq.Array(seen))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Exists reports whether a product with code is stored.
func (r *ProductRepository) Exists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM products WHERE code = $1)`, code)
	return exists, err
}

// Repoint moves a product to a new owner brand under newCode. A code already
// in use yields utils.ErrProductCodeTaken and leaves both rows untouched.
func (r *ProductRepository) Repoint(ctx context.Context, oldCode, newCode, brandCode string) error {
	const q = `
        UPDATE products SET
            code = $2,
            brand_key = $3,
            game_code = $3,
            category = $3,
            updated_at = NOW()
        WHERE code = $1`
	if _, err := r.db.ExecContext(ctx, q, oldCode, newCode, brandCode); err != nil {
		if isUniqueViolation(err) {
			return utils.ErrProductCodeTaken
		}
		return err
	}
	return nil
}
