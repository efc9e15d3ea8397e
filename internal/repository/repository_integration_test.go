package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appconfig "github.com/GTDGit/gtd_catalog/internal/config"
	"github.com/GTDGit/gtd_catalog/internal/database"
	"github.com/GTDGit/gtd_catalog/internal/models"
	"github.com/GTDGit/gtd_catalog/internal/utils"
)

// testDB starts an embedded PostgreSQL with the catalog schema. It only runs
// when CATALOG_PG_INTEGRATION=1 since the first start downloads binaries.
func testDB(t *testing.T) *sqlx.DB {
	t.Helper()
	if os.Getenv("CATALOG_PG_INTEGRATION") != "1" {
		t.Skip("set CATALOG_PG_INTEGRATION=1 to run repository tests against PostgreSQL")
	}

	cfg := &appconfig.DatabaseConfig{
		Host:             "localhost",
		Port:             "54329",
		User:             "postgres",
		Password:         "postgres",
		Name:             "catalog_test",
		SSLMode:          "disable",
		Embedded:         true,
		EmbeddedDataPath: t.TempDir(),
	}
	pg, err := database.StartEmbedded(cfg)
	if err != nil {
		t.Fatalf("start embedded postgres: %v", err)
	}
	t.Cleanup(func() { _ = pg.Stop() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.RunMigrations(db.DB, "file://../../migrations"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestRepositories(t *testing.T) {
	db := testDB(t)
	brands := NewBrandRepository(db)
	products := NewProductRepository(db)
	ctx := context.Background()

	t.Run("brand lookup", func(t *testing.T) {
		mlbb := &models.Brand{
			Code:         "mobile-legends",
			Name:         "Mobile Legends: Bang Bang",
			Aliases:      pq.StringArray{"ml"},
			ProviderRefs: models.ProviderRefs{"vcgamers": {"mlbb"}},
			IsActive:     true,
		}
		if err := brands.Create(ctx, mlbb); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := brands.Create(ctx, &models.Brand{Code: "mobile-legends", Name: "dup", IsActive: true}); !errors.Is(err, utils.ErrBrandExists) {
			t.Fatalf("duplicate create: %v", err)
		}

		got, err := brands.FindActiveByProviderRef(ctx, "vcgamers", "MLBB")
		if err != nil || got == nil || got.Code != "mobile-legends" {
			t.Fatalf("FindActiveByProviderRef = %+v, %v", got, err)
		}
		for _, slug := range []string{"ml", "mobile-legends", "mobile-legends-bang-bang"} {
			if got, err := brands.FindActiveBySlug(ctx, slug); err != nil || got == nil {
				t.Errorf("FindActiveBySlug(%q) = %+v, %v", slug, got, err)
			}
		}
		if got, err := brands.FindActiveBySlug(ctx, "free-fire"); err != nil || got != nil {
			t.Errorf("unknown slug = %+v, %v", got, err)
		}
		if _, err := brands.GetByCode(ctx, "nope"); !errors.Is(err, utils.ErrBrandNotFound) {
			t.Errorf("GetByCode missing: %v", err)
		}
	})

	t.Run("product upsert keeps custom price and schema", func(t *testing.T) {
		p := &models.Product{
			Code: "mobile-legends-ml86", Name: "86 Diamonds", Cost: 19000, Price: 20900,
			Provider: "vcgamers", ProviderCode: "ML86", BrandKey: "mobile-legends",
			GameCode: "mobile-legends", Category: "mobile-legends", IsActive: true,
			PurchaseMode: models.PurchaseModeUserIDZone,
		}
		if err := products.Upsert(ctx, p); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		if _, err := db.ExecContext(ctx, `UPDATE products SET custom_price = true, price = 25000, purchase_mode = 'none' WHERE code = $1`, p.Code); err != nil {
			t.Fatalf("manual edit: %v", err)
		}

		sla := "5 menit"
		p.Cost, p.Price, p.PurchaseMode, p.SLA = 20000, 22000, models.PurchaseModeUserID, &sla
		if err := products.Upsert(ctx, p); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		p.SLA = nil
		if err := products.Upsert(ctx, p); err != nil {
			t.Fatalf("Upsert: %v", err)
		}

		stored, err := products.GetByCodes(ctx, []string{p.Code})
		if err != nil {
			t.Fatalf("GetByCodes: %v", err)
		}
		got := stored[p.Code]
		if got.Cost != 20000 || got.Price != 25000 || got.PurchaseMode != models.PurchaseModeNone {
			t.Errorf("unexpected row: %+v", got)
		}
		if got.SLA == nil || *got.SLA != "5 menit" {
			t.Errorf("meta should be kept when absent: %+v", got.ProductMeta)
		}
	})

	t.Run("deactivate missing", func(t *testing.T) {
		other := &models.Product{
			Code: "mobile-legends-ml172", Name: "172 Diamonds", Cost: 38000, Price: 41800,
			Provider: "vcgamers", ProviderCode: "ML172", BrandKey: "mobile-legends", IsActive: true,
			PurchaseMode: models.PurchaseModeUserIDZone,
		}
		if err := products.Upsert(ctx, other); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		n, err := products.DeactivateMissing(ctx, "vcgamers", []string{"mobile-legends-ml86"})
		if err != nil || n != 1 {
			t.Fatalf("DeactivateMissing = %d, %v", n, err)
		}
		codes, err := products.ActiveCodesByBrand(ctx, "vcgamers", "mobile-legends")
		if err != nil || len(codes) != 1 || codes[0] != "mobile-legends-ml86" {
			t.Errorf("ActiveCodesByBrand = %v, %v", codes, err)
		}
		if n, err := products.DeactivateMissing(ctx, "digiflazz", nil); err != nil || n != 0 {
			t.Errorf("other provider = %d, %v", n, err)
		}
	})

	t.Run("repoint and purge", func(t *testing.T) {
		if err := brands.Create(ctx, &models.Brand{Code: "mlbb", Name: "MLBB", IsActive: true}); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := products.Repoint(ctx, "mobile-legends-ml172", "mobile-legends-ml86", "mobile-legends"); !errors.Is(err, utils.ErrProductCodeTaken) {
			t.Errorf("colliding repoint: %v", err)
		}
		if err := products.Repoint(ctx, "mobile-legends-ml172", "mlbb-ml172", "mlbb"); err != nil {
			t.Fatalf("Repoint: %v", err)
		}
		if ok, err := products.Exists(ctx, "mlbb-ml172"); err != nil || !ok {
			t.Errorf("Exists = %v, %v", ok, err)
		}

		if err := brands.Deactivate(ctx, "mobile-legends", "mlbb"); err != nil {
			t.Fatalf("Deactivate: %v", err)
		}
		codes, err := brands.ListInactiveCodes(ctx, true)
		if err != nil || len(codes) != 1 || codes[0] != "mobile-legends" {
			t.Fatalf("ListInactiveCodes = %v, %v", codes, err)
		}
		n, err := brands.DeleteInactive(ctx, []string{"mobile-legends", "mlbb"})
		if err != nil || n != 1 {
			t.Errorf("DeleteInactive = %d, %v", n, err)
		}

		list, total, err := brands.ListPaged(ctx, "ml", true, 1, 10)
		if err != nil || total != 1 || len(list) != 1 || list[0].Code != "mlbb" {
			t.Errorf("ListPaged = %+v, %d, %v", list, total, err)
		}
	})
}
