package sync

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestProductImporter_Import_CreatesAndUpdates(t *testing.T) {
	db, mock := newMockDB(t)
	im := NewProductImporter(db, testLogger())

	mock.ExpectQuery("SELECT part_number FROM products WHERE part_number IN").
		WithArgs("new-part", "existing-part").
		WillReturnRows(sqlmock.NewRows([]string{"part_number"}).AddRow("existing-part"))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO products").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM product_descriptions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO product_descriptions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM product_marketing_content").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO products").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM product_descriptions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM product_marketing_content").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	records := []Record{
		{"part_number": "new-part", "is_active": true, "descriptions": []interface{}{
			map[string]interface{}{"description_type": "short", "content": "A new part"},
		}},
		{"part_number": "existing-part", "is_active": true},
	}

	stats, err := im.Import(context.Background(), records)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if stats.Created != 1 || stats.Updated != 1 {
		t.Errorf("expected 1 created, 1 updated, got %+v", stats)
	}
}

func TestProductImporter_Import_ReplacesDependentTables(t *testing.T) {
	db, mock := newMockDB(t)
	im := NewProductImporter(db, testLogger())

	mock.ExpectQuery("SELECT part_number FROM products WHERE part_number IN").
		WithArgs("part-1").
		WillReturnRows(sqlmock.NewRows([]string{"part_number"}).AddRow("part-1"))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO products").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM product_descriptions").WithArgs("part-1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO product_descriptions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM product_marketing_content").WithArgs("part-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO product_marketing_content").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	records := []Record{{
		"part_number": "part-1",
		"is_active":   true,
		"descriptions": []interface{}{
			map[string]interface{}{"description_type": "long", "content": "Updated description"},
		},
		"marketing_content": []interface{}{
			map[string]interface{}{"content_type": "bullet", "content": "Now with more torque"},
		},
	}}

	stats, err := im.Import(context.Background(), records)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if stats.Updated != 1 || stats.Errors != 0 {
		t.Errorf("expected 1 updated and no errors, got %+v", stats)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestProductImporter_Import_SkipsMissingPartNumber(t *testing.T) {
	db, mock := newMockDB(t)
	im := NewProductImporter(db, testLogger())

	// With no part numbers to look up, ExistingPartNumbers issues no query.
	mock.ExpectBegin()
	mock.ExpectCommit()

	stats, err := im.Import(context.Background(), []Record{{"application": "no part number here"}})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if stats.Errors != 1 {
		t.Errorf("expected 1 error for missing part_number, got %+v", stats)
	}
}

func TestProductImporter_Import_Empty(t *testing.T) {
	db, _ := newMockDB(t)
	im := NewProductImporter(db, testLogger())

	stats, err := im.Import(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("expected empty stats, got %+v", stats)
	}
}

func TestMeasurementImporter_Import_RejectsUnknownProduct(t *testing.T) {
	db, mock := newMockDB(t)
	im := NewMeasurementImporter(db, testLogger())

	mock.ExpectQuery("SELECT part_number FROM products WHERE part_number IN").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"part_number"}))

	stats, err := im.Import(context.Background(), []Record{{"part_number": "ghost"}})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if stats.Errors != 1 {
		t.Errorf("expected 1 error for unknown product, got %+v", stats)
	}
}

func TestPricingImporter_Import_FallsBackToDefaultCurrency(t *testing.T) {
	db, mock := newMockDB(t)
	known := map[string]bool{"USD": true, "CAD": true}
	im := NewPricingImporter(db, testLogger(), known)

	mock.ExpectQuery("SELECT part_number FROM products WHERE part_number IN").
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows([]string{"part_number"}).AddRow("abc"))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM product_pricing").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("INSERT INTO product_pricing").WillReturnResult(sqlmock.NewResult(1, 1))

	records := []Record{{"part_number": "abc", "price_type_code": "list", "currency": "XYZ", "price": 9.99}}
	stats, err := im.Import(context.Background(), records)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if stats.Created != 1 {
		t.Errorf("expected 1 created, got %+v", stats)
	}
}

func TestImporterFor_UnsupportedKind(t *testing.T) {
	db, _ := newMockDB(t)
	if _, err := ImporterFor(EntityKind("unknown"), db, testLogger(), nil); err == nil {
		t.Fatal("expected error for unsupported entity kind")
	}
}
