package storage

import "testing"

func TestCollectionObjectPath(t *testing.T) {
	key, err := CollectionObjectPath("sales_csv", "0b8f6c1e")
	if err != nil {
		t.Fatalf("CollectionObjectPath() error = %v", err)
	}
	want := "collections/sales_csv/0b8f6c1e.parquet"
	if key != want {
		t.Fatalf("CollectionObjectPath() = %q, want %q", key, want)
	}

	prefix, err := CollectionPrefix("sales_csv")
	if err != nil {
		t.Fatalf("CollectionPrefix() error = %v", err)
	}
	if prefix != "collections/sales_csv/" {
		t.Fatalf("CollectionPrefix() = %q", prefix)
	}
}

func TestStagedUploadPath(t *testing.T) {
	key, err := StagedUploadPath("/staging/", "u-1")
	if err != nil {
		t.Fatalf("StagedUploadPath() error = %v", err)
	}
	if key != "staging/u-1.csv" {
		t.Fatalf("StagedUploadPath() = %q", key)
	}

	key, err = StagedUploadPath("", "u-2")
	if err != nil {
		t.Fatalf("StagedUploadPath() error = %v", err)
	}
	if key != "uploads/u-2.csv" {
		t.Fatalf("StagedUploadPath() default prefix = %q", key)
	}
}

func TestBuildPathRejectsInvalidComponent(t *testing.T) {
	if _, err := CollectionObjectPath("../oops", "id"); err == nil {
		t.Fatal("expected invalid collection error")
	}
	if _, err := StagedUploadPath("uploads", "a/b"); err == nil {
		t.Fatal("expected invalid upload id error")
	}
}
