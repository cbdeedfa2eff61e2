package linksync

import (
	"context"
	"errors"
	"testing"

	"elnksync.local/internal/elnk"
)

func TestSubmitBatchHappyPath(t *testing.T) {
	rec, api, store, _, _ := newTestReconciler(enabledPolicy())
	api.bulkIDs = []string{"B1", "B2", "B3"}
	api.links["B1"] = elnk.LinkDetails{Slug: "one"}
	api.links["B2"] = elnk.LinkDetails{Slug: "two"}
	api.links["B3"] = elnk.LinkDetails{Slug: "three"}

	res, err := rec.SubmitBatch(context.Background(),
		[]string{"https://a.test", "https://b.test", "https://c.test"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.BatchID == "" {
		t.Error("batch id should be set")
	}
	if res.Created != 3 || res.Failed != 0 {
		t.Fatalf("created = %d, failed = %d", res.Created, res.Failed)
	}
	if store.count() != 3 {
		t.Errorf("records = %d, want 3", store.count())
	}
	if res.Items[1].ShortURL != "https://elnk.pro/two" {
		t.Errorf("item[1].ShortURL = %q", res.Items[1].ShortURL)
	}
}

func TestSubmitBatchMismatchedIDsPairsOverlapOnly(t *testing.T) {
	rec, api, store, _, _ := newTestReconciler(enabledPolicy())
	// 提交 3 条，远端只返回 2 个 id
	api.bulkIDs = []string{"B1", "B2"}
	api.links["B1"] = elnk.LinkDetails{Slug: "one"}
	api.links["B2"] = elnk.LinkDetails{Slug: "two"}

	res, err := rec.SubmitBatch(context.Background(),
		[]string{"https://a.test", "https://b.test", "https://c.test"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 2 || res.Failed != 1 {
		t.Fatalf("created = %d, failed = %d", res.Created, res.Failed)
	}
	if store.count() != 2 {
		t.Errorf("records = %d, want 2", store.count())
	}
	if res.Items[2].Error == "" {
		t.Error("unpaired destination must carry an error")
	}
	if res.Items[2].ShortURL != "" {
		t.Error("unpaired destination must not get a short url")
	}
}

func TestSubmitBatchPerItemFailureIsolated(t *testing.T) {
	rec, api, store, _, _ := newTestReconciler(enabledPolicy())
	api.bulkIDs = []string{"B1", "B2"}
	api.links["B1"] = elnk.LinkDetails{Slug: "one"}
	// B2 缺失：解析会失败，但不能影响 B1

	res, err := rec.SubmitBatch(context.Background(),
		[]string{"https://a.test", "https://b.test"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 1 || res.Failed != 1 {
		t.Fatalf("created = %d, failed = %d", res.Created, res.Failed)
	}
	if store.count() != 1 {
		t.Errorf("records = %d, want 1", store.count())
	}
	if res.Items[0].Error != "" {
		t.Errorf("item[0] should succeed, got error %q", res.Items[0].Error)
	}
	if res.Items[1].Error == "" {
		t.Error("item[1] should carry the resolution error")
	}
}

func TestSubmitBatchRemoteFailureMarksAll(t *testing.T) {
	rec, api, store, _, _ := newTestReconciler(enabledPolicy())
	api.bulkErr = errors.New("remote down")

	res, err := rec.SubmitBatch(context.Background(), []string{"https://a.test", "https://b.test"}, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if res == nil || res.Failed != 2 {
		t.Fatalf("res = %+v", res)
	}
	if store.count() != 0 {
		t.Error("no records on total remote failure")
	}
}

func TestSubmitBatchValidation(t *testing.T) {
	rec, _, _, _, _ := newTestReconciler(enabledPolicy())

	if _, err := rec.SubmitBatch(context.Background(), nil, ""); !errors.Is(err, ErrNoDestinations) {
		t.Errorf("err = %v, want ErrNoDestinations", err)
	}
	if _, err := rec.SubmitBatch(context.Background(), []string{"https://a.test"}, "abc"); !errors.Is(err, ErrAliasTooShort) {
		t.Errorf("err = %v, want ErrAliasTooShort", err)
	}

	p := enabledPolicy()
	p.APIKeySet = false
	recNoKey, _, _, _, _ := newTestReconciler(p)
	if _, err := recNoKey.SubmitBatch(context.Background(), []string{"https://a.test"}, ""); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}
