package linksync

import (
	"context"
	"errors"
	"sync"
	"testing"

	"elnksync.local/internal/elnk"
)

func newTestReconciler(policy Policy) (*Reconciler, *fakeAPI, *fakeStore, *fakeMeta, *fakeContent) {
	api := newFakeAPI()
	store := newFakeStore()
	meta := newFakeMeta()
	content := newFakeContent()
	resolver := NewResolver(api, store, meta, nil)
	rec := NewReconciler(policy, api, store, meta, resolver, content, NewVisitGuard(nil, 0))
	return rec, api, store, meta, content
}

func enabledPolicy() Policy {
	return Policy{
		AutoGenerate:  true,
		APIKeySet:     true,
		ContentTypes:  []string{"post"},
		MirrorMeta:    true,
		CreateOnVisit: true,
	}
}

func publishedPost(id int64) *ContentItem {
	return &ContentItem{
		ID:        id,
		Type:      "post",
		Status:    StatusPublished,
		Permalink: "https://cms.test/post-1",
	}
}

func TestReconcileCreationHappyPath(t *testing.T) {
	rec, api, store, meta, _ := newTestReconciler(enabledPolicy())

	if err := rec.ReconcileCreation(context.Background(), publishedPost(1), TriggerPublish); err != nil {
		t.Fatal(err)
	}
	if store.count() != 1 {
		t.Fatalf("records = %d, want 1", store.count())
	}
	saved, err := store.FindByOriginalURL(context.Background(), "https://cms.test/post-1")
	if err != nil {
		t.Fatal(err)
	}
	if saved.ShortURL != "https://elnk.pro/slug1" {
		t.Errorf("short url = %q", saved.ShortURL)
	}
	if saved.LinkID == "" {
		t.Error("link id should be persisted")
	}
	if api.createCalls != 1 {
		t.Errorf("create calls = %d, want 1", api.createCalls)
	}
	if shortURL, _, _ := meta.GetMirror(context.Background(), 1); shortURL != saved.ShortURL {
		t.Errorf("mirror = %q, want %q", shortURL, saved.ShortURL)
	}
}

func TestReconcileCreationIdempotent(t *testing.T) {
	rec, api, store, _, _ := newTestReconciler(enabledPolicy())

	for i := 0; i < 3; i++ {
		if err := rec.ReconcileCreation(context.Background(), publishedPost(1), TriggerPublish); err != nil {
			t.Fatal(err)
		}
	}
	if store.count() != 1 {
		t.Errorf("records = %d, want 1", store.count())
	}
	if api.createCalls != 1 {
		t.Errorf("create calls = %d, want 1", api.createCalls)
	}
}

func TestReconcileCreationGates(t *testing.T) {
	cases := []struct {
		name   string
		policy func(Policy) Policy
		item   func(*ContentItem) *ContentItem
		trig   Trigger
	}{
		{
			name:   "auto generate off",
			policy: func(p Policy) Policy { p.AutoGenerate = false; return p },
			item:   func(i *ContentItem) *ContentItem { return i },
			trig:   TriggerPublish,
		},
		{
			name:   "api key unset",
			policy: func(p Policy) Policy { p.APIKeySet = false; return p },
			item:   func(i *ContentItem) *ContentItem { return i },
			trig:   TriggerPublish,
		},
		{
			name:   "content type not enabled",
			policy: func(p Policy) Policy { return p },
			item:   func(i *ContentItem) *ContentItem { i.Type = "attachment"; return i },
			trig:   TriggerPublish,
		},
		{
			name:   "insert signal on draft",
			policy: func(p Policy) Policy { return p },
			item:   func(i *ContentItem) *ContentItem { i.Status = "draft"; return i },
			trig:   TriggerInsert,
		},
		{
			name:   "visit creation disabled",
			policy: func(p Policy) Policy { p.CreateOnVisit = false; return p },
			item:   func(i *ContentItem) *ContentItem { return i },
			trig:   TriggerVisit,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, api, store, _, _ := newTestReconciler(tc.policy(enabledPolicy()))
			if err := rec.ReconcileCreation(context.Background(), tc.item(publishedPost(1)), tc.trig); err != nil {
				t.Fatalf("gated path should not error: %v", err)
			}
			if store.count() != 0 {
				t.Errorf("records = %d, want 0", store.count())
			}
			if api.createCalls != 0 {
				t.Errorf("create calls = %d, want 0", api.createCalls)
			}
		})
	}
}

func TestReconcileCreationVisitTrigger(t *testing.T) {
	rec, _, store, _, _ := newTestReconciler(enabledPolicy())

	if err := rec.ReconcileCreation(context.Background(), publishedPost(1), TriggerVisit); err != nil {
		t.Fatal(err)
	}
	if store.count() != 1 {
		t.Errorf("records = %d, want 1", store.count())
	}
}

func TestReconcileCreationRemoteFailureLeavesNoRecord(t *testing.T) {
	rec, api, store, _, _ := newTestReconciler(enabledPolicy())
	api.createErr = errors.New("remote down")

	if err := rec.ReconcileCreation(context.Background(), publishedPost(1), TriggerPublish); err == nil {
		t.Fatal("expected error")
	}
	if store.count() != 0 {
		t.Errorf("records = %d, want 0", store.count())
	}
}

func TestReconcileCreationResolutionFailureLeavesNoRecord(t *testing.T) {
	rec, api, store, _, _ := newTestReconciler(enabledPolicy())
	api.detailErr = errors.New("details unavailable")

	if err := rec.ReconcileCreation(context.Background(), publishedPost(1), TriggerPublish); err == nil {
		t.Fatal("expected error")
	}
	if store.count() != 0 {
		t.Errorf("records = %d, want 0 when short url cannot be resolved", store.count())
	}
}

func TestReconcileCreationConcurrentSignalsCreateOnce(t *testing.T) {
	rec, api, store, _, _ := newTestReconciler(enabledPolicy())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.ReconcileCreation(context.Background(), publishedPost(1), TriggerPublish)
		}()
	}
	wg.Wait()

	if store.count() != 1 {
		t.Errorf("records = %d, want 1", store.count())
	}
	if api.createCalls != 1 {
		t.Errorf("create calls = %d, want 1", api.createCalls)
	}
}

func TestReconcileDeletionRemovesLocalAndRemote(t *testing.T) {
	rec, api, store, meta, content := newTestReconciler(enabledPolicy())
	content.items[1] = publishedPost(1)

	if err := rec.ReconcileCreation(context.Background(), publishedPost(1), TriggerPublish); err != nil {
		t.Fatal(err)
	}
	if err := rec.ReconcileDeletion(context.Background(), 1, TriggerDelete); err != nil {
		t.Fatal(err)
	}
	if store.count() != 0 {
		t.Errorf("records = %d, want 0", store.count())
	}
	if len(api.deleteCalls) != 1 {
		t.Errorf("remote delete calls = %d, want 1", len(api.deleteCalls))
	}
	if shortURL, _, _ := meta.GetMirror(context.Background(), 1); shortURL != "" {
		t.Error("mirror should be removed")
	}
}

func TestReconcileDeletionRemoteFailureStillRemovesLocal(t *testing.T) {
	rec, api, store, _, content := newTestReconciler(enabledPolicy())
	content.items[1] = publishedPost(1)

	if err := rec.ReconcileCreation(context.Background(), publishedPost(1), TriggerPublish); err != nil {
		t.Fatal(err)
	}
	api.deleteErr = errors.New("remote down")

	if err := rec.ReconcileDeletion(context.Background(), 1, TriggerDelete); err != nil {
		t.Fatalf("remote failure must not abort local cleanup: %v", err)
	}
	if store.count() != 0 {
		t.Errorf("records = %d, want 0", store.count())
	}
}

func TestReconcileDeletionMissingRecordIsNoOp(t *testing.T) {
	rec, api, _, _, content := newTestReconciler(enabledPolicy())
	content.items[1] = publishedPost(1)

	if err := rec.ReconcileDeletion(context.Background(), 1, TriggerDelete); err != nil {
		t.Fatal(err)
	}
	if len(api.deleteCalls) != 0 {
		t.Error("no remote delete without a local record")
	}
}

func TestReconcileDeletionPurgedItemUsesFallbackPermalink(t *testing.T) {
	rec, _, store, _, content := newTestReconciler(enabledPolicy())

	// 记录的长链接就是兜底形态（条目被宿主清掉后只有 id 可用）
	store.Insert(context.Background(), &UrlRecord{
		OriginalURL: content.FallbackPermalink(42),
		ShortURL:    "https://elnk.pro/dead42",
		LinkID:      "L42",
	})

	if err := rec.ReconcileDeletion(context.Background(), 42, TriggerDelete); err != nil {
		t.Fatal(err)
	}
	if store.count() != 0 {
		t.Errorf("records = %d, want 0", store.count())
	}
}

func TestReconcileDeletionSkipsDisabledType(t *testing.T) {
	rec, _, store, _, content := newTestReconciler(enabledPolicy())
	content.items[1] = &ContentItem{ID: 1, Type: "attachment", Permalink: "https://cms.test/att-1"}
	store.Insert(context.Background(), &UrlRecord{
		OriginalURL: "https://cms.test/att-1",
		ShortURL:    "https://elnk.pro/att",
	})

	if err := rec.ReconcileDeletion(context.Background(), 1, TriggerDelete); err != nil {
		t.Fatal(err)
	}
	if store.count() != 1 {
		t.Error("records of disabled types are not ours to delete")
	}
}

func TestReconcileRestoreIsNoOp(t *testing.T) {
	rec, api, store, _, _ := newTestReconciler(enabledPolicy())
	if err := rec.ReconcileRestore(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if api.createCalls != 0 || store.count() != 0 {
		t.Error("restore must not touch anything")
	}
}

func TestManualCreateValidatesInput(t *testing.T) {
	rec, _, _, _, _ := newTestReconciler(enabledPolicy())

	if _, err := rec.ManualCreate(context.Background(), "https://example.com", "abc"); !errors.Is(err, ErrAliasTooShort) {
		t.Errorf("err = %v, want ErrAliasTooShort", err)
	}
	if _, err := rec.ManualCreate(context.Background(), "   ", ""); !errors.Is(err, ErrNoDestinations) {
		t.Errorf("err = %v, want ErrNoDestinations", err)
	}

	p := enabledPolicy()
	p.APIKeySet = false
	recNoKey, _, _, _, _ := newTestReconciler(p)
	if _, err := recNoKey.ManualCreate(context.Background(), "https://example.com", ""); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestManualCreateHappyPath(t *testing.T) {
	rec, _, store, _, _ := newTestReconciler(enabledPolicy())

	record, err := rec.ManualCreate(context.Background(), "https://example.com/page", "myalias")
	if err != nil {
		t.Fatal(err)
	}
	if record.ID == 0 || record.ShortURL == "" {
		t.Errorf("record = %+v", record)
	}
	if record.CustomAlias != "myalias" {
		t.Errorf("alias = %q", record.CustomAlias)
	}
	if store.count() != 1 {
		t.Errorf("records = %d, want 1", store.count())
	}
}

func TestManualDeleteRemoteFailureAborts(t *testing.T) {
	rec, api, store, _, _ := newTestReconciler(enabledPolicy())
	record, err := rec.ManualCreate(context.Background(), "https://example.com", "")
	if err != nil {
		t.Fatal(err)
	}
	api.deleteErr = errors.New("remote down")

	if err := rec.ManualDelete(context.Background(), record.ID, false); err == nil {
		t.Fatal("manual delete must surface the remote failure")
	}
	if store.count() != 1 {
		t.Error("local record must survive an aborted manual delete")
	}
}

func TestManualDeleteLocalOnly(t *testing.T) {
	rec, api, store, _, _ := newTestReconciler(enabledPolicy())
	record, err := rec.ManualCreate(context.Background(), "https://example.com", "")
	if err != nil {
		t.Fatal(err)
	}

	if err := rec.ManualDelete(context.Background(), record.ID, true); err != nil {
		t.Fatal(err)
	}
	if store.count() != 0 {
		t.Error("local record should be removed")
	}
	if len(api.deleteCalls) != 0 {
		t.Error("local-only delete must not call the remote")
	}
}

func TestManualDeleteBackfillsLinkIDFromSlug(t *testing.T) {
	rec, api, store, _, _ := newTestReconciler(enabledPolicy())

	// 老记录没有 link_id，只能从短链的 slug 反查
	api.links["L99"] = elnk.LinkDetails{Slug: "legacy"}
	store.Insert(context.Background(), &UrlRecord{
		OriginalURL: "https://example.com/legacy",
		ShortURL:    "https://elnk.pro/legacy",
	})

	if err := rec.ManualDelete(context.Background(), 1, false); err != nil {
		t.Fatal(err)
	}
	if len(api.deleteCalls) != 1 || api.deleteCalls[0] != "L99" {
		t.Errorf("delete calls = %v, want [L99]", api.deleteCalls)
	}
	if store.count() != 0 {
		t.Error("local record should be removed")
	}
}

func TestManualDeleteMissingRecord(t *testing.T) {
	rec, _, _, _, _ := newTestReconciler(enabledPolicy())
	if err := rec.ManualDelete(context.Background(), 404, false); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("err = %v, want ErrRecordNotFound", err)
	}
}
