package linksync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"elnksync.local/internal/elnk"
)

// 进程内 fakes，覆盖 LinkAPI / RecordStore / MetaStore / ContentSource。

type fakeAPI struct {
	mu sync.Mutex

	nextID      int
	createCalls int
	deleteCalls []string

	createErr error
	deleteErr error
	detailErr error
	domainErr error

	links   map[string]elnk.LinkDetails
	domains map[int64]elnk.DomainDetails

	bulkIDs []string
	bulkErr error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		links:   make(map[string]elnk.LinkDetails),
		domains: make(map[int64]elnk.DomainDetails),
	}
}

func (f *fakeAPI) CreateLink(ctx context.Context, destinationURL, alias string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("link-%d", f.nextID)
	f.links[id] = elnk.LinkDetails{Slug: fmt.Sprintf("slug%d", f.nextID)}
	return id, nil
}

func (f *fakeAPI) CreateBulkLinks(ctx context.Context, destinationURLs []string, alias string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bulkErr != nil {
		return nil, f.bulkErr
	}
	return f.bulkIDs, nil
}

func (f *fakeAPI) GetLinkDetails(ctx context.Context, linkID string) (elnk.LinkDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detailErr != nil {
		return elnk.LinkDetails{}, f.detailErr
	}
	d, ok := f.links[linkID]
	if !ok {
		return elnk.LinkDetails{}, errors.New("link not found")
	}
	return d, nil
}

func (f *fakeAPI) GetDomainDetails(ctx context.Context, domainID int64) (elnk.DomainDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.domainErr != nil {
		return elnk.DomainDetails{}, f.domainErr
	}
	d, ok := f.domains[domainID]
	if !ok {
		return elnk.DomainDetails{}, errors.New("domain not found")
	}
	return d, nil
}

func (f *fakeAPI) DeleteLink(ctx context.Context, linkID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls = append(f.deleteCalls, linkID)
	return f.deleteErr
}

func (f *fakeAPI) FindLinkIDBySlug(ctx context.Context, slug string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, d := range f.links {
		if d.Slug == slug {
			return id, nil
		}
	}
	return "", elnk.ErrMissingLinkID
}

type fakeStore struct {
	mu      sync.Mutex
	nextID  int64
	records map[int64]*UrlRecord

	insertErr error
	deleteErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[int64]*UrlRecord)}
}

func (s *fakeStore) Insert(ctx context.Context, rec *UrlRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	for _, existing := range s.records {
		if existing.ShortURL == rec.ShortURL {
			return ErrShortURLExists
		}
	}
	s.nextID++
	rec.ID = s.nextID
	rec.CreatedAt = time.Now()
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

func (s *fakeStore) FindByOriginalURL(ctx context.Context, originalURL string) (*UrlRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *UrlRecord
	for _, rec := range s.records {
		if rec.OriginalURL == originalURL && (found == nil || rec.ID > found.ID) {
			found = rec
		}
	}
	if found == nil {
		return nil, ErrRecordNotFound
	}
	cp := *found
	return &cp, nil
}

func (s *fakeStore) FindByID(ctx context.Context, id int64) (*UrlRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) DeleteByID(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.records, id)
	return nil
}

func (s *fakeStore) ListRecent(ctx context.Context, limit int) ([]UrlRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]UrlRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	return out, nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type fakeMeta struct {
	mu      sync.Mutex
	mirrors map[int64][2]string
}

func newFakeMeta() *fakeMeta {
	return &fakeMeta{mirrors: make(map[int64][2]string)}
}

func (m *fakeMeta) SetMirror(ctx context.Context, itemID int64, shortURL, linkID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mirrors[itemID] = [2]string{shortURL, linkID}
	return nil
}

func (m *fakeMeta) GetMirror(ctx context.Context, itemID int64) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.mirrors[itemID]
	return v[0], v[1], nil
}

func (m *fakeMeta) DeleteMirror(ctx context.Context, itemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.mirrors, itemID)
	return nil
}

type fakeContent struct {
	items map[int64]*ContentItem
	base  string
}

func newFakeContent() *fakeContent {
	return &fakeContent{items: make(map[int64]*ContentItem), base: "https://cms.test"}
}

func (c *fakeContent) Get(ctx context.Context, itemID int64) (*ContentItem, error) {
	item, ok := c.items[itemID]
	if !ok {
		return nil, errors.New("item not found")
	}
	return item, nil
}

func (c *fakeContent) FallbackPermalink(itemID int64) string {
	return fmt.Sprintf("%s/?p=%d", c.base, itemID)
}
