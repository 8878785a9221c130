package dedup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"curator/internal/archive"
	"curator/internal/queue"
	"curator/internal/services"
)

type fakePublisher struct {
	items     map[string]*archive.Item
	nextID    int64
	relations map[int64][]int64
	lookupErr error
	createErr error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		items:     make(map[string]*archive.Item),
		relations: make(map[int64][]int64),
		nextID:    100,
	}
}

func (f *fakePublisher) seed(fingerprint string, item archive.Item) {
	item.Fingerprint = fingerprint
	f.items[fingerprint] = &item
}

func (f *fakePublisher) FindByFingerprint(_ context.Context, _, fingerprint string) (*archive.Item, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	item, ok := f.items[fingerprint]
	if !ok {
		return nil, nil
	}
	cp := *item
	return &cp, nil
}

func (f *fakePublisher) Create(_ context.Context, _ string, req archive.CreateRequest) (*archive.Item, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	item := &archive.Item{
		ID:          f.nextID,
		Tags:        append([]string(nil), req.Tags...),
		Safety:      req.Safety,
		Fingerprint: req.Fingerprint,
	}
	f.items[req.Fingerprint] = item
	cp := *item
	return &cp, nil
}

func (f *fakePublisher) Update(_ context.Context, _ string, id int64, req archive.UpdateRequest) (*archive.Item, error) {
	for _, item := range f.items {
		if item.ID == id {
			item.Tags = append([]string(nil), req.Tags...)
			item.Safety = req.Safety
			cp := *item
			return &cp, nil
		}
	}
	return nil, services.Wrap(services.ErrUpload, "uploading", "update", "item not found", nil)
}

func (f *fakePublisher) Relate(_ context.Context, _ string, a, b int64) error {
	f.relations[a] = append(f.relations[a], b)
	f.relations[b] = append(f.relations[b], a)
	return nil
}

func stageFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("stage file: %v", err)
	}
	return path
}

func TestPublishNewItem(t *testing.T) {
	pub := newFakePublisher()
	engine := NewEngine(pub, nil, nil)

	outcome, err := engine.Publish(context.Background(), "alice", PublishRequest{
		Files:  []archive.CreateRequest{{FilePath: stageFile(t, "a.png", "content-a")}},
		Tags:   []string{"Sunset", "beach"},
		Safety: queue.SafetySafe,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if outcome.WasMerge {
		t.Fatal("fresh content should not merge")
	}
	if outcome.PublishedID == 0 {
		t.Fatal("published id missing")
	}
	if len(outcome.RelatedIDs) != 0 {
		t.Fatalf("related ids = %v", outcome.RelatedIDs)
	}
	want := []string{"sunset", "beach"}
	if !reflect.DeepEqual(outcome.TagsApplied, want) {
		t.Fatalf("tags applied = %v", outcome.TagsApplied)
	}
}

func TestPublishMergesOnFingerprintMatch(t *testing.T) {
	path := stageFile(t, "a.png", "content-a")
	fingerprint, err := SHA256Fingerprinter{}.Fingerprint(path)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}

	pub := newFakePublisher()
	pub.seed(fingerprint, archive.Item{ID: 7, Tags: []string{"sunset"}, Safety: queue.SafetyQuestionable})
	engine := NewEngine(pub, nil, nil)

	outcome, err := engine.Publish(context.Background(), "alice", PublishRequest{
		Files:  []archive.CreateRequest{{FilePath: path}},
		Tags:   []string{"beach"},
		Safety: queue.SafetySafe,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !outcome.WasMerge {
		t.Fatal("fingerprint match should merge")
	}
	if outcome.PublishedID != 7 {
		t.Fatalf("published id = %d, want matched item 7", outcome.PublishedID)
	}
	want := []string{"sunset", "beach"}
	if !reflect.DeepEqual(outcome.TagsApplied, want) {
		t.Fatalf("merged tags = %v, want %v", outcome.TagsApplied, want)
	}
	if outcome.Safety != queue.SafetyQuestionable {
		t.Fatalf("safety = %s, want the more restrictive rating", outcome.Safety)
	}
}

func TestPublishSafetyOverrideWins(t *testing.T) {
	path := stageFile(t, "a.png", "content-a")
	fingerprint, _ := SHA256Fingerprinter{}.Fingerprint(path)

	pub := newFakePublisher()
	pub.seed(fingerprint, archive.Item{ID: 7, Tags: []string{"sunset"}, Safety: queue.SafetyExplicit})
	engine := NewEngine(pub, nil, nil)

	outcome, err := engine.Publish(context.Background(), "alice", PublishRequest{
		Files:          []archive.CreateRequest{{FilePath: path}},
		Safety:         queue.SafetySafe,
		SafetyOverride: true,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if outcome.Safety != queue.SafetySafe {
		t.Fatalf("safety = %s, override should win", outcome.Safety)
	}
}

func TestPublishMultiFileGroupLinking(t *testing.T) {
	pub := newFakePublisher()
	engine := NewEngine(pub, nil, nil)

	outcome, err := engine.Publish(context.Background(), "alice", PublishRequest{
		Files: []archive.CreateRequest{
			{FilePath: stageFile(t, "p1.png", "page-1")},
			{FilePath: stageFile(t, "p2.png", "page-2")},
			{FilePath: stageFile(t, "p3.png", "page-3")},
		},
		Tags:   []string{"gallery"},
		Safety: queue.SafetySafe,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(outcome.RelatedIDs) != 2 {
		t.Fatalf("related ids = %v", outcome.RelatedIDs)
	}

	// Every item should be related to both siblings.
	group := append([]int64{outcome.PublishedID}, outcome.RelatedIDs...)
	for _, id := range group {
		related := append([]int64(nil), pub.relations[id]...)
		sort.Slice(related, func(i, j int) bool { return related[i] < related[j] })
		if len(related) != 2 {
			t.Fatalf("item %d related to %v, want two siblings", id, related)
		}
	}
}

func TestPublishMixedNewAndMerge(t *testing.T) {
	pageOne := stageFile(t, "p1.png", "page-1")
	fingerprint, _ := SHA256Fingerprinter{}.Fingerprint(pageOne)

	pub := newFakePublisher()
	pub.seed(fingerprint, archive.Item{ID: 7, Tags: []string{"old"}, Safety: queue.SafetySafe})
	engine := NewEngine(pub, nil, nil)

	outcome, err := engine.Publish(context.Background(), "alice", PublishRequest{
		Files: []archive.CreateRequest{
			{FilePath: pageOne},
			{FilePath: stageFile(t, "p2.png", "page-2")},
		},
		Tags:   []string{"new"},
		Safety: queue.SafetySafe,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !outcome.WasMerge {
		t.Fatal("primary file matched; job should report merge")
	}
	if outcome.PublishedID != 7 {
		t.Fatalf("published id = %d", outcome.PublishedID)
	}
	if len(outcome.RelatedIDs) != 1 {
		t.Fatalf("related ids = %v", outcome.RelatedIDs)
	}
	// The sibling and the matched item must be linked both ways.
	sibling := outcome.RelatedIDs[0]
	if len(pub.relations[7]) != 1 || pub.relations[7][0] != sibling {
		t.Fatalf("matched item relations = %v", pub.relations[7])
	}
	if len(pub.relations[sibling]) != 1 || pub.relations[sibling][0] != 7 {
		t.Fatalf("sibling relations = %v", pub.relations[sibling])
	}
}

func TestPublishArchiveFailureIsNotAMergeDecision(t *testing.T) {
	pub := newFakePublisher()
	pub.lookupErr = services.Wrap(services.ErrUpload, "uploading", "lookup", "archive unreachable", nil)
	engine := NewEngine(pub, nil, nil)

	_, err := engine.Publish(context.Background(), "alice", PublishRequest{
		Files: []archive.CreateRequest{{FilePath: stageFile(t, "a.png", "content-a")}},
	})
	if !errors.Is(err, services.ErrUpload) {
		t.Fatalf("expected upload error, got %v", err)
	}
	if len(pub.items) != 0 {
		t.Fatal("lookup failure must not create items")
	}
}

func TestPublishRejectsEmptyFileList(t *testing.T) {
	engine := NewEngine(newFakePublisher(), nil, nil)
	_, err := engine.Publish(context.Background(), "alice", PublishRequest{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSHA256FingerprintStable(t *testing.T) {
	a := stageFile(t, "a.png", "identical-bytes")
	b := stageFile(t, "b.png", "identical-bytes")
	c := stageFile(t, "c.png", "different-bytes")

	fp := SHA256Fingerprinter{}
	fpA, err := fp.Fingerprint(a)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	fpB, _ := fp.Fingerprint(b)
	fpC, _ := fp.Fingerprint(c)

	if fpA != fpB {
		t.Fatal("identical content must produce identical fingerprints")
	}
	if fpA == fpC {
		t.Fatal("distinct content must produce distinct fingerprints")
	}
}

func TestSHA256FingerprintMissingFile(t *testing.T) {
	_, err := SHA256Fingerprinter{}.Fingerprint(filepath.Join(t.TempDir(), "missing.png"))
	if !errors.Is(err, services.ErrUpload) {
		t.Fatalf("expected upload error, got %v", err)
	}
}
