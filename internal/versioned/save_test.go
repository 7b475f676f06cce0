package versioned

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/verstore/verstore/internal/domain"
	"github.com/verstore/verstore/internal/repository"
)

// fakeRecords is an in-memory Records implementation.
type fakeRecords struct {
	rows       map[uuid.UUID]domain.Record
	failUpdate bool
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{rows: make(map[uuid.UUID]domain.Record)}
}

func (f *fakeRecords) Get(_ context.Context, id uuid.UUID) (domain.Record, error) {
	rec, ok := f.rows[id]
	if !ok {
		return domain.Record{}, repository.ErrNotFound
	}
	rec.Fields = domain.CloneFields(rec.Fields)
	return rec, nil
}

func (f *fakeRecords) Insert(_ context.Context, rec *domain.Record) error {
	stored := *rec
	stored.Fields = domain.CloneFields(rec.Fields)
	f.rows[rec.ID] = stored
	return nil
}

func (f *fakeRecords) Update(_ context.Context, rec *domain.Record) error {
	if f.failUpdate {
		return errors.New("update refused")
	}
	if _, ok := f.rows[rec.ID]; !ok {
		return repository.ErrNotFound
	}
	stored := *rec
	stored.Fields = domain.CloneFields(rec.Fields)
	f.rows[rec.ID] = stored
	return nil
}

func (f *fakeRecords) UpdateLocked(_ context.Context, rec *domain.Record, expectedVersion int64) error {
	if f.failUpdate {
		return errors.New("update refused")
	}
	current, ok := f.rows[rec.ID]
	if !ok || current.Version != expectedVersion {
		return repository.ErrStaleRecord
	}
	stored := *rec
	stored.Fields = domain.CloneFields(rec.Fields)
	f.rows[rec.ID] = stored
	return nil
}

func (f *fakeRecords) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

// fakeVersions is an in-memory Versions implementation.
type fakeVersions struct {
	rows       []domain.VersionRecord
	nextID     int64
	failInsert bool
}

func (f *fakeVersions) Insert(_ context.Context, vr *domain.VersionRecord) error {
	if f.failInsert {
		return errors.New("snapshot refused")
	}
	f.nextID++
	vr.ID = f.nextID
	stored := *vr
	stored.Fields = domain.CloneFields(vr.Fields)
	f.rows = append(f.rows, stored)
	return nil
}

func (f *fakeVersions) GetByVersion(_ context.Context, recordID uuid.UUID, version int64) (domain.VersionRecord, error) {
	for _, vr := range f.rows {
		if vr.RecordID == recordID && vr.Version == version {
			vr.Fields = domain.CloneFields(vr.Fields)
			return vr, nil
		}
	}
	return domain.VersionRecord{}, repository.ErrNotFound
}

func (f *fakeVersions) List(_ context.Context, recordID uuid.UUID) ([]domain.VersionRecord, error) {
	var result []domain.VersionRecord
	for _, vr := range f.rows {
		if vr.RecordID == recordID {
			result = append(result, vr)
		}
	}
	return result, nil
}

func (f *fakeVersions) MaxVersion(_ context.Context, recordID uuid.UUID) (int64, error) {
	var max int64
	for _, vr := range f.rows {
		if vr.RecordID == recordID && vr.Version > max {
			max = vr.Version
		}
	}
	return max, nil
}

func (f *fakeVersions) Before(_ context.Context, target domain.VersionRecord) (domain.VersionRecord, error) {
	var best *domain.VersionRecord
	for i := range f.rows {
		vr := f.rows[i]
		if vr.RecordID == target.RecordID && vr.Version < target.Version {
			if best == nil || vr.Version > best.Version {
				best = &f.rows[i]
			}
		}
	}
	if best == nil {
		return domain.VersionRecord{}, repository.ErrNotFound
	}
	return *best, nil
}

func (f *fakeVersions) After(_ context.Context, target domain.VersionRecord) (domain.VersionRecord, error) {
	var best *domain.VersionRecord
	for i := range f.rows {
		vr := f.rows[i]
		if vr.RecordID == target.RecordID && vr.Version > target.Version {
			if best == nil || vr.Version < best.Version {
				best = &f.rows[i]
			}
		}
	}
	if best == nil {
		return domain.VersionRecord{}, repository.ErrNotFound
	}
	return *best, nil
}

func (f *fakeVersions) Earliest(_ context.Context) (domain.VersionRecord, error) {
	var best *domain.VersionRecord
	for i := range f.rows {
		if best == nil || f.rows[i].Version < best.Version {
			best = &f.rows[i]
		}
	}
	if best == nil {
		return domain.VersionRecord{}, repository.ErrNotFound
	}
	return *best, nil
}

func (f *fakeVersions) Latest(_ context.Context) (domain.VersionRecord, error) {
	var best *domain.VersionRecord
	for i := range f.rows {
		if best == nil || f.rows[i].Version > best.Version {
			best = &f.rows[i]
		}
	}
	if best == nil {
		return domain.VersionRecord{}, repository.ErrNotFound
	}
	return *best, nil
}

func (f *fakeVersions) Prune(_ context.Context, recordID uuid.UUID, throughVersion int64) (int64, error) {
	kept := f.rows[:0]
	var removed int64
	for _, vr := range f.rows {
		if vr.RecordID == recordID && vr.Version <= throughVersion {
			removed++
			continue
		}
		kept = append(kept, vr)
	}
	f.rows = kept
	return removed, nil
}

func (f *fakeVersions) DeleteForRecord(_ context.Context, recordID uuid.UUID) (int64, error) {
	kept := f.rows[:0]
	var removed int64
	for _, vr := range f.rows {
		if vr.RecordID == recordID {
			removed++
			continue
		}
		kept = append(kept, vr)
	}
	f.rows = kept
	return removed, nil
}

func pageType(t *testing.T, opts Options) *Type {
	t.Helper()
	typ, err := NewType(domain.Definition{
		Table: "pages",
		Fields: []domain.FieldDefinition{
			{Name: "title", Type: domain.FieldTypeText},
			{Name: "body", Type: domain.FieldTypeText},
		},
	}, opts)
	if err != nil {
		t.Fatalf("failed to register type: %v", err)
	}
	return typ
}

func mustSave(t *testing.T, typ *Type, records repository.Records, versions repository.Versions, rec *domain.Record) {
	t.Helper()
	if err := save(context.Background(), typ, records, versions, rec); err != nil {
		t.Fatalf("save failed: %v", err)
	}
}

func TestSaveCreateWritesInitialSnapshot(t *testing.T) {
	typ := pageType(t, Options{})
	records, versions := newFakeRecords(), &fakeVersions{}

	rec := domain.NewRecord(map[string]any{"title": "hello", "body": "world"})
	mustSave(t, typ, records, versions, &rec)

	if rec.Version != 1 {
		t.Fatalf("expected version 1 on creation, got %d", rec.Version)
	}
	if len(versions.rows) != 1 {
		t.Fatalf("expected exactly one snapshot, got %d", len(versions.rows))
	}
	vr := versions.rows[0]
	if vr.Version != 1 || vr.RecordID != rec.ID {
		t.Errorf("snapshot envelope mismatch: %+v", vr)
	}
	if vr.Fields["title"] != "hello" || vr.Fields["body"] != "world" {
		t.Errorf("snapshot fields not copied: %v", vr.Fields)
	}
}

func TestSaveCreateSnapshotsEvenWhenConditionFails(t *testing.T) {
	typ := pageType(t, Options{Condition: func(old, current *domain.Record) bool { return false }})
	records, versions := newFakeRecords(), &fakeVersions{}

	rec := domain.NewRecord(map[string]any{"title": "a", "body": "b"})
	mustSave(t, typ, records, versions, &rec)

	if len(versions.rows) != 1 {
		t.Fatalf("creation must always snapshot, got %d rows", len(versions.rows))
	}
}

func TestSaveVersionsAreMonotonic(t *testing.T) {
	typ := pageType(t, Options{})
	records, versions := newFakeRecords(), &fakeVersions{}

	rec := domain.NewRecord(map[string]any{"title": "v1", "body": "x"})
	mustSave(t, typ, records, versions, &rec)
	for i, title := range []string{"v2", "v3"} {
		rec.Fields["title"] = title
		mustSave(t, typ, records, versions, &rec)
		if want := int64(i + 2); rec.Version != want {
			t.Fatalf("expected version %d, got %d", want, rec.Version)
		}
	}

	// Out-of-band history loss must not reset numbering below the record's
	// own counter.
	versions.rows = nil
	rec.Fields["title"] = "v4"
	mustSave(t, typ, records, versions, &rec)
	if rec.Version != 4 {
		t.Fatalf("expected version 4 after history loss, got %d", rec.Version)
	}
}

func TestSaveNumbersFromPersistedHistory(t *testing.T) {
	typ := pageType(t, Options{})
	records, versions := newFakeRecords(), &fakeVersions{}

	rec := domain.NewRecord(map[string]any{"title": "v1", "body": "x"})
	mustSave(t, typ, records, versions, &rec)
	rec.Fields["title"] = "v2"
	mustSave(t, typ, records, versions, &rec)

	// Simulate an external writer having advanced the history further than
	// the record's counter.
	extra := domain.VersionRecord{RecordID: rec.ID, Version: 7, Fields: map[string]any{"title": "ext", "body": "x"}}
	if err := versions.Insert(context.Background(), &extra); err != nil {
		t.Fatalf("seed insert failed: %v", err)
	}

	rec.Fields["title"] = "v3"
	mustSave(t, typ, records, versions, &rec)
	if rec.Version != 8 {
		t.Fatalf("next version must come from persisted history, got %d", rec.Version)
	}
}

func TestSaveUnalteredSkipsSnapshot(t *testing.T) {
	typ := pageType(t, Options{})
	records, versions := newFakeRecords(), &fakeVersions{}

	rec := domain.NewRecord(map[string]any{"title": "same", "body": "same"})
	mustSave(t, typ, records, versions, &rec)

	mustSave(t, typ, records, versions, &rec)
	if rec.Version != 1 {
		t.Errorf("version advanced without a change: %d", rec.Version)
	}
	if len(versions.rows) != 1 {
		t.Errorf("snapshot written without a change: %d rows", len(versions.rows))
	}
}

func TestSaveConditionGatesSnapshots(t *testing.T) {
	enabled := true
	typ := pageType(t, Options{Condition: func(old, current *domain.Record) bool { return enabled }})
	records, versions := newFakeRecords(), &fakeVersions{}

	rec := domain.NewRecord(map[string]any{"title": "v1", "body": "x"})
	mustSave(t, typ, records, versions, &rec)

	enabled = false
	rec.Fields["title"] = "v2"
	mustSave(t, typ, records, versions, &rec)
	if rec.Version != 1 || len(versions.rows) != 1 {
		t.Fatalf("condition=false save must not snapshot or advance: version=%d rows=%d", rec.Version, len(versions.rows))
	}

	enabled = true
	rec.Fields["title"] = "v3"
	mustSave(t, typ, records, versions, &rec)
	if rec.Version != 2 || len(versions.rows) != 2 {
		t.Fatalf("condition=true save must snapshot: version=%d rows=%d", rec.Version, len(versions.rows))
	}
}

func TestSaveWatchListGatesSnapshots(t *testing.T) {
	typ := pageType(t, Options{Watch: []string{"title"}})
	records, versions := newFakeRecords(), &fakeVersions{}

	rec := domain.NewRecord(map[string]any{"title": "t", "body": "b"})
	mustSave(t, typ, records, versions, &rec)

	rec.Fields["body"] = "changed"
	mustSave(t, typ, records, versions, &rec)
	if len(versions.rows) != 1 {
		t.Fatalf("unwatched change must not snapshot, got %d rows", len(versions.rows))
	}

	rec.Fields["title"] = "changed"
	mustSave(t, typ, records, versions, &rec)
	if len(versions.rows) != 2 || rec.Version != 2 {
		t.Fatalf("watched change must snapshot: version=%d rows=%d", rec.Version, len(versions.rows))
	}
}

func TestSaveRetentionWindow(t *testing.T) {
	typ := pageType(t, Options{Limit: 2})
	records, versions := newFakeRecords(), &fakeVersions{}

	rec := domain.NewRecord(map[string]any{"title": "v1", "body": "x"})
	mustSave(t, typ, records, versions, &rec)
	for _, title := range []string{"v2", "v3"} {
		rec.Fields["title"] = title
		mustSave(t, typ, records, versions, &rec)
	}

	if len(versions.rows) != 2 {
		t.Fatalf("expected 2 retained snapshots, got %d", len(versions.rows))
	}
	got := map[int64]bool{}
	for _, vr := range versions.rows {
		got[vr.Version] = true
	}
	if !got[2] || !got[3] {
		t.Fatalf("expected versions 2 and 3 retained, got %+v", got)
	}
}

func TestSaveSuppressedWritesNoSnapshot(t *testing.T) {
	typ := pageType(t, Options{})
	records, versions := newFakeRecords(), &fakeVersions{}

	rec := domain.NewRecord(map[string]any{"title": "v1", "body": "x"})
	mustSave(t, typ, records, versions, &rec)

	ctx := WithoutVersioning(context.Background())
	rec.Fields["title"] = "v2"
	if err := save(ctx, typ, records, versions, &rec); err != nil {
		t.Fatalf("suppressed save failed: %v", err)
	}
	if rec.Version != 1 || len(versions.rows) != 1 {
		t.Fatalf("suppressed save must not snapshot or advance: version=%d rows=%d", rec.Version, len(versions.rows))
	}
	if records.rows[rec.ID].Fields["title"] != "v2" {
		t.Fatalf("suppressed save must still persist the row")
	}
}

func TestLockedSaveBumpsVersionAndDetectsStaleness(t *testing.T) {
	typ := pageType(t, Options{})
	typ.def.Locking = true
	records, versions := newFakeRecords(), &fakeVersions{}

	rec := domain.NewRecord(map[string]any{"title": "v1", "body": "x"})
	mustSave(t, typ, records, versions, &rec)

	rec.Fields["title"] = "v2"
	mustSave(t, typ, records, versions, &rec)
	if rec.Version != 2 {
		t.Fatalf("locked update must bump the version, got %d", rec.Version)
	}

	// A writer that raced us already moved the row to version 3.
	raced := records.rows[rec.ID]
	raced.Version = 3
	records.rows[rec.ID] = raced

	rec.Fields["title"] = "v3"
	err := save(context.Background(), typ, records, versions, &rec)
	if !errors.Is(err, repository.ErrStaleRecord) {
		t.Fatalf("expected ErrStaleRecord, got %v", err)
	}
}

func TestSnapshotFailurePropagates(t *testing.T) {
	typ := pageType(t, Options{})
	records := newFakeRecords()
	versions := &fakeVersions{failInsert: true}

	rec := domain.NewRecord(map[string]any{"title": "v1", "body": "x"})
	if err := save(context.Background(), typ, records, versions, &rec); err == nil {
		t.Fatalf("snapshot failure must surface to the caller")
	}
}

func TestNextVersionWithoutHistoryUsesCurrentCounter(t *testing.T) {
	versions := &fakeVersions{}
	got, err := nextVersion(context.Background(), versions, uuid.New(), 5, false)
	if err != nil {
		t.Fatalf("nextVersion failed: %v", err)
	}
	if got != 6 {
		t.Fatalf("expected currentVersion+1 without history, got %d", got)
	}
}

func TestDiscriminatorCrossMapping(t *testing.T) {
	typ, err := NewType(domain.Definition{
		Table:         "pages",
		Discriminator: "record_type",
		Fields: []domain.FieldDefinition{
			{Name: "title", Type: domain.FieldTypeText},
		},
	}, Options{})
	if err != nil {
		t.Fatalf("failed to register type: %v", err)
	}
	records, versions := newFakeRecords(), &fakeVersions{}

	rec := domain.NewRecord(map[string]any{"title": "v1"})
	rec.Type = "SpecialPage"
	mustSave(t, typ, records, versions, &rec)

	if versions.rows[0].VersionedType != "SpecialPage" {
		t.Fatalf("live discriminator must archive into versioned_type, got %q", versions.rows[0].VersionedType)
	}

	rec.Type = "OtherPage"
	rec.Fields["title"] = "v2"
	mustSave(t, typ, records, versions, &rec)

	if !revertTo(context.Background(), typ, versions, &rec, 1) {
		t.Fatalf("revert to version 1 failed")
	}
	if rec.Type != "SpecialPage" {
		t.Fatalf("archived discriminator must map back onto the live column, got %q", rec.Type)
	}
}
