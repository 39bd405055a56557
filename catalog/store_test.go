package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/poiesic/picmatch/core"
	"github.com/poiesic/picmatch/storage"
	"github.com/poiesic/picmatch/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu    sync.Mutex
	calls [][]string
}

func (l *recordingListener) Invalidate(ids ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, append([]string(nil), ids...))
}

func (l *recordingListener) last() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.calls) == 0 {
		return nil
	}
	return l.calls[len(l.calls)-1]
}

type failingRepository struct {
	storage.CatalogRepository
	err error
}

func (r *failingRepository) Apply(ctx context.Context, change *storage.Change) error {
	return r.err
}

func (r *failingRepository) ReplaceCatalog(ctx context.Context, catalog *core.Catalog) error {
	return r.err
}

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := New(opts...)
	require.NoError(t, err)
	return s
}

func setupRepository(t *testing.T) storage.CatalogRepository {
	t.Helper()
	catalogRepo, embeddingRepo, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		catalogRepo.Close()
		embeddingRepo.Close()
		backend.Close()
	})
	return catalogRepo
}

func TestAddOrUpdateDescription(t *testing.T) {
	ctx := context.Background()

	t.Run("creates description and mapping", func(t *testing.T) {
		s := newStore(t)
		desc, err := s.AddOrUpdateDescription(ctx, "sunset.jpg", "美丽的日落风景，橙色天空", []string{"日落", " 风景 ", "", "日落", "橙色"})
		require.NoError(t, err)
		assert.Equal(t, "desc_001", desc.Id)
		assert.Equal(t, []string{"日落", "风景", "橙色"}, desc.Keywords)

		got, err := s.GetDescription("sunset.jpg")
		require.NoError(t, err)
		assert.Equal(t, desc.Text, got.Text)
		assert.Equal(t, desc.Keywords, got.Keywords)
	})

	t.Run("empty keywords allowed", func(t *testing.T) {
		s := newStore(t)
		desc, err := s.AddOrUpdateDescription(ctx, "a.jpg", "一只猫", nil)
		require.NoError(t, err)
		assert.Empty(t, desc.Keywords)
	})

	t.Run("rejects blank fields", func(t *testing.T) {
		s := newStore(t)
		_, err := s.AddOrUpdateDescription(ctx, "  ", "text", nil)
		assert.ErrorIs(t, err, core.ErrInvalidArgument)
		assert.ErrorIs(t, err, core.ErrEmptyImageName)

		_, err = s.AddOrUpdateDescription(ctx, "a.jpg", " \n", nil)
		assert.ErrorIs(t, err, core.ErrInvalidArgument)
		assert.ErrorIs(t, err, core.ErrEmptyText)
		assert.Equal(t, 0, s.Stats().Descriptions)
	})

	t.Run("unshared description updates in place", func(t *testing.T) {
		s := newStore(t)
		first, err := s.AddOrUpdateDescription(ctx, "a.jpg", "旧的描述", nil)
		require.NoError(t, err)
		second, err := s.AddOrUpdateDescription(ctx, "a.jpg", "新的描述", []string{"新"})
		require.NoError(t, err)

		assert.Equal(t, first.Id, second.Id)
		assert.Equal(t, 1, s.Stats().Descriptions)
		got, err := s.GetDescription("a.jpg")
		require.NoError(t, err)
		assert.Equal(t, "新的描述", got.Text)
	})

	t.Run("shared description is forked", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Load(ctx, &core.Catalog{
			Descriptions: []core.Description{{Id: "desc_001", Text: "海边"}},
			Mappings: []core.Mapping{
				{ImageName: "a.jpg", DescriptionId: "desc_001"},
				{ImageName: "b.jpg", DescriptionId: "desc_001"},
			},
		}))

		desc, err := s.AddOrUpdateDescription(ctx, "b.jpg", "山顶", nil)
		require.NoError(t, err)
		assert.Equal(t, "desc_002", desc.Id)

		a, err := s.GetDescription("a.jpg")
		require.NoError(t, err)
		assert.Equal(t, "海边", a.Text)
		b, err := s.GetDescription("b.jpg")
		require.NoError(t, err)
		assert.Equal(t, "山顶", b.Text)
	})

	t.Run("ids are never reused", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Load(ctx, &core.Catalog{
			Descriptions: []core.Description{{Id: "desc_007", Text: "x"}, {Id: "custom", Text: "y"}},
		}))
		desc, err := s.AddOrUpdateDescription(ctx, "new.jpg", "z", nil)
		require.NoError(t, err)
		assert.Equal(t, "desc_008", desc.Id)

		require.NoError(t, s.DeleteDescription(ctx, "desc_008"))
		desc, err = s.AddOrUpdateDescription(ctx, "other.jpg", "w", nil)
		require.NoError(t, err)
		assert.Equal(t, "desc_009", desc.Id)
	})

	t.Run("returned description is a copy", func(t *testing.T) {
		s := newStore(t)
		desc, err := s.AddOrUpdateDescription(ctx, "a.jpg", "文本", []string{"文本"})
		require.NoError(t, err)
		desc.Keywords[0] = "changed"

		got, err := s.GetDescription("a.jpg")
		require.NoError(t, err)
		assert.Equal(t, []string{"文本"}, got.Keywords)
	})
}

func TestGetDescription_NotFound(t *testing.T) {
	s := newStore(t)

	_, err := s.GetDescription("missing.jpg")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = s.GetDescriptionByID("desc_404")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestListAll(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	assert.Empty(t, s.ListAll())

	_, err := s.AddImage(ctx, "b.jpg", "images/b.jpg")
	require.NoError(t, err)
	_, err = s.AddOrUpdateDescription(ctx, "b.jpg", "第二", nil)
	require.NoError(t, err)
	_, err = s.AddOrUpdateDescription(ctx, "a.jpg", "第一", nil)
	require.NoError(t, err)
	_, err = s.AddOrUpdateDescription(ctx, "b.jpg", "第二 更新", nil)
	require.NoError(t, err)

	entries := s.ListAll()
	require.Len(t, entries, 2)
	assert.Equal(t, "b.jpg", entries[0].Image.Name)
	assert.Equal(t, "images/b.jpg", entries[0].Image.Location)
	assert.Equal(t, "第二 更新", entries[0].Description.Text)
	assert.Equal(t, "a.jpg", entries[1].Image.Name)
	assert.Empty(t, entries[1].Image.Location)
}

func TestRemoveImageAndDeleteDescription(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Load(ctx, &core.Catalog{
		Descriptions: []core.Description{{Id: "desc_001", Text: "海边"}, {Id: "desc_002", Text: "山顶"}},
		Images:       []core.Image{{Name: "a.jpg"}, {Name: "b.jpg"}, {Name: "c.jpg"}},
		Mappings: []core.Mapping{
			{ImageName: "a.jpg", DescriptionId: "desc_001"},
			{ImageName: "b.jpg", DescriptionId: "desc_001"},
			{ImageName: "c.jpg", DescriptionId: "desc_002"},
		},
	}))

	require.NoError(t, s.RemoveImage(ctx, "c.jpg"))
	_, err := s.GetDescription("c.jpg")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.GetDescriptionByID("desc_002")
	assert.NoError(t, err)

	err = s.RemoveImage(ctx, "c.jpg")
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, s.DeleteDescription(ctx, "desc_001"))
	assert.Empty(t, s.ListAll())
	stats := s.Stats()
	assert.Equal(t, 1, stats.Descriptions)
	assert.Equal(t, 0, stats.Mappings)
	assert.Equal(t, 2, stats.Images)

	err = s.DeleteDescription(ctx, "desc_001")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects mapping to unknown description", func(t *testing.T) {
		s := newStore(t)
		_, err := s.AddOrUpdateDescription(ctx, "keep.jpg", "保留", nil)
		require.NoError(t, err)

		err = s.Load(ctx, &core.Catalog{
			Mappings: []core.Mapping{{ImageName: "a.jpg", DescriptionId: "desc_404"}},
		})
		assert.ErrorIs(t, err, core.ErrInvalidArgument)
		assert.Equal(t, 1, s.Stats().Descriptions)
	})

	t.Run("rejects blank text", func(t *testing.T) {
		s := newStore(t)
		err := s.Load(ctx, &core.Catalog{Descriptions: []core.Description{{Id: "desc_001", Text: " "}}})
		assert.ErrorIs(t, err, core.ErrInvalidArgument)
	})

	t.Run("nil catalog empties the store", func(t *testing.T) {
		s := newStore(t)
		_, err := s.AddOrUpdateDescription(ctx, "a.jpg", "文本", nil)
		require.NoError(t, err)
		require.NoError(t, s.Load(ctx, nil))
		assert.Equal(t, core.CatalogStats{}, s.Stats())
	})
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Load(ctx, &core.Catalog{
		Descriptions: []core.Description{
			{Id: "desc_001", Text: "日落", Keywords: []string{"日落", "橙色"}},
			{Id: "desc_002", Text: "海边", Keywords: []string{"海边", "日落"}},
		},
		Images: []core.Image{{Name: "a.jpg"}},
		Mappings: []core.Mapping{
			{ImageName: "a.jpg", DescriptionId: "desc_001"},
			{ImageName: "ghost.jpg", DescriptionId: "desc_002"},
		},
	}))

	assert.Equal(t, core.CatalogStats{
		Images:           1,
		Descriptions:     2,
		Mappings:         2,
		DanglingMappings: 1,
		Keywords:         3,
	}, s.Stats())
	assert.Equal(t, []string{"日落", "橙色", "海边"}, s.Keywords())
}

func TestListeners(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	listener := &recordingListener{}
	s.Subscribe(listener)
	s.Subscribe(nil)

	desc, err := s.AddOrUpdateDescription(ctx, "a.jpg", "文本", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{desc.Id}, listener.last())

	_, err = s.AddImage(ctx, "a.jpg", "")
	require.NoError(t, err)
	assert.Len(t, listener.calls, 1)

	require.NoError(t, s.Load(ctx, &core.Catalog{
		Descriptions: []core.Description{{Id: "desc_010", Text: "新"}},
	}))
	assert.ElementsMatch(t, []string{desc.Id, "desc_010"}, listener.last())

	require.NoError(t, s.DeleteDescription(ctx, "desc_010"))
	assert.Equal(t, []string{"desc_010"}, listener.last())
}

func TestWriteThrough(t *testing.T) {
	ctx := context.Background()
	repo := setupRepository(t)

	s := newStore(t, WithRepository(repo))
	_, err := s.AddImage(ctx, "sunset.jpg", "images/sunset.jpg")
	require.NoError(t, err)
	_, err = s.AddOrUpdateDescription(ctx, "sunset.jpg", "美丽的日落风景，橙色天空", []string{"日落", "风景"})
	require.NoError(t, err)
	_, err = s.AddOrUpdateDescription(ctx, "beach.jpg", "海边的沙滩", nil)
	require.NoError(t, err)
	require.NoError(t, s.DeleteDescription(ctx, "desc_002"))

	restored := newStore(t, WithRepository(repo))
	require.NoError(t, restored.Restore(ctx))

	assert.Equal(t, s.Snapshot(), restored.Snapshot())
	desc, err := restored.GetDescription("sunset.jpg")
	require.NoError(t, err)
	assert.Equal(t, "desc_001", desc.Id)

	next, err := restored.AddOrUpdateDescription(ctx, "new.jpg", "新的", nil)
	require.NoError(t, err)
	assert.Equal(t, "desc_002", next.Id)
}

func TestRepositoryFailureLeavesMemoryUntouched(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")
	s := newStore(t, WithRepository(&failingRepository{err: boom}))
	listener := &recordingListener{}
	s.Subscribe(listener)

	_, err := s.AddOrUpdateDescription(ctx, "a.jpg", "文本", nil)
	assert.ErrorIs(t, err, boom)

	_, err = s.AddImage(ctx, "a.jpg", "")
	assert.ErrorIs(t, err, boom)

	err = s.Load(ctx, &core.Catalog{Descriptions: []core.Description{{Id: "desc_001", Text: "x"}}})
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, core.CatalogStats{}, s.Stats())
	assert.Empty(t, listener.calls)
}

func TestStorageNotFoundIsTranslated(t *testing.T) {
	s := newStore(t, WithRepository(&failingRepository{err: storage.ErrNotFound}))
	_, err := s.AddOrUpdateDescription(context.Background(), "a.jpg", "文本", nil)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSetKeywords(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	listener := &recordingListener{}
	s.Subscribe(listener)

	desc, err := s.AddOrUpdateDescription(ctx, "a.jpg", "美丽的日落", nil)
	require.NoError(t, err)

	updated, err := s.SetKeywords(ctx, desc.Id, []string{"日落", " 美丽 ", "日落"})
	require.NoError(t, err)
	assert.Equal(t, []string{"日落", "美丽"}, updated.Keywords)
	assert.Equal(t, "美丽的日落", updated.Text)
	assert.Equal(t, []string{desc.Id}, listener.last())

	got, err := s.GetDescriptionByID(desc.Id)
	require.NoError(t, err)
	assert.Equal(t, []string{"日落", "美丽"}, got.Keywords)

	_, err = s.SetKeywords(ctx, "desc_404", []string{"x"})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestAppendDescriptions(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh ids after existing ones", func(t *testing.T) {
		s := newStore(t, WithRepository(setupRepository(t)))
		listener := &recordingListener{}
		s.Subscribe(listener)

		_, err := s.AddOrUpdateDescription(ctx, "sunset.jpg", "美丽的日落风景", []string{"日落"})
		require.NoError(t, err)

		added, err := s.AppendDescriptions(ctx, []core.Description{
			{Id: "desc_001", Text: "海边的沙滩", Keywords: []string{"沙滩", " 沙滩 "}},
			{Text: "雪山下的湖泊"},
		})
		require.NoError(t, err)
		require.Len(t, added, 2)
		assert.Equal(t, "desc_002", added[0].Id)
		assert.Equal(t, []string{"沙滩"}, added[0].Keywords)
		assert.Equal(t, "desc_003", added[1].Id)
		assert.Equal(t, []string{"desc_002", "desc_003"}, listener.last())

		stats := s.Stats()
		assert.Equal(t, 3, stats.Descriptions)
		assert.Equal(t, 1, stats.Mappings)
		assert.Len(t, s.ListAll(), 1, "unmapped descriptions are not listed")

		got, err := s.GetDescriptionByID("desc_003")
		require.NoError(t, err)
		assert.Equal(t, "雪山下的湖泊", got.Text)
	})

	t.Run("blank text adds nothing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.AppendDescriptions(ctx, []core.Description{{Text: "海边"}, {Text: "  "}})
		assert.ErrorIs(t, err, core.ErrInvalidArgument)
		assert.Zero(t, s.Stats().Descriptions)
	})

	t.Run("repository failure keeps ids", func(t *testing.T) {
		boom := errors.New("disk full")
		s := newStore(t, WithRepository(&failingRepository{err: boom}))
		_, err := s.AppendDescriptions(ctx, []core.Description{{Text: "海边"}})
		assert.ErrorIs(t, err, boom)
		assert.Zero(t, s.Stats().Descriptions)
		assert.Equal(t, 1, s.nextSeq)
	})

	t.Run("empty batch", func(t *testing.T) {
		added, err := newStore(t).AppendDescriptions(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, added)
	})
}
