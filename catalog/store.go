// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/picmatch/core"
	"github.com/poiesic/picmatch/storage"
)

// Listener is notified after descriptions change.
type Listener interface {
	// Invalidate receives the ids of added, updated or deleted descriptions.
	Invalidate(ids ...string)
}

// Store is the catalog of descriptions, images and mappings.
// It is safe for concurrent use.
type Store struct {
	repo   storage.CatalogRepository
	logger *slog.Logger

	mu           sync.RWMutex
	descriptions *ordered[*core.Description]
	images       *ordered[*core.Image]
	mappings     *ordered[string] // image name -> description id
	nextSeq      int

	listenersMu sync.RWMutex
	listeners   []Listener
}

// Option configures a Store.
type Option func(*Store) error

// WithRepository writes every mutation through to repo.
func WithRepository(repo storage.CatalogRepository) Option {
	return func(s *Store) error {
		s.repo = repo
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// New creates an empty Store.
func New(opts ...Option) (*Store, error) {
	s := &Store{
		logger:       slog.Default().With("component", "catalog"),
		descriptions: newOrdered[*core.Description](0),
		images:       newOrdered[*core.Image](0),
		mappings:     newOrdered[string](0),
		nextSeq:      1,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Subscribe registers l for invalidation callbacks.
func (s *Store) Subscribe(l Listener) {
	if l == nil {
		return
	}
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Restore replaces the in-memory catalog with the repository contents.
// It is a no-op without a repository.
func (s *Store) Restore(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	catalog, err := s.repo.LoadCatalog(ctx)
	if err != nil {
		return fmt.Errorf("restoring catalog: %w", err)
	}
	return s.load(ctx, catalog, false)
}

// Load replaces the whole catalog. Every record is validated and every
// mapping must reference a description in catalog; otherwise nothing
// changes and ErrInvalidArgument is returned. Repeated ids replace the
// earlier record in place.
func (s *Store) Load(ctx context.Context, catalog *core.Catalog) error {
	if catalog == nil {
		catalog = &core.Catalog{}
	}
	return s.load(ctx, catalog, true)
}

func (s *Store) load(ctx context.Context, catalog *core.Catalog, persist bool) error {
	descriptions := newOrdered[*core.Description](len(catalog.Descriptions))
	nextSeq := 1
	for i := range catalog.Descriptions {
		d := catalog.Descriptions[i].Clone()
		if err := core.ValidateDescription(&d); err != nil {
			return fmt.Errorf("description %d: %w", i, err)
		}
		d.Keywords = core.NormalizeKeywords(d.Keywords)
		descriptions.put(d.Id, &d)
		if n, ok := core.DescriptionSequence(d.Id); ok && n >= nextSeq {
			nextSeq = n + 1
		}
	}

	images := newOrdered[*core.Image](len(catalog.Images))
	for i := range catalog.Images {
		image := catalog.Images[i]
		if err := core.ValidateImage(&image); err != nil {
			return fmt.Errorf("image %d: %w", i, err)
		}
		images.put(image.Name, &image)
	}

	mappings := newOrdered[string](len(catalog.Mappings))
	for i := range catalog.Mappings {
		m := &catalog.Mappings[i]
		if err := core.ValidateMapping(m); err != nil {
			return fmt.Errorf("mapping %d: %w", i, err)
		}
		if _, ok := descriptions.get(m.DescriptionId); !ok {
			return fmt.Errorf("%w: mapping %q references unknown description %q", core.ErrInvalidArgument, m.ImageName, m.DescriptionId)
		}
		mappings.put(m.ImageName, m.DescriptionId)
	}

	s.mu.Lock()
	if persist && s.repo != nil {
		if err := s.repo.ReplaceCatalog(ctx, snapshotOf(descriptions, images, mappings)); err != nil {
			s.mu.Unlock()
			return translate(err)
		}
	}
	invalidated := append([]string(nil), s.descriptions.keys...)
	invalidated = append(invalidated, descriptions.keys...)
	s.descriptions = descriptions
	s.images = images
	s.mappings = mappings
	s.nextSeq = nextSeq
	s.mu.Unlock()

	s.logger.Debug("catalog loaded",
		"descriptions", descriptions.len(),
		"images", images.len(),
		"mappings", mappings.len())
	s.notify(invalidated...)
	return nil
}

// AddOrUpdateDescription sets the description of image.
//
// If the image's current description is mapped from no other image it is
// updated in place and keeps its id. Otherwise a new description is created
// and only this image is remapped to it. Keywords are trimmed, with blanks
// and duplicates dropped.
func (s *Store) AddOrUpdateDescription(ctx context.Context, imageName, text string, keywords []string) (*core.Description, error) {
	imageName = strings.TrimSpace(imageName)
	if imageName == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidArgument, core.ErrEmptyImageName)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidArgument, core.ErrEmptyText)
	}

	s.mu.Lock()
	desc := &core.Description{
		Text:      text,
		Keywords:  core.NormalizeKeywords(keywords),
		UpdatedAt: now(),
	}
	change := &storage.Change{PutDescriptions: []*core.Description{desc}}

	currentID, mapped := s.mappings.get(imageName)
	_, exists := s.descriptions.get(currentID)
	if mapped && exists && s.refCount(currentID) == 1 {
		desc.Id = currentID
	} else {
		desc.Id = s.allocateID()
		change.PutMappings = []*core.Mapping{{ImageName: imageName, DescriptionId: desc.Id}}
	}

	if err := s.apply(ctx, change); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	s.notify(desc.Id)
	result := desc.Clone()
	return &result, nil
}

// AppendDescriptions adds descriptions that no image maps to yet. Each one
// gets a fresh id; ids on the inputs are ignored. Nothing is added when any
// input is invalid.
func (s *Store) AppendDescriptions(ctx context.Context, descriptions []core.Description) ([]core.Description, error) {
	if len(descriptions) == 0 {
		return []core.Description{}, nil
	}
	for i := range descriptions {
		if strings.TrimSpace(descriptions[i].Text) == "" {
			return nil, fmt.Errorf("%w: description %d: %w", core.ErrInvalidArgument, i+1, core.ErrEmptyText)
		}
	}

	s.mu.Lock()
	seq := s.nextSeq
	added := make([]*core.Description, len(descriptions))
	ids := make([]string, len(descriptions))
	for i := range descriptions {
		desc := descriptions[i].Clone()
		desc.Id = s.allocateID()
		desc.Keywords = core.NormalizeKeywords(desc.Keywords)
		desc.UpdatedAt = now()
		added[i] = &desc
		ids[i] = desc.Id
	}
	if err := s.apply(ctx, &storage.Change{PutDescriptions: added}); err != nil {
		s.nextSeq = seq
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	s.notify(ids...)
	result := make([]core.Description, len(added))
	for i, d := range added {
		result[i] = d.Clone()
	}
	return result, nil
}

// SetKeywords replaces the keywords of the description with the given id.
func (s *Store) SetKeywords(ctx context.Context, id string, keywords []string) (*core.Description, error) {
	s.mu.Lock()
	current, ok := s.descriptions.get(id)
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: description %q", core.ErrNotFound, id)
	}
	desc := current.Clone()
	desc.Keywords = core.NormalizeKeywords(keywords)
	desc.UpdatedAt = now()

	if err := s.apply(ctx, &storage.Change{PutDescriptions: []*core.Description{&desc}}); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	s.notify(id)
	result := desc.Clone()
	return &result, nil
}

// AddImage registers an image, replacing any image with the same name.
func (s *Store) AddImage(ctx context.Context, name, location string) (*core.Image, error) {
	image := &core.Image{
		Name:     strings.TrimSpace(name),
		Location: location,
		AddedAt:  now(),
	}
	if err := core.ValidateImage(image); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.apply(ctx, &storage.Change{PutImages: []*core.Image{image}}); err != nil {
		return nil, err
	}
	result := *image
	return &result, nil
}

// RemoveImage removes an image and its mapping. The description stays.
func (s *Store) RemoveImage(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	change := &storage.Change{}
	if _, ok := s.images.get(name); ok {
		change.DeleteImages = []string{name}
	}
	if _, ok := s.mappings.get(name); ok {
		change.DeleteMappings = []string{name}
	}
	if change.IsEmpty() {
		return fmt.Errorf("%w: image %q", core.ErrNotFound, name)
	}
	return s.apply(ctx, change)
}

// DeleteDescription removes a description and every mapping to it.
func (s *Store) DeleteDescription(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.descriptions.get(id); !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: description %q", core.ErrNotFound, id)
	}
	change := &storage.Change{DeleteDescriptions: []string{id}}
	s.mappings.each(func(image, descID string) {
		if descID == id {
			change.DeleteMappings = append(change.DeleteMappings, image)
		}
	})
	if err := s.apply(ctx, change); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.notify(id)
	return nil
}

// GetDescription returns the description mapped from image.
func (s *Store) GetDescription(imageName string) (*core.Description, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.mappings.get(imageName)
	if !ok {
		return nil, fmt.Errorf("%w: no description for image %q", core.ErrNotFound, imageName)
	}
	desc, ok := s.descriptions.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: description %q", core.ErrNotFound, id)
	}
	result := desc.Clone()
	return &result, nil
}

// GetDescriptionByID returns the description with the given id.
func (s *Store) GetDescriptionByID(id string) (*core.Description, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	desc, ok := s.descriptions.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: description %q", core.ErrNotFound, id)
	}
	result := desc.Clone()
	return &result, nil
}

// ListAll returns one entry per mapping, in mapping insertion order.
// Images that were never registered appear with only their name set.
// The result is a snapshot; later mutations do not affect it.
func (s *Store) ListAll() []core.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]core.Entry, 0, s.mappings.len())
	s.mappings.each(func(imageName, id string) {
		desc, ok := s.descriptions.get(id)
		if !ok {
			return
		}
		image := core.Image{Name: imageName}
		if registered, ok := s.images.get(imageName); ok {
			image = *registered
		}
		entries = append(entries, core.Entry{Image: image, Description: desc.Clone()})
	})
	return entries
}

// Descriptions returns every description in insertion order.
func (s *Store) Descriptions() []core.Description {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]core.Description, 0, s.descriptions.len())
	s.descriptions.each(func(_ string, d *core.Description) {
		result = append(result, d.Clone())
	})
	return result
}

// Snapshot returns a copy of all three collections.
func (s *Store) Snapshot() *core.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotOf(s.descriptions, s.images, s.mappings)
}

// Keywords returns the distinct keywords of all descriptions in first-seen order.
func (s *Store) Keywords() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keywordsLocked()
}

// Stats summarizes the catalog.
func (s *Store) Stats() core.CatalogStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := core.CatalogStats{
		Images:       s.images.len(),
		Descriptions: s.descriptions.len(),
		Mappings:     s.mappings.len(),
		Keywords:     len(s.keywordsLocked()),
	}
	s.mappings.each(func(imageName, _ string) {
		if _, ok := s.images.get(imageName); !ok {
			stats.DanglingMappings++
		}
	})
	return stats
}

func (s *Store) keywordsLocked() []string {
	var keywords []string
	seen := make(map[string]struct{})
	s.descriptions.each(func(_ string, d *core.Description) {
		for _, kw := range d.Keywords {
			if _, ok := seen[kw]; ok {
				continue
			}
			seen[kw] = struct{}{}
			keywords = append(keywords, kw)
		}
	})
	return keywords
}

// refCount counts the mappings that reference description id.
func (s *Store) refCount(id string) int {
	n := 0
	s.mappings.each(func(_, descID string) {
		if descID == id {
			n++
		}
	})
	return n
}

// allocateID returns the next unused generated description id.
func (s *Store) allocateID() string {
	for {
		id := core.FormatDescriptionID(s.nextSeq)
		s.nextSeq++
		if _, taken := s.descriptions.get(id); !taken {
			return id
		}
	}
}

// apply writes change through to the repository, then to memory.
// Callers hold s.mu.
func (s *Store) apply(ctx context.Context, change *storage.Change) error {
	if s.repo != nil {
		if err := s.repo.Apply(ctx, change); err != nil {
			return translate(err)
		}
	}

	for _, id := range change.DeleteDescriptions {
		s.descriptions.delete(id)
	}
	for _, name := range change.DeleteImages {
		s.images.delete(name)
	}
	for _, name := range change.DeleteMappings {
		s.mappings.delete(name)
	}
	for _, d := range change.PutDescriptions {
		stored := d.Clone()
		s.descriptions.put(d.Id, &stored)
	}
	for _, image := range change.PutImages {
		stored := *image
		s.images.put(image.Name, &stored)
	}
	for _, m := range change.PutMappings {
		s.mappings.put(m.ImageName, m.DescriptionId)
	}
	return nil
}

func (s *Store) notify(ids ...string) {
	if len(ids) == 0 {
		return
	}
	s.listenersMu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.listenersMu.RUnlock()

	for _, l := range listeners {
		l.Invalidate(ids...)
	}
}

func snapshotOf(descriptions *ordered[*core.Description], images *ordered[*core.Image], mappings *ordered[string]) *core.Catalog {
	catalog := &core.Catalog{
		Descriptions: make([]core.Description, 0, descriptions.len()),
		Images:       make([]core.Image, 0, images.len()),
		Mappings:     make([]core.Mapping, 0, mappings.len()),
	}
	descriptions.each(func(_ string, d *core.Description) {
		catalog.Descriptions = append(catalog.Descriptions, d.Clone())
	})
	images.each(func(_ string, image *core.Image) {
		catalog.Images = append(catalog.Images, *image)
	})
	mappings.each(func(imageName, id string) {
		catalog.Mappings = append(catalog.Mappings, core.Mapping{ImageName: imageName, DescriptionId: id})
	})
	return catalog
}

// now matches the microsecond precision of persisted timestamps, so a
// restored catalog equals the one that was written.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// translate maps storage errors onto the catalog's error taxonomy.
func translate(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %w", core.ErrNotFound, err)
	}
	return err
}
