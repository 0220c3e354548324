package services

import (
	"context"
	"testing"
	"time"

	"campus-eats-api/cache"
	"campus-eats-api/events"
	"campus-eats-api/logging"
	"campus-eats-api/models"
	"campus-eats-api/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMenuReadsAreCachedAndWritesAreVisibleImmediately(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tea := h.item(t, "Tea", 10)

	items, err := h.menu.List(ctx, MenuFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, h.mr.Exists(cache.KeyMenu))

	sub := h.subscribe(t, events.ChannelMenu)

	price := 12
	_, err = h.menu.Update(ctx, tea.ID, MenuPatch{Price: &price})
	require.NoError(t, err)
	assert.False(t, h.mr.Exists(cache.KeyMenu))
	assert.Contains(t, string(expectMessage(t, sub).Payload), `"action":"updated"`)

	items, err = h.menu.List(ctx, MenuFilter{})
	require.NoError(t, err)
	assert.Equal(t, 12, items[0].Price, "no stale read after a write")
}

// deleteHookStore runs onDelete once, just before the next shared delete.
type deleteHookStore struct {
	store.Store
	onDelete func()
}

func (s *deleteHookStore) Delete(ctx context.Context, keys ...string) error {
	if f := s.onDelete; f != nil {
		s.onDelete = nil
		f()
	}
	return s.Store.Delete(ctx, keys...)
}

func TestMenuReadDuringInvalidationDoesNotPinOldMenu(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	log := logging.Nop()
	hooked := &deleteHookStore{Store: h.store}
	menu := NewMenuService(h.repo, cache.New(hooked, log), events.NewPublisher(h.store, log), log, time.Minute, time.Minute)

	tea, err := menu.Create(ctx, MenuInput{Name: "Tea", Price: 30, Category: "drinks", IsAvailable: true})
	require.NoError(t, err)
	items, err := menu.List(ctx, MenuFilter{})
	require.NoError(t, err)
	require.Equal(t, 30, items[0].Price)

	hooked.onDelete = func() {
		_, err := menu.List(ctx, MenuFilter{})
		require.NoError(t, err)
	}
	price := 45
	_, err = menu.Update(ctx, tea.ID, MenuPatch{Price: &price})
	require.NoError(t, err)

	items, err = menu.List(ctx, MenuFilter{})
	require.NoError(t, err)
	assert.Equal(t, 45, items[0].Price)
}

func TestMenuListShowsUnavailableItemsDistinctly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.item(t, "Tea", 10)
	dosa := h.item(t, "Dosa", 20)
	_, err := h.menu.SetAvailability(ctx, dosa.ID, false)
	require.NoError(t, err)

	all, err := h.menu.List(ctx, MenuFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	var unavailable int
	for _, it := range all {
		if !it.IsAvailable {
			unavailable++
		}
	}
	assert.Equal(t, 1, unavailable)

	open, err := h.menu.List(ctx, MenuFilter{AvailableOnly: true})
	require.NoError(t, err)
	assert.Len(t, open, 1)

	meals, err := h.menu.List(ctx, MenuFilter{Category: "MEALS"})
	require.NoError(t, err)
	assert.Len(t, meals, 2)
	snacks, err := h.menu.List(ctx, MenuFilter{Category: "snacks"})
	require.NoError(t, err)
	assert.Empty(t, snacks)
}

func TestMenuValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	var verr *ValidationError

	_, err := h.menu.Create(ctx, MenuInput{Name: "", Price: 10})
	assert.ErrorAs(t, err, &verr)
	_, err = h.menu.Create(ctx, MenuInput{Name: "Gold leaf", Price: models.MaxMenuPrice + 1})
	assert.ErrorAs(t, err, &verr)
	_, err = h.menu.Create(ctx, MenuInput{Name: "Free", Price: 0})
	assert.ErrorAs(t, err, &verr)

	_, err = h.menu.Update(ctx, 404, MenuPatch{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMenuDeleteRestrictedWhileOrdered(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tea := h.item(t, "Tea", 10)
	spare := h.item(t, "Spare", 10)
	h.order(t, h.student(t, "alice"), tea, 1)

	assert.ErrorIs(t, h.menu.Delete(ctx, tea.ID), ErrMenuItemInUse)
	require.NoError(t, h.menu.Delete(ctx, spare.ID))
	assert.ErrorIs(t, h.menu.Delete(ctx, spare.ID), ErrNotFound)

	items, err := h.menu.List(ctx, MenuFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestMenuServedFromDatabaseWhenStoreIsDown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.item(t, "Tea", 10)
	h.mr.Close()

	items, err := h.menu.List(ctx, MenuFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 1)

	h.item(t, "Coffee", 15)
	items, err = h.menu.List(ctx, MenuFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
