package services

import (
	"context"
	"errors"
	"testing"

	"campus-eats-api/cache"
	"campus-eats-api/events"
	"campus-eats-api/models"
	"campus-eats-api/statemachine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateComputesTotalServerSideAndSnapshotsPrices(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.student(t, "alice")
	dosa := h.item(t, "Dosa", 20)
	tea := h.item(t, "Tea", 10)

	sub := h.subscribe(t, "order_updates:*")

	order, err := h.orders.Create(ctx, alice, []CartLine{
		{MenuItemID: dosa.ID, Quantity: 2},
		{MenuItemID: tea.ID, Quantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 50, order.TotalAmount)
	assert.Equal(t, models.StatusPending, order.Status)
	assert.True(t, order.OwnedBy(alice.UserID))

	// creation is not broadcast
	expectSilence(t, sub)

	price := 99
	_, err = h.menu.Update(ctx, dosa.ID, MenuPatch{Price: &price})
	require.NoError(t, err)

	got, err := h.orders.Get(ctx, alice, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.TotalAmount)
	require.Len(t, got.Items, 2)
	assert.Equal(t, 20, got.Items[0].Price)
	require.Len(t, got.StatusHistory, 1)
	assert.Equal(t, models.StatusPending, got.StatusHistory[0].ToStatus)
}

func TestCreateRejectsBadCarts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.student(t, "alice")
	meal := h.item(t, "Thali", 900)
	gone := h.item(t, "Biryani", 150)
	off := false
	_, err := h.menu.Update(ctx, gone.ID, MenuPatch{IsAvailable: &off})
	require.NoError(t, err)

	var verr *ValidationError
	_, err = h.orders.Create(ctx, alice, nil)
	assert.ErrorAs(t, err, &verr)

	_, err = h.orders.Create(ctx, alice, []CartLine{{MenuItemID: meal.ID, Quantity: 0}})
	assert.ErrorAs(t, err, &verr)

	_, err = h.orders.Create(ctx, alice, []CartLine{{MenuItemID: meal.ID, Quantity: 51}})
	assert.ErrorAs(t, err, &verr)

	_, err = h.orders.Create(ctx, alice, []CartLine{{MenuItemID: 4242, Quantity: 1}})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.orders.Create(ctx, alice, []CartLine{{MenuItemID: gone.ID, Quantity: 1}})
	assert.ErrorAs(t, err, &verr)

	// 12 x 900 exceeds the 10000 ceiling
	_, err = h.orders.Create(ctx, alice, []CartLine{{MenuItemID: meal.ID, Quantity: 12}})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "exceeds")

	orders, err := h.orders.Mine(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, orders, "rejected carts persist nothing")
}

func TestShopClosedBlocksOrdersUntilReopened(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.student(t, "alice")
	dosa := h.item(t, "Dosa", 20)
	cart := []CartLine{{MenuItemID: dosa.ID, Quantity: 2}}

	_, err := h.settings.Save(ctx, SettingInput{Key: models.SettingShopStatus, Value: "closed"})
	require.NoError(t, err)

	_, err = h.orders.Create(ctx, alice, cart)
	assert.ErrorIs(t, err, ErrShopClosed)
	// closed wins even over an invalid cart
	_, err = h.orders.Create(ctx, alice, nil)
	assert.ErrorIs(t, err, ErrShopClosed)

	_, err = h.settings.Save(ctx, SettingInput{Key: models.SettingShopStatus, Value: "open"})
	require.NoError(t, err)
	order, err := h.orders.Create(ctx, alice, cart)
	require.NoError(t, err)
	assert.Equal(t, 40, order.TotalAmount)
}

func TestGetEnforcesOwnership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.student(t, "alice")
	bob := h.student(t, "bob")
	admin := h.staff(t, "admin")
	order := h.order(t, alice, h.item(t, "Tea", 10), 1)

	_, err := h.orders.Get(ctx, bob, order.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = h.orders.Get(ctx, admin, order.ID)
	assert.NoError(t, err)
	_, err = h.orders.Get(ctx, alice, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatusFollowsStateMachine(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.student(t, "alice")
	admin := h.staff(t, "admin")
	order := h.order(t, alice, h.item(t, "Tea", 10), 1)

	sub := h.subscribe(t, events.UserChannel(alice.UserID))

	_, err := h.orders.UpdateStatus(ctx, alice, order.ID, models.StatusPreparing, "")
	assert.ErrorIs(t, err, ErrForbidden)

	var terr *statemachine.InvalidTransitionError
	_, err = h.orders.UpdateStatus(ctx, admin, order.ID, models.StatusReady, "")
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, models.StatusPending, terr.From)
	assert.ElementsMatch(t, []models.OrderStatus{models.StatusPreparing, models.StatusPendingVerification}, terr.Allowed)

	updated, err := h.orders.UpdateStatus(ctx, admin, order.ID, models.StatusPreparing, "cash at counter")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPreparing, updated.Status)
	msg := expectMessage(t, sub)
	assert.Contains(t, string(msg.Payload), `"status":"Preparing"`)

	// same status again is a silent no-op
	again, err := h.orders.UpdateStatus(ctx, admin, order.ID, models.StatusPreparing, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPreparing, again.Status)
	expectSilence(t, sub)
	assert.Len(t, again.StatusHistory, 2)

	_, err = h.orders.UpdateStatus(ctx, admin, order.ID, "Teleported", "")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestStaffCannotSubmitProofOnBehalfOfStudent(t *testing.T) {
	h := newHarness(t)
	admin := h.staff(t, "admin")
	order := h.order(t, h.student(t, "alice"), h.item(t, "Tea", 10), 1)

	_, err := h.orders.UpdateStatus(context.Background(), admin, order.ID, models.StatusPendingVerification, "")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestUpdateStatusToPaidMintsOTPAndEmailsIt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.student(t, "alice")
	admin := h.staff(t, "admin")
	order := h.order(t, alice, h.item(t, "Tea", 10), 1)

	_, err := h.payments.SubmitReference(ctx, alice, order.ID, "UTR12345")
	require.NoError(t, err)

	paid, err := h.orders.UpdateStatus(ctx, admin, order.ID, models.StatusPaid, "")
	require.NoError(t, err)
	assert.Regexp(t, `^\d{6}$`, paid.OTP)
	assert.Equal(t, "admin", paid.VerifiedBy)

	require.Len(t, h.mailer.sent, 1)
	assert.Equal(t, "alice@campus.test", h.mailer.sent[0].to)
	assert.Contains(t, h.mailer.sent[0].body, paid.OTP)
}

func TestVerifyOTP(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.student(t, "alice")
	admin := h.staff(t, "admin")
	order := h.order(t, alice, h.item(t, "Tea", 10), 1)

	_, err := h.payments.SubmitReference(ctx, alice, order.ID, "UTR-OTP-1")
	require.NoError(t, err)
	paid, err := h.payments.Verify(ctx, admin, order.ID)
	require.NoError(t, err)

	found, err := h.orders.VerifyOTP(ctx, admin, paid.OTP)
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)
	assert.Equal(t, models.StatusPaid, found.Status, "a match does not complete the order")

	_, err = h.orders.VerifyOTP(ctx, alice, paid.OTP)
	assert.ErrorIs(t, err, ErrForbidden)

	var verr *ValidationError
	_, err = h.orders.VerifyOTP(ctx, admin, "12ab")
	assert.ErrorAs(t, err, &verr)

	for _, s := range []models.OrderStatus{models.StatusPreparing, models.StatusReady, models.StatusCompleted} {
		_, err = h.orders.UpdateStatus(ctx, admin, order.ID, s, "")
		require.NoError(t, err)
	}
	_, err = h.orders.VerifyOTP(ctx, admin, paid.OTP)
	assert.ErrorIs(t, err, ErrNotFound, "collected orders never match")
}

func TestVerifyOTPAmbiguousIsNotFound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.staff(t, "admin")
	tea := h.item(t, "Tea", 10)
	a := h.order(t, h.student(t, "alice"), tea, 1)
	b := h.order(t, h.student(t, "bob"), tea, 1)

	for _, o := range []*models.Order{a, b} {
		_, err := h.orders.UpdateStatus(ctx, admin, o.ID, models.StatusPreparing, "")
		require.NoError(t, err)
		require.NoError(t, h.repo.ApplyStatusChange(ctx, statusFields(o.ID, models.StatusPreparing, models.StatusReady, "424242")))
	}

	_, err := h.orders.VerifyOTP(ctx, admin, "424242")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatsAreCachedAndInvalidatedOnWrites(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.student(t, "alice")
	admin := h.staff(t, "admin")
	tea := h.item(t, "Tea", 10)
	order := h.order(t, alice, tea, 3)

	stats, err := h.orders.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalOrders)
	assert.Equal(t, int64(0), stats.Revenue)
	assert.True(t, h.mr.Exists(cache.KeyAdminStats))

	_, err = h.orders.UpdateStatus(ctx, admin, order.ID, models.StatusPreparing, "")
	require.NoError(t, err)
	assert.False(t, h.mr.Exists(cache.KeyAdminStats), "transition drops cached stats")

	stats, err = h.orders.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(30), stats.Revenue)
	assert.Equal(t, int64(1), stats.Counts[models.StatusPreparing])
}

func TestWritesSucceedWhileStoreIsDown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.student(t, "alice")
	admin := h.staff(t, "admin")
	tea := h.item(t, "Tea", 10)

	h.mr.Close()

	order := h.order(t, alice, tea, 1)
	updated, err := h.orders.UpdateStatus(ctx, admin, order.ID, models.StatusPreparing, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPreparing, updated.Status)
	assert.False(t, h.store.Health().Available())

	stats, err := h.orders.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalOrders)
}

func TestKitchenQueueIsOldestFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.staff(t, "admin")
	tea := h.item(t, "Tea", 10)
	first := h.order(t, h.student(t, "alice"), tea, 1)
	second := h.order(t, h.student(t, "bob"), tea, 1)
	h.order(t, h.student(t, "carol"), tea, 1)

	for _, o := range []*models.Order{second, first} {
		_, err := h.orders.UpdateStatus(ctx, admin, o.ID, models.StatusPreparing, "")
		require.NoError(t, err)
	}

	queue, err := h.orders.KitchenQueue(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, first.ID, queue[0].ID)
	assert.Equal(t, second.ID, queue[1].ID)

	all, err := h.orders.List(ctx, models.StatusPending)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = h.orders.List(ctx, "nope")
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}
