package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KumarG23/nep-back/internal/apperr"
	"github.com/KumarG23/nep-back/internal/auth"
	"github.com/KumarG23/nep-back/internal/datamodels/cart"
	"github.com/KumarG23/nep-back/internal/datamodels/order"
	"github.com/KumarG23/nep-back/internal/payment"
)

func succeededIntent(id string, received int64, meta map[string]string) payment.Intent {
	return payment.Intent{
		ID:             id,
		Amount:         received,
		AmountReceived: received,
		Currency:       "usd",
		Status:         payment.StatusSucceeded,
		Email:          "buyer@example.com",
		Metadata:       meta,
	}
}

func TestConfirmPaymentCreatesOrderFromIntent(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	a := seedProduct(t, f.db, "Pashmina", "10.00")
	b := seedProduct(t, f.db, "Singing bowl", "5.50")
	f.gateway.Put(succeededIntent("pi_1", 2550, nil))

	res, err := f.svc.ConfirmPayment(ctx, auth.Identity{UserID: 1, Username: "u"}, ConfirmRequest{
		PaymentIntentID: "pi_1",
		Items:           []Item{{ProductID: a.ID, Quantity: 2}, {ProductID: b.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.False(t, res.Replayed)

	o := res.Order
	assert.True(t, decimal.RequireFromString("25.50").Equal(o.TotalPrice))
	assert.Equal(t, order.SourcePayment, o.Source)
	assert.Equal(t, "buyer@example.com", o.Email)
	require.NotNil(t, o.UserID)
	assert.Equal(t, int64(1), *o.UserID)
	require.Len(t, o.Lines, 2)
	assert.Equal(t, 2, o.Lines[0].Quantity)
	assert.True(t, decimal.RequireFromString("10.00").Equal(o.Lines[0].Price))
	assert.Equal(t, "Singing bowl", o.Lines[1].ProductName)
	assert.Equal(t, 1, f.events.count())
}

func TestConfirmPaymentIsIdempotent(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	p := seedProduct(t, f.db, "Khukuri", "12.00")
	f.gateway.Put(succeededIntent("pi_dup", 1200, nil))
	req := ConfirmRequest{PaymentIntentID: "pi_dup", Items: []Item{{ProductID: p.ID, Quantity: 1}}}

	first, err := f.svc.ConfirmPayment(ctx, auth.Identity{}, req)
	require.NoError(t, err)
	second, err := f.svc.ConfirmPayment(ctx, auth.Identity{}, req)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, int64(1), f.countOrders(t))
	assert.Equal(t, 1, f.events.count())
}

func TestConfirmPaymentConcurrent(t *testing.T) {
	f := newOrderFixture(t)
	p := seedProduct(t, f.db, "Prayer flags", "3.00")
	f.gateway.Put(succeededIntent("pi_race", 300, nil))
	req := ConfirmRequest{PaymentIntentID: "pi_race", Items: []Item{{ProductID: p.ID, Quantity: 1}}}

	const workers = 5
	var wg sync.WaitGroup
	ids := make([]int64, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.ConfirmPayment(context.Background(), auth.Identity{}, req)
			errs[i] = err
			if err == nil {
				ids[i] = res.Order.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, int64(1), f.countOrders(t))
}

func TestConfirmPaymentMissingProductCreatesNothing(t *testing.T) {
	f := newOrderFixture(t)
	p := seedProduct(t, f.db, "Tea", "4.00")
	f.gateway.Put(succeededIntent("pi_missing", 800, nil))

	_, err := f.svc.ConfirmPayment(context.Background(), auth.Identity{}, ConfirmRequest{
		PaymentIntentID: "pi_missing",
		Items:           []Item{{ProductID: p.ID, Quantity: 1}, {ProductID: 9999, Quantity: 1}},
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, int64(0), f.countOrders(t))
	var lines int64
	require.NoError(t, f.db.Table("order_lines").Count(&lines).Error)
	assert.Equal(t, int64(0), lines)
}

func TestConfirmPaymentRejectsUnpaidIntent(t *testing.T) {
	f := newOrderFixture(t)
	p := seedProduct(t, f.db, "Tea", "4.00")
	in := succeededIntent("pi_pending", 0, nil)
	in.Status = payment.StatusRequiresPaymentMethod
	f.gateway.Put(in)

	_, err := f.svc.ConfirmPayment(context.Background(), auth.Identity{}, ConfirmRequest{
		PaymentIntentID: "pi_pending",
		Items:           []Item{{ProductID: p.ID, Quantity: 1}},
	})
	assert.True(t, apperr.Is(err, apperr.KindPayment))
	assert.Equal(t, int64(0), f.countOrders(t))
}

func TestConfirmPaymentAmountMismatch(t *testing.T) {
	f := newOrderFixture(t)
	p := seedProduct(t, f.db, "Tea", "4.00")
	f.gateway.Put(succeededIntent("pi_short", 399, nil))

	_, err := f.svc.ConfirmPayment(context.Background(), auth.Identity{}, ConfirmRequest{
		PaymentIntentID: "pi_short",
		Items:           []Item{{ProductID: p.ID, Quantity: 1}},
	})
	assert.True(t, apperr.Is(err, apperr.KindPayment))
	assert.Equal(t, int64(0), f.countOrders(t))
}

func TestConfirmPaymentGatewayDown(t *testing.T) {
	f := newOrderFixture(t)
	f.gateway.SetError(errors.New("connection refused"))

	_, err := f.svc.ConfirmPayment(context.Background(), auth.Identity{}, ConfirmRequest{PaymentIntentID: "pi_x"})
	assert.True(t, apperr.Is(err, apperr.KindPayment))
}

func TestConfirmPaymentUnknownIntent(t *testing.T) {
	f := newOrderFixture(t)
	_, err := f.svc.ConfirmPayment(context.Background(), auth.Identity{}, ConfirmRequest{PaymentIntentID: "pi_nope"})
	assert.True(t, apperr.Is(err, apperr.KindPayment))
}

func TestConfirmPaymentRequiresIntentID(t *testing.T) {
	f := newOrderFixture(t)
	_, err := f.svc.ConfirmPayment(context.Background(), auth.Identity{}, ConfirmRequest{})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "payment_intent_id", e.Field)
}

func TestConfirmPaymentRejectsForeignIntent(t *testing.T) {
	f := newOrderFixture(t)
	p := seedProduct(t, f.db, "Tea", "4.00")
	f.gateway.Put(succeededIntent("pi_other", 400, map[string]string{metaUserID: "42"}))

	_, err := f.svc.ConfirmPayment(context.Background(), auth.Identity{UserID: 7}, ConfirmRequest{
		PaymentIntentID: "pi_other",
		Items:           []Item{{ProductID: p.ID, Quantity: 1}},
	})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestConfirmPaymentReplayChecksOwner(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	p := seedProduct(t, f.db, "Tea", "4.00")
	f.gateway.Put(succeededIntent("pi_owned", 400, map[string]string{metaUserID: "42"}))
	req := ConfirmRequest{PaymentIntentID: "pi_owned", Items: []Item{{ProductID: p.ID, Quantity: 1}}}

	first, err := f.svc.ConfirmPayment(ctx, auth.Identity{UserID: 42}, req)
	require.NoError(t, err)

	// 订单已存在后，其他用户重放同一支付意图仍然被拒绝
	_, err = f.svc.ConfirmPayment(ctx, auth.Identity{UserID: 7}, req)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	again, err := f.svc.ConfirmPayment(ctx, auth.Identity{UserID: 42}, req)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Order.ID, again.Order.ID)

	viaHook, err := f.svc.ConfirmIntent(ctx, "pi_owned")
	require.NoError(t, err)
	assert.Equal(t, first.Order.ID, viaHook.Order.ID)
	assert.EqualValues(t, 1, f.countOrders(t))
}

func TestOrderQuantityAndTotalLimits(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	cheap := seedProduct(t, f.db, "Pashmina", "10.00")
	dear := seedProduct(t, f.db, "Thangka", "99999999.99")
	total := decimal.RequireFromString("10.00")

	_, err := f.svc.CreateGuestOrder(ctx, GuestOrderRequest{
		Items:      []Item{{ProductID: cheap.ID, Quantity: 18446744073709552}},
		TotalPrice: &total,
		Email:      "guest@example.com",
	})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, e.Kind)
	assert.Equal(t, "items[0].quantity", e.Field)

	_, err = f.svc.CreatePaymentIntent(ctx, auth.Identity{}, nil,
		[]Item{{ProductID: dear.ID, Quantity: 2}}, "")
	e, ok = apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, e.Kind)
	assert.Equal(t, "items", e.Field)

	res, err := f.svc.CreatePaymentIntent(ctx, auth.Identity{}, nil,
		[]Item{{ProductID: cheap.ID, Quantity: 1000}}, "")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("10000").Equal(res.Amount))
	assert.EqualValues(t, 0, f.countOrders(t))
}

func TestPaymentIntentRoundTripThroughWebhook(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	user := auth.Identity{UserID: 5, Username: "sita"}
	a := seedProduct(t, f.db, "Pashmina", "10.00")
	b := seedProduct(t, f.db, "Singing bowl", "5.50")

	_, _, err := f.carts.AddLine(ctx, user, nil, a.ID, 2)
	require.NoError(t, err)
	_, _, err = f.carts.AddLine(ctx, user, nil, b.ID, 1)
	require.NoError(t, err)

	res, err := f.svc.CreatePaymentIntent(ctx, user, nil, nil, "sita@example.com")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("25.50").Equal(res.Amount))
	assert.NotEmpty(t, res.ClientSecret)

	require.True(t, f.gateway.Succeed(res.PaymentIntentID))
	confirmed, err := f.svc.ConfirmIntent(ctx, res.PaymentIntentID)
	require.NoError(t, err)

	o := confirmed.Order
	require.NotNil(t, o.UserID)
	assert.Equal(t, user.UserID, *o.UserID)
	assert.Len(t, o.Lines, 2)
	assert.True(t, decimal.RequireFromString("25.50").Equal(o.TotalPrice))

	view, err := f.carts.Get(ctx, user, nil)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
}

func TestCreatePaymentIntentFromSessionCart(t *testing.T) {
	f := newOrderFixture(t)
	p := seedProduct(t, f.db, "Tea", "4.25")
	sess := cart.SessionCart{p.ID: {Quantity: 2, Price: decimal.RequireFromString("1.00")}}

	res, err := f.svc.CreatePaymentIntent(context.Background(), auth.Identity{}, sess, nil, "")
	require.NoError(t, err)
	// 以当前价格计价，而不是会话里的快照
	assert.True(t, decimal.RequireFromString("8.50").Equal(res.Amount))

	in, err := f.gateway.RetrieveIntent(context.Background(), res.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, int64(850), in.Amount)
	assert.NotContains(t, in.Metadata, metaUserID)
}

func TestCreatePaymentIntentEmptyCart(t *testing.T) {
	f := newOrderFixture(t)
	_, err := f.svc.CreatePaymentIntent(context.Background(), auth.Identity{UserID: 3}, nil, nil, "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestCheckoutCart(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	user := auth.Identity{UserID: 9}
	p := seedProduct(t, f.db, "Thangka", "20.00")
	_, _, err := f.carts.AddLine(ctx, user, nil, p.ID, 3)
	require.NoError(t, err)

	o, err := f.svc.CheckoutCart(ctx, user, 0)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("60.00").Equal(o.TotalPrice))
	assert.Equal(t, order.SourceCart, o.Source)
	require.Len(t, o.Lines, 1)
	assert.Equal(t, 3, o.Lines[0].Quantity)

	var carts int64
	require.NoError(t, f.db.Table("carts").Count(&carts).Error)
	assert.Equal(t, int64(0), carts)

	_, err = f.svc.CheckoutCart(ctx, user, 0)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCheckoutCartEmpty(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	user := auth.Identity{UserID: 9}
	p := seedProduct(t, f.db, "Thangka", "20.00")
	item, _, err := f.carts.AddLine(ctx, user, nil, p.ID, 1)
	require.NoError(t, err)
	_, err = f.carts.RemoveLine(ctx, user, nil, item.ID)
	require.NoError(t, err)

	_, err = f.svc.CheckoutCart(ctx, user, 0)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, int64(0), f.countOrders(t))
}

func TestCheckoutCartRejectsForeignCart(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	p := seedProduct(t, f.db, "Thangka", "20.00")
	_, _, err := f.carts.AddLine(ctx, auth.Identity{UserID: 1}, nil, p.ID, 1)
	require.NoError(t, err)
	view, err := f.carts.Get(ctx, auth.Identity{UserID: 1}, nil)
	require.NoError(t, err)

	_, err = f.svc.CheckoutCart(ctx, auth.Identity{UserID: 2}, view.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.svc.CheckoutCart(ctx, auth.Identity{}, view.ID)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestCreateGuestOrder(t *testing.T) {
	f := newOrderFixture(t)
	p := seedProduct(t, f.db, "Rudraksha", "7.25")
	claimed := decimal.RequireFromString("14.50")

	o, err := f.svc.CreateGuestOrder(context.Background(), GuestOrderRequest{
		Items:      []Item{{ProductID: p.ID, Quantity: 2}},
		TotalPrice: &claimed,
		Email:      "guest@example.com",
	})
	require.NoError(t, err)
	assert.Nil(t, o.UserID)
	assert.Equal(t, "guest@example.com", o.Email)
	assert.Equal(t, order.SourceGuest, o.Source)
	assert.True(t, claimed.Equal(o.TotalPrice))

	var ev OrderPlacedEvent
	require.Equal(t, 1, f.events.count())
	require.NoError(t, json.Unmarshal(f.events.msgs[0].body, &ev))
	assert.Equal(t, o.ID, ev.OrderID)
	assert.Equal(t, "order_placed_queue", f.events.msgs[0].queue)
}

func TestCreateGuestOrderTotalMismatch(t *testing.T) {
	f := newOrderFixture(t)
	p := seedProduct(t, f.db, "Rudraksha", "7.25")
	claimed := decimal.RequireFromString("1.00")

	_, err := f.svc.CreateGuestOrder(context.Background(), GuestOrderRequest{
		Items:      []Item{{ProductID: p.ID, Quantity: 2}},
		TotalPrice: &claimed,
		Email:      "guest@example.com",
	})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, e.Kind)
	assert.Equal(t, "total_price", e.Field)
	assert.Equal(t, int64(0), f.countOrders(t))
}

func TestCreateGuestOrderWithinTolerance(t *testing.T) {
	f := newOrderFixture(t)
	p := seedProduct(t, f.db, "Rudraksha", "7.25")
	claimed := decimal.RequireFromString("14.51")

	o, err := f.svc.CreateGuestOrder(context.Background(), GuestOrderRequest{
		Items:      []Item{{ProductID: p.ID, Quantity: 2}},
		TotalPrice: &claimed,
		Email:      "guest@example.com",
	})
	require.NoError(t, err)
	// 持久化的是重新计算的总价
	assert.True(t, decimal.RequireFromString("14.50").Equal(o.TotalPrice))
}

func TestCreateGuestOrderValidation(t *testing.T) {
	f := newOrderFixture(t)
	total := decimal.RequireFromString("1.00")
	cases := []struct {
		name  string
		req   GuestOrderRequest
		field string
	}{
		{"no items", GuestOrderRequest{TotalPrice: &total, Email: "a@b.c"}, "items"},
		{"no total", GuestOrderRequest{Items: []Item{{ProductID: 1, Quantity: 1}}, Email: "a@b.c"}, "total_price"},
		{"no email", GuestOrderRequest{Items: []Item{{ProductID: 1, Quantity: 1}}, TotalPrice: &total}, "email"},
		{"zero quantity", GuestOrderRequest{Items: []Item{{ProductID: 1, Quantity: 0}}, TotalPrice: &total, Email: "a@b.c"}, "items[0].quantity"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateGuestOrder(context.Background(), tc.req)
			e, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, tc.field, e.Field)
		})
	}
}

func TestEventPublishFailureDoesNotFailOrder(t *testing.T) {
	f := newOrderFixture(t)
	f.events.err = errors.New("broker down")
	p := seedProduct(t, f.db, "Rudraksha", "7.25")
	claimed := decimal.RequireFromString("7.25")

	_, err := f.svc.CreateGuestOrder(context.Background(), GuestOrderRequest{
		Items:      []Item{{ProductID: p.ID, Quantity: 1}},
		TotalPrice: &claimed,
		Email:      "guest@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.countOrders(t))
}

func TestOrderSnapshotSurvivesProductDelete(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	p := seedProduct(t, f.db, "Rudraksha", "7.25")
	claimed := decimal.RequireFromString("7.25")
	o, err := f.svc.CreateGuestOrder(ctx, GuestOrderRequest{
		Items:      []Item{{ProductID: p.ID, Quantity: 1}},
		TotalPrice: &claimed,
		Email:      "guest@example.com",
	})
	require.NoError(t, err)

	require.NoError(t, f.db.Delete(p).Error)

	got, err := f.svc.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, o.ID, got[0].ID)
	require.Len(t, got[0].Lines, 1)
	assert.Equal(t, "Rudraksha", got[0].Lines[0].ProductName)
}

func TestItemsMetadataCodec(t *testing.T) {
	items := []Item{{ProductID: 3, Quantity: 2}, {ProductID: 11, Quantity: 1}}
	raw := encodeItems(items)
	assert.Equal(t, "3:2,11:1", raw)

	got, err := decodeItems(raw)
	require.NoError(t, err)
	assert.Equal(t, items, got)

	_, err = decodeItems("3-2")
	assert.Error(t, err)
}
