package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dansestudio/internal/cart"
	"github.com/noah-isme/dansestudio/internal/common"
	"github.com/noah-isme/dansestudio/internal/lock"
	"github.com/noah-isme/dansestudio/internal/notify"
	"github.com/noah-isme/dansestudio/internal/payment"
	"github.com/noah-isme/dansestudio/internal/pricing"
)

type catalogStub []pricing.Package

func (c catalogStub) Packages(context.Context) ([]pricing.Package, error) { return c, nil }

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Confirmation
	err  error
}

func (n *recordingNotifier) EnqueueConfirmation(_ context.Context, c notify.Confirmation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, c)
	return nil
}

type failingGateway struct{ err error }

func (failingGateway) Name() string { return "failing" }

func (g failingGateway) CreateIntent(context.Context, payment.IntentRequest) (payment.IntentResponse, error) {
	return payment.IntentResponse{}, g.err
}

var fixedNow = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func newRegistry() *cart.Registry {
	return &cart.Registry{
		Store: cart.NewMemoryStore(),
		Catalog: catalogStub{
			{ID: "pkg-1", Name: "1 klasse per uke", Price: 170_000, Active: true, SortOrder: 1},
			{ID: "pkg-2", Name: "2 klasser per uke", Price: 300_000, Active: true, SortOrder: 2},
		},
		Engine: pricing.NewEngine(pricing.DefaultRates(), zerolog.Nop()),
		TTL:    30 * time.Minute,
		Now:    func() time.Time { return fixedNow },
		Logger: zerolog.Nop(),
	}
}

func newService(gw payment.Gateway, n Notifier) *Service {
	seq := 0
	return &Service{
		Carts:    newRegistry(),
		Orders:   NewMemoryOrderStore(),
		Gateway:  gw,
		Notifier: n,
		Now:      func() time.Time { return fixedNow },
		NewID: func() string {
			seq++
			return fmt.Sprintf("order-%d", seq)
		},
		Logger: zerolog.Nop(),
	}
}

func jazz() []pricing.Course {
	return []pricing.Course{{ID: "jazz", Name: "Jazz", AgeRange: "8+ år"}}
}

func fillCart(t *testing.T, s *Service, cartID string, drafts ...cart.Draft) {
	t.Helper()
	err := s.Carts.WithCart(context.Background(), cartID, func(ctx context.Context, svc *cart.Service) error {
		for _, d := range drafts {
			if _, err := svc.Add(ctx, d); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func cartLen(t *testing.T, s *Service, cartID string) int {
	t.Helper()
	var n int
	require.NoError(t, s.Carts.WithCart(context.Background(), cartID, func(_ context.Context, svc *cart.Service) error {
		n = svc.Len()
		return nil
	}))
	return n
}

func guardian() payment.Customer {
	return payment.Customer{Name: "Ingrid Hansen", Email: "ingrid@example.no", Phone: "+4790000000"}
}

func TestCheckoutCreatesOrderAndClearsCart(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := newService(payment.MockGateway{BaseURL: "https://studio.example"}, notifier)
	fillCart(t, svc, "cart-1",
		cart.Draft{FirstName: "Ola", LastName: "Hansen", Age: 10, Courses: jazz()},
		cart.Draft{FirstName: "Kari", LastName: "Hansen", Age: 12, Courses: jazz()},
	)

	res, err := svc.Checkout(context.Background(), "cart-1", guardian())
	require.NoError(t, err)
	require.Equal(t, "order-1", res.OrderID)
	// second dancer gets 15% off a single course package
	require.Equal(t, int64(170_000+144_500), res.Amount)
	require.Equal(t, int64(25_500), res.Discount)
	require.Equal(t, "MOCK-order-1", res.ExternalOrderID)
	require.Contains(t, res.RedirectURL, "https://studio.example/mock-payment?")

	order, err := svc.Orders.Get(context.Background(), "order-1")
	require.NoError(t, err)
	require.Equal(t, StatusPaymentStarted, order.Status)
	require.Equal(t, "mock", order.Gateway)
	require.Len(t, order.Lines, 2)
	require.Equal(t, "Kari Hansen", order.Lines[1].Student)
	require.Equal(t, int64(144_500), order.Lines[1].Total)

	require.Zero(t, cartLen(t, svc, "cart-1"))

	require.Len(t, notifier.sent, 1)
	conf := notifier.sent[0]
	require.Equal(t, "order-1", conf.OrderID)
	require.Equal(t, "ingrid@example.no", conf.Email)
	require.Len(t, conf.Students, 2)
	require.Equal(t, []string{"Jazz"}, conf.Students[0].Courses)
}

func TestCheckoutRejectsInvalidCustomer(t *testing.T) {
	svc := newService(payment.MockGateway{}, nil)
	fillCart(t, svc, "cart-1", cart.Draft{FirstName: "Ola", LastName: "Hansen", Age: 10, Courses: jazz()})

	_, err := svc.Checkout(context.Background(), "cart-1", payment.Customer{Name: " ", Email: "not-an-email"})
	require.ErrorIs(t, err, ErrInvalidCustomer)
	require.Contains(t, err.Error(), "name")
	require.Contains(t, err.Error(), "email")
	require.Equal(t, 1, cartLen(t, svc, "cart-1"))
}

func TestCheckoutRejectsEmptyCart(t *testing.T) {
	svc := newService(payment.MockGateway{}, nil)

	_, err := svc.Checkout(context.Background(), "cart-empty", guardian())
	var verr *cart.ValidationError
	require.ErrorAs(t, err, &verr)
	require.NotEmpty(t, verr.Messages)
}

func TestCheckoutRejectsUnpricedLine(t *testing.T) {
	svc := newService(payment.MockGateway{}, nil)
	svc.Carts.Catalog = catalogStub{}
	fillCart(t, svc, "cart-1", cart.Draft{FirstName: "Ola", LastName: "Hansen", Age: 10, Courses: jazz()})

	_, err := svc.Checkout(context.Background(), "cart-1", guardian())
	require.ErrorIs(t, err, ErrNothingToPay)
	require.Equal(t, 1, cartLen(t, svc, "cart-1"))
}

func TestCheckoutMarksOrderFailedWhenGatewayFails(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := newService(failingGateway{err: payment.ErrGatewayUnavailable}, notifier)
	fillCart(t, svc, "cart-1", cart.Draft{FirstName: "Ola", LastName: "Hansen", Age: 10, Courses: jazz()})

	_, err := svc.Checkout(context.Background(), "cart-1", guardian())
	require.ErrorIs(t, err, payment.ErrGatewayUnavailable)

	order, getErr := svc.Orders.Get(context.Background(), "order-1")
	require.NoError(t, getErr)
	require.Equal(t, StatusPaymentFailed, order.Status)
	require.NotEmpty(t, order.FailureReason)

	require.Equal(t, 1, cartLen(t, svc, "cart-1"))
	require.Empty(t, notifier.sent)
}

func TestCheckoutSucceedsWhenNotifierFails(t *testing.T) {
	svc := newService(payment.MockGateway{}, &recordingNotifier{err: errors.New("queue down")})
	fillCart(t, svc, "cart-1", cart.Draft{FirstName: "Ola", LastName: "Hansen", Age: 10, Courses: jazz()})

	res, err := svc.Checkout(context.Background(), "cart-1", guardian())
	require.NoError(t, err)
	require.Equal(t, int64(170_000), res.Amount)
}

func TestCheckoutDropsExpiredItemsBeforePricing(t *testing.T) {
	svc := newService(payment.MockGateway{}, nil)
	fillCart(t, svc, "cart-1", cart.Draft{FirstName: "Ola", LastName: "Hansen", Age: 10, Courses: jazz()})
	later := fixedNow.Add(31 * time.Minute)
	svc.Carts.Now = func() time.Time { return later }

	_, err := svc.Checkout(context.Background(), "cart-1", guardian())
	var verr *cart.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = svc.Orders.Get(context.Background(), "order-1")
	require.ErrorIs(t, err, ErrOrderNotFound)
}

// blockingGateway holds CreateIntent open until release is closed.
type blockingGateway struct {
	entered chan struct{}
	release chan struct{}
}

func newBlockingGateway() *blockingGateway {
	return &blockingGateway{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *blockingGateway) Name() string { return "mock" }

func (g *blockingGateway) CreateIntent(ctx context.Context, req payment.IntentRequest) (payment.IntentResponse, error) {
	close(g.entered)
	<-g.release
	return payment.MockGateway{BaseURL: "https://studio.example"}.CreateIntent(ctx, req)
}

// sharedRegistries returns two registries standing in for two API instances
// that share one Redis for cart snapshots and locks.
func sharedRegistries(t *testing.T, locker lock.Locker) (*cart.Registry, *cart.Registry) {
	t.Helper()
	store := cart.NewRedisStore(locker.R, "cart:", time.Hour)
	a, b := newRegistry(), newRegistry()
	for _, reg := range []*cart.Registry{a, b} {
		reg.Store = store
		reg.Locker = locker
		reg.LockTTL = 10 * time.Second
	}
	return a, b
}

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestCheckoutKeepsItemsAddedAfterItsLockExpired(t *testing.T) {
	client, mr := newRedis(t)
	locker := lock.Locker{R: client, RetryBackoff: 2 * time.Millisecond, Logger: zerolog.Nop()}
	regA, regB := sharedRegistries(t, locker)

	gw := newBlockingGateway()
	svc := newService(gw, nil)
	svc.Carts = regA
	fillCart(t, svc, "cart-1", cart.Draft{FirstName: "Ola", LastName: "Hansen", Age: 10, Courses: jazz()})

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := svc.Checkout(context.Background(), "cart-1", guardian())
		done <- outcome{res, err}
	}()
	<-gw.entered

	mr.FastForward(11 * time.Second)
	err := regB.WithCart(context.Background(), "cart-1", func(ctx context.Context, c *cart.Service) error {
		_, err := c.Add(ctx, cart.Draft{FirstName: "Kari", LastName: "Berg", Age: 12, Courses: jazz()})
		return err
	})
	require.NoError(t, err)

	close(gw.release)
	got := <-done
	require.NoError(t, got.err)
	require.Equal(t, int64(170_000), got.res.Amount)

	var left []cart.Item
	require.NoError(t, regB.WithCart(context.Background(), "cart-1", func(_ context.Context, c *cart.Service) error {
		left = c.Items()
		return nil
	}))
	require.Len(t, left, 1)
	require.Equal(t, "Kari Berg", left[0].FullName())
}

func TestCheckoutHoldsCartLockPastLockTTL(t *testing.T) {
	client, mr := newRedis(t)
	locker := lock.Locker{R: client, RetryBackoff: 2 * time.Millisecond, RenewEvery: 5 * time.Millisecond, Logger: zerolog.Nop()}
	regA, regB := sharedRegistries(t, locker)
	impatient := locker
	impatient.MaxWait = 20 * time.Millisecond
	regB.Locker = impatient

	gw := newBlockingGateway()
	svc := newService(gw, nil)
	svc.Carts = regA
	fillCart(t, svc, "cart-1", cart.Draft{FirstName: "Ola", LastName: "Hansen", Age: 10, Courses: jazz()})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Checkout(context.Background(), "cart-1", guardian())
		done <- err
	}()
	<-gw.entered

	mr.FastForward(6 * time.Second)
	require.Eventually(t, func() bool {
		return mr.TTL("lock:cart:cart-1") > 6*time.Second
	}, time.Second, 5*time.Millisecond)
	mr.FastForward(6 * time.Second)
	require.True(t, mr.Exists("lock:cart:cart-1"))

	err := regB.WithCart(context.Background(), "cart-1", func(ctx context.Context, c *cart.Service) error {
		_, err := c.Add(ctx, cart.Draft{FirstName: "Kari", LastName: "Berg", Age: 12, Courses: jazz()})
		return err
	})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "CART_BUSY", appErr.Code)

	close(gw.release)
	require.NoError(t, <-done)
	require.Zero(t, cartLen(t, svc, "cart-1"))
}
