package reports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ambrosia-pos-gateway/internal/domain/backend"
	platformerrors "ambrosia-pos-gateway/internal/platform/errors"
)

type fakeSource struct {
	tickets  []backend.Ticket
	orders   []backend.Order
	payments []backend.Payment
	methods  []backend.PaymentMethod
	users    []backend.User
	err      error
	usersErr error
}

func (f *fakeSource) Tickets(context.Context) ([]backend.Ticket, error) { return f.tickets, f.err }
func (f *fakeSource) Orders(context.Context) ([]backend.Order, error)   { return f.orders, nil }
func (f *fakeSource) Payments(context.Context) ([]backend.Payment, error) {
	return f.payments, nil
}
func (f *fakeSource) PaymentMethods(context.Context) ([]backend.PaymentMethod, error) {
	return f.methods, nil
}
func (f *fakeSource) Users(context.Context) ([]backend.User, error) { return f.users, f.usersErr }

var utc = time.UTC

func at(y int, m time.Month, d, h, min int) backend.Timestamp {
	return backend.Timestamp{Time: time.Date(y, m, d, h, min, 0, 0, utc)}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, utc)
}

func sampleSource() *fakeSource {
	return &fakeSource{
		tickets: []backend.Ticket{
			{ID: "t1", OrderID: "o1", Amount: 10, CreatedAt: at(2026, 3, 2, 9, 30)},
			{ID: "t2", OrderID: "o2", Amount: 15.5, CreatedAt: at(2026, 3, 2, 21, 0)},
			{ID: "t3", OrderID: "o3", Amount: 7, CreatedAt: at(2026, 3, 1, 12, 0)},
			{ID: "t4", OrderID: "o1", Amount: 100, CreatedAt: at(2026, 3, 5, 12, 0)},
		},
		orders: []backend.Order{
			{ID: "o1", Waiter: "Ana"},
			{ID: "o2", UserID: "u2"},
			{ID: "o3"},
		},
		users: []backend.User{{ID: "u2", Name: "Luis"}},
		payments: []backend.Payment{
			{ID: "p1", TicketID: "t1", MethodID: "cash"},
			{ID: "p2", TicketID: "t2", MethodID: "card"},
			{ID: "p3", TicketID: "t3", MethodID: "cash"},
			{ID: "p4", TicketID: "t4", MethodID: "card"},
		},
		methods: []backend.PaymentMethod{{ID: "cash", Name: "Cash"}, {ID: "card", Name: "Card"}},
	}
}

func TestDailyEmptyRange(t *testing.T) {
	svc := NewService(sampleSource(), Options{Location: utc}, nil)

	got, err := svc.Daily(context.Background(), day(2025, 1, 1), day(2025, 1, 31))
	require.NoError(t, err)
	assert.Zero(t, got.TotalBalance)
	assert.NotNil(t, got.Reports)
	assert.Empty(t, got.Reports)
}

func TestDailySameDaySums(t *testing.T) {
	svc := NewService(sampleSource(), Options{Location: utc}, nil)

	got, err := svc.Daily(context.Background(), day(2026, 3, 2), day(2026, 3, 2))
	require.NoError(t, err)
	require.Len(t, got.Reports, 1)
	assert.Equal(t, "02/03/2026", got.Reports[0].Date)
	assert.Equal(t, 25.5, got.Reports[0].Balance)
	assert.Len(t, got.Reports[0].Tickets, 2)
	assert.Equal(t, 25.5, got.TotalBalance)
}

func TestDailyJoinsAndOrdersDays(t *testing.T) {
	svc := NewService(sampleSource(), Options{Location: utc}, nil)

	got, err := svc.Daily(context.Background(), day(2026, 3, 1), day(2026, 3, 31))
	require.NoError(t, err)
	require.Len(t, got.Reports, 3)

	dates := []string{got.Reports[0].Date, got.Reports[1].Date, got.Reports[2].Date}
	assert.Equal(t, []string{"01/03/2026", "02/03/2026", "05/03/2026"}, dates)
	assert.Equal(t, 132.5, got.TotalBalance)

	first := got.Reports[0].Tickets[0]
	assert.Equal(t, UnknownWaiter, first.Waiter)
	assert.Equal(t, "Cash", first.PaymentMethod)

	second := got.Reports[1].Tickets
	assert.Equal(t, "Ana", second[0].Waiter)
	assert.Equal(t, "Luis", second[1].Waiter)
	assert.Equal(t, "Card", second[1].PaymentMethod)
}

func TestDailyWindowIncludesEndOfDay(t *testing.T) {
	src := sampleSource()
	src.tickets = []backend.Ticket{
		{ID: "t1", OrderID: "o1", Amount: 1, CreatedAt: backend.Timestamp{Time: time.Date(2026, 3, 2, 23, 59, 59, int(998*time.Millisecond), utc)}},
		{ID: "t2", OrderID: "o1", Amount: 1, CreatedAt: backend.Timestamp{Time: time.Date(2026, 3, 3, 0, 0, 0, 0, utc)}},
	}
	svc := NewService(src, Options{Location: utc}, nil)

	got, err := svc.Daily(context.Background(), day(2026, 3, 2), day(2026, 3, 2))
	require.NoError(t, err)
	require.Len(t, got.Reports, 1)
	assert.Len(t, got.Reports[0].Tickets, 1)
}

func TestDailyLocalDayBoundaries(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	src := sampleSource()
	// 02:00 UTC on the 3rd is 21:00 on the 2nd in UTC-5
	src.tickets = []backend.Ticket{{ID: "t1", OrderID: "o1", Amount: 4, CreatedAt: at(2026, 3, 3, 2, 0)}}
	svc := NewService(src, Options{Location: loc}, nil)

	from, to, err := svc.ParseRange("2026-03-02", "2026-03-02")
	require.NoError(t, err)
	got, err := svc.Daily(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, got.Reports, 1)
	assert.Equal(t, "02/03/2026", got.Reports[0].Date)
}

func TestDailyMissingPaymentFails(t *testing.T) {
	src := sampleSource()
	src.payments = src.payments[1:]
	svc := NewService(src, Options{Location: utc}, nil)

	_, err := svc.Daily(context.Background(), day(2026, 3, 1), day(2026, 3, 31))
	require.Error(t, err)
	var join *JoinError
	require.ErrorAs(t, err, &join)
	assert.Equal(t, "t1", join.TicketID)
	assert.Equal(t, platformerrors.KindReport, platformerrors.KindOf(err))
}

func TestDailyMissingPaymentSkip(t *testing.T) {
	src := sampleSource()
	src.payments = src.payments[1:]
	svc := NewService(src, Options{Location: utc, Policy: PolicySkip}, nil)

	got, err := svc.Daily(context.Background(), day(2026, 3, 2), day(2026, 3, 2))
	require.NoError(t, err)
	require.Len(t, got.Reports, 1)
	assert.Equal(t, 15.5, got.TotalBalance)
}

func TestDailyFetchFailure(t *testing.T) {
	src := sampleSource()
	src.err = errors.New("backend down")
	_, err := NewService(src, Options{Location: utc}, nil).Daily(context.Background(), day(2026, 3, 1), day(2026, 3, 2))
	assert.ErrorContains(t, err, "backend down")
}

func TestDailyUsersOptional(t *testing.T) {
	src := sampleSource()
	src.usersErr = errors.New("forbidden")
	got, err := NewService(src, Options{Location: utc}, nil).Daily(context.Background(), day(2026, 3, 2), day(2026, 3, 2))
	require.NoError(t, err)
	assert.Equal(t, UnknownWaiter, got.Reports[0].Tickets[1].Waiter)
}

func TestParseRange(t *testing.T) {
	svc := NewService(&fakeSource{}, Options{Location: utc}, nil)

	_, _, err := svc.ParseRange("2026-03-05", "2026-03-01")
	assert.Error(t, err)
	_, _, err = svc.ParseRange("05/03/2026", "2026-03-06")
	assert.Error(t, err)
}
