// Package reports aggregates tickets into per-day sales summaries.
package reports

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"ambrosia-pos-gateway/internal/domain/backend"
	"ambrosia-pos-gateway/internal/platform/errors"
	"ambrosia-pos-gateway/internal/platform/logging"
	"ambrosia-pos-gateway/internal/platform/observability"
)

const (
	DateLayout    = "02/01/2006"
	QueryLayout   = "2006-01-02"
	UnknownWaiter = "Unknown"
)

// Policy decides what happens to a ticket whose payment cannot be joined.
type Policy string

const (
	// PolicyFail aborts the whole report.
	PolicyFail Policy = "fail"
	// PolicySkip drops the ticket and logs a warning.
	PolicySkip Policy = "skip"
)

// Source is the subset of the backend the aggregator reads.
type Source interface {
	Tickets(ctx context.Context) ([]backend.Ticket, error)
	Orders(ctx context.Context) ([]backend.Order, error)
	Payments(ctx context.Context) ([]backend.Payment, error)
	PaymentMethods(ctx context.Context) ([]backend.PaymentMethod, error)
	Users(ctx context.Context) ([]backend.User, error)
}

type TicketLine struct {
	TicketID      string    `json:"ticketId"`
	Waiter        string    `json:"waiter"`
	PaymentMethod string    `json:"paymentMethod"`
	Amount        float64   `json:"amount"`
	Time          time.Time `json:"time"`
}

type DayReport struct {
	Date    string       `json:"date"`
	Balance float64      `json:"balance"`
	Tickets []TicketLine `json:"tickets"`

	day time.Time
}

type Summary struct {
	TotalBalance float64     `json:"totalBalance"`
	Reports      []DayReport `json:"reports"`
}

// JoinError reports a ticket whose payment or payment method is missing.
type JoinError struct {
	TicketID string
	Missing  string
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("ticket %s: %s not found", e.TicketID, e.Missing)
}

type Options struct {
	Location *time.Location
	Policy   Policy
}

type Service struct {
	source Source
	loc    *time.Location
	policy Policy
	logger *logging.Logger
}

func NewService(source Source, opts Options, logger *logging.Logger) *Service {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	policy := opts.Policy
	if policy != PolicySkip {
		policy = PolicyFail
	}
	return &Service{source: source, loc: loc, policy: policy, logger: logger}
}

// Location is the zone days are cut in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// ParseRange reads two YYYY-MM-DD dates in the service's location.
func (s *Service) ParseRange(start, end string) (time.Time, time.Time, error) {
	from, err := time.ParseInLocation(QueryLayout, start, s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrap(errors.KindReport, "reports.parse_range", "invalid start date", err)
	}
	to, err := time.ParseInLocation(QueryLayout, end, s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrap(errors.KindReport, "reports.parse_range", "invalid end date", err)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.New(errors.KindReport, "reports.parse_range", "end date before start date")
	}
	return from, to, nil
}

// Window returns [start of start's day, end of end's day] in the service's
// location, the end being 23:59:59.999.
func (s *Service) Window(start, end time.Time) (time.Time, time.Time) {
	start = start.In(s.loc)
	end = end.In(s.loc)
	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, s.loc)
	to := time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, int(999*time.Millisecond), s.loc)
	return from, to
}

type dataset struct {
	tickets  []backend.Ticket
	orders   []backend.Order
	payments []backend.Payment
	methods  []backend.PaymentMethod
	users    []backend.User
}

// Daily builds the summary for the inclusive day range [start, end].
func (s *Service) Daily(ctx context.Context, start, end time.Time) (summary *Summary, err error) {
	ctx, finish := observability.StartSpan(ctx, "reports", "daily")
	defer func() { finish(err) }()

	data, err := s.fetch(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.KindReport, "reports.daily", "fetch report data", err)
	}

	from, to := s.Window(start, end)
	summary, err = s.aggregate(data, from, to)
	if err != nil {
		return nil, errors.Wrap(errors.KindReport, "reports.daily", "aggregate tickets", err)
	}
	return summary, nil
}

func (s *Service) fetch(ctx context.Context) (*dataset, error) {
	var d dataset
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { d.tickets, err = s.source.Tickets(gctx); return })
	g.Go(func() (err error) { d.orders, err = s.source.Orders(gctx); return })
	g.Go(func() (err error) { d.payments, err = s.source.Payments(gctx); return })
	g.Go(func() (err error) { d.methods, err = s.source.PaymentMethods(gctx); return })
	g.Go(func() error {
		users, err := s.source.Users(gctx)
		if err != nil {
			// only a fallback for waiter names
			s.logger.WarnTag("REPORTS", "users unavailable, waiter names may be missing: %v", err)
			return nil
		}
		d.users = users
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Service) aggregate(d *dataset, from, to time.Time) (*Summary, error) {
	orders := make(map[string]backend.Order, len(d.orders))
	for _, o := range d.orders {
		orders[o.ID] = o
	}
	users := make(map[string]string, len(d.users))
	for _, u := range d.users {
		users[u.ID] = u.Name
	}
	payments := make(map[string]backend.Payment, len(d.payments))
	for _, p := range d.payments {
		payments[p.TicketID] = p
	}
	methods := make(map[string]string, len(d.methods))
	for _, m := range d.methods {
		methods[m.ID] = m.Name
	}

	days := map[string]*DayReport{}
	for _, t := range d.tickets {
		at := t.CreatedAt.In(s.loc)
		if at.Before(from) || at.After(to) {
			continue
		}

		method, err := methodFor(t, payments, methods)
		if err != nil {
			if s.policy == PolicySkip {
				s.logger.WarnTag("REPORTS", "skipping ticket: %v", err)
				continue
			}
			return nil, err
		}

		key := at.Format(DateLayout)
		day, ok := days[key]
		if !ok {
			day = &DayReport{
				Date:    key,
				Tickets: []TicketLine{},
				day:     time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, s.loc),
			}
			days[key] = day
		}
		day.Balance += t.Amount
		day.Tickets = append(day.Tickets, TicketLine{
			TicketID:      t.ID,
			Waiter:        waiterFor(t, orders, users),
			PaymentMethod: method,
			Amount:        t.Amount,
			Time:          at,
		})
	}

	summary := &Summary{Reports: make([]DayReport, 0, len(days))}
	for _, day := range days {
		summary.Reports = append(summary.Reports, *day)
	}
	sort.Slice(summary.Reports, func(i, j int) bool {
		return summary.Reports[i].day.Before(summary.Reports[j].day)
	})
	for _, day := range summary.Reports {
		summary.TotalBalance += day.Balance
	}
	return summary, nil
}

func waiterFor(t backend.Ticket, orders map[string]backend.Order, users map[string]string) string {
	order, ok := orders[t.OrderID]
	if !ok {
		return UnknownWaiter
	}
	if order.Waiter != "" {
		return order.Waiter
	}
	if name := users[order.UserID]; name != "" {
		return name
	}
	return UnknownWaiter
}

func methodFor(t backend.Ticket, payments map[string]backend.Payment, methods map[string]string) (string, error) {
	payment, ok := payments[t.ID]
	if !ok {
		return "", &JoinError{TicketID: t.ID, Missing: "payment"}
	}
	name, ok := methods[payment.MethodID]
	if !ok {
		return "", &JoinError{TicketID: t.ID, Missing: "payment method " + payment.MethodID}
	}
	return name, nil
}
