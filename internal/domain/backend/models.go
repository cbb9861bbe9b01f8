package backend

import (
	"bytes"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
)

// SetupStatus is the body of GET /initial-setup.
type SetupStatus struct {
	Initialized       bool `json:"initialized"`
	NeedsBusinessType bool `json:"needsBusinessType"`
}

// Incomplete reports whether onboarding still has work to do.
func (s SetupStatus) Incomplete() bool {
	return !s.Initialized || s.NeedsBusinessType
}

type Ticket struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Amount    float64   `json:"amount"`
	CreatedAt Timestamp `json:"created_at"`
}

type Order struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Waiter string `json:"waiter"`
	Status string `json:"status"`
	Table  string `json:"table_id,omitempty"`
}

type Payment struct {
	ID       string  `json:"id"`
	TicketID string  `json:"ticket_id"`
	MethodID string  `json:"method_id"`
	Amount   float64 `json:"amount"`
}

type PaymentMethod struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

type Product struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	SKU   string  `json:"sku,omitempty"`
}

type Shift struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	OpenedAt Timestamp `json:"opened_at"`
}

// Timestamp accepts RFC 3339 strings, "2006-01-02 15:04:05" local strings and
// epoch milliseconds.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if data[0] != '"' {
		ms, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(string(data), 64)
			if ferr != nil {
				return err
			}
			ms = int64(f)
		}
		t.Time = time.UnixMilli(ms)
		return nil
	}

	var s string
	if err := sonic.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		var (
			parsed time.Time
			err    error
		)
		if layout == time.RFC3339Nano {
			parsed, err = time.Parse(layout, s)
		} else {
			parsed, err = time.ParseInLocation(layout, s, time.Local)
		}
		if err == nil {
			t.Time = parsed
			return nil
		}
	}
	return &time.ParseError{Layout: time.RFC3339, Value: s, Message: ": unsupported timestamp"}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(t.Format(time.RFC3339Nano))), nil
}
