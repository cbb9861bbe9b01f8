package httptransport

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ambrosia-pos-gateway/internal/domain/reports"
	"ambrosia-pos-gateway/internal/platform/logging"
)

// DailyReporter builds daily summaries. *reports.Service implements it.
type DailyReporter interface {
	ParseRange(start, end string) (time.Time, time.Time, error)
	Location() *time.Location
	Daily(ctx context.Context, start, end time.Time) (*reports.Summary, error)
}

type ReportsHandler struct {
	reports DailyReporter
	store   SessionStore
	cookies CookiePolicy
	logger  *logging.Logger
	now     func() time.Time
}

func NewReportsHandler(r DailyReporter, store SessionStore, cookies CookiePolicy, logger *logging.Logger) *ReportsHandler {
	return &ReportsHandler{reports: r, store: store, cookies: cookies, logger: logger, now: time.Now}
}

func (h *ReportsHandler) RegisterRoutes(router *Router) {
	router.Gateway.GET("/reports/daily", h.Daily)
}

// Daily serves ?start=YYYY-MM-DD&end=YYYY-MM-DD. Both default to today in the
// report location.
func (h *ReportsHandler) Daily(c *gin.Context) {
	if SessionKey(c) == "" {
		RespondError(c, http.StatusUnauthorized, "not signed in", nil)
		return
	}

	today := h.now().In(h.reports.Location()).Format(reports.QueryLayout)
	start := c.DefaultQuery("start", today)
	end := c.DefaultQuery("end", start)

	from, to, err := h.reports.ParseRange(start, end)
	if err != nil {
		RespondError(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	summary, err := h.reports.Daily(c.Request.Context(), from, to)
	if err != nil {
		h.logger.ErrorTag("REPORTS", "daily %s..%s: %v", start, end, err)
		RespondError(c, http.StatusBadGateway, "report could not be built", gin.H{"error": err.Error()})
		return
	}

	syncTokens(c, h.store, h.cookies)
	RespondSuccess(c, http.StatusOK, summary, "")
}
