package azure

import (
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout = "2006-01-02"

	// The end bound sits two days ahead of now to absorb clock skew between
	// this host and the provider.
	endSkew = 2 * 24 * time.Hour
)

// TimeWindow is an inclusive calendar-date range.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// NewTimeWindow returns [now-days, now+2d].
func NewTimeWindow(now time.Time, days int) TimeWindow {
	return TimeWindow{
		Start: now.AddDate(0, 0, -days),
		End:   now.Add(endSkew),
	}
}

// StartDate and EndDate are the ISO calendar dates sent to the API.
func (w TimeWindow) StartDate() string { return w.Start.Format(dateLayout) }
func (w TimeWindow) EndDate() string   { return w.End.Format(dateLayout) }

// Filter describes the server-side $filter expression.
type Filter struct {
	Window           TimeWindow
	EventChannels    string // e.g. "Admin,Operation"
	ResourceProvider string // optional, e.g. "Microsoft.Authorization"
}

// String renders the OData expression.
func (f Filter) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "eventTimestamp ge %s and eventTimestamp le %s", f.Window.StartDate(), f.Window.EndDate())
	if f.EventChannels != "" {
		fmt.Fprintf(&b, " and eventChannels eq '%s'", f.EventChannels)
	}
	if f.ResourceProvider != "" {
		fmt.Fprintf(&b, " and resourceProvider eq '%s'", f.ResourceProvider)
	}
	return b.String()
}
