package pharos

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Defaults for the Pharos AMS MIS download endpoint.
const (
	DefaultBaseURL      = "https://ams.pharos-ei.com/api/v2/isone/mis/downloads.csv"
	DefaultOrganization = "ho-fl"
)

const queryDate = "2006-01-02"

// BuildURL returns the download URL for a report between since (inclusive)
// and before (exclusive). Parameter order is fixed.
func BuildURL(base, org string, since, before time.Time, mostRecent bool, report string) string {
	return fmt.Sprintf("%s?organization_key=%s&settle_since=%s&settle_before=%s&most_recent_version=%s&report_name=%s",
		base,
		url.QueryEscape(org),
		since.Format(queryDate),
		before.Format(queryDate),
		strconv.FormatBool(mostRecent),
		url.QueryEscape(report),
	)
}
