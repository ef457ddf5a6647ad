package application

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/AzielCF/az-bulk/bulkmessage/domain/job"
	"github.com/AzielCF/az-bulk/pkg/timeutils"
)

var placeholderPattern = regexp.MustCompile(`(?i)\{(name|phone|date|time)\}`)

// Renderer fills {name}, {phone}, {date} and {time} into message templates.
// Placeholders match case-insensitively; anything else in braces is kept verbatim.
type Renderer struct {
	DateLayout string
	TimeLayout string

	defaultLoc *time.Location
	locations  sync.Map // tz name -> *time.Location
}

func NewRenderer(dateLayout, timeLayout string, defaultLoc *time.Location) *Renderer {
	if dateLayout == "" {
		dateLayout = "02/01/2006"
	}
	if timeLayout == "" {
		timeLayout = "15:04"
	}
	if defaultLoc == nil {
		defaultLoc = time.UTC
	}
	return &Renderer{DateLayout: dateLayout, TimeLayout: timeLayout, defaultLoc: defaultLoc}
}

// Render substitutes in a single pass, so values are never re-scanned for placeholders.
func (r *Renderer) Render(template string, recipient job.Recipient, at time.Time) string {
	if !strings.ContainsRune(template, '{') {
		return template
	}
	return placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		switch strings.ToLower(token[1 : len(token)-1]) {
		case "name":
			return recipient.Name
		case "phone":
			return recipient.Phone
		case "date":
			return at.Format(r.DateLayout)
		case "time":
			return at.Format(r.TimeLayout)
		}
		return token
	})
}

// RenderForJob renders with the clock shifted into the job's timezone.
func (r *Renderer) RenderForJob(j *job.ScheduledJob, recipient job.Recipient, now time.Time) string {
	return r.Render(j.Template, recipient, now.In(r.Location(j.Timezone)))
}

// Location resolves and caches the IANA zone used for a job.
func (r *Renderer) Location(tz string) *time.Location {
	if tz == "" {
		return r.defaultLoc
	}
	if loc, ok := r.locations.Load(tz); ok {
		return loc.(*time.Location)
	}
	loc := timeutils.LoadLocation(tz)
	r.locations.Store(tz, loc)
	return loc
}
