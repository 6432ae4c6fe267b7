package enrich

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/veritasgrid/triagecore/pkg/resilience"
)

// WhoisTimeout is the strict time budget for the synchronous WHOIS
// lookup. The lookup stays on the enrichment path rather than moving to
// an async backfill; the budget plus the breaker below bound what a slow
// registrar can cost the consumer loop.
const WhoisTimeout = 2 * time.Second

const whoisServer = "whois.iana.org:43"

// whoisBreaker guards the WHOIS dependency process-wide. Once
// whois.iana.org is failing repeatedly, tripping open skips the
// dial/write/read round trip entirely instead of paying WhoisTimeout on
// every enrichment until the server recovers. OnTrip logs the transition
// since a run of empty WhoisData otherwise looks identical to a domain that
// simply has no public registration record.
var whoisBreaker = resilience.NewBreaker(resilience.BreakerOpts{
	FailThreshold: 5,
	Timeout:       30 * time.Second,
	OnTrip: func() {
		slog.Default().Warn("enrich: whois circuit breaker tripped open", "server", whoisServer)
	},
})

var (
	whoisCreationRe = regexp.MustCompile(`(?i)(creation date|created on|created):\s*(.+)`)
	whoisRegistrarRe = regexp.MustCompile(`(?i)registrar:\s*(.+)`)
	whoisCountryRe   = regexp.MustCompile(`(?i)registrant country:\s*(.+)`)
	whoisOrgRe       = regexp.MustCompile(`(?i)registrant organization:\s*(.+)`)
)

// WhoisData holds the subset of WHOIS fields the heuristic score cares
// about. Failures are tolerated throughout: an empty map is a valid result,
// never an error that aborts enrichment.
type WhoisData struct {
	CreationDate string
	Registrar    string
	Country      string
	Org          string
}

// ToMap renders the struct for persistence into CrawledItem.WhoisData.
func (w WhoisData) ToMap() map[string]string {
	m := map[string]string{}
	if w.CreationDate != "" {
		m["creation_date"] = w.CreationDate
	}
	if w.Registrar != "" {
		m["registrar"] = w.Registrar
	}
	if w.Country != "" {
		m["country"] = w.Country
	}
	if w.Org != "" {
		m["org"] = w.Org
	}
	return m
}

// Lookup performs a raw TCP WHOIS query against whois.iana.org within
// WhoisTimeout, gated by whoisBreaker. Any failure (breaker open, dial,
// write, read, timeout) yields a zero-value WhoisData rather than an
// error, matching the "failures are tolerated (empty map)" contract.
func Lookup(ctx context.Context, domainName string) WhoisData {
	var result WhoisData
	_ = whoisBreaker.Call(ctx, func(ctx context.Context) error {
		data, err := dialAndQuery(ctx, domainName)
		if err != nil {
			return err
		}
		result = data
		return nil
	})
	return result
}

func dialAndQuery(ctx context.Context, domainName string) (WhoisData, error) {
	ctx, cancel := context.WithTimeout(ctx, WhoisTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", whoisServer)
	if err != nil {
		return WhoisData{}, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if _, err := conn.Write([]byte(domainName + "\r\n")); err != nil {
		return WhoisData{}, err
	}

	var sb strings.Builder
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		sb.WriteString(scanner.Text())
		sb.WriteByte('\n')
	}

	return parseWhois(sb.String()), nil
}

func parseWhois(raw string) WhoisData {
	var w WhoisData
	if m := whoisCreationRe.FindStringSubmatch(raw); len(m) == 3 {
		w.CreationDate = strings.TrimSpace(m[2])
	}
	if m := whoisRegistrarRe.FindStringSubmatch(raw); len(m) == 2 {
		w.Registrar = strings.TrimSpace(m[1])
	}
	if m := whoisCountryRe.FindStringSubmatch(raw); len(m) == 2 {
		w.Country = strings.TrimSpace(m[1])
	}
	if m := whoisOrgRe.FindStringSubmatch(raw); len(m) == 2 {
		w.Org = strings.TrimSpace(m[1])
	}
	return w
}

// AgeDays computes domain age in days from the parsed creation date using
// RFC3339/common WHOIS date layouts. Returns (0, false) when unparseable,
// which callers treat as "no domain-age signal" rather than "brand new".
func (w WhoisData) AgeDays(now time.Time) (int, bool) {
	if w.CreationDate == "" {
		return 0, false
	}
	layouts := []string{time.RFC3339, "2006-01-02T15:04:05Z", "2006-01-02", "20060102"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, w.CreationDate); err == nil {
			return int(now.Sub(t).Hours() / 24), true
		}
	}
	return 0, false
}
