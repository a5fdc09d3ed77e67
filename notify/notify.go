// Package notify implements the outbound webhook notifier: a POST with
// form-encoded fields describing a new head or an orphan unwind, sent only
// during incremental runs. Delivery failures are logged, never fatal —
// the pipeline's correctness never depends on a notification landing.
package notify

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jeremyandrews/addrindex/logger"
)

var log = logger.Get(logger.SubsystemTags.NOTY)

const requestTimeout = 60 * time.Second

// Notifier posts pipeline events to a configured webhook URL. A Notifier
// with an empty URL is a no-op, so callers can construct one
// unconditionally and skip their own nil checks.
type Notifier struct {
	URL        string
	HTTPClient *http.Client
}

// New returns a Notifier posting to webhookURL. An empty URL disables it.
func New(webhookURL string) *Notifier {
	return &Notifier{
		URL:        webhookURL,
		HTTPClient: &http.Client{Timeout: requestTimeout},
	}
}

// NotifyNewBlock announces a newly indexed head, once per incremental run.
func (n *Notifier) NotifyNewBlock(ctx context.Context, symbol string, height int64, hash string, timestamp int64, addresses []string) {
	n.send(ctx, "new block", symbol, height, hash, timestamp, addresses)
}

// NotifyOrphan announces one unwound orphan block.
func (n *Notifier) NotifyOrphan(ctx context.Context, symbol string, height int64, hash string, timestamp int64, addresses []string) {
	n.send(ctx, "orphan block", symbol, height, hash, timestamp, addresses)
}

func (n *Notifier) send(ctx context.Context, event, symbol string, height int64, hash string, timestamp int64, addresses []string) {
	if n == nil || n.URL == "" {
		return
	}

	form := url.Values{
		"event":     {event},
		"type":      {symbol},
		"symbol":    {symbol},
		"height":    {strconv.FormatInt(height, 10)},
		"hash":      {hash},
		"timestamp": {strconv.FormatInt(timestamp, 10)},
		"addresses": {strings.Join(addresses, ",")},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, strings.NewReader(form.Encode()))
	if err != nil {
		log.Warnf("building notification request: %s", err)
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.HTTPClient.Do(req)
	if err != nil {
		log.Warnf("delivering %q notification to %s: %s", event, n.URL, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Warnf("notification webhook %s returned HTTP %d", n.URL, resp.StatusCode)
	}
}
