// Package entitle is the debounced side-effect path: when the stream hints
// that the account or a package changed, it calls the external entitlement
// service and persists the result. Calls are best-effort; errors are logged
// and swallowed, visible only through absent cache updates.
package entitle

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nimbletv/pulse/internal/store"
	"github.com/nimbletv/pulse/internal/suppress"
)

// PackageEntitlement is the per-package slice of the shared package map.
type PackageEntitlement struct {
	AssetIDs   []string `json:"assetIds"`
	ContentIDs []string `json:"contentIds"`
}

// AccountResult is what an account-wide refresh yields.
type AccountResult struct {
	ActiveIDs         []string
	ChannelsByPackage map[string]PackageEntitlement
}

type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Store      *store.Store
	Log        *zap.Logger
	Gate       *suppress.RefreshGate
	Now        func() time.Time
	// MaxBurst package refreshes run immediately; the remainder waits
	// DeferDelay before being issued.
	MaxBurst   int
	DeferDelay time.Duration
}

type Client struct {
	cfg Config
	mu  sync.Mutex // serializes the package-map read-merge-write
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Gate == nil {
		cfg.Gate = suppress.NewRefreshGate(suppress.DefaultRefreshInterval)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxBurst <= 0 {
		cfg.MaxBurst = suppress.MaxImmediateRefreshes
	}
	if cfg.DeferDelay <= 0 {
		cfg.DeferDelay = suppress.DeferredRefreshDelay
	}
	return &Client{cfg: cfg}
}

// RefreshAccount re-fetches the whole account's entitlements. Bursts
// collapse: while a refresh is in flight, or within the minimum interval
// since the last one, the call is a no-op.
func (c *Client) RefreshAccount(ctx context.Context, customerID string) (AccountResult, bool) {
	if !c.cfg.Gate.TryAcquire(c.cfg.Now()) {
		c.cfg.Log.Debug("account refresh suppressed", zap.String("customer", customerID))
		return AccountResult{}, false
	}
	defer c.cfg.Gate.Release()

	body, err := c.get(ctx, "/entitlements", url.Values{"customer": {customerID}})
	if err != nil {
		c.cfg.Log.Warn("account refresh failed", zap.Error(err))
		return AccountResult{}, false
	}

	now := c.cfg.Now()
	var active []string
	gjson.GetBytes(body, "results").ForEach(func(_, r gjson.Result) bool {
		sid := first(r, "serviceId", "service-id")
		if sid == "" {
			return true
		}
		if serviceActive(first(r, "end-date", "expire-date", "endDate", "expireDate"), now) {
			active = append(active, sid)
		}
		return true
	})

	c.persistActive(active)
	res := AccountResult{
		ActiveIDs:         active,
		ChannelsByPackage: c.packageMap(),
	}
	c.cfg.Log.Info("account entitlements refreshed", zap.Int("active", len(active)))
	return res, true
}

// RefreshPackages fans out the narrow per-package refresh: at most MaxBurst
// concurrent calls immediately, the remainder after a fixed delay so bursts
// stay bounded without dropping work.
func (c *Client) RefreshPackages(ctx context.Context, ids []string) {
	ids = unique(ids)
	if len(ids) == 0 {
		return
	}
	immediate := ids
	var deferred []string
	if len(ids) > c.cfg.MaxBurst {
		immediate, deferred = ids[:c.cfg.MaxBurst], ids[c.cfg.MaxBurst:]
	}

	c.runBatch(ctx, immediate)

	if len(deferred) == 0 {
		return
	}
	select {
	case <-time.After(c.cfg.DeferDelay):
	case <-ctx.Done():
		return
	}
	c.runBatch(ctx, deferred)
}

func (c *Client) runBatch(ctx context.Context, ids []string) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxBurst)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			c.refreshOne(gctx, id)
			return nil // errors already swallowed per call
		})
	}
	_ = g.Wait()
}

func (c *Client) refreshOne(ctx context.Context, packageID string) {
	body, err := c.get(ctx, "/channels", url.Values{"service": {packageID}})
	if err != nil {
		c.cfg.Log.Warn("package refresh failed",
			zap.String("package", packageID), zap.Error(err))
		return
	}

	var pe PackageEntitlement
	gjson.GetBytes(body, "results").ForEach(func(_, r gjson.Result) bool {
		if a := first(r, "assetId", "asset-id"); a != "" {
			pe.AssetIDs = append(pe.AssetIDs, a)
		}
		if cid := first(r, "contentId", "content-id"); cid != "" {
			pe.ContentIDs = append(pe.ContentIDs, cid)
		}
		return true
	})

	c.mergePackage(packageID, pe)
	c.cfg.Log.Info("package entitlements refreshed",
		zap.String("package", packageID),
		zap.Int("assets", len(pe.AssetIDs)))
}

// mergePackage re-reads the shared map before writing so the narrow refresh
// merges into, rather than replaces, entries written by others.
func (c *Client) mergePackage(packageID string, pe PackageEntitlement) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.packageMap()
	m[packageID] = pe
	for _, t := range c.tiers() {
		if err := store.SetJSON(t, store.KeyPackageMap, m); err != nil {
			c.cfg.Log.Warn("package map write failed", zap.Error(err))
		}
	}
}

func (c *Client) persistActive(ids []string) {
	for _, t := range c.tiers() {
		if err := store.SetJSON(t, store.KeyActivePackages, ids); err != nil {
			c.cfg.Log.Warn("active package write failed", zap.Error(err))
		}
	}
}

func (c *Client) packageMap() map[string]PackageEntitlement {
	for _, t := range c.tiers() {
		if m := store.GetJSON(t, store.KeyPackageMap, map[string]PackageEntitlement(nil)); m != nil {
			return m
		}
	}
	return map[string]PackageEntitlement{}
}

func (c *Client) tiers() []store.Tier {
	var out []store.Tier
	if c.cfg.Store == nil {
		return out
	}
	for _, t := range []store.Tier{c.cfg.Store.Session, c.cfg.Store.Durable} {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	u = u.JoinPath(path)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("entitlement service: %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}

// serviceActive: a service with no expiry is active; otherwise the expiry
// counts at day granularity, end-of-day inclusive.
func serviceActive(end string, now time.Time) bool {
	if end == "" {
		return true
	}
	t, ok := parseDate(end)
	if !ok {
		return true // malformed dates read as no expiry
	}
	eod := time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
	return !eod.Before(now)
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func first(r gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := r.Get(k); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
