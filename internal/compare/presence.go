package compare

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/praktis/pricecompare/pkg/backend"
)

// Presence filters on whether a product has a genuine page on the merchant site.
type Presence string

const (
	PresenceAny     Presence = "any"
	PresencePresent Presence = "present"
	PresenceMissing Presence = "missing"
)

func ParsePresence(raw string) Presence {
	switch Presence(strings.ToLower(strings.TrimSpace(raw))) {
	case PresencePresent, "true", "1", "yes":
		return PresencePresent
	case PresenceMissing, "false", "0", "no":
		return PresenceMissing
	default:
		return PresenceAny
	}
}

// HasPresence reports whether url is a product page on the merchant domain:
// non-empty, under the domain prefix, and not the bare site root.
func HasPresence(url, domain string) bool {
	u := strings.TrimSpace(url)
	d := strings.TrimSpace(domain)
	if u == "" || d == "" {
		return false
	}
	if !strings.HasPrefix(strings.ToLower(u), strings.ToLower(d)) {
		return false
	}
	return !strings.EqualFold(strings.TrimRight(u, "/"), strings.TrimRight(d, "/"))
}

// PresencePredicate keeps items whose asset matches the wanted presence.
func PresencePredicate[T any](mode Presence, domain string, assets map[string]backend.Asset, sku func(T) string) Predicate[T] {
	if mode != PresencePresent && mode != PresenceMissing {
		return nil
	}
	want := mode == PresencePresent
	return func(item T) bool {
		return HasPresence(assets[sku(item)].ProductURL, domain) == want
	}
}

// AssetSource loads merchant-site assets for a batch of SKUs.
type AssetSource interface {
	FetchAssets(ctx context.Context, skus []string) (map[string]backend.Asset, error)
}

// AssetResolver splits large SKU sets into batches and fetches them with
// bounded concurrency.
type AssetResolver struct {
	source      AssetSource
	batchSize   int
	concurrency int
}

func NewAssetResolver(source AssetSource, batchSize, concurrency int) *AssetResolver {
	if batchSize <= 0 {
		batchSize = 200
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &AssetResolver{source: source, batchSize: batchSize, concurrency: concurrency}
}

// Resolve returns assets for every distinct non-empty SKU. The first failing
// batch cancels the rest and its error is returned.
func (r *AssetResolver) Resolve(ctx context.Context, skus []string) (map[string]backend.Asset, error) {
	unique := dedupe(skus)
	out := make(map[string]backend.Asset, len(unique))
	if len(unique) == 0 {
		return out, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for start := 0; start < len(unique); start += r.batchSize {
		end := start + r.batchSize
		if end > len(unique) {
			end = len(unique)
		}
		batch := unique[start:end]
		g.Go(func() error {
			assets, err := r.source.FetchAssets(gctx, batch)
			if err != nil {
				return err
			}
			mu.Lock()
			for sku, a := range assets {
				out[sku] = a
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func dedupe(skus []string) []string {
	seen := make(map[string]struct{}, len(skus))
	out := make([]string, 0, len(skus))
	for _, s := range skus {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
