package store

import (
	"sort"
	"strings"

	"github.com/MrSnakeDoc/selectord/internal/domain"
)

// SortSelectors orders selectors newest update first, ties broken by id.
// Backends that cannot sort server side use it to honour SelectByQuery
// and SelectByName.
func SortSelectors(list []*domain.ProxySelector) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].DateUpdated.Equal(list[j].DateUpdated) {
			return list[i].DateUpdated.After(list[j].DateUpdated)
		}
		return list[i].ID < list[j].ID
	})
}

// SortUpstreams orders upstreams by creation time, then id.
func SortUpstreams(list []*domain.DiscoveryUpstream) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].DateCreated.Equal(list[j].DateCreated) {
			return list[i].DateCreated.Before(list[j].DateCreated)
		}
		return list[i].ID < list[j].ID
	})
}

// Page slices list by offset and limit; a limit <= 0 means no limit.
func Page[T any](list []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(list) {
		return []T{}
	}
	end := len(list)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return list[offset:end]
}

// FilterByName keeps the selectors whose name contains sub.
func FilterByName(list []*domain.ProxySelector, sub string) []*domain.ProxySelector {
	if sub == "" {
		return list
	}
	out := make([]*domain.ProxySelector, 0, len(list))
	for _, ps := range list {
		if strings.Contains(ps.Name, sub) {
			out = append(out, ps)
		}
	}
	return out
}
