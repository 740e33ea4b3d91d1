// Package view merges local-only sessions with the cloud catalog into a
// single gallery list.
package view

import (
	"sort"

	"github.com/xowhq/boothcore/internal/models"
)

// Merge builds the reconciled session list: every local session that has not
// been promoted yet, plus every cloud session, ordered most recent first.
// Local sessions with the uploaded flag set are dropped entirely; their cloud
// counterpart is the single source of truth once promotion finishes, so a
// promoted session never shows up twice.
func Merge(local []models.LocalSession, cloud []models.CloudSession) []models.Entry {
	entries := make([]models.Entry, 0, len(local)+len(cloud))
	for i := range local {
		if local[i].Uploaded {
			continue
		}
		entries = append(entries, models.Entry{Kind: models.EntryLocal, Local: &local[i]})
	}
	for i := range cloud {
		entries = append(entries, models.Entry{Kind: models.EntryCloud, Cloud: &cloud[i]})
	}
	sort.SliceStable(entries, func(a, b int) bool {
		return entries[a].StartTime().After(entries[b].StartTime())
	})
	return entries
}
