package store

import "gorm.io/gorm/clause"

// onConflictIgnore builds an upsert clause that silently no-ops on a
// conflicting unique column, used for rows that are naturally idempotent to
// (re)insert (tombstones, relay registration, notifications).
func onConflictIgnore(column string) clause.OnConflict {
	return clause.OnConflict{Columns: []clause.Column{{Name: column}}, DoNothing: true}
}

// onConflictUpdate builds an upsert clause that updates all columns when
// the given unique columns collide — used where Save's primary-key upsert
// doesn't apply because the conflict is on a secondary unique index.
func onConflictUpdate(columns ...string) clause.OnConflict {
	cols := make([]clause.Column, len(columns))
	for i, c := range columns {
		cols[i] = clause.Column{Name: c}
	}
	return clause.OnConflict{Columns: cols, UpdateAll: true}
}
