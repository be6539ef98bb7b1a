// Package stores keeps the resolution journal: one SQLite row per
// resolved package profile, with the merged region stored as a
// compressed snapshot.
//
// The journal is opt-in (journal.enabled in the settings file). It lets
// `extconf history` answer what a profile resolved to on an earlier run,
// and whether two runs produced the same region: equal SnapshotDigest
// values mean equal merged regions.
//
//	store, err := stores.NewSQLiteStore(stores.Config{Path: "journal.db"})
//	if err != nil {
//	    return err
//	}
//	if err := store.Init(ctx); err != nil {
//	    return err
//	}
//	defer store.Close()
//	if err := store.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are embedded and run with golang-migrate.
package stores
