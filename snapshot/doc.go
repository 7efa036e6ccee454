// Package snapshot captures the state of an entity, and of the entities reachable from it via to-one
// relations, into versioned snapshots and restores entities from them.
//
// An entity takes part through the small Entity capability interface and an explicitly registered
// EntityType that declares its table, primary key, writable columns, hidden attributes, casts,
// timestamps, optional version column and relations.
//
// Key types:
//   - Definition: which attributes and relations are captured (capture-then-exclude)
//   - Collector: walks an entity according to a Definition into Records
//   - StorageColumn: folds the Records into one serialized column and back
//   - Restorer: writes a snapshot's Records back onto live entities
//   - Snapshotter: versioning, step resolution, locking, hooks and transactions
//
// Common usage pattern:
//
//	post := &snapshot.EntityType{Name: "post", Table: "posts", PrimaryKey: "id", VersionColumn: "current_version"}
//	post.AddRelation(snapshot.BelongsTo("author", user, "author_id"))
//
//	def := snapshot.BuildDefinition().
//		Exclude("views").
//		CaptureTypeTags().
//		WithRelation("author", snapshot.BuildDefinition().Capture("name").Finalize()).
//		Finalize()
//
//	snap, outcome, err := snapshotter.TakeSnapshot(ctx, entity, def, map[string]any{"reason": "publish"})
//	if err != nil {
//		// handle error
//	}
//	if outcome == snapshot.OutcomeBusy {
//		// retry later
//	}
//
//	entity, outcome, err = snapshotter.Rewind(ctx, entity, 1, true, false)
package snapshot
