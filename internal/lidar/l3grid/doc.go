// Package l3grid owns Layer 3 (Grid) of the sentry data model.
//
// Responsibilities: background profile learning over the warm-up window,
// foreground target selection against the frozen profile, and the
// actuator command encoding.
// Key types: Calibrator, ReferenceProfile, Session, Selector, Command.
//
// Dependency rule: L3 may depend on L1-L2, but never on the pipeline.
// No SQL/database code is allowed in this package.
package l3grid
