// Package scan finds entities reachable from arbitrary Go values.
//
// The scanner follows pointers, interfaces, slices, arrays, maps (keys and
// values) and struct fields, exported or not. It stops at:
//
//   - entities, which are collected but never entered
//   - values already visited, so cycles terminate
//   - the depth budget (DefaultMaxDepth), silently
//   - scalars, strings, funcs and channels
//   - struct types from excluded packages (standard library internals,
//     drivers, telemetry SDKs)
//
// Fields that cannot be read are logged at debug level and skipped.
//
//	s := scan.New(scan.WithMaxDepth(4))
//	found := s.Scan(cmd, cart)
//	for _, e := range found.Items() {
//	    ...
//	}
//
// Shallow only looks at the roots themselves and is the cheap choice when
// entities are never nested inside containers.
package scan
