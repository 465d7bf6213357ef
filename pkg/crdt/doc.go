// Package crdt contains the conflict-free replicated data types stored by
// mergedb.
//
// Each type supports local operations attributed to the node performing them,
// and a merge operation that is commutative, associative and idempotent. So
// replicas that have received the same set of updates, in any order and with
// any duplication, converge to the same value.
//
// Values are a closed set of variants implementing Value. Merging across
// variants is rejected with ErrTypeMismatch rather than coerced.
package crdt
