// Package pipeline is the candidate pipeline engine behind the kanban workspace.
//
// A Session holds one open workspace view: the stage registry, the cached
// applications, the current filter and visible set, the selection and at most
// one pending action. A move is applied to the cache first and confirmed with the
// backend afterwards; a failed confirmation restores the snapshot taken before
// the mutation. Bulk actions touch the cache only once the backend accepts them.
package pipeline
