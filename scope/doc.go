// Package scope implements the hierarchical channel namespace of the bus.
//
// A Scope designates one channel in the unified bus hierarchy and has a
// surface syntax like "/a/deep/scope/". Scopes form a tree rooted at "/";
// events published on a scope are visible to participants on that scope
// and on every super-scope up to the root.
package scope
