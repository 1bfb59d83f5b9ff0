// Package inventory records what a render produced so a later render can be
// compared against it. An inventory lists every object by node ID with a
// content hash; Diff classifies ids as added, removed, changed or unchanged.
// Removed ids are the objects a deployment tool would prune.
package inventory
