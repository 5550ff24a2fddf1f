// Package graph holds the canonical in-memory model of the discovered map:
// star systems (nodes), the wormholes between them (links), and the
// operator's current location.
//
// # Identity
//
// A system name addresses exactly one *Node per graph generation. Every
// update that mentions a name goes through Store.ResolveOrCreate, so the
// renderer always sees the same object for the same system and any
// layout state attached to it (positions, pin flags) survives later merges.
//
// # Deferred link binding
//
// Links arrive addressed by name. Store.ResolveLink binds both names to
// their node objects (creating nodes that were never announced), and only
// then is a Link constructed. A Link never holds a bare name.
//
// # Lifecycle
//
//  1. **Created** empty with New at session start.
//  2. **Mutated** by the update merger, one envelope at a time.
//  3. **Replaced** wholesale on a snapshot recover (Store.Replace).
//  4. **Cleared** on an explicit operator reset (Store.Reset).
//
// # Thread-Safety
//
// All Store methods are safe for concurrent use. The tracker session is the
// only writer; renderers and the HTTP surface read concurrently.
package graph
