// Package kinship is the in-memory kinship graph engine: a member index built
// once per snapshot, relationship inference between two members, cycle-safe
// tree assembly and generation grouping for layout.
//
// Every function here is pure. An Index is never mutated after NewIndex
// returns, so one Index may be shared by any number of goroutines. Dirty data
// (dangling links, cycles, duplicate identifiers) degrades results instead of
// producing errors.
//
// Kinship follows the paternal line: FatherID and ChildrenIDs form the
// parent-child edges, MotherID is carried but not traversed.
package kinship
