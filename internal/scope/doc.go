// Package scope lays out a rule's condition tree into patterns and
// declarations and resolves variable names against it.
//
// Visibility follows the shape of the tree:
//   - and: every declaration of every child is visible, in tuple order
//   - or: a name is visible only when every branch binds it at the same
//     tuple offset; each branch starts at the same offset and the group
//     is as wide as its widest branch
//   - not / exists: nothing inside is visible and no tuple slot is used
//
// Scopes are built once per rule at package build time and are read-only
// afterwards.
package scope
