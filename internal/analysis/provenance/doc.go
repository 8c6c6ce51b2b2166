// # Description
//
// Package provenance answers "which expressions could this expression have
// been produced by" for a type-checked Go package.
//
// ## Search modes
//
//   - Member: the start expression itself, or the return expressions of a
//     function literal.
//   - Recursive: follows calls, getters, assignments and channel receives.
//     Values that come from a callee's parameters are dropped.
//   - RecursiveInside: like Recursive, but a callee's parameters are replaced
//     by the arguments of the call being followed.
//
// ## Termination
//
// Every query owns a guard map keyed by (call, callee body, result index).
// A call that is already being walked contributes whatever values its walker
// has collected so far, so mutually recursive functions terminate. Variables
// whose assignments reference each other are cut by an "expanding" set.
//
// ## Concurrency
//
// A Resolver may be shared by goroutines. Each top-level call acquires its own
// query state from a pool and releases it before returning; the Program it
// reads is never written after construction.
package provenance
