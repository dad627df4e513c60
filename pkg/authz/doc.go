// Package authz decides whether a principal may load a model pointer.
//
// Decisions are made by Rego policies evaluated with OPA. A policy set lives
// in the package modelresolver.authz and exposes a boolean "allow" rule and
// an optional "deny" set of messages:
//
//	package modelresolver.authz
//
//	import rego.v1
//
//	default allow := false
//
//	allow if count(deny) == 0
//
//	deny contains msg if {
//		input.store == "sdlc"
//		input.principal.anonymous
//		msg := "anonymous principals may not read workspaces"
//	}
//
// The input document carries the principal (name, groups, anonymous) and
// the pointer (store, kind, resource and the raw SDLC coordinates).
//
// Without a policy directory the built-in policy applies. With Watch set the
// directory is observed with fsnotify and recompiled on change; the compiled
// policy set is swapped atomically, and a set that fails to compile leaves
// the previous one in force.
package authz
