// README: Shared identifier type used across modules.
package types

// ID is an opaque identifier. Remote-assigned ids (sessions, incidents) are
// UUID strings; user ids come from the auth provider and are free-form.
type ID string

func (id ID) String() string { return string(id) }

func (id ID) Empty() bool { return id == "" }
