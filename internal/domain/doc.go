// Package domain contains the core entities of the story generation system:
// tasks, their external job mappings, rate windows, story documents and audit
// records. Entities validate themselves and are persisted through the store
// interfaces.
package domain
