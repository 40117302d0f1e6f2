// Package session persists conversations and their messages in PostgreSQL.
//
// A session is one conversation: an ordered list of user and assistant
// messages. [Store] owns all SQL; handlers and the CLI work with the
// [Session] and [Message] types only.
//
// Key operations:
//
//   - Session lifecycle: [Store.Create], [Store.Get], [Store.List], [Store.Delete], [Store.UpdateTitle], [Store.Touch]
//   - Message persistence: [Store.AppendMessages], [Store.ListMessages]
//   - Export: [ExportJSON], [ExportMarkdown]
//
// # Transaction Safety
//
// [Store.AppendMessages] locks the session row with SELECT ... FOR UPDATE
// before reading the current maximum sequence number, so concurrent appends
// to the same session cannot hand out duplicate seq values. Any failure
// rolls the whole batch back.
//
// # Concurrency
//
// Store is safe for concurrent use. All state lives in PostgreSQL; the
// struct itself holds only the connection pool and a logger.
package session
