// Package record defines the wire schema for marketplace log records.
//
// Every record appended to the marketplace log is a JSON object carrying a
// common envelope (type, requestId, sender, timestamp) plus type-specific
// fields. The log itself assigns sequence numbers; nothing in a payload is
// an ordering authority.
package record
