// Package logging wraps Zap with context-aware methods for marketd.
//
// Every log call takes a context.Context; correlation fields (request.id,
// session.id) stored in the context are appended to the entry automatically,
// so a session's whole lifecycle can be filtered by one field.
package logging
