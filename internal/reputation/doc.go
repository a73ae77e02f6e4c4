// Package reputation abstracts the external registry that records scored
// feedback against agent identities. The registrar is strictly best-effort:
// the orchestrator wraps every call so a registry failure never blocks a
// session.
package reputation
