// Package ledger abstracts the account service that holds and moves escrow
// funds. The orchestrator only ever releases funds out of the escrow account
// and reads balances; locking happens at session setup by funding the escrow
// account with the budget.
package ledger
