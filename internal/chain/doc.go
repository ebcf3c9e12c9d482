// Package chain houses the multi-agent transaction model and blockchain
// connectivity utilities: the canonical binary codec for transactions and
// authenticators, signing message derivation, submission clients, and
// multi-chain configuration helpers. It lets the flow coordinator move
// opaque artifacts between signers and submit the fully authorized
// transaction to a supported network.
package chain
