// Package wallet implements the signer session layer: a keyring of named
// secp256k1 signers, connect/disconnect session management, and the two
// capabilities the flow coordinator relies on — signing a multi-agent
// transaction and submitting the fully authorized transaction through a
// chain client.
package wallet
