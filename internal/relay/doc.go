// Package relay implements the artifact relay between signers who are not
// co-located: a slot store holding the unsigned transaction artifact and the
// ordered co-signer authenticator artifacts for each flow run, plus a
// notification queue announcing slot writes so remote co-signers can react.
// Memory, Redis and MySQL backends are provided behind the same interfaces.
package relay
