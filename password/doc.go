// Package password hashes and verifies account passwords with Argon2id.
//
// Hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Parameters travel with the hash, so a [Hasher] configured with stronger
// settings can still verify older hashes; [Hasher.NeedsRehash] reports when a
// stored hash should be replaced after the next successful login.
//
// Password policy (length limits) belongs to the engine, not to this package.
// Nothing here logs or stores plaintext.
package password
