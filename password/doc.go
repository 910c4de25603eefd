// Package password hashes and verifies account passwords with argon2id.
//
// Hashes are stored as PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Salt and key are unpadded standard base64. [Hasher.NeedsUpgrade] reports hashes
// produced with weaker parameters so the caller can rehash on the next login.
//
// The package never stores or logs plaintext and does not import other goTasks packages.
package password
