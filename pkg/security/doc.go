/*
Package security seals credential-like backend specs at rest.

Backends registered in the catalog carry connection details in their
ConfigSpecs (users, keyrings, passwords). When the composer is given a key
file, the catalog stores every value whose key contains a sensitive
fragment ("password", "secret", "token", "keyring", "key") as

	sealed:<base64(nonce || AES-256-GCM ciphertext)>

and opens it again on lookup, so drivers always see plaintext.

# Keys

LoadSealer accepts either a raw 32-byte key or a passphrase, from which
the key is derived with SHA-256:

	head -c 32 /dev/urandom > /etc/sdscompose/catalog.key

Losing the key makes sealed specs unreadable; lookups then fail with
errdefs.ErrDataLoss or a decryption error.
*/
package security
