/*
Package security keeps tenant mining passwords encrypted at rest.

Passwords are sealed with AES-256-GCM. The key is derived with HKDF-SHA256
from the host's machine id (/etc/machine-id), so a configuration file copied
to another host is useless there. Sealed passwords are stored hex encoded,
nonce first:

	hex( nonce[12] || ciphertext || tag[16] )

Operators put plaintext passwords under pending_passwords in the config
file and run `topio-agent check`, which seals them into each tenant's
mining_pswd_enc and rewrites the file without the plaintext.

The decrypted password only ever lives in memory for the duration of one
workflow cycle and is handed to topio on stdin.
*/
package security
