// Package cli is the uploadhaven command-line client.
//
// Files are encrypted locally before upload and decrypted locally after
// download. The server only ever sees ciphertext, and the decryption key
// travels in the share link fragment or is derived from a password.
//
// Commands:
//
//	upload   [-p] [-e 24h] [-n 3] FILE
//	download [-p] [-f OUT] LINK
//	info     LINK
//	verify   LINK
//	delete   [-t TOKEN] [-y] LINK
//	list
//
// Uploads are remembered in a local SQLite history (without their keys) so
// delete can find the delete token and list can show what is still live.
package cli
