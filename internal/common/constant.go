package common

// Header names shared by the HTTP server and the client transport.
const (
	HeaderSharePassword = "X-Share-Password"
	HeaderDeleteToken   = "X-Delete-Token"

	HeaderIV            = "X-Encryption-IV"
	HeaderSalt          = "X-Encryption-Salt"
	HeaderIterations    = "X-Encryption-Iterations"
	HeaderKDF           = "X-Encryption-KDF"
	HeaderAlgorithm     = "X-Encryption-Algorithm"
	HeaderChunkSize     = "X-Encryption-Chunk-Size"
	HeaderPlaintextSize = "X-Plaintext-Size"
)
