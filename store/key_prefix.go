package store

// Declare database key prefix for objects
const (
	PrefixChain = "chain:"
	PrefixBlock = "blk:"
	PrefixCert  = "cert:"

	// confirmed:<chain id>:<height BE> -> block hash; big-endian heights keep
	// the confirmed log in key order for prefix iteration.
	PrefixConfirmed = "confirmed:"

	PrefixMeta        = "meta:"
	MetaKeyChainIndex = "chain_index"
)
