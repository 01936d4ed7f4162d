package state

var (
	attributePrefix     = []byte("registry/attr/")
	attributeWriterKey  = []byte("registry/writers/")
	identityOwnerPrefix = []byte("nft/owner/")
	identityNextPrefix  = []byte("nft/next/")
	tokenMetadataKey    = []byte("token/metadata")
	tokenBalancePrefix  = []byte("token/balance/")
	tokenAllowancePfx   = []byte("token/allowance/")
)
