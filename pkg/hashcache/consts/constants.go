package consts

const (
	// DefaultDBName is the default database name.
	DefaultDBName = "semindex"

	// TableNameProducts is the default catalog table carrying the digest
	// column.
	TableNameProducts = "products"

	// ColEmbeddingHash is the digest column on the catalog table.
	ColEmbeddingHash = "embedding_hash"

	// ColID is the entity primary key column.
	ColID = "id"

	// CollectionNameHashes is the default Mongo collection for digests.
	CollectionNameHashes = "embedding_hashes"

	// KeyPrefixHash is the Redis key prefix for digests.
	KeyPrefixHash = "embedding_hash"

	// Neo4j specific
	LabelEntity = "Entity"
)
