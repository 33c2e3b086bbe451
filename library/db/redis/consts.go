package redis

const (
	keyPrefix = "laisky-blog-web/"

	// KeyPrefixSession prefixes persisted web sessions
	KeyPrefixSession = keyPrefix + "sessions/"
	// KeyPrefixPost prefixes cached posts
	KeyPrefixPost = keyPrefix + "posts/"
)
