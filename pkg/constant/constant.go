package constant

// Message types
const (
	MsgTypeText   = 1
	MsgTypeImage  = 2
	MsgTypeSystem = 10
)

// Platform Ids
const (
	PlatformIdUnknown = 0
	PlatformIdIOS     = 1
	PlatformIdAndroid = 2
	PlatformIdWindows = 3
	PlatformIdMacOS   = 4
	PlatformIdWeb     = 5
	PlatformIdCLI     = 6
)

// PlatformIdToName converts platform Id to name
func PlatformIdToName(platformId int) string {
	switch platformId {
	case PlatformIdIOS:
		return "iOS"
	case PlatformIdAndroid:
		return "Android"
	case PlatformIdWindows:
		return "Windows"
	case PlatformIdMacOS:
		return "macOS"
	case PlatformIdWeb:
		return "Web"
	case PlatformIdCLI:
		return "CLI"
	default:
		return "Unknown"
	}
}

// Receipt sources recorded in the diagnostic fields of a read receipt
const (
	ReceiptSourceHTTP    = "http"
	ReceiptSourceTracker = "unread_tracker"
)

// Review codes
const (
	ReviewCodePrefix   = "REVIEW-"
	ReviewCodeLength   = 10
	ReviewCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Redis key patterns (without prefix, use the getters to get full key)
const (
	redisKeyToken    = "token:%s:%d"   // token:{user_id}:{platform_id}
	redisKeyOnline   = "online:%s"     // online:{user_id}
	redisKeyFeedConv = "feed:conv:%s"  // feed:conv:{user_id}
	redisKeyFeedAll  = "feed:conv:*"   // pattern over every user channel
)

// redisKeyPrefix is the global prefix for all Redis keys
var redisKeyPrefix = "bazaar:"

// InitRedisKeyPrefix initializes the Redis key prefix from config
func InitRedisKeyPrefix(prefix string) {
	if prefix != "" {
		redisKeyPrefix = prefix
	}
}

// GetRedisKeyPrefix returns the current Redis key prefix
func GetRedisKeyPrefix() string {
	return redisKeyPrefix
}

// Redis key getters with prefix
func RedisKeyToken() string    { return redisKeyPrefix + redisKeyToken }
func RedisKeyOnline() string   { return redisKeyPrefix + redisKeyOnline }
func RedisKeyFeedConv() string { return redisKeyPrefix + redisKeyFeedConv }
func RedisKeyFeedAll() string  { return redisKeyPrefix + redisKeyFeedAll }
