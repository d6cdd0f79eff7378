package common

// AuthorizationHeaderName is the HTTP header used to carry the bearer token
// on outbound requests.
const AuthorizationHeaderName = "Authorization"

// RequestIDHeaderName tags every outbound request for server-side tracing.
const RequestIDHeaderName = "X-Request-ID"

// Keys of the durable client-side store.
const (
	AccessTokenKey    = "accessToken"
	RefreshTokenKey   = "refreshToken"
	LocalFavoritesKey = "localFavorites"
)
