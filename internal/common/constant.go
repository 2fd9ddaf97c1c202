package common

// AuthorizationHeaderName is the HTTP header carrying the Blob-Store bearer
// token on every remote call.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix prefixes the token value in the Authorization header.
const BearerPrefix = "Bearer "
