package middlewares

const (
	CtxRequestID = "request_id"

	ctxUserIDKey   = "auth.userID"
	ctxEmailKey    = "auth.email"
	ctxTokenJTIKey = "auth.jti"
	ctxTokenExpKey = "auth.exp"
)
