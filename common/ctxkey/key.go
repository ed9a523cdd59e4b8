package ctxkey

const (
	KeyRequestBody = "key_request_body"
	RequestId      = "X-Request-Id"
	UserId         = "user_id"
	Purpose        = "purpose"
	TokenKey       = "token_key"
)
