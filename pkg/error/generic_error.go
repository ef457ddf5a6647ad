package error

// GenericError is implemented by every error the HTTP layer knows how to render.
type GenericError interface {
	Error() string
	ErrCode() string
	StatusCode() int
}
