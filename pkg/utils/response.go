package utils

// ResponseData is the envelope every REST handler answers with.
type ResponseData struct {
	Status  int    `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Results any    `json:"results,omitempty"`
}

// PanicIfNeeded hands the error to middleware.Recovery, which renders it.
func PanicIfNeeded(err any) {
	if err != nil {
		panic(err)
	}
}
