package http

import "net/http"

// StatusResponseWriter records the status code written through it.
type StatusResponseWriter struct {
	statusCode int
	http.ResponseWriter
}

// NewStatusResponseWriter wraps w.
func NewStatusResponseWriter(w http.ResponseWriter) *StatusResponseWriter {
	return &StatusResponseWriter{
		ResponseWriter: w,
	}
}

// WriteHeader writes the header and captures the status code.
func (w *StatusResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Code returns the status code written, which is 200 if none was written explicitly.
func (w *StatusResponseWriter) Code() int {
	if w.statusCode == 0 {
		return http.StatusOK
	}
	return w.statusCode
}

// StatusCodeClass returns the class of the status code, such as "2XX".
func (w *StatusResponseWriter) StatusCodeClass() string {
	class := "XXX"
	switch w.Code() / 100 {
	case 1:
		class = "1XX"
	case 2:
		class = "2XX"
	case 3:
		class = "3XX"
	case 4:
		class = "4XX"
	case 5:
		class = "5XX"
	}
	return class
}
