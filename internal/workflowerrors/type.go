package workflowerrors

import "reflect"

// getErrorType returns the name of the given error type, returns "" for the built-in error types
func getErrorType(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch {
	case t.PkgPath() == "errors" && t.Name() == "errorString":
		return ""
	case t.PkgPath() == "errors" && t.Name() == "joinError":
		return ""
	case t.PkgPath() == "fmt" && (t.Name() == "wrapError" || t.Name() == "wrapErrors"):
		return ""
	}

	return t.Name()
}
