// Package serviceerror defines the structured error returned by the Graph
// client pipeline and translates HTTP failures into it.
//
// Every terminal failure surfaces as a *ServiceError carrying a stable string
// code (see the Code constants), a human message, an optional chain of inner
// errors, the HTTP status and headers when a response was received, the raw
// response body when it could not be parsed, and the originating transport
// error when the fault happened below the HTTP layer.
//
// # Translating responses
//
//	resp, err := client.Send(ctx, req)
//	if err != nil {
//	    return err // already a *ServiceError or context.Canceled
//	}
//	if resp.StatusCode >= 400 {
//	    return serviceerror.FromResponse(resp)
//	}
//
// # Matching codes
//
// IsMatch compares case-insensitively and walks the inner error chain:
//
//	var svcErr *serviceerror.ServiceError
//	if errors.As(err, &svcErr) && svcErr.IsMatch("activityLimitReached") {
//	    // back off
//	}
//
// HasCode is a shortcut that unwraps for you:
//
//	if serviceerror.HasCode(err, serviceerror.CodeTooManyRetries) {
//	    // give up
//	}
package serviceerror
