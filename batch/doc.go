// Package batch combines up to MaxSteps Graph requests into one JSON $batch
// call and splits the batch response back into per-step responses.
//
//	content, err := batch.NewRequestContent(client)
//	if err != nil {
//	    return err
//	}
//	meID, _ := content.AddRequest(meReq)
//	driveID, _ := content.AddRequest(driveReq, meID)
//
//	resp, err := content.Post(ctx)
//	if err != nil {
//	    return err // the $batch call itself failed
//	}
//	var drive Drive
//	if err := resp.Decode(driveID, &drive); err != nil {
//	    return err // step failed or body did not decode
//	}
//
// Steps carry the caller's *http.Request. Their URLs may be relative to the
// service root or absolute under the client's base URL. JSON bodies are
// embedded as JSON and other bodies as base64 strings.
//
// RequestContentCollection lifts the step limit by posting several batches
// concurrently. Steps tied together through dependsOn stay in one batch.
package batch
