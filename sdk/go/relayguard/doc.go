// Package relayguard is the Go client for the relayguard HTTP API.
//
// It speaks the wire format directly and carries no policy logic of its
// own: the server is the authority. Typical use is a trading agent
// backend pre-flighting a drafted plan, then executing it:
//
//	client := relayguard.New("http://localhost:8080")
//
//	check, err := client.Validate(ctx, relayguard.ExecuteRequest{
//		SessionID: sessionID,
//		Plan:      plan,
//	})
//	if err != nil { ... }
//	if check.WouldAllow {
//		result, err := client.Execute(ctx, relayguard.ExecuteRequest{
//			SessionID: sessionID,
//			Plan:      plan,
//		})
//		...
//	}
//
// Denials are returned as *relayguard.DenialError with the server's code
// and details intact.
package relayguard
