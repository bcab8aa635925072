// Package authsdk is the Go client for the emstore campaign API.
//
// Every request goes through Client.Do, which owns the authentication
// protocol:
//
//   - Safe methods (GET, HEAD, OPTIONS, TRACE) are sent without a CSRF token.
//   - Other methods carry the CSRF token in the X-CSRFToken header
//     (cookie+csrf scheme), fetched lazily from the token endpoint.
//   - In the bearer scheme every request carries Authorization: Bearer.
//   - The token, login, register and refresh endpoints never carry
//     credentials.
//   - A 401 or 403 triggers exactly one refresh followed by exactly one
//     replay. Concurrent requests that fail with the same credential wait
//     on the same refresh.
//   - When the refresh fails, or the replay is rejected again, all local
//     credentials are cleared and ErrReauthenticationRequired is returned.
//
// # Quick Start
//
//	client, err := authsdk.New(authsdk.Config{
//	    BaseURL: "https://emstore.example.com",
//	    Scheme:  authsdk.SchemeCookieCSRF,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if _, err := client.Login(ctx, "alice", "hunter2"); err != nil {
//	    log.Fatal(err)
//	}
//
//	campaign, err := client.CreateCampaign(ctx, authsdk.CampaignRequest{
//	    Name:     "Spring launch",
//	    Email:    "sales@example.com",
//	    Password: "app-password",
//	    Provider: "gmail",
//	})
//
// # Error Handling
//
// Errors can be inspected with errors.Is and errors.As:
//
//	switch {
//	case errors.Is(err, authsdk.ErrReauthenticationRequired):
//	    // send the user back to login
//	case errors.Is(err, authsdk.ErrNetwork):
//	    // no response; safe to surface as "try again"
//	case errors.Is(err, authsdk.ErrValidation):
//	    var apiErr *authsdk.APIError
//	    errors.As(err, &apiErr)
//	    fmt.Println(apiErr.Fields)
//	}
//
// # Credential Storage
//
// In the bearer scheme the access and refresh tokens are persisted through
// Config.Credentials (see package credstore) under the keys access_token and
// refresh_token. The CSRF token and the cached current user only live in
// memory.
//
// # Thread Safety
//
// Client and TokenStore are safe for concurrent use.
package authsdk
