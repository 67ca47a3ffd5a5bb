/*
Package client is a thin HTTP client for the plan management API served by
pkg/api. The brokerfleet CLI uses it for every "plan" subcommand.

	c, err := client.NewClient("localhost:8080")
	if err != nil {
		return err
	}
	status, err := c.Status(ctx)

Non-2xx responses come back as *APIError carrying the server's error
message; IsStatus tests for a specific code, e.g. 503 before any rollout has
been adopted.
*/
package client
