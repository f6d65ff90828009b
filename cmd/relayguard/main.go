// relayguard — session authority and execution policy engine.
// Sits between agent-drafted trading plans and the relayer: nothing
// reaches the chain without passing the allowlist, session, and spend
// checks first.
package main

import "github.com/relayguard/relayguard/internal/cli"

func main() {
	cli.Execute()
}
