// Command modelkit inspects the persistence container configured for a
// modelkit deployment: record counts, identities and the bundled user schema.
package main

func main() {
	execute()
}
