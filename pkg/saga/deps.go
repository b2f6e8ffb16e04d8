package saga

import "context"

// resolver is the subset of the registry client (C1) a stage needs: turning
// a role into a live endpoint. Satisfied by *registry.Registry.
type resolver interface {
	Resolve(role string) (string, error)
}

// toolCaller is the subset of the tool-protocol client a stage needs.
// Satisfied by *toolclient.Client.
type toolCaller interface {
	CallTool(ctx context.Context, endpoint, name, argumentsJSON string) (content string, isError bool, err error)
}
