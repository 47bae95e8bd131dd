package control

import (
	"context"

	"google.golang.org/grpc/metadata"
)

// Metadata keys carrying the calling actor.
const (
	metadataHostname = "x-actor-hostname"
	metadataUsername = "x-actor-username"
)

// Actor identifies who issued a control call.
type Actor struct {
	// Hostname is the host of the caller.
	Hostname string
	// Username is the OS user of the caller.
	Username string
}

// String renders the actor as user@host.
func (a *Actor) String() string {
	if a == nil {
		return "unknown"
	}

	return a.Username + "@" + a.Hostname
}

// WithActor attaches the actor to outgoing call metadata.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	if actor == nil {
		return ctx
	}

	return metadata.AppendToOutgoingContext(ctx,
		metadataHostname, actor.Hostname,
		metadataUsername, actor.Username)
}

// ActorFromContext extracts the actor from incoming call metadata.
func ActorFromContext(ctx context.Context) *Actor {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil
	}

	hostnames, usernames := md.Get(metadataHostname), md.Get(metadataUsername)
	if len(hostnames) == 0 && len(usernames) == 0 {
		return nil
	}

	actor := new(Actor)

	if len(hostnames) > 0 {
		actor.Hostname = hostnames[0]
	}

	if len(usernames) > 0 {
		actor.Username = usernames[0]
	}

	return actor
}
