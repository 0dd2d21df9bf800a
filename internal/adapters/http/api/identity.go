package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/surgilog/internal/domain/model"
	"github.com/okian/surgilog/internal/domain/types"
)

// Identity headers set by the upstream authentication proxy.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

// actorFromRequest reads the caller identity from the identity headers.
func actorFromRequest(r *http.Request) (types.Actor, error) {
	const op = "api.identity"
	id := strings.TrimSpace(r.Header.Get(HeaderActorID))
	if id == "" {
		return types.Actor{}, model.WrapKind(op, ErrUnauthorized, fmt.Errorf("missing %s header", HeaderActorID))
	}
	role, err := types.ParseRole(r.Header.Get(HeaderActorRole))
	if err != nil {
		return types.Actor{}, model.WrapKind(op, ErrUnauthorized, err)
	}
	return types.Actor{ID: id, Role: role}, nil
}

// withActor resolves the caller or answers 401.
func withActor(next func(http.ResponseWriter, *http.Request, types.Actor)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err)
			return
		}
		next(w, r, actor)
	}
}
